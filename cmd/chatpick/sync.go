package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"chatpick/internal/config"
	"chatpick/internal/gmail"
	"chatpick/internal/model"
)

var flagFull bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy message metadata from the mailbox into the local store",
	Long: `Fetch metadata for messages in the configured forums. After the first run only
changes since the last sync are fetched. Use --full to rescan everything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		if env.offline {
			return errors.New("sync needs network access; drop --offline")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		svc, err := gmail.NewService(ctx, config.ConfigDir())
		if err != nil {
			return err
		}

		out := cmd.ErrOrStderr()
		err = gmail.Sync(ctx, svc, env.store, gmail.SyncOptions{
			Forums:      env.cfg.Sync.Forums,
			MaxMessages: env.cfg.Sync.MaxMessages,
			Full:        flagFull,
			Progress:    func(p model.SyncProgress) { printProgress(out, p) },
			Logger:      env.log,
		})
		fmt.Fprintln(out)
		if err != nil {
			return fmt.Errorf("syncing: %w", err)
		}

		n, err := env.store.CountMessages(ctx)
		if err != nil {
			return fmt.Errorf("counting messages: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d messages in the local store.\n", n)
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&flagFull, "full", false, "rescan every forum instead of syncing changes")
}

func printProgress(w io.Writer, p model.SyncProgress) {
	fmt.Fprintf(w, "\r\033[K%s", formatProgress(p))
}

func formatProgress(p model.SyncProgress) string {
	if p.Total > 0 {
		return fmt.Sprintf("%s: %d / %d", p.Phase, p.Done, p.Total)
	}
	return fmt.Sprintf("%s: %d", p.Phase, p.Done)
}
