package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"chatpick/internal/config"
	"chatpick/internal/logging"
	"chatpick/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig  string
	flagOffline bool
	flagDebug   bool
)

var rootCmd = &cobra.Command{
	Use:   "chatpick",
	Short: "Pick a contact or conversation from your mailbox",
	Long: `chatpick is a terminal picker over a Gmail mailbox. Senders are contacts,
labels are forums and threads are topics. The picked row is printed to stdout
as one tab-separated line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default "+config.DefaultConfigPath()+")")
	rootCmd.PersistentFlags().BoolVar(&flagOffline, "offline", false, "search the local store only")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "write debug records to the log file")

	rootCmd.AddCommand(contactsCmd)
	rootCmd.AddCommand(topicsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(forumsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chatpick %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// appEnv is what every command opens before doing work.
type appEnv struct {
	cfg     *config.Config
	log     *slog.Logger
	store   *store.SQLiteStore
	offline bool
	closers []io.Closer
}

func openEnv() (*appEnv, error) {
	path := flagConfig
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log, logFile, err := logging.Open(config.LogPath(), flagDebug)
	if err != nil {
		return nil, err
	}

	db, err := store.NewSQLiteStore(config.DBPath())
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	env := &appEnv{
		cfg:     cfg,
		log:     log,
		store:   db,
		offline: flagOffline || cfg.Offline,
		closers: []io.Closer{db, logFile},
	}
	log.Debug("started", "version", version, "offline", env.offline, "config", path)
	return env, nil
}

func (e *appEnv) Close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
