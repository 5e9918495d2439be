package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chatpick/internal/model"
)

var forumsCmd = &cobra.Command{
	Use:   "forums",
	Short: "List synced forums with their topic counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		forums, err := env.store.ListForums(context.Background())
		if err != nil {
			return fmt.Errorf("listing forums: %w", err)
		}
		if len(forums) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No forums yet. Run `chatpick sync` first.")
			return nil
		}
		return printForums(cmd.OutOrStdout(), forums)
	},
}

func printForums(w io.Writer, forums []model.Forum) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTOPICS")
	for _, f := range forums {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", f.ID, f.Name, f.Topics)
	}
	return tw.Flush()
}
