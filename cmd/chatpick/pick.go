package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"chatpick/internal/config"
	"chatpick/internal/gmail"
	"chatpick/internal/tui"
)

var flagForum string

var contactsCmd = &cobra.Command{
	Use:   "contacts [query]",
	Short: "Search people and print the one you pick",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPicker(cmd, tui.ModeContacts, "", firstArg(args))
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics [query]",
	Short: "Search topics inside a forum and print the one you pick",
	Long: `Search threads under one label. Without --forum the first label in
sync.forums is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPicker(cmd, tui.ModeTopics, flagForum, firstArg(args))
	},
}

func init() {
	topicsCmd.Flags().StringVar(&flagForum, "forum", "", "label ID to search in")
}

func runPicker(cmd *cobra.Command, mode tui.Mode, forum, query string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if mode == tui.ModeTopics {
		forum = resolveForum(forum, env.cfg)
	}

	opts := tui.Options{
		Mode:          mode,
		Forum:         forum,
		Local:         env.store,
		PeopleOptions: env.cfg.PeopleOptions(env.log),
		TopicOptions:  env.cfg.TopicOptions(env.log),
		Query:         query,
		Logger:        env.log,
	}

	if env.offline {
		opts.People = env.store
		opts.Topics = env.store
	} else {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		svc, err := gmail.NewService(ctx, config.ConfigDir())
		if err != nil {
			return err
		}
		dir := gmail.NewDirectory(svc, env.store, gmail.DirectoryOptions{
			RequestsPerSecond: env.cfg.Search.RequestsPerSecond,
			Logger:            env.log,
		})
		opts.People = dir
		opts.Topics = dir
		opts.Bodies = func(ctx context.Context, messageID string) (string, error) {
			return gmail.MessageBody(ctx, svc, messageID)
		}
	}

	m := tui.NewAppModel(opts)
	defer m.Close()

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("running picker: %w", err)
	}
	if sel, ok := m.Selection(); ok {
		fmt.Fprintln(cmd.OutOrStdout(), sel)
	}
	return nil
}

// resolveForum falls back to the first synced forum.
func resolveForum(flag string, cfg *config.Config) string {
	if f := strings.TrimSpace(flag); f != "" {
		return f
	}
	if len(cfg.Sync.Forums) > 0 {
		return cfg.Sync.Forums[0]
	}
	return "INBOX"
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
