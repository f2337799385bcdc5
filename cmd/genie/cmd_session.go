package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/user/genie/internal/chat"
	"github.com/user/genie/internal/tokens"
	"github.com/user/genie/internal/types"
)

var (
	exportFormat string
	exportOutput string
	deleteAll    bool
	deleteYes    bool
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionRenameCmd, sessionDeleteCmd, sessionPinCmd, sessionExportCmd)
	sessionExportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md", "export format (json, yaml, md)")
	sessionExportCmd.Flags().StringVarP(&exportOutput, "out", "o", "", "output file (default stdout)")
	sessionDeleteCmd.Flags().BoolVar(&deleteAll, "all", false, "delete every session")
	sessionDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
}

// offlineApp loads the saved sessions into a controller with no model
// backend, for commands that never send.
func offlineApp(ctx context.Context) (*app, error) {
	cfg := loadConfig()
	setupLogging(cfg)
	registry, kv, store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	ctl := chat.New(chat.Options{Store: store, Models: registry, Logger: slog.Default()})
	if err := ctl.Load(ctx); err != nil {
		kv.Close()
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	return &app{cfg: cfg, registry: registry, kv: kv, store: store, ctl: ctl}, nil
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage saved chat sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions in display order (pinned first, newest first)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := offlineApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		sessions := a.ctl.Sessions()
		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		active := a.ctl.ActiveID()
		for i, s := range sessions {
			fmt.Println(renderSessionLine(i, s, s.ID == active) + " " + dimStyle.Render(fmt.Sprintf("%d msgs", len(s.Messages))))
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <n|id>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := offlineApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := resolveSession(a.ctl, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("%s %s\n", titleStyle.Render(s.Title), dimStyle.Render(string(s.ID)))
		fmt.Printf("%s %s\n", dimStyle.Render("model:"), s.ModelID)
		fmt.Printf("%s %s\n", dimStyle.Render("created:"), s.CreatedAt.Format("2006-01-02 15:04:05"))
		if counter, err := tokens.New("gpt-4o"); err == nil {
			fmt.Printf("%s ~%d %s\n", dimStyle.Render("history:"), counter.CountMessages(s.Messages),
				dimStyle.Render(breakdownString(counter.Breakdown(s.Messages))))
		}
		fmt.Println()
		for _, m := range s.Messages {
			fmt.Println(renderMessage(m))
			fmt.Println()
		}
		return nil
	},
}

func breakdownString(b map[types.Role]int) string {
	roles := make([]string, 0, len(b))
	for r := range b {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)
	out := "("
	for i, r := range roles {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s %d", r, b[types.Role(r)])
	}
	return out + ")"
}

var sessionRenameCmd = &cobra.Command{
	Use:   "rename <n|id> <title>",
	Short: "Rename a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := offlineApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := resolveSession(a.ctl, args[0])
		if err != nil {
			return err
		}
		if err := a.ctl.RenameSession(ctx, s.ID, args[1]); err != nil {
			return err
		}
		renamed, _ := a.ctl.Session(s.ID)
		fmt.Fprintf(os.Stdout, "Session %s renamed to %q.\n", s.ID, renamed.Title)
		return nil
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <n|id>",
	Short: "Delete a session, or all with --all",
	Args: func(cmd *cobra.Command, args []string) error {
		if deleteAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := offlineApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		ref := ""
		if len(args) > 0 {
			ref = args[0]
		}
		return deleteSessions(ctx, a, ref, deleteAll, deleteYes, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// deleteSessions removes the session ref resolves to, or every session when
// all is set. It asks for confirmation on in unless yes is set.
func deleteSessions(ctx context.Context, a *app, ref string, all, yes bool, in io.Reader, out io.Writer) error {
	var question string
	var target types.ChatSession
	if all {
		n := len(a.ctl.Sessions())
		if n == 0 {
			fmt.Fprintln(out, "No sessions.")
			return nil
		}
		question = fmt.Sprintf("Delete all %d sessions?", n)
	} else {
		s, err := resolveSession(a.ctl, ref)
		if err != nil {
			return err
		}
		target = s
		question = fmt.Sprintf("Delete %q?", s.Title)
	}

	if !yes && !confirm(bufio.NewScanner(in), out, question) {
		fmt.Fprintln(out, "Cancelled.")
		return nil
	}

	if all {
		if err := a.store.Save(ctx, nil); err != nil {
			return fmt.Errorf("clear sessions: %w", err)
		}
		fmt.Fprintln(out, "All sessions deleted.")
		return nil
	}
	if err := a.ctl.DeleteSession(ctx, target.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s deleted.\n", target.ID)
	return nil
}

var sessionPinCmd = &cobra.Command{
	Use:   "pin <n|id>",
	Short: "Toggle a session's pinned state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := offlineApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := resolveSession(a.ctl, args[0])
		if err != nil {
			return err
		}
		if err := a.ctl.TogglePin(ctx, s.ID); err != nil {
			return err
		}
		state := "pinned"
		if s.IsPinned {
			state = "unpinned"
		}
		fmt.Fprintf(os.Stdout, "Session %s %s.\n", s.ID, state)
		return nil
	},
}

var sessionExportCmd = &cobra.Command{
	Use:   "export <n|id>",
	Short: "Export a session as json, yaml or markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := offlineApp(context.Background())
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := resolveSession(a.ctl, args[0])
		if err != nil {
			return err
		}
		out := os.Stdout
		if exportOutput != "" {
			out = os.Stderr
		}
		return exportSession(s, exportFormat, exportOutput, out)
	},
}
