package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/rfsched/internal/journal"
	"github.com/me/rfsched/pkg/model"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath    string
		commandID string
		clientID  string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled commands, or one command's transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("db") {
				dbPath = cfg.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no journal: pass --db or set db_path in the config")
			}
			j, err := openJournal(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer j.Close()

			out := cmd.OutOrStdout()
			if commandID != "" {
				return printCommandHistory(cmd, out, j, commandID)
			}

			opts := model.ListOptions{Limit: limit, ClientID: clientID}
			opts.Clamp()
			recs, total, err := j.ListCommands(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list commands: %w", err)
			}
			if len(recs) == 0 {
				fmt.Fprintln(out, "No commands journaled.")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %-6s  %-28s  %-12s  %s\n", "ID", "KIND", "STATUS", "LAST TICK", "RECORDED")
			fmt.Fprintf(out, "%-36s  %-6s  %-28s  %-12s  %s\n", "--", "----", "------", "---------", "--------")
			for _, r := range recs {
				fmt.Fprintf(out, "%-36s  %-6s  %-28s  %-12s  %s\n",
					r.ID, r.Kind, r.Status, humanize.Comma(int64(r.LastTick)), humanize.Time(r.UpdatedAt))
			}
			if total > len(recs) {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(recs), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite journal path (default: db_path from config)")
	cmd.Flags().StringVar(&commandID, "command", "", "Show the transitions of one command")
	cmd.Flags().StringVar(&clientID, "client", "", "Only list commands of this client ID")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum commands to list")

	return cmd
}

func printCommandHistory(cmd *cobra.Command, out io.Writer, j journal.Journal, id string) error {
	rec, err := j.GetCommand(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("get command: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("command %s not found", id)
	}
	ts, err := j.ListTransitions(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("list transitions: %w", err)
	}

	fmt.Fprintf(out, "command %s (%s), run %s: %s\n", rec.ID, rec.Kind, rec.Run, rec.Status)
	for _, t := range ts {
		fmt.Fprintf(out, "  %12s  %-28s -> %s\n", humanize.Comma(int64(t.Tick)), t.From, t.To)
	}
	return nil
}
