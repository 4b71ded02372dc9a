// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/neurogears/antsct-prep/internal/coredb"
	"github.com/neurogears/antsct-prep/internal/events"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func NewHistoryCmd() *cobra.Command {
	var (
		jsonOut bool
		limit   int
		after   string
	)
	c := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded preparation runs, or the events of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := coredb.Open(ctx, coredb.Options{})
			if err != nil {
				return err
			}
			defer db.Close()
			journal := coredb.NewJournal(db, 0)
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				runs, err := journal.Runs(ctx, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "(no runs recorded)")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tEVENTS\tSTARTED\tLAST EVENT")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.RunID, r.Events, r.FirstSeen.Format(time.RFC3339), r.LastEvent)
				}
				return tw.Flush()
			}

			runID := args[0]
			afterSeq, err := coredb.ParseSeq(after)
			if err != nil {
				return err
			}
			earliest, latest, err := journal.Bounds(ctx, runID)
			if err != nil {
				return err
			}
			if latest == 0 {
				if !jsonOut {
					fmt.Fprintf(out, "(no events for run %s)\n", runID)
				}
				return nil
			}
			if afterSeq >= latest {
				if !jsonOut {
					fmt.Fprintf(out, "(no events for run %s after seq %d; retained %d-%d)\n", runID, afterSeq, earliest, latest)
				}
				return nil
			}
			err = journal.ForEach(ctx, runID, afterSeq, func(entry coredb.JournalEntry) error {
				if jsonOut {
					_, err := fmt.Fprintf(out, "%s\n", entry.Payload)
					return err
				}
				var ev events.RunEvent
				if err := json.Unmarshal(entry.Payload, &ev); err != nil {
					logger.Warn("undecodable journal entry", zap.Int64("seq", entry.Seq), zap.Error(err))
					return nil
				}
				ev.Sequence = entry.Seq
				events.WriteText(out, ev)
				return nil
			})
			if err != nil {
				return err
			}
			return nil
		},
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	c.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 lists all)")
	c.Flags().StringVar(&after, "after", "", "Only show events after this sequence number")
	return c
}
