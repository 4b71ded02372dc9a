// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"

	"github.com/neurogears/antsct-prep/internal/argsloader"
	"github.com/neurogears/antsct-prep/internal/configloader"
	"github.com/neurogears/antsct-prep/internal/coredb"
	"github.com/neurogears/antsct-prep/internal/events"
	"github.com/neurogears/antsct-prep/internal/paths"
	"github.com/neurogears/antsct-prep/internal/prepare"
	"github.com/neurogears/antsct-prep/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newPrepareCmd(use string) *cobra.Command {
	v := viper.New()
	var (
		jsonEvents   bool
		reportFormat string
		reportFile   string
		journal      bool
	)
	c := &cobra.Command{
		Use:   use,
		Short: "Resolve inputs and write " + paths.ArtifactName,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reportFile != "" && reportFormat != "json" && reportFormat != "yaml" {
				return fmt.Errorf("--report-file requires --report=json or --report=yaml")
			}
			if reportFormat != "" && reportFormat != "json" && reportFormat != "yaml" {
				return fmt.Errorf("unsupported report format: %s", reportFormat)
			}
			ctx := cmd.Context()

			jobPath := v.GetString("job-file")
			job, err := configloader.LoadJobFile(jobPath, cmd.Flags().Changed("job-file"))
			if err != nil {
				return err
			}
			if job != nil {
				logger.Debug("job file loaded",
					zap.String("path", jobPath),
					zap.Any("config", configloader.ConfigView(job)))
			}
			if err := configloader.Merge(v, job); err != nil {
				return err
			}
			settings, err := configloader.Resolve(v, job)
			if err != nil {
				logger.Error("invalid configuration", zap.Error(err))
				return err
			}

			var sinks []events.Sink
			verbosity, _ := cmd.Flags().GetCount("verbose")
			if jsonEvents || verbosity > 0 {
				emitter := events.NewEmitter(cmd.OutOrStdout(), jsonEvents).
					WithRedactor(events.NewLineRedactor(settings.Secrets))
				sinks = append(sinks, emitter)
			}
			if journal {
				db, err := coredb.Open(ctx, coredb.Options{})
				if err != nil {
					logger.Warn("journal unavailable", zap.Error(err))
				} else {
					defer db.Close()
					sinks = append(sinks, events.NewJournalSink(coredb.NewJournal(db, 0), logger))
				}
			}

			p := &prepare.Preparer{
				Sink:   events.NewCompositeSink(sinks...),
				Logger: logger,
			}
			res, err := p.Run(ctx, settings)
			if err != nil {
				logger.Error("preparation failed",
					zap.String("reason", string(types.ReasonOf(err))),
					zap.Error(err))
				return err
			}

			if reportFormat != "" {
				return writeReport(cmd.OutOrStdout(), res.Spec, reportFormat, reportFile)
			}
			if !jsonEvents {
				fmt.Fprintf(cmd.OutOrStdout(), "[OK] %s\n", prepare.Describe(res))
			}
			return nil
		},
	}
	if err := argsloader.AttachFlags(c, v, argsloader.Options); err != nil {
		panic(err)
	}
	c.Flags().BoolVar(&jsonEvents, "json", false, "Stream progress events as NDJSON")
	c.Flags().StringVar(&reportFormat, "report", "", "Print the run specification (json|yaml)")
	c.Flags().StringVar(&reportFile, "report-file", "", "Write the run specification report to a file")
	c.Flags().BoolVar(&journal, "journal", true, "Record progress events in the preparation journal")
	return c
}
