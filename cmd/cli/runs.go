package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hoopval/adapters/report"
	"hoopval/domain/core"
	apperrors "hoopval/internal/errors"
	"hoopval/ports"
)

func newRunsCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs stored in the PostgreSQL ledger",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, closeLedger, err := openStoredLedger(cmd, global)
			if err != nil {
				return err
			}
			defer closeLedger()

			runs, err := ledger.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSEED\tRECORDS\tFINISHED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", r.ID, r.Seed, r.RecordCount, r.FinishedAt.Time().Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")

	var format string
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := core.ParseRunID(args[0])
			if err != nil {
				return apperrors.InvalidInput(err.Error())
			}
			ledger, closeLedger, err := openStoredLedger(cmd, global)
			if err != nil {
				return err
			}
			defer closeLedger()

			run, err := ledger.GetRun(cmd.Context(), runID)
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), *run, report.Format(format))
		},
	}
	show.Flags().StringVarP(&format, "format", "f", string(report.FormatMarkdown), "report format: markdown|html|json")

	cmd.AddCommand(list, show)
	return cmd
}

func openStoredLedger(cmd *cobra.Command, global *globalOptions) (ports.LedgerPort, func(), error) {
	cfg, logger, err := global.load()
	if err != nil {
		return nil, nil, err
	}
	if err := requireDatabase(cfg); err != nil {
		return nil, nil, err
	}
	return openLedger(cmd.Context(), cfg, logger)
}
