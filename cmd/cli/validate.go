package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"hoopval/adapters/catalog"
	"hoopval/adapters/report"
	"hoopval/adapters/tabular"
	"hoopval/domain/verdict"
	apperrors "hoopval/internal/errors"
)

type validateOptions struct {
	catalogPath string
	inputPath   string
	sheet       string
	format      string
	outPath     string
	seed        int64
	save        bool
	strict      bool
}

func newValidateCmd(global *globalOptions) *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the metrics of a per-game table",
		Long: `Read a CSV or XLSX table of per-game rows, build one series per
(metric, player) through the metric catalog and run the full validation
pipeline on them.

Example:
  hoopval validate --catalog metrics.yaml --input games.csv --format markdown --seed 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "metric catalog YAML (required)")
	cmd.Flags().StringVarP(&opts.inputPath, "input", "i", "", "per-game CSV or XLSX table (required)")
	cmd.Flags().StringVar(&opts.sheet, "sheet", "", "workbook sheet (default first sheet, or the catalog's)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(report.FormatMarkdown), "report format: markdown|html|json")
	cmd.Flags().StringVarP(&opts.outPath, "out", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().Int64Var(&opts.seed, "seed", 42, "base seed for every random stream")
	cmd.Flags().BoolVar(&opts.save, "save", false, "store the run in the configured ledger")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "exit non-zero when any record has issues")
	_ = cmd.MarkFlagRequired("catalog")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runValidate(cmd *cobra.Command, global *globalOptions, opts *validateOptions) error {
	ctx := cmd.Context()
	cfg, logger, err := global.load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Validation.Seed = opts.seed
	}

	cat, err := catalog.Load(opts.catalogPath)
	if err != nil {
		return err
	}
	sheet := opts.sheet
	if sheet == "" {
		sheet = cat.Sheet
	}
	table, err := tabular.NewReader(sheet, logger).ReadFile(opts.inputPath)
	if err != nil {
		return err
	}
	inputs, err := tabular.BuildInputs(table, cat)
	if err != nil {
		return err
	}
	logger.Info("built %d series from %d rows", len(inputs), len(table.Rows))

	pipeline, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}
	run, err := pipeline.Run(ctx, inputs)
	if err != nil {
		return err
	}

	if opts.save {
		ledger, closeLedger, err := openLedger(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeLedger()
		if err := ledger.SaveRun(ctx, run); err != nil {
			return apperrors.Wrap(err, "store run")
		}
		logger.Info("stored run %s", run.ID)
	}

	if err := writeReport(cmd.OutOrStdout(), opts.outPath, run, report.Format(opts.format)); err != nil {
		return err
	}

	if opts.strict {
		if n := recordsWithIssues(run); n > 0 {
			return apperrors.New(apperrors.CodeDataInsufficient, fmt.Sprintf("%d of %d records have issues", n, len(run.Records)))
		}
	}
	return nil
}

func writeReport(stdout io.Writer, path string, run verdict.Run, format report.Format) error {
	if path == "" {
		return report.Write(stdout, run, format)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.Write(f, run, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func recordsWithIssues(run verdict.Run) int {
	n := 0
	for _, rec := range run.Records {
		if rec.HasIssues() {
			n++
		}
	}
	return n
}
