package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	apperrors "hoopval/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// globalOptions are the persistent flags shared by every subcommand
type globalOptions struct {
	configPath string
	envFiles   []string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "hoopval",
		Short: "Statistical validation of small, noisy basketball datasets",
		Long: `hoopval checks whether a finding in per-game basketball data survives
resampling, permutation testing, cross-validation and a battery of
perturbation checks before anyone acts on it.

Configuration comes from built-in defaults, then the --config YAML file,
then .env files and HOOPVAL_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "env files to load (default .env when present)")

	root.AddCommand(
		newValidateCmd(opts),
		newServeCmd(opts),
		newMigrateCmd(opts),
		newRunsCmd(opts),
	)
	return root
}

// exitCode maps an error code to the process exit status
func exitCode(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.CodeConfigInvalid, apperrors.CodeInvalidInput:
		return 2
	case apperrors.CodeDataInsufficient, apperrors.CodeNumericDegenerate:
		return 3
	case apperrors.CodeNotFound:
		return 4
	default:
		return 1
	}
}
