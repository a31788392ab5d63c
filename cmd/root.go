package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recon-cli/internal/config"
	"github.com/sells-group/recon-cli/internal/model"
)

// Exit codes.
const (
	exitOK         = 0
	exitError      = 1
	exitConflict   = 2
	exitValidation = 3
	exitExtraction = 4
)

var (
	cfg     *config.Config
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "recon-cli",
	Short: "Revenue reconciliation and pipeline reprice engine",
	Long: `Reconciles the finance run-rate benchmark, won CRM opportunities and signed
contracts per account, and reprices the active pipeline under a revised
stage x account-class probability matrix. Both commands emit a deterministic
change set for the CRM bulk uploader.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var (
		conflict   *model.ConflictError
		validation *model.ValidationError
		extraction *model.ExtractionThresholdError
	)
	switch {
	case errors.As(err, &conflict):
		return exitConflict
	case errors.As(err, &validation):
		return exitValidation
	case errors.As(err, &extraction):
		return exitExtraction
	default:
		return exitError
	}
}

// flagIssue reports a bad command-line value as an input validation failure.
func flagIssue(flag string, err error) error {
	return &model.ValidationError{Issues: []model.RowIssue{{
		Source: "flags", Column: flag, Reason: err.Error(),
	}}}
}
