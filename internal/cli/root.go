// Package cli is the command-line entry point of the settlement bridge.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/waiwai/settlement-bridge/internal/config"
	"github.com/waiwai/settlement-bridge/internal/domain"
	"github.com/waiwai/settlement-bridge/internal/logger"
)

type rootOptions struct {
	configFile string
	envFile    string
	merchant   string
	logOut     io.Writer
}

// NewRootCmd builds the command tree. Logs go to logOut; nil means the
// command's stderr, keeping stdout for command output.
func NewRootCmd(logOut io.Writer) *cobra.Command {
	opts := &rootOptions{logOut: logOut}

	root := &cobra.Command{
		Use:           "settlement-bridge",
		Short:         "Move Lazada settlement statements into the legacy ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `settlement-bridge reads Lazada settlement workbooks, aggregates fees per
order, drops orders already recorded in the main store or the legacy ledger
and writes the rest to the legacy settlement table.`,
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	root.PersistentFlags().StringVar(&opts.merchant, "merchant", "", "merchant code or store type, e.g. WAIWAI")

	root.AddCommand(
		newServeCmd(opts),
		newIngestCmd(opts),
		newTransferCmd(opts),
		newExportCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd(nil).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// load reads the env file and configuration and builds the logger.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	if o.envFile != "" {
		err := godotenv.Load(o.envFile)
		if err != nil && (cmd.Flags().Changed("env-file") || !errors.Is(err, os.ErrNotExist)) {
			return nil, nil, fmt.Errorf("load env file %s: %w", o.envFile, err)
		}
	}

	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, nil, err
	}

	level := logger.ParseLevel(cfg.LogLevel)
	out := o.logOut
	if out == nil {
		out = cmd.ErrOrStderr()
	}
	return cfg, logger.NewWriter(out, "settlement-bridge", level), nil
}

func (o *rootOptions) app(cmd *cobra.Command) (*App, error) {
	cfg, log, err := o.load(cmd)
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, log)
}

// resolveMerchant maps --merchant onto a configured merchant.
func (o *rootOptions) resolveMerchant(a *App) (domain.Merchant, error) {
	if o.merchant == "" {
		return domain.Merchant{}, errors.New("--merchant is required")
	}
	m, ok := a.Config.Merchant(o.merchant)
	if !ok {
		return domain.Merchant{}, fmt.Errorf("unknown merchant %q", o.merchant)
	}
	return m, nil
}
