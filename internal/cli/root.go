// Package cli wires configuration, logging and the packages of this module
// into the duck-x402 commands.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mxber2022/duck-x402/internal/config"
	"github.com/mxber2022/duck-x402/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

const serviceName = "duck-x402"

type rootOptions struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "duck-x402",
		Short:         "Payment-gated invoice tools over MCP",
		Long:          "duck-x402 serves MCP tools that create and pay invoices on a resource server, answering HTTP 402 challenges with signed x402 payments.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load (default .env if present)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newResourceServerCmd(opts))
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

// Execute runs the root command until ctx is done.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.envFiles...)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Config{
		Service: serviceName,
		Env:     cfg.AppEnv,
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
