package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
	x402http "github.com/mxber2022/duck-x402/http"
	"github.com/mxber2022/duck-x402/internal/config"
	"github.com/mxber2022/duck-x402/invoice"
	mcpserver "github.com/mxber2022/duck-x402/mcp/server"
	"github.com/mxber2022/duck-x402/signers"
	"github.com/mxber2022/duck-x402/signers/evm"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP tool server",
		Long:  "Start the MCP tool server over stdio, or over streamable HTTP when --http or MCP_TRANSPORT=http is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if httpAddr != "" {
				cfg.Client.Transport = config.TransportHTTP
				cfg.Client.MCPAddr = httpAddr
			}
			if err := cfg.ValidateClient(); err != nil {
				return err
			}

			srv, cleanup, err := buildMCPServer(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if cfg.Client.Transport == config.TransportHTTP {
				return srv.ListenAndServe(cmd.Context(), cfg.Client.MCPAddr)
			}
			return srv.ServeStdio(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "serve streamable HTTP on this address instead of stdio")
	return cmd
}

// buildMCPServer builds signer, engine, invoice service and tool server from
// a validated cfg. cleanup releases the signer queue.
func buildMCPServer(cfg *config.Config, logger *zap.Logger) (*mcpserver.Server, func(), error) {
	tokens, err := cfg.Tokens()
	if err != nil {
		return nil, nil, err
	}
	maxAmount, err := cfg.MaxAmount()
	if err != nil {
		return nil, nil, err
	}
	evmSigner, err := evm.NewSigner(cfg.Network, cfg.Client.PrivateKey, tokens, evm.WithMaxAmount(maxAmount))
	if err != nil {
		return nil, nil, fmt.Errorf("create signer: %w", err)
	}
	logger.Info("signer ready",
		zap.String("address", evmSigner.Address().Hex()),
		zap.String("network", cfg.Network),
		zap.String("token", tokens[0].Address),
	)

	var signer x402.Signer = evmSigner
	cleanup := func() {}
	if cfg.Client.SignerQueueDepth > 0 {
		queue := signers.NewQueue(evmSigner, cfg.Client.SignerQueueDepth)
		signer = queue
		cleanup = func() { _ = queue.Close() }
	}

	engine, err := x402http.NewEngine(cfg.Client.BaseURL,
		x402http.WithSigner(signer),
		x402http.WithLogger(logger.Named("engine")),
		x402http.WithPaymentCallbacks(logPaymentEvent(logger), logPaymentEvent(logger), logPaymentEvent(logger)),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	svc := invoice.NewService(engine,
		invoice.WithEndpointPath(cfg.Client.EndpointPath),
		invoice.WithLogger(logger.Named("invoice")),
	)
	srv := mcpserver.New(svc, mcpserver.Config{
		ToolTimeout: cfg.Client.ToolTimeout,
		Logger:      logger,
	})
	return srv, cleanup, nil
}

func logPaymentEvent(logger *zap.Logger) x402.PaymentCallback {
	return func(e x402.PaymentEvent) {
		fields := []zap.Field{
			zap.String("event", string(e.Type)),
			zap.String("call_id", e.CallID),
			zap.String("url", e.URL),
			zap.String("amount", e.Amount),
			zap.String("network", e.Network),
			zap.Duration("duration", e.Duration),
		}
		switch e.Type {
		case x402.PaymentEventFailure:
			logger.Warn("payment failed", append(fields, zap.Error(e.Error))...)
		case x402.PaymentEventSuccess:
			logger.Info("payment completed", append(fields, zap.String("transaction", e.Transaction), zap.String("payer", e.Payer))...)
		default:
			logger.Info("payment signed", append(fields, zap.String("recipient", e.Recipient))...)
		}
	}
}
