package cli

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/facilitator"
	"github.com/mxber2022/duck-x402/facilitator/local"
	x402http "github.com/mxber2022/duck-x402/http"
	"github.com/mxber2022/duck-x402/internal/config"
	"github.com/mxber2022/duck-x402/resourceserver"
)

func newResourceServerCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "resource-server",
		Short: "Start the reference invoice server",
		Long:  "Start an in-memory invoice server whose /pay endpoint is gated by x402 payments, settled by FACILITATOR_URL or in process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.ValidateServer(); err != nil {
				return err
			}
			if cfg.AppEnv != "local" {
				gin.SetMode(gin.ReleaseMode)
			}

			srv, err := buildResourceServer(cfg, logger)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides RESOURCE_ADDR)")
	return cmd
}

// buildResourceServer builds the facilitator and the invoice server from a
// validated cfg.
func buildResourceServer(cfg *config.Config, logger *zap.Logger) (*resourceserver.Server, error) {
	var fac facilitator.Interface
	if cfg.Server.FacilitatorURL != "" {
		fac = &x402http.FacilitatorClient{
			BaseURL:       cfg.Server.FacilitatorURL,
			Client:        &http.Client{Timeout: x402.DefaultTimeouts.RequestTimeout},
			Timeouts:      x402.DefaultTimeouts,
			MaxRetries:    2,
			RetryDelay:    200 * time.Millisecond,
			Authorization: cfg.Server.FacilitatorAuthorization,
		}
		logger.Info("using remote facilitator", zap.String("url", cfg.Server.FacilitatorURL))
	} else {
		f, err := local.New([]string{cfg.Network}, local.WithLogger(logger.Named("facilitator")))
		if err != nil {
			return nil, err
		}
		fac = f
		logger.Info("using in-process facilitator", zap.String("network", cfg.Network))
	}

	rsCfg := resourceserver.DefaultConfig()
	rsCfg.Addr = cfg.Server.Addr
	rsCfg.Network = cfg.Network
	rsCfg.PayTo = cfg.Server.PayTo
	rsCfg.EndpointPath = cfg.Server.EndpointPath
	rsCfg.ResourcePrice = cfg.Server.ResourcePrice
	rsCfg.InvoiceTTL = cfg.Server.InvoiceTTL

	opts := []resourceserver.Option{resourceserver.WithLogger(logger.Named("resource"))}
	if cfg.Server.ServeFacilitator {
		opts = append(opts, resourceserver.WithFacilitatorAPI("/facilitator"))
	}
	return resourceserver.New(rsCfg, fac, opts...)
}
