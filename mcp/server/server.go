// Package server exposes the invoice operations as MCP tools over stdio or
// streamable HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
	x402http "github.com/mxber2022/duck-x402/http"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultName        = "x402 MCP Client Demo"
	DefaultVersion     = "1.0.0"
	DefaultToolTimeout = 120 * time.Second
	DefaultHTTPPath    = "/mcp"
)

// InvoiceService is the set of operations the tools call. *invoice.Service
// implements it.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, amount, description string) (*x402.Invoice, error)
	GetInvoiceStatus(ctx context.Context, id string) (*x402.Invoice, error)
	ListInvoices(ctx context.Context) ([]x402.Invoice, error)
	GetInvoiceSummary(ctx context.Context) (*x402.InvoiceSummary, error)
	PayInvoice(ctx context.Context, id string) (*x402http.Outcome, error)
	FetchResource(ctx context.Context, invoiceID string) (*x402http.Outcome, error)
}

// Config holds configuration for the MCP server.
type Config struct {
	Name    string
	Version string

	// ToolTimeout bounds a single tool call, payment retry included.
	// Zero uses DefaultToolTimeout; a negative value disables the bound.
	ToolTimeout time.Duration

	// Logger must not write to stdout when serving stdio.
	Logger *zap.Logger
}

// DefaultConfig returns a Config with default settings.
func DefaultConfig() Config {
	return Config{
		Name:        DefaultName,
		Version:     DefaultVersion,
		ToolTimeout: DefaultToolTimeout,
	}
}

// Server wraps an MCP server carrying the invoice tools.
type Server struct {
	mcpServer   *mcpserver.MCPServer
	svc         InvoiceService
	toolTimeout time.Duration
	logger      *zap.Logger
}

// New creates a Server and registers every tool.
func New(svc InvoiceService, cfg Config) *Server {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	if cfg.ToolTimeout == 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(true),
			mcpserver.WithRecovery(),
		),
		svc:         svc,
		toolTimeout: cfg.ToolTimeout,
		logger:      logger.With(zap.String("component", "mcp")),
	}
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin/stdout until ctx is done or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))

	s.logger.Info("serving MCP over stdio")
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Handler returns the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}

// ListenAndServe serves streamable HTTP on addr at DefaultHTTPPath until ctx
// is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(DefaultHTTPPath, s.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving MCP over streamable HTTP",
			zap.String("addr", addr),
			zap.String("path", DefaultHTTPPath),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
