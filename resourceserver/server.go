// Package resourceserver is a reference invoice server: it stores invoices in
// memory and sells access to /pay through an x402 paywall, marking the
// invoice paid once the payment is settled.
package resourceserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/facilitator"
	"github.com/mxber2022/duck-x402/facilitator/local"
	x402gin "github.com/mxber2022/duck-x402/http/gin"
	"github.com/mxber2022/duck-x402/validation"
)

const invoiceContextKey = "invoice"

// Server serves the invoice API.
type Server struct {
	cfg         Config
	store       *Store
	facilitator facilitator.Interface
	logger      *zap.Logger
	router      *gin.Engine

	facilitatorPrefix string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore replaces the default store, for example to control its clock.
func WithStore(store *Store) Option {
	return func(s *Server) {
		if store != nil {
			s.store = store
		}
	}
}

// WithFacilitatorAPI serves the facilitator's verify and settle API under
// prefix, so other resource servers can settle through this one.
func WithFacilitatorAPI(prefix string) Option {
	return func(s *Server) {
		s.facilitatorPrefix = prefix
	}
}

// New validates cfg and builds the router.
func New(cfg Config, fac facilitator.Interface, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resource server config: %w", err)
	}
	if fac == nil {
		return nil, fmt.Errorf("facilitator is required")
	}

	s := &Server{
		cfg:         cfg,
		facilitator: fac,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = NewStore(cfg.InvoiceTTL, nil)
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Store returns the invoice store.
func (s *Server) Store() *Store { return s.store }

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("resource server listening",
			zap.String("addr", s.cfg.Addr),
			zap.String("network", s.cfg.Network),
			zap.String("pay_to", s.cfg.PayTo),
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
	s.logger.Info("shutting down resource server")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "network": s.cfg.Network})
	})

	r.POST("/invoice", s.createInvoice)
	r.GET("/invoice", s.listInvoices)
	r.GET("/invoice/status/summary", s.summary)
	r.GET("/invoice/:id", s.getInvoice)
	r.POST("/invoice/:id/cancel", s.cancelInvoice)

	if s.facilitatorPrefix != "" {
		local.RegisterRoutes(r.Group(s.facilitatorPrefix), s.facilitator, x402.TimeoutConfig{})
	}

	paywall := x402gin.NewX402Middleware(x402gin.Config{
		Facilitator:  s.facilitator,
		Requirements: s.requirements,
		Logger:       s.logger,
	})
	r.GET("/pay", s.loadInvoice(true), paywall, s.paid)
	if s.cfg.EndpointPath != "/pay" {
		r.GET(s.cfg.EndpointPath, s.loadInvoice(false), paywall, s.paid)
	}
	return r
}

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

type createInvoiceRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (s *Server) createInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := validation.AtomicAmount(req.Amount, s.cfg.Decimals); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid amount: "+err.Error())
		return
	}
	if err := validation.ValidateDescription(req.Description); err != nil {
		abortError(c, http.StatusBadRequest, "Invalid description: "+err.Error())
		return
	}

	inv := s.store.Create(req.Amount, req.Description)
	s.logger.Info("invoice created", zap.String("invoice_id", inv.ID), zap.String("amount", inv.Amount))
	c.JSON(http.StatusCreated, x402.InvoiceCreationResponse{
		Invoice:    inv,
		PaymentURL: "/pay?invoiceId=" + inv.ID,
	})
}

func (s *Server) listInvoices(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.List())
}

func (s *Server) summary(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Summary())
}

func (s *Server) getInvoice(c *gin.Context) {
	inv, err := s.store.Get(c.Param("id"))
	if err != nil {
		abortError(c, http.StatusNotFound, "Invoice not found")
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (s *Server) cancelInvoice(c *gin.Context) {
	inv, err := s.store.Cancel(c.Param("id"))
	switch {
	case errors.Is(err, ErrInvoiceNotFound):
		abortError(c, http.StatusNotFound, "Invoice not found")
	case errors.Is(err, ErrInvalidTransition):
		abortError(c, http.StatusBadRequest, "Invoice is "+string(inv.Status))
	case err != nil:
		abortError(c, http.StatusInternalServerError, err.Error())
	default:
		c.JSON(http.StatusOK, inv)
	}
}

// loadInvoice resolves ?invoiceId= before the paywall, so unknown and
// settled invoices are rejected without a challenge.
func (s *Server) loadInvoice(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Query("invoiceId")
		if id == "" {
			if required {
				abortError(c, http.StatusBadRequest, "invoiceId is required")
				return
			}
			c.Next()
			return
		}

		inv, err := s.store.Get(id)
		if err != nil {
			abortError(c, http.StatusNotFound, "Invoice not found")
			return
		}
		switch inv.Status {
		case x402.InvoicePending:
		case x402.InvoicePaid:
			abortError(c, http.StatusBadRequest, "Invoice already paid")
			return
		default:
			abortError(c, http.StatusBadRequest, "Invoice is "+string(inv.Status))
			return
		}
		c.Set(invoiceContextKey, inv)
		c.Next()
	}
}

// requirements prices the request: the invoice amount when one is being
// paid, ResourcePrice otherwise.
func (s *Server) requirements(c *gin.Context) ([]x402.PaymentRequirements, error) {
	price := s.cfg.ResourcePrice
	description := "Protected resource"
	if inv, ok := invoiceFromContext(c); ok {
		price = inv.Amount
		description = "Invoice " + inv.ID + ": " + inv.Description
	}

	amount, err := validation.AtomicAmount(price, s.cfg.Decimals)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", price, err)
	}

	extra := map[string]interface{}{"description": description}
	for k, v := range s.cfg.tokenExtra() {
		extra[k] = v
	}
	return []x402.PaymentRequirements{{
		Scheme:            x402.SchemeExact,
		Network:           s.cfg.Network,
		Amount:            amount.String(),
		Asset:             s.cfg.Asset,
		PayTo:             s.cfg.PayTo,
		MaxTimeoutSeconds: s.cfg.MaxTimeoutSeconds,
		Extra:             extra,
	}}, nil
}

func (s *Server) paid(c *gin.Context) {
	settlement := x402gin.GetSettlementFromContext(c)
	inv, ok := invoiceFromContext(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Access granted",
			"data":    gin.H{"resource": c.Request.URL.Path, "servedAt": time.Now().UTC()},
		})
		return
	}
	if settlement == nil {
		abortError(c, http.StatusInternalServerError, "Payment was not settled")
		return
	}

	var amount string
	if req := x402gin.GetRequirementFromContext(c); req != nil {
		amount = req.Amount
	}
	updated, err := s.store.MarkPaid(inv.ID, settlement.Transaction, amount)
	if err != nil {
		// Another request settled or the TTL elapsed while this one was paying.
		s.logger.Error("settled payment could not be applied",
			zap.String("invoice_id", inv.ID),
			zap.String("transaction", settlement.Transaction),
			zap.Error(err),
		)
		abortError(c, http.StatusConflict, "Invoice is no longer payable")
		return
	}

	s.logger.Info("invoice paid",
		zap.String("invoice_id", updated.ID),
		zap.String("transaction", updated.PaymentTxHash),
		zap.String("payer", settlement.Payer),
	)
	c.JSON(http.StatusOK, x402.PaymentResponse{
		Success: true,
		Message: "Invoice paid successfully",
		Invoice: &updated,
	})
}

func invoiceFromContext(c *gin.Context) (x402.Invoice, bool) {
	value, ok := c.Get(invoiceContextKey)
	if !ok {
		return x402.Invoice{}, false
	}
	inv, ok := value.(x402.Invoice)
	return inv, ok
}
