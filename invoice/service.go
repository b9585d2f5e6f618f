// Package invoice implements the invoice lifecycle operations on top of the
// payment-gated request engine. Every argument is checked before any
// network call, and every failure is an *x402.Error naming the operation and
// the invoice it concerns.
package invoice

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
	x402http "github.com/mxber2022/duck-x402/http"
	"github.com/mxber2022/duck-x402/validation"
)

// Operation names used in error context.
const (
	OpCreate        = "create invoice"
	OpGetStatus     = "get invoice status"
	OpList          = "list invoices"
	OpSummary       = "get invoice summary"
	OpPay           = "pay invoice"
	OpFetchResource = "fetch resource"
)

// DefaultEndpointPath is the protected resource path.
const DefaultEndpointPath = "/pay"

// Sender performs one payment-gated call. *x402http.Engine implements it.
type Sender interface {
	Send(ctx context.Context, method, path string, body interface{}) *x402http.Outcome
}

// Service runs invoice operations. It holds no per-call state and is safe for
// concurrent use.
type Service struct {
	sender       Sender
	endpointPath string
	logger       *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithEndpointPath sets the protected resource path used by FetchResource.
func WithEndpointPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.endpointPath = path
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService returns a Service sending through sender.
func NewService(sender Sender, opts ...Option) *Service {
	s := &Service{
		sender:       sender,
		endpointPath: DefaultEndpointPath,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !strings.HasPrefix(s.endpointPath, "/") {
		s.endpointPath = "/" + s.endpointPath
	}
	return s
}

type createRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

// CreateInvoice creates a pending invoice. amount is a decimal string such
// as "$10.50".
func (s *Service) CreateInvoice(ctx context.Context, amount, description string) (*x402.Invoice, error) {
	if _, err := validation.ParseAmount(amount); err != nil {
		return nil, x402.ValidationError(OpCreate, amount, err.Error())
	}
	if err := validation.ValidateDescription(description); err != nil {
		return nil, x402.ValidationError(OpCreate, amount, err.Error())
	}

	s.logger.Debug("creating invoice", zap.String("amount", amount))
	out := s.sender.Send(ctx, http.MethodPost, "/invoice", createRequest{
		Amount:      strings.TrimSpace(amount),
		Description: description,
	})
	if out.Err != nil {
		return nil, out.Err.WithOp(OpCreate, amount)
	}

	inv, err := decodeCreated(out)
	if err != nil {
		return nil, x402.AsError(err, x402.CodeRemote).WithOp(OpCreate, amount)
	}
	s.logger.Info("invoice created", zap.String("invoice_id", inv.ID), zap.String("amount", inv.Amount))
	return inv, nil
}

// decodeCreated accepts a bare invoice or an {invoice, paymentUrl} envelope.
func decodeCreated(out *x402http.Outcome) (*x402.Invoice, error) {
	var envelope struct {
		Invoice *x402.Invoice `json:"invoice"`
	}
	if err := out.Decode(&envelope); err != nil {
		return nil, err
	}
	inv := envelope.Invoice
	if inv == nil {
		inv = new(x402.Invoice)
		if err := out.Decode(inv); err != nil {
			return nil, err
		}
	}
	if err := inv.Validate(); err != nil {
		return nil, x402.NewError(x402.CodeRemote, "server returned an invalid invoice", err).WithStatus(out.StatusCode)
	}
	return inv, nil
}

// GetInvoiceStatus fetches one invoice.
func (s *Service) GetInvoiceStatus(ctx context.Context, id string) (*x402.Invoice, error) {
	if err := validation.ValidateInvoiceID(id); err != nil {
		return nil, x402.ValidationError(OpGetStatus, id, err.Error())
	}

	out := s.sender.Send(ctx, http.MethodGet, "/invoice/"+url.PathEscape(id), nil)
	if out.Err != nil {
		return nil, invoiceError(out.Err, OpGetStatus, id)
	}

	var inv x402.Invoice
	if err := out.Decode(&inv); err != nil {
		return nil, x402.AsError(err, x402.CodeRemote).WithOp(OpGetStatus, id)
	}
	return &inv, nil
}

// ListInvoices returns every invoice in server order.
func (s *Service) ListInvoices(ctx context.Context) ([]x402.Invoice, error) {
	out := s.sender.Send(ctx, http.MethodGet, "/invoice", nil)
	if out.Err != nil {
		return nil, out.Err.WithOp(OpList, "")
	}

	invoices := []x402.Invoice{}
	if err := out.Decode(&invoices); err != nil {
		return nil, x402.AsError(err, x402.CodeRemote).WithOp(OpList, "")
	}
	return invoices, nil
}

// GetInvoiceSummary returns the server's counts unchanged.
func (s *Service) GetInvoiceSummary(ctx context.Context) (*x402.InvoiceSummary, error) {
	out := s.sender.Send(ctx, http.MethodGet, "/invoice/status/summary", nil)
	if out.Err != nil {
		return nil, out.Err.WithOp(OpSummary, "")
	}

	var summary x402.InvoiceSummary
	if err := out.Decode(&summary); err != nil {
		return nil, x402.AsError(err, x402.CodeRemote).WithOp(OpSummary, "")
	}
	return &summary, nil
}

// PayInvoice requests the payment-gated /pay endpoint for id. The engine
// answers the 402 challenge with one signed authorization.
func (s *Service) PayInvoice(ctx context.Context, id string) (*x402http.Outcome, error) {
	if err := validation.ValidateInvoiceID(id); err != nil {
		return nil, x402.ValidationError(OpPay, id, err.Error())
	}

	s.logger.Info("paying invoice", zap.String("invoice_id", id))
	out := s.sender.Send(ctx, http.MethodGet, "/pay?invoiceId="+url.QueryEscape(id), nil)
	if out.Err != nil {
		return out, invoiceError(out.Err, OpPay, id)
	}
	s.logInvoicePaid(out, id)
	return out, nil
}

// FetchResource requests the protected endpoint, optionally for an invoice.
func (s *Service) FetchResource(ctx context.Context, invoiceID string) (*x402http.Outcome, error) {
	path := s.endpointPath
	if invoiceID != "" {
		if err := validation.ValidateInvoiceID(invoiceID); err != nil {
			return nil, x402.ValidationError(OpFetchResource, invoiceID, err.Error())
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + "invoiceId=" + url.QueryEscape(invoiceID)
	}

	out := s.sender.Send(ctx, http.MethodGet, path, nil)
	if out.Err != nil {
		if invoiceID != "" {
			return out, invoiceError(out.Err, OpFetchResource, invoiceID)
		}
		return out, out.Err.WithOp(OpFetchResource, s.endpointPath)
	}
	if invoiceID != "" {
		s.logInvoicePaid(out, invoiceID)
	}
	return out, nil
}

func (s *Service) logInvoicePaid(out *x402http.Outcome, id string) {
	fields := []zap.Field{zap.String("invoice_id", id), zap.Bool("paid", out.Paid())}
	if out.Settlement != nil {
		fields = append(fields, zap.String("transaction", out.Settlement.Transaction))
	}
	s.logger.Info("invoice request completed", fields...)
}

// invoiceError names the invoice on a not-found failure.
func invoiceError(err *x402.Error, op, id string) *x402.Error {
	if err.Code == x402.CodeNotFound {
		err.Message = "invoice not found"
	}
	return err.WithOp(op, id)
}
