package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
	x402http "github.com/mxber2022/duck-x402/http"
	"github.com/mxber2022/duck-x402/invoice"
)

// Tool names.
const (
	ToolPayInvoice       = "pay-invoice"
	ToolGetResource      = "get-data-from-resource-server"
	ToolGetInvoiceStatus = "get-invoice-status"
	ToolCreateInvoice    = "create-invoice"
	ToolListInvoices     = "list-invoices"
	ToolInvoiceSummary   = "get-invoice-summary"
	ToolAdd              = "add"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(ToolPayInvoice,
			mcp.WithDescription("Pay an invoice. Answers the server's x402 payment challenge with a signed authorization and retries once."),
			mcp.WithString("invoiceId", mcp.Required(), mcp.Description("ID of the invoice to pay")),
		),
		handle(s, ToolPayInvoice, func(ctx context.Context, args PayInvoiceArgs) (*mcp.CallToolResult, error) {
			out, err := s.svc.PayInvoice(ctx, args.InvoiceID)
			if err != nil {
				return nil, err
			}
			return outcomeResult(out)
		}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool(ToolGetResource,
			mcp.WithDescription("Get data from the resource server, paying for it when the server requires payment."),
			mcp.WithString("invoiceId", mcp.Description("Invoice the request pays for (optional)")),
		),
		handle(s, ToolGetResource, func(ctx context.Context, args ResourceArgs) (*mcp.CallToolResult, error) {
			out, err := s.svc.FetchResource(ctx, args.InvoiceID)
			if err != nil {
				return nil, err
			}
			return outcomeResult(out)
		}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool(ToolGetInvoiceStatus,
			mcp.WithDescription("Get the current status of an invoice."),
			mcp.WithString("invoiceId", mcp.Required(), mcp.Description("ID of the invoice")),
		),
		handle(s, ToolGetInvoiceStatus, func(ctx context.Context, args InvoiceStatusArgs) (*mcp.CallToolResult, error) {
			inv, err := s.svc.GetInvoiceStatus(ctx, args.InvoiceID)
			if err != nil {
				return nil, err
			}
			return jsonResult(inv)
		}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool(ToolCreateInvoice,
			mcp.WithDescription("Create a new pending invoice."),
			mcp.WithString("amount", mcp.Required(), mcp.Description(`Amount, e.g. "$10.50"`)),
			mcp.WithString("description", mcp.Required(), mcp.Description("What the invoice is for")),
		),
		handle(s, ToolCreateInvoice, func(ctx context.Context, args CreateInvoiceArgs) (*mcp.CallToolResult, error) {
			inv, err := s.svc.CreateInvoice(ctx, args.Amount, args.Description)
			if err != nil {
				return nil, err
			}
			return jsonResult(inv)
		}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool(ToolListInvoices,
			mcp.WithDescription("List all invoices."),
		),
		handle(s, ToolListInvoices, func(ctx context.Context, _ NoArgs) (*mcp.CallToolResult, error) {
			invoices, err := s.svc.ListInvoices(ctx)
			if err != nil {
				return nil, err
			}
			return jsonResult(invoices)
		}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool(ToolInvoiceSummary,
			mcp.WithDescription("Get invoice counts by status."),
		),
		handle(s, ToolInvoiceSummary, func(ctx context.Context, _ NoArgs) (*mcp.CallToolResult, error) {
			summary, err := s.svc.GetInvoiceSummary(ctx)
			if err != nil {
				return nil, err
			}
			return jsonResult(summary)
		}),
	)

	s.mcpServer.AddTool(
		mcp.NewTool(ToolAdd,
			mcp.WithDescription("Add two numbers."),
			mcp.WithNumber("a", mcp.Required(), mcp.Description("First number")),
			mcp.WithNumber("b", mcp.Required(), mcp.Description("Second number")),
		),
		handle(s, ToolAdd, func(_ context.Context, args AddArgs) (*mcp.CallToolResult, error) {
			sum := *args.A + *args.B
			return textResult(strconv.FormatFloat(sum, 'f', -1, 64)), nil
		}),
	)
}

// handle binds and validates T, bounds the call by the tool timeout and turns
// an error into a tool error result.
func handle[T Args](s *Server, tool string, run func(context.Context, T) (*mcp.CallToolResult, error)) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		logger := s.logger.With(zap.String("tool", tool))
		start := time.Now()

		var args T
		if err := bindArgs(request, tool, &args); err != nil {
			return s.failure(logger, err), nil
		}
		if err := args.Validate(); err != nil {
			return s.failure(logger, err), nil
		}

		if s.toolTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.toolTimeout)
			defer cancel()
		}

		result, err := run(ctx, args)
		if err != nil {
			return s.failure(logger, err), nil
		}
		logger.Debug("tool call completed", zap.Duration("duration", time.Since(start)))
		return result, nil
	}
}

func (s *Server) failure(logger *zap.Logger, err error) *mcp.CallToolResult {
	logger.Warn("tool call failed",
		zap.String("code", string(x402.CodeOf(err))),
		zap.Error(err),
	)
	return errorResult(err.Error())
}

// outcomeResult returns the response body as-is, followed by the settlement
// when the server sent one.
func outcomeResult(out *x402http.Outcome) (*mcp.CallToolResult, error) {
	body := string(out.Body)
	if len(out.Body) == 0 {
		body = "{}"
	}
	result := textResult(body)
	if out.Settlement != nil {
		data, err := json.MarshalIndent(out.Settlement, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal settlement: %w", err)
		}
		result.Content = append(result.Content, mcp.NewTextContent(string(data)))
	}
	return result, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(msg)},
		IsError: true,
	}
}

// compile-time check
var _ InvoiceService = (*invoice.Service)(nil)
