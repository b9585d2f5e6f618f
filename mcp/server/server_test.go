package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/facilitator/local"
	x402http "github.com/mxber2022/duck-x402/http"
	"github.com/mxber2022/duck-x402/invoice"
	"github.com/mxber2022/duck-x402/resourceserver"
	"github.com/mxber2022/duck-x402/signers/evm"
)

const (
	testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	payee          = "0xA618c4427bb4e05B51e14c3D913640D5e38EDe52"
)

// fakeService records calls and answers from fixed values.
type fakeService struct {
	calls    atomic.Int32
	deadline atomic.Bool
	err      error
}

func (f *fakeService) record(ctx context.Context) error {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		f.deadline.Store(true)
	}
	return f.err
}

func (f *fakeService) CreateInvoice(ctx context.Context, amount, description string) (*x402.Invoice, error) {
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	return &x402.Invoice{ID: "inv-1", Amount: amount, Description: description, Status: x402.InvoicePending}, nil
}

func (f *fakeService) GetInvoiceStatus(ctx context.Context, id string) (*x402.Invoice, error) {
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	return &x402.Invoice{ID: id, Amount: "$1", Description: "d", Status: x402.InvoicePending}, nil
}

func (f *fakeService) ListInvoices(ctx context.Context) ([]x402.Invoice, error) {
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	return []x402.Invoice{}, nil
}

func (f *fakeService) GetInvoiceSummary(ctx context.Context) (*x402.InvoiceSummary, error) {
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	return &x402.InvoiceSummary{}, nil
}

func (f *fakeService) PayInvoice(ctx context.Context, id string) (*x402http.Outcome, error) {
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	return &x402http.Outcome{
		StatusCode: 200,
		Body:       []byte(`{"success":true}`),
		Settlement: &x402.SettleResponse{Success: true, Transaction: "0xabc", Network: x402.NetworkDuckChain},
	}, nil
}

func (f *fakeService) FetchResource(ctx context.Context, invoiceID string) (*x402http.Outcome, error) {
	if err := f.record(ctx); err != nil {
		return nil, err
	}
	return &x402http.Outcome{StatusCode: 200, Body: []byte(`{"data":"ok"}`)}, nil
}

func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	tool, ok := s.MCPServer().ListTools()[name]
	require.True(t, ok, "tool %s not registered", name)

	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult, i int) string {
	t.Helper()
	require.Greater(t, len(result.Content), i)
	text, ok := result.Content[i].(mcp.TextContent)
	require.True(t, ok, "content %d is not text", i)
	return text.Text
}

func TestNew_RegistersTools(t *testing.T) {
	s := New(&fakeService{}, DefaultConfig())
	tools := s.MCPServer().ListTools()

	for _, name := range []string{
		ToolPayInvoice,
		ToolGetResource,
		ToolGetInvoiceStatus,
		ToolCreateInvoice,
		ToolListInvoices,
		ToolInvoiceSummary,
		ToolAdd,
	} {
		assert.Contains(t, tools, name)
	}
	assert.Len(t, tools, 7)
	assert.Contains(t, tools[ToolPayInvoice].Tool.InputSchema.Required, "invoiceId")
	assert.NotContains(t, tools[ToolGetResource].Tool.InputSchema.Required, "invoiceId")
}

func TestTools_ValidateBeforeCalling(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, DefaultConfig())

	tests := []struct {
		tool string
		args map[string]interface{}
	}{
		{ToolPayInvoice, map[string]interface{}{}},
		{ToolPayInvoice, map[string]interface{}{"invoiceId": "  "}},
		{ToolGetInvoiceStatus, map[string]interface{}{"invoiceId": "a/b"}},
		{ToolCreateInvoice, map[string]interface{}{"amount": "ten", "description": "x"}},
		{ToolCreateInvoice, map[string]interface{}{"amount": "$10", "description": ""}},
		{ToolCreateInvoice, map[string]interface{}{"amount": 10, "description": "x"}},
		{ToolGetResource, map[string]interface{}{"invoiceId": "a/b"}},
		{ToolAdd, map[string]interface{}{"a": 1}},
	}
	for _, tt := range tests {
		result := callTool(t, s, tt.tool, tt.args)
		assert.True(t, result.IsError, "%s %v", tt.tool, tt.args)
	}
	assert.Zero(t, svc.calls.Load())
}

func TestCreateInvoiceTool(t *testing.T) {
	svc := &fakeService{}
	s := New(svc, DefaultConfig())

	result := callTool(t, s, ToolCreateInvoice, map[string]interface{}{"amount": "$10.50", "description": "consulting"})
	require.False(t, result.IsError)

	var inv x402.Invoice
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result, 0)), &inv))
	assert.Equal(t, "inv-1", inv.ID)
	assert.Equal(t, x402.InvoicePending, inv.Status)
	assert.True(t, svc.deadline.Load(), "tool call should carry a deadline")
}

func TestPayInvoiceTool_IncludesSettlement(t *testing.T) {
	s := New(&fakeService{}, DefaultConfig())

	result := callTool(t, s, ToolPayInvoice, map[string]interface{}{"invoiceId": "inv-1"})
	require.False(t, result.IsError)
	assert.JSONEq(t, `{"success":true}`, resultText(t, result, 0))
	assert.Contains(t, resultText(t, result, 1), "0xabc")
}

func TestToolError_CarriesOperationContext(t *testing.T) {
	notFound := x402.NewError(x402.CodeNotFound, "invoice not found", nil).WithOp(invoice.OpGetStatus, "missing")
	s := New(&fakeService{err: notFound}, DefaultConfig())

	result := callTool(t, s, ToolGetInvoiceStatus, map[string]interface{}{"invoiceId": "missing"})
	assert.True(t, result.IsError)
	assert.Equal(t, `get invoice status "missing": invoice not found`, resultText(t, result, 0))
}

func TestNegativeTimeoutDisablesDeadline(t *testing.T) {
	svc := &fakeService{}
	cfg := DefaultConfig()
	cfg.ToolTimeout = -1
	s := New(svc, cfg)

	callTool(t, s, ToolListInvoices, nil)
	assert.False(t, svc.deadline.Load())
}

func TestAddTool(t *testing.T) {
	s := New(&fakeService{}, DefaultConfig())

	result := callTool(t, s, ToolAdd, map[string]interface{}{"a": 2, "b": 0.5})
	require.False(t, result.IsError)
	assert.Equal(t, "2.5", resultText(t, result, 0))

	result = callTool(t, s, ToolAdd, map[string]interface{}{"a": 0, "b": 0})
	require.False(t, result.IsError)
	assert.Equal(t, "0", resultText(t, result, 0))
}

func TestInvoiceFlowAgainstResourceServer(t *testing.T) {
	cfg := resourceserver.DefaultConfig()
	cfg.PayTo = payee
	fac, err := local.New([]string{x402.NetworkDuckChain})
	require.NoError(t, err)
	rs, err := resourceserver.New(cfg, fac)
	require.NoError(t, err)
	ts := httptest.NewServer(rs.Handler())
	t.Cleanup(ts.Close)

	signer, err := evm.NewSigner(x402.NetworkDuckChain, testPrivateKey, []x402.TokenConfig{x402.DuckChain.TokenConfig(1)})
	require.NoError(t, err)
	engine, err := x402http.NewEngine(ts.URL, x402http.WithSigner(signer))
	require.NoError(t, err)
	s := New(invoice.NewService(engine), Config{ToolTimeout: 10 * time.Second})

	result := callTool(t, s, ToolCreateInvoice, map[string]interface{}{"amount": "$2", "description": "coffee"})
	require.False(t, result.IsError, resultText(t, result, 0))
	var created x402.Invoice
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result, 0)), &created))

	result = callTool(t, s, ToolPayInvoice, map[string]interface{}{"invoiceId": created.ID})
	require.False(t, result.IsError, resultText(t, result, 0))
	var paid x402.PaymentResponse
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result, 0)), &paid))
	assert.True(t, paid.Success)
	require.NotNil(t, paid.Invoice)
	assert.Equal(t, x402.InvoicePaid, paid.Invoice.Status)

	result = callTool(t, s, ToolGetInvoiceStatus, map[string]interface{}{"invoiceId": created.ID})
	require.False(t, result.IsError)
	var status x402.Invoice
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result, 0)), &status))
	assert.Equal(t, x402.InvoicePaid, status.Status)
	assert.NotEmpty(t, status.PaymentTxHash)

	result = callTool(t, s, ToolPayInvoice, map[string]interface{}{"invoiceId": "nonexistent"})
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result, 0), `"nonexistent"`)

	result = callTool(t, s, ToolInvoiceSummary, nil)
	require.False(t, result.IsError)
	var summary x402.InvoiceSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result, 0)), &summary))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Paid)
}
