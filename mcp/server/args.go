package server

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/invoice"
	"github.com/mxber2022/duck-x402/validation"
)

// Args is a typed tool argument set. Validate runs before any network call.
type Args interface {
	Validate() error
}

// PayInvoiceArgs are the pay-invoice arguments.
type PayInvoiceArgs struct {
	InvoiceID string `json:"invoiceId"`
}

func (a PayInvoiceArgs) Validate() error {
	return validateInvoiceID(invoice.OpPay, a.InvoiceID)
}

// InvoiceStatusArgs are the get-invoice-status arguments.
type InvoiceStatusArgs struct {
	InvoiceID string `json:"invoiceId"`
}

func (a InvoiceStatusArgs) Validate() error {
	return validateInvoiceID(invoice.OpGetStatus, a.InvoiceID)
}

func validateInvoiceID(op, id string) error {
	if err := validation.ValidateInvoiceID(id); err != nil {
		return x402.ValidationError(op, id, err.Error())
	}
	return nil
}

// ResourceArgs optionally names the invoice a resource request pays for.
type ResourceArgs struct {
	InvoiceID string `json:"invoiceId,omitempty"`
}

func (a ResourceArgs) Validate() error {
	if a.InvoiceID == "" {
		return nil
	}
	return validateInvoiceID(invoice.OpFetchResource, a.InvoiceID)
}

// CreateInvoiceArgs are the create-invoice arguments.
type CreateInvoiceArgs struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (a CreateInvoiceArgs) Validate() error {
	if _, err := validation.ParseAmount(a.Amount); err != nil {
		return x402.ValidationError(invoice.OpCreate, a.Amount, err.Error())
	}
	if err := validation.ValidateDescription(a.Description); err != nil {
		return x402.ValidationError(invoice.OpCreate, a.Amount, err.Error())
	}
	return nil
}

// NoArgs is used by tools without parameters.
type NoArgs struct{}

func (NoArgs) Validate() error { return nil }

// AddArgs are the add arguments. Pointers distinguish a missing operand from 0.
type AddArgs struct {
	A *float64 `json:"a"`
	B *float64 `json:"b"`
}

func (a AddArgs) Validate() error {
	operands := []struct {
		name  string
		value *float64
	}{{"a", a.A}, {"b", a.B}}
	for _, op := range operands {
		name, v := op.name, op.value
		if v == nil {
			return x402.ValidationError("add", name, "required number is missing")
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			return x402.ValidationError("add", name, "must be a finite number")
		}
	}
	return nil
}

// bindArgs decodes the request arguments into dst.
func bindArgs(request mcp.CallToolRequest, op string, dst interface{}) error {
	args := request.GetArguments()
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return x402.ValidationError(op, "", fmt.Sprintf("arguments are not JSON: %v", err))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return x402.ValidationError(op, "", fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}
