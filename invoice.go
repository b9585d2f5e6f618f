package x402

import (
	"fmt"
	"time"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceExpired   InvoiceStatus = "expired"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// Valid reports whether s is one of the four known statuses.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoicePending, InvoicePaid, InvoiceExpired, InvoiceCancelled:
		return true
	}
	return false
}

// Terminal reports whether no status change may leave s.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoicePaid || s == InvoiceExpired || s == InvoiceCancelled
}

// CanTransitionTo reports whether an invoice in status s may move to next.
// Only pending invoices change status.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	return s == InvoicePending && next.Terminal()
}

// Invoice is a payable record held by the resource server.
type Invoice struct {
	ID string `json:"id"`

	// Amount is a human denominated price such as "$10.50".
	Amount      string        `json:"amount"`
	Description string        `json:"description"`
	Status      InvoiceStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`

	// PaidAt and PaymentTxHash are set exactly when Status is paid.
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	PaymentTxHash string     `json:"paymentTxHash,omitempty"`

	// PaymentAmount is the amount actually settled, in atomic units.
	PaymentAmount string `json:"paymentAmount,omitempty"`
}

// Validate checks the record's internal consistency.
func (inv *Invoice) Validate() error {
	if inv.ID == "" {
		return fmt.Errorf("invoice id is empty")
	}
	if !inv.Status.Valid() {
		return fmt.Errorf("invoice %s: unknown status %q", inv.ID, inv.Status)
	}
	paid := inv.Status == InvoicePaid
	if paid && (inv.PaidAt == nil || inv.PaymentTxHash == "") {
		return fmt.Errorf("invoice %s: paid without paidAt or paymentTxHash", inv.ID)
	}
	if !paid && (inv.PaidAt != nil || inv.PaymentTxHash != "") {
		return fmt.Errorf("invoice %s: %s but carries payment data", inv.ID, inv.Status)
	}
	return nil
}

// InvoiceCreationResponse is the envelope some servers wrap a new invoice in.
type InvoiceCreationResponse struct {
	Invoice    Invoice `json:"invoice"`
	PaymentURL string  `json:"paymentUrl,omitempty"`
}

// InvoiceSummary counts invoices by status. It is derived by the server and
// never cached by the client.
type InvoiceSummary struct {
	Pending   int  `json:"pending"`
	Paid      int  `json:"paid"`
	Expired   *int `json:"expired,omitempty"`
	Cancelled *int `json:"cancelled,omitempty"`
	Total     int  `json:"total"`
}

// PaymentResponse is the body a resource server returns for a paid invoice.
type PaymentResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Invoice *Invoice `json:"invoice,omitempty"`
}
