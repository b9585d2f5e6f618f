package resourceserver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	x402 "github.com/mxber2022/duck-x402"
)

var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrInvalidTransition = errors.New("invalid invoice status transition")
)

// Store is an in-memory invoice store. Status transitions are monotonic: a
// pending invoice becomes paid, expired or cancelled and never changes
// again. Pending invoices older than the TTL are expired lazily on read.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	order    []string
	invoices map[string]*x402.Invoice
}

// NewStore returns an empty store. A zero ttl never expires invoices.
func NewStore(ttl time.Duration, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		ttl:      ttl,
		now:      now,
		invoices: make(map[string]*x402.Invoice),
	}
}

// Create adds a pending invoice.
func (s *Store) Create(amount, description string) x402.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv := &x402.Invoice{
		ID:          uuid.NewString(),
		Amount:      amount,
		Description: description,
		Status:      x402.InvoicePending,
		CreatedAt:   s.now().UTC(),
	}
	s.invoices[inv.ID] = inv
	s.order = append(s.order, inv.ID)
	return *inv
}

// Get returns a copy of the invoice.
func (s *Store) Get(id string) (x402.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return x402.Invoice{}, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
	}
	s.expireLocked(inv)
	return *inv, nil
}

// List returns every invoice in creation order.
func (s *Store) List() []x402.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]x402.Invoice, 0, len(s.order))
	for _, id := range s.order {
		inv := s.invoices[id]
		s.expireLocked(inv)
		out = append(out, *inv)
	}
	return out
}

// Summary counts invoices by status.
func (s *Store) Summary() x402.InvoiceSummary {
	var expired, cancelled int
	summary := x402.InvoiceSummary{Expired: &expired, Cancelled: &cancelled}
	for _, inv := range s.List() {
		switch inv.Status {
		case x402.InvoicePending:
			summary.Pending++
		case x402.InvoicePaid:
			summary.Paid++
		case x402.InvoiceExpired:
			expired++
		case x402.InvoiceCancelled:
			cancelled++
		}
		summary.Total++
	}
	return summary
}

// MarkPaid records a settled payment on a pending invoice.
func (s *Store) MarkPaid(id, txHash, amount string) (x402.Invoice, error) {
	if txHash == "" {
		return x402.Invoice{}, fmt.Errorf("mark invoice %s paid: transaction hash is required", id)
	}
	return s.transition(id, x402.InvoicePaid, func(inv *x402.Invoice) {
		paidAt := s.now().UTC()
		inv.PaidAt = &paidAt
		inv.PaymentTxHash = txHash
		inv.PaymentAmount = amount
	})
}

// Cancel cancels a pending invoice.
func (s *Store) Cancel(id string) (x402.Invoice, error) {
	return s.transition(id, x402.InvoiceCancelled, nil)
}

func (s *Store) transition(id string, next x402.InvoiceStatus, apply func(*x402.Invoice)) (x402.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return x402.Invoice{}, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
	}
	s.expireLocked(inv)
	if !inv.Status.CanTransitionTo(next) {
		return *inv, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, inv.Status)
	}

	inv.Status = next
	if apply != nil {
		apply(inv)
	}
	return *inv, nil
}

func (s *Store) expireLocked(inv *x402.Invoice) {
	if s.ttl <= 0 || inv.Status != x402.InvoicePending {
		return
	}
	if s.now().Sub(inv.CreatedAt) >= s.ttl {
		inv.Status = x402.InvoiceExpired
	}
}
