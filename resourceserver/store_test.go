package resourceserver

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/mxber2022/duck-x402"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore(0, newClock().Now)
	inv := s.Create("$10.50", "consulting")

	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, x402.InvoicePending, inv.Status)
	assert.Nil(t, inv.PaidAt)
	require.NoError(t, inv.Validate())

	got, err := s.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv, got)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestStore_MarkPaidIsMonotonic(t *testing.T) {
	clock := newClock()
	s := NewStore(0, clock.Now)
	inv := s.Create("$1", "coffee")

	clock.Advance(time.Minute)
	paid, err := s.MarkPaid(inv.ID, "0xtx", "1000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, x402.InvoicePaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, clock.Now(), *paid.PaidAt)
	assert.Equal(t, "0xtx", paid.PaymentTxHash)
	require.NoError(t, paid.Validate())

	_, err = s.MarkPaid(inv.ID, "0xother", "1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = s.Cancel(inv.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := s.Get(inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "0xtx", got.PaymentTxHash)

	_, err = s.MarkPaid(s.Create("$1", "x").ID, "", "1")
	assert.Error(t, err)
}

func TestStore_LazyExpiry(t *testing.T) {
	clock := newClock()
	s := NewStore(time.Hour, clock.Now)
	old := s.Create("$1", "old")
	clock.Advance(30 * time.Minute)
	fresh := s.Create("$2", "fresh")
	clock.Advance(45 * time.Minute)

	got, err := s.Get(old.ID)
	require.NoError(t, err)
	assert.Equal(t, x402.InvoiceExpired, got.Status)

	got, err = s.Get(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, x402.InvoicePending, got.Status)

	_, err = s.MarkPaid(old.ID, "0xtx", "1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStore_ListAndSummary(t *testing.T) {
	s := NewStore(0, newClock().Now)
	a := s.Create("$1", "a")
	b := s.Create("$2", "b")
	c := s.Create("$3", "c")
	_, err := s.MarkPaid(b.ID, "0xtx", "2")
	require.NoError(t, err)
	_, err = s.Cancel(c.ID)
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

	summary := s.Summary()
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 1, summary.Paid)
	assert.Equal(t, 1, *summary.Cancelled)
	assert.Equal(t, 0, *summary.Expired)
	assert.Equal(t, len(list), summary.Total)
}

func TestStore_ConcurrentPaymentsSettleOnce(t *testing.T) {
	s := NewStore(0, nil)
	inv := s.Create("$1", "race")

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.MarkPaid(inv.ID, "0xtx", "1"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}
