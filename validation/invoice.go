package validation

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a human invoice amount such as "$10.50", "10.50" or
// "10". The result must be positive.
func ParseAmount(amount string) (decimal.Decimal, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount is required")
	}
	s = strings.TrimPrefix(s, "$")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a decimal number", amount)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %q must be greater than zero", amount)
	}
	return d, nil
}

// AtomicAmount converts a human amount into the atomic units of a token with
// the given decimals. Amounts finer than one atomic unit are rejected.
func AtomicAmount(amount string, decimals int32) (*big.Int, error) {
	d, err := ParseAmount(amount)
	if err != nil {
		return nil, err
	}
	shifted := d.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// ValidateDescription checks an invoice description.
func ValidateDescription(description string) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("description is required")
	}
	return nil
}

// ValidateInvoiceID checks an invoice identifier used as a path segment or
// query value.
func ValidateInvoiceID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("invoiceId is required")
	}
	if strings.ContainsAny(id, "/?#") {
		return fmt.Errorf("invoiceId %q contains reserved characters", id)
	}
	return nil
}
