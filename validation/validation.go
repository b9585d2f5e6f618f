// Package validation checks x402 payment data and invoice tool arguments
// before they reach the network.
package validation

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/mxber2022/duck-x402"
)

// ValidateAmount checks that amount is a non-negative integer in atomic units.
// Zero is allowed.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("amount cannot be negative, got: %s", amount)
	}
	return nil
}

// ValidateAddress checks a 0x-prefixed 20-byte EVM address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
	}
	return nil
}

// ValidatePaymentRequirements validates one requirement a server is about to
// advertise.
func ValidatePaymentRequirements(req x402.PaymentRequirements) error {
	if req.Scheme != x402.SchemeExact {
		return fmt.Errorf("invalid requirements: unsupported scheme %q", req.Scheme)
	}
	if err := x402.ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}
	if err := ValidateAmount(req.Amount); err != nil {
		return fmt.Errorf("invalid requirements: %w", err)
	}
	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("invalid requirements: payTo %w", err)
	}
	if err := ValidateAddress(req.Asset); err != nil {
		return fmt.Errorf("invalid requirements: asset %w", err)
	}
	if req.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid requirements: maxTimeoutSeconds must be positive, got %d", req.MaxTimeoutSeconds)
	}
	return nil
}

// ValidatePaymentPayload checks the structure of an incoming authorization.
func ValidatePaymentPayload(payment x402.PaymentPayload) error {
	if payment.X402Version != x402.X402Version {
		return fmt.Errorf("%w: %d", x402.ErrUnsupportedVersion, payment.X402Version)
	}
	if payment.Payload == nil {
		return fmt.Errorf("payment payload cannot be empty")
	}
	if payment.Accepted.Scheme == "" || payment.Accepted.Network == "" {
		return fmt.Errorf("payment must name the accepted scheme and network")
	}
	return nil
}
