package x402

import "math/big"

// Signer produces payment authorizations for one network.
//
// Sign must not retain the returned payload: every authorization is
// single-use.
type Signer interface {
	// Network returns the CAIP-2 network identifier (e.g., "eip155:5545").
	Network() string

	// Scheme returns the payment scheme identifier (e.g., "exact").
	Scheme() string

	// CanSign reports whether the signer supports the requirement's network,
	// scheme and asset.
	CanSign(requirements *PaymentRequirements) bool

	// Sign creates a signed PaymentPayload for the given requirements.
	Sign(requirements *PaymentRequirements) (*PaymentPayload, error)

	// GetPriority returns the signer's priority. Lower numbers win.
	GetPriority() int

	GetTokens() []TokenConfig

	// GetMaxAmount returns the per-call spending limit, or nil for none.
	GetMaxAmount() *big.Int
}
