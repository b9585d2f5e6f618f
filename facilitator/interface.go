// Package facilitator defines the verify/settle contract a payment-gated
// resource server relies on.
package facilitator

import (
	"context"

	x402 "github.com/mxber2022/duck-x402"
)

// Interface verifies and settles payment authorizations. Implementations
// must be safe for concurrent use.
type Interface interface {
	// Verify checks an authorization against the requirement it answers
	// without moving funds.
	Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error)

	// Settle executes a verified authorization.
	Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error)

	// Supported lists the scheme/network pairs the facilitator handles.
	Supported(ctx context.Context) (*x402.SupportedResponse, error)
}

// VerifyRequest is the body of POST /verify.
type VerifyRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

// SettleRequest is the body of POST /settle.
type SettleRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}
