// Package x402 holds the shared model of the duck-x402 payment-gated
// invoice client: the x402 challenge and authorization wire types, the
// invoice records served by the resource server, the error taxonomy and the
// per-call state machine.
//
// Two challenge versions are understood:
//   - version 2 uses CAIP-2 network identifiers (e.g. "eip155:84532") and "amount"
//   - version 1 uses named networks (e.g. "base-sepolia") and "maxAmountRequired"
//
// Version 1 challenges are normalized into the version 2 types on receipt.
//
// Import path: github.com/mxber2022/duck-x402
package x402

import "math/big"

// Protocol versions understood by the request engine.
const (
	X402VersionV1 = 1
	X402Version   = 2
)

// SchemeExact is the only payment scheme signed by this module.
const SchemeExact = "exact"

// ResourceInfo describes the protected resource.
type ResourceInfo struct {
	// URL is the URL of the protected resource.
	URL string `json:"url"`

	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequirements is one acceptable payment option inside a challenge.
type PaymentRequirements struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the chain in CAIP-2 format (e.g., "eip155:5545").
	Network string `json:"network"`

	// Amount is the price in the asset's atomic units.
	Amount string `json:"amount"`

	// Asset is the token contract address.
	Asset string `json:"asset"`

	// PayTo is the recipient address.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds bounds how long a signed authorization stays valid.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra carries scheme data, for EIP-3009 the token domain "name" and "version".
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequired is the 402 body sent by resource servers. It is the
// payment challenge: ephemeral, never persisted.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Resource    *ResourceInfo         `json:"resource,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// PaymentPayload is the signed authorization attached to the retried
// request. An authorization answers exactly one challenge and is never
// reused across retries or requests.
type PaymentPayload struct {
	X402Version int                 `json:"x402Version"`
	Resource    *ResourceInfo       `json:"resource,omitempty"`
	Accepted    PaymentRequirements `json:"accepted"`

	// Payload is the chain-specific signed data, an EVMPayload for EVM chains.
	Payload interface{} `json:"payload"`
}

// EVMPayload contains EIP-3009 authorization data for EVM payments.
type EVMPayload struct {
	// Signature is the hex-encoded ECDSA signature.
	Signature string `json:"signature"`

	Authorization EVMAuthorization `json:"authorization"`
}

// EVMAuthorization contains the transferWithAuthorization parameters.
type EVMAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`

	// Nonce is a random 32-byte hex string, unique per authorization.
	Nonce string `json:"nonce"`
}

// VerifyResponse is returned by a facilitator verify call.
type VerifyResponse struct {
	IsValid        bool   `json:"isValid"`
	InvalidReason  string `json:"invalidReason,omitempty"`
	InvalidMessage string `json:"invalidMessage,omitempty"`
	Payer          string `json:"payer,omitempty"`
}

// SettleResponse is returned by a facilitator settle call and echoed to the
// client in the X-PAYMENT-RESPONSE header.
type SettleResponse struct {
	Success      bool   `json:"success"`
	ErrorReason  string `json:"errorReason,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Transaction is the settlement transaction reference.
	Transaction string `json:"transaction"`

	// Network is the chain the payment settled on (CAIP-2 format).
	Network string `json:"network"`
	Payer   string `json:"payer,omitempty"`
}

// SupportedKind describes a payment type supported by a facilitator.
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     string                 `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse is returned by a facilitator supported call.
type SupportedResponse struct {
	Kinds   []SupportedKind     `json:"kinds"`
	Signers map[string][]string `json:"signers,omitempty"`
}

// TokenConfig defines a token a signer is willing to spend.
type TokenConfig struct {
	Address  string
	Symbol   string
	Decimals int

	// Priority orders tokens within one signer. Lower numbers win.
	Priority int

	Name string
}

// AmountToBigInt converts a decimal amount string to atomic units.
// "1.5" with 6 decimals becomes 1500000. Negative amounts, negative decimals
// and amounts with more precision than decimals return ErrInvalidAmount.
func AmountToBigInt(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrInvalidAmount
	}

	value := new(big.Rat)
	if _, ok := value.SetString(amount); !ok {
		return nil, ErrInvalidAmount
	}
	if value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	value.Mul(value, new(big.Rat).SetInt(pow10(decimals)))
	if !value.IsInt() {
		return nil, ErrInvalidAmount
	}
	return new(big.Int).Set(value.Num()), nil
}

// BigIntToAmount converts atomic units back to a decimal string.
// 1500000 with 6 decimals becomes "1.500000".
func BigIntToAmount(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	rat := new(big.Rat).SetInt(value)
	rat.Quo(rat, new(big.Rat).SetInt(pow10(decimals)))
	return rat.FloatString(decimals)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
