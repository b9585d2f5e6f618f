// Package local is an in-process facilitator for the exact scheme on EVM
// chains. It checks EIP-3009 authorizations cryptographically and settles
// them by recording the nonce; nothing is broadcast to a chain.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/facilitator"
	"github.com/mxber2022/duck-x402/internal/eip3009"
)

// Invalid reasons reported in VerifyResponse.InvalidReason.
const (
	ReasonUnsupportedScheme  = "unsupported_scheme"
	ReasonNetworkMismatch    = "network_mismatch"
	ReasonInvalidPayload     = "invalid_payload"
	ReasonInvalidSignature   = "invalid_exact_evm_payload_signature"
	ReasonRecipientMismatch  = "invalid_exact_evm_payload_recipient_mismatch"
	ReasonInsufficientAmount = "invalid_exact_evm_payload_authorization_value"
	ReasonNotYetValid        = "invalid_exact_evm_payload_authorization_valid_after"
	ReasonExpired            = "invalid_exact_evm_payload_authorization_valid_before"
	ReasonNonceUsed          = "invalid_exact_evm_payload_authorization_nonce_used"
)

// Facilitator verifies and settles in memory. It is safe for concurrent use.
type Facilitator struct {
	networks []string
	now      func() time.Time
	logger   *zap.Logger

	mu   sync.Mutex
	used map[string]struct{}
}

var _ facilitator.Interface = (*Facilitator)(nil)

// Option configures a Facilitator.
type Option func(*Facilitator)

// WithClock replaces time.Now for validity window checks.
func WithClock(now func() time.Time) Option {
	return func(f *Facilitator) { f.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Facilitator) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New returns a facilitator for the given CAIP-2 networks.
func New(networks []string, opts ...Option) (*Facilitator, error) {
	if len(networks) == 0 {
		return nil, fmt.Errorf("at least one network is required")
	}
	for _, n := range networks {
		if _, err := x402.GetChainID(n); err != nil {
			return nil, err
		}
	}
	f := &Facilitator{
		networks: networks,
		now:      time.Now,
		logger:   zap.NewNop(),
		used:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Verify checks the authorization without consuming its nonce.
func (f *Facilitator) Verify(_ context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	auth, reason := f.check(payload, requirements)
	if reason == "" {
		f.mu.Lock()
		if f.nonceUsedLocked(auth) {
			reason = ReasonNonceUsed
		}
		f.mu.Unlock()
	}
	if reason != "" {
		resp := &x402.VerifyResponse{IsValid: false, InvalidReason: reason}
		if auth != nil {
			resp.Payer = auth.From.Hex()
		}
		f.logger.Debug("authorization rejected", zap.String("reason", reason))
		return resp, nil
	}
	return &x402.VerifyResponse{IsValid: true, Payer: auth.From.Hex()}, nil
}

// Settle re-verifies the authorization and consumes its nonce. The
// transaction reference is the keccak256 hash of the signature.
func (f *Facilitator) Settle(_ context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	evm, err := decodeEVMPayload(payload.Payload)
	if err != nil {
		return &x402.SettleResponse{Success: false, ErrorReason: ReasonInvalidPayload, Network: requirements.Network}, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	auth, reason := f.check(payload, requirements)
	if reason == "" && f.nonceUsedLocked(auth) {
		reason = ReasonNonceUsed
	}
	if reason != "" {
		resp := &x402.SettleResponse{Success: false, ErrorReason: reason, Network: requirements.Network}
		if auth != nil {
			resp.Payer = auth.From.Hex()
		}
		return resp, nil
	}
	f.used[nonceKey(auth)] = struct{}{}

	tx := crypto.Keccak256Hash([]byte(strings.ToLower(evm.Signature))).Hex()
	f.logger.Info("authorization settled",
		zap.String("payer", auth.From.Hex()),
		zap.String("value", auth.Value.String()),
		zap.String("transaction", tx),
	)
	return &x402.SettleResponse{
		Success:     true,
		Transaction: tx,
		Network:     requirements.Network,
		Payer:       auth.From.Hex(),
	}, nil
}

// Supported lists the exact scheme on every configured network with the
// chain's default token domain.
func (f *Facilitator) Supported(context.Context) (*x402.SupportedResponse, error) {
	kinds := make([]x402.SupportedKind, 0, len(f.networks))
	for _, n := range f.networks {
		kind := x402.SupportedKind{X402Version: x402.X402Version, Scheme: x402.SchemeExact, Network: n}
		if chain, err := x402.GetChainConfig(n); err == nil {
			kind.Extra = chain.EIP712Extra()
		}
		kinds = append(kinds, kind)
	}
	return &x402.SupportedResponse{Kinds: kinds}, nil
}

func (f *Facilitator) supports(network string) bool {
	for _, n := range f.networks {
		if n == network {
			return true
		}
	}
	return false
}

// check returns the decoded authorization and an empty reason when the
// payment satisfies requirements. Nonce reuse is checked by the callers.
func (f *Facilitator) check(payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*eip3009.Authorization, string) {
	if payload.Accepted.Scheme != x402.SchemeExact || requirements.Scheme != x402.SchemeExact {
		return nil, ReasonUnsupportedScheme
	}
	if payload.Accepted.Network != requirements.Network || !f.supports(requirements.Network) {
		return nil, ReasonNetworkMismatch
	}

	evm, err := decodeEVMPayload(payload.Payload)
	if err != nil {
		return nil, ReasonInvalidPayload
	}
	auth, err := eip3009.FromPayload(evm.Authorization)
	if err != nil {
		return nil, ReasonInvalidPayload
	}

	domain, err := eip3009.DomainFor(&requirements)
	if err != nil {
		return auth, ReasonInvalidPayload
	}
	signer, err := eip3009.RecoverSigner(domain, auth, evm.Signature)
	if err != nil || signer != auth.From {
		return auth, ReasonInvalidSignature
	}

	if !strings.EqualFold(auth.To.Hex(), requirements.PayTo) {
		return auth, ReasonRecipientMismatch
	}
	required, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok || auth.Value.Cmp(required) < 0 {
		return auth, ReasonInsufficientAmount
	}

	now := big.NewInt(f.now().Unix())
	if now.Cmp(auth.ValidAfter) < 0 {
		return auth, ReasonNotYetValid
	}
	if now.Cmp(auth.ValidBefore) >= 0 {
		return auth, ReasonExpired
	}

	return auth, ""
}

// nonceUsedLocked must be called with mu held.
func (f *Facilitator) nonceUsedLocked(auth *eip3009.Authorization) bool {
	_, ok := f.used[nonceKey(auth)]
	return ok
}

func nonceKey(auth *eip3009.Authorization) string {
	return auth.From.Hex() + ":" + fmt.Sprintf("%x", auth.Nonce)
}

// decodeEVMPayload accepts the typed payload produced by an in-process
// signer as well as the generic map produced by JSON decoding.
func decodeEVMPayload(raw interface{}) (*x402.EVMPayload, error) {
	switch p := raw.(type) {
	case x402.EVMPayload:
		return &p, nil
	case *x402.EVMPayload:
		if p == nil {
			return nil, fmt.Errorf("payload is nil")
		}
		return p, nil
	case nil:
		return nil, fmt.Errorf("payload is nil")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var evm x402.EVMPayload
	if err := json.Unmarshal(data, &evm); err != nil {
		return nil, err
	}
	if evm.Signature == "" {
		return nil, fmt.Errorf("payload has no signature")
	}
	return &evm, nil
}
