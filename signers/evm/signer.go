// Package evm signs x402 "exact" payments on EVM chains with EIP-3009
// transferWithAuthorization.
package evm

import (
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/internal/eip3009"
)

// Signer holds one private key for one network. It keeps no mutable state,
// so Sign is safe for concurrent use.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	network    string
	tokens     []x402.TokenConfig
	priority   int
	maxAmount  *big.Int
}

type Option func(*Signer) error

// NewSigner parses a hex private key (with or without 0x).
func NewSigner(network string, privateKeyHex string, tokens []x402.TokenConfig, opts ...Option) (*Signer, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, x402.ErrInvalidKey
	}
	return NewSignerFromKey(network, privateKey, tokens, opts...)
}

func NewSignerFromKey(network string, key *ecdsa.PrivateKey, tokens []x402.TokenConfig, opts ...Option) (*Signer, error) {
	if key == nil {
		return nil, x402.ErrInvalidKey
	}
	if _, err := x402.GetChainID(network); err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, x402.ErrNoTokens
	}
	for _, token := range tokens {
		if !common.IsHexAddress(token.Address) {
			return nil, x402.ErrInvalidToken
		}
	}

	s := &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		network:    network,
		tokens:     tokens,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func WithPriority(priority int) Option {
	return func(s *Signer) error {
		s.priority = priority
		return nil
	}
}

// WithMaxAmount caps the atomic amount of a single authorization.
func WithMaxAmount(amount *big.Int) Option {
	return func(s *Signer) error {
		if amount != nil && amount.Sign() < 0 {
			return x402.ErrInvalidAmount
		}
		s.maxAmount = amount
		return nil
	}
}

func (s *Signer) Network() string { return s.network }

func (s *Signer) Scheme() string { return x402.SchemeExact }

func (s *Signer) CanSign(requirements *x402.PaymentRequirements) bool {
	if requirements.Scheme != x402.SchemeExact || requirements.Network != s.network {
		return false
	}
	_, ok := s.token(requirements.Asset)
	return ok
}

func (s *Signer) token(asset string) (x402.TokenConfig, bool) {
	for _, token := range s.tokens {
		if strings.EqualFold(token.Address, asset) {
			return token, true
		}
	}
	return x402.TokenConfig{}, false
}

// Sign creates a new authorization with a fresh nonce on every call.
func (s *Signer) Sign(requirements *x402.PaymentRequirements) (*x402.PaymentPayload, error) {
	if !s.CanSign(requirements) {
		return nil, x402.ErrNoValidSigner
	}

	amount, ok := new(big.Int).SetString(requirements.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return nil, x402.ErrInvalidAmount
	}
	if s.maxAmount != nil && amount.Cmp(s.maxAmount) > 0 {
		return nil, x402.ErrAmountExceeded
	}
	if !common.IsHexAddress(requirements.PayTo) {
		return nil, x402.ErrInvalidRequirements
	}

	domain, err := eip3009.DomainFor(requirements)
	if err != nil {
		return nil, err
	}

	auth, err := eip3009.CreateAuthorization(s.address, common.HexToAddress(requirements.PayTo), amount, requirements.MaxTimeoutSeconds)
	if err != nil {
		return nil, err
	}

	signature, err := eip3009.SignAuthorization(s.privateKey, domain, auth)
	if err != nil {
		return nil, err
	}

	return &x402.PaymentPayload{
		X402Version: x402.X402Version,
		Accepted:    *requirements,
		Payload: x402.EVMPayload{
			Signature:     signature,
			Authorization: eip3009.ToPayload(auth),
		},
	}, nil
}

func (s *Signer) GetPriority() int { return s.priority }

func (s *Signer) GetTokens() []x402.TokenConfig { return s.tokens }

func (s *Signer) GetMaxAmount() *big.Int { return s.maxAmount }

// Address returns the payer address derived from the key.
func (s *Signer) Address() common.Address { return s.address }
