package x402

import (
	"math/big"
	"sort"
	"strings"
)

// PaymentSelector picks one requirement of a challenge and signs it.
type PaymentSelector interface {
	// SelectAndSign signs exactly one of the offered requirements with the
	// best available signer. It never calls Sign more than once.
	SelectAndSign(signers []Signer, requirements []PaymentRequirements) (*PaymentPayload, error)
}

// DefaultPaymentSelector ranks (signer, requirement) pairs by signer
// priority, then token priority, then configuration order.
type DefaultPaymentSelector struct{}

// NewDefaultPaymentSelector creates a new DefaultPaymentSelector.
func NewDefaultPaymentSelector() *DefaultPaymentSelector {
	return &DefaultPaymentSelector{}
}

type candidate struct {
	requirement    *PaymentRequirements
	signer         Signer
	signerPriority int
	tokenPriority  int
	signerIndex    int
	reqIndex       int
}

func (a candidate) before(b candidate) bool {
	switch {
	case a.signerPriority != b.signerPriority:
		return a.signerPriority < b.signerPriority
	case a.tokenPriority != b.tokenPriority:
		return a.tokenPriority < b.tokenPriority
	case a.signerIndex != b.signerIndex:
		return a.signerIndex < b.signerIndex
	}
	return a.reqIndex < b.reqIndex
}

// SelectAndSign implements PaymentSelector.
func (s *DefaultPaymentSelector) SelectAndSign(signers []Signer, requirements []PaymentRequirements) (*PaymentPayload, error) {
	if len(signers) == 0 {
		return nil, NewError(CodeSigning, "no signers configured", ErrNoValidSigner)
	}
	if len(requirements) == 0 {
		return nil, NewError(CodeProtocol, "challenge offers no payment requirements", ErrInvalidRequirements)
	}

	candidates, parsed := collectCandidates(signers, requirements)
	if parsed == 0 {
		return nil, NewError(CodeProtocol, "invalid amount in requirements", ErrInvalidRequirements)
	}
	if len(candidates) == 0 {
		offered := make([]string, 0, len(requirements))
		for _, req := range requirements {
			offered = append(offered, req.Network+":"+req.Asset)
		}
		return nil, NewError(CodeSigning, "no signer can satisfy any payment requirement", ErrNoValidSigner).
			WithDetails("options", strings.Join(offered, ", "))
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].before(candidates[j]) })
	best := candidates[0]

	payment, err := best.signer.Sign(best.requirement)
	if err != nil {
		return nil, NewError(CodeSigning, "failed to sign payment", err).
			WithDetails("network", best.requirement.Network)
	}
	return payment, nil
}

// collectCandidates returns every signer able to pay each requirement, plus
// the number of requirements whose amount parsed.
func collectCandidates(signers []Signer, requirements []PaymentRequirements) ([]candidate, int) {
	var out []candidate
	parsed := 0
	for i := range requirements {
		req := &requirements[i]
		amount, ok := new(big.Int).SetString(req.Amount, 10)
		if !ok || amount.Sign() < 0 {
			continue
		}
		parsed++

		for idx, signer := range signers {
			if !signer.CanSign(req) {
				continue
			}
			if limit := signer.GetMaxAmount(); limit != nil && amount.Cmp(limit) > 0 {
				continue
			}
			out = append(out, candidate{
				requirement:    req,
				signer:         signer,
				signerPriority: signer.GetPriority(),
				tokenPriority:  tokenPriority(signer, req.Asset),
				signerIndex:    idx,
				reqIndex:       i,
			})
		}
	}
	return out, parsed
}

func tokenPriority(signer Signer, asset string) int {
	for _, token := range signer.GetTokens() {
		if strings.EqualFold(token.Address, asset) {
			return token.Priority
		}
	}
	return 0
}

// FindMatchingRequirement returns the requirement a payment answers, matched
// on scheme, network, asset and recipient.
func FindMatchingRequirement(payment *PaymentPayload, requirements []PaymentRequirements) (*PaymentRequirements, error) {
	accepted := payment.Accepted
	for i := range requirements {
		req := &requirements[i]
		if req.Scheme == accepted.Scheme && req.Network == accepted.Network &&
			strings.EqualFold(req.Asset, accepted.Asset) && strings.EqualFold(req.PayTo, accepted.PayTo) {
			return req, nil
		}
	}
	return nil, NewError(CodeValidation, "no matching requirement for payment", ErrUnsupportedScheme).
		WithDetails("network", accepted.Network).
		WithDetails("scheme", accepted.Scheme)
}
