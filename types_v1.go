package x402

import (
	"fmt"
)

// PaymentRequirementsV1 is one payment option of a version 1 challenge.
type PaymentRequirementsV1 struct {
	Scheme            string                 `json:"scheme"`
	Network           string                 `json:"network"`
	MaxAmountRequired string                 `json:"maxAmountRequired"`
	Resource          string                 `json:"resource"`
	Description       string                 `json:"description,omitempty"`
	MimeType          string                 `json:"mimeType,omitempty"`
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Asset             string                 `json:"asset"`
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequiredV1 is the version 1 challenge body.
type PaymentRequiredV1 struct {
	X402Version int                     `json:"x402Version"`
	Error       string                  `json:"error,omitempty"`
	Accepts     []PaymentRequirementsV1 `json:"accepts"`
}

// PaymentPayloadV1 is the version 1 authorization shape. It names the
// network and scheme at the top level instead of echoing the accepted
// requirements.
type PaymentPayloadV1 struct {
	X402Version int         `json:"x402Version"`
	Scheme      string      `json:"scheme"`
	Network     string      `json:"network"`
	Payload     interface{} `json:"payload"`
}

// ToV2 normalizes a version 1 challenge. The legacy network names are
// mapped to CAIP-2 identifiers; an unknown name is an error.
func (p *PaymentRequiredV1) ToV2() (*PaymentRequired, error) {
	out := &PaymentRequired{
		X402Version: X402VersionV1,
		Error:       p.Error,
		Accepts:     make([]PaymentRequirements, 0, len(p.Accepts)),
	}
	for i := range p.Accepts {
		req, err := p.Accepts[i].ToV2()
		if err != nil {
			return nil, err
		}
		out.Accepts = append(out.Accepts, req)
	}
	if len(p.Accepts) > 0 && p.Accepts[0].Resource != "" {
		first := p.Accepts[0]
		out.Resource = &ResourceInfo{URL: first.Resource, Description: first.Description, MimeType: first.MimeType}
	}
	return out, nil
}

// ToV2 converts a single version 1 requirement.
func (r PaymentRequirementsV1) ToV2() (PaymentRequirements, error) {
	network, err := NetworkFromV1Name(r.Network)
	if err != nil {
		return PaymentRequirements{}, err
	}
	return PaymentRequirements{
		Scheme:            r.Scheme,
		Network:           network,
		Amount:            r.MaxAmountRequired,
		Asset:             r.Asset,
		PayTo:             r.PayTo,
		MaxTimeoutSeconds: r.MaxTimeoutSeconds,
		Extra:             r.Extra,
	}, nil
}

// PayloadToV1 re-encodes a signed authorization for a server that issued a
// version 1 challenge.
func PayloadToV1(payment *PaymentPayload) (*PaymentPayloadV1, error) {
	name, err := V1NameForNetwork(payment.Accepted.Network)
	if err != nil {
		return nil, fmt.Errorf("encode v1 payment: %w", err)
	}
	return &PaymentPayloadV1{
		X402Version: X402VersionV1,
		Scheme:      payment.Accepted.Scheme,
		Network:     name,
		Payload:     payment.Payload,
	}, nil
}
