// Package helpers holds the x402 header and body plumbing shared by the
// request engine and the gin middleware.
package helpers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/encoding"
	"github.com/mxber2022/duck-x402/validation"
)

// Header names.
const (
	PaymentHeader         = "X-PAYMENT"
	PaymentResponseHeader = "X-PAYMENT-RESPONSE"
)

// MaxChallengeBytes bounds how much of a 402 body is read.
const MaxChallengeBytes = 64 << 10

// ErrNilPayment is returned when payment is nil in BuildPaymentHeader.
var ErrNilPayment = errors.New("payment is nil")

// ErrNilSettlement is returned when settlement is nil in AddPaymentResponseHeader.
var ErrNilSettlement = errors.New("settlement is nil")

// ParsePaymentHeader decodes and checks the X-PAYMENT header of an incoming
// request.
func ParsePaymentHeader(r *http.Request) (*x402.PaymentPayload, error) {
	header := r.Header.Get(PaymentHeader)
	if header == "" {
		return nil, x402.ErrMalformedHeader
	}

	payment, err := encoding.DecodePayment(header)
	if err != nil {
		return nil, x402.NewError(x402.CodeValidation, "failed to decode payment header", fmt.Errorf("%w: %v", x402.ErrMalformedHeader, err))
	}
	if err := validation.ValidatePaymentPayload(payment); err != nil {
		return nil, x402.NewError(x402.CodeValidation, "invalid payment header", err)
	}
	return &payment, nil
}

// PaymentRequiredBody builds the 402 body a server sends.
func PaymentRequiredBody(resource x402.ResourceInfo, requirements []x402.PaymentRequirements, errMsg string) x402.PaymentRequired {
	return x402.PaymentRequired{
		X402Version: x402.X402Version,
		Error:       errMsg,
		Resource:    &resource,
		Accepts:     requirements,
	}
}

// AddPaymentResponseHeader sets X-PAYMENT-RESPONSE from a settlement.
func AddPaymentResponseHeader(h http.Header, settlement *x402.SettleResponse) error {
	if settlement == nil {
		return fmt.Errorf("AddPaymentResponseHeader: %w", ErrNilSettlement)
	}
	encoded, err := encoding.EncodeSettlement(*settlement)
	if err != nil {
		return fmt.Errorf("AddPaymentResponseHeader: encode settlement: %w", err)
	}
	h.Set(PaymentResponseHeader, encoded)
	return nil
}

// ReadChallenge consumes and closes a 402 response body and returns the
// validated challenge.
func ReadChallenge(resp *http.Response) (*x402.PaymentRequired, error) {
	if resp == nil || resp.Body == nil {
		return nil, x402.NewError(x402.CodeProtocol, "402 response has no body", x402.ErrInvalidRequirements)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxChallengeBytes))
	if err != nil {
		return nil, x402.NewError(x402.CodeProtocol, "failed to read payment challenge", err)
	}
	return validation.ParseChallenge(body)
}

// ParseSettlement decodes an X-PAYMENT-RESPONSE value. It returns nil when the
// header is absent or unreadable.
func ParseSettlement(headerValue string) *x402.SettleResponse {
	if headerValue == "" {
		return nil
	}
	settlement, err := encoding.DecodeSettlement(headerValue)
	if err != nil {
		return nil
	}
	return &settlement
}

// BuildPaymentHeader encodes an authorization in the shape matching the
// challenge version it answers.
func BuildPaymentHeader(payment *x402.PaymentPayload, challengeVersion int) (string, error) {
	if payment == nil {
		return "", fmt.Errorf("BuildPaymentHeader: %w", ErrNilPayment)
	}
	if challengeVersion == x402.X402VersionV1 {
		v1, err := x402.PayloadToV1(payment)
		if err != nil {
			return "", fmt.Errorf("BuildPaymentHeader: %w", err)
		}
		return encoding.EncodePaymentV1(*v1)
	}
	encoded, err := encoding.EncodePayment(*payment)
	if err != nil {
		return "", fmt.Errorf("BuildPaymentHeader: encode payment: %w", err)
	}
	return encoded, nil
}

// BuildResourceURL reconstructs the absolute URL of an incoming request.
func BuildResourceURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
