// Package encoding converts x402 header values to and from their wire form:
// base64 of the JSON document.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/mxber2022/duck-x402"
)

func encode(kind string, v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decode(kind, encoded string, v interface{}) error {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("failed to decode base64 %s: %w", kind, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return nil
}

// EncodePayment encodes an authorization for the X-PAYMENT header.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	return encode("payment", payment)
}

// EncodePaymentV1 encodes an authorization in the version 1 shape.
func EncodePaymentV1(payment x402.PaymentPayloadV1) (string, error) {
	return encode("payment", payment)
}

// DecodePayment decodes an X-PAYMENT header value.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload
	err := decode("payment", encoded, &payment)
	return payment, err
}

// EncodeSettlement encodes a settlement for the X-PAYMENT-RESPONSE header.
func EncodeSettlement(settlement x402.SettleResponse) (string, error) {
	return encode("settlement", settlement)
}

// DecodeSettlement decodes an X-PAYMENT-RESPONSE header value.
func DecodeSettlement(encoded string) (x402.SettleResponse, error) {
	var settlement x402.SettleResponse
	err := decode("settlement", encoded, &settlement)
	return settlement, err
}
