package encoding

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/mxber2022/duck-x402"
)

func TestPaymentHeader(t *testing.T) {
	payment := x402.PaymentPayload{
		X402Version: x402.X402Version,
		Accepted: x402.PaymentRequirements{
			Scheme:  x402.SchemeExact,
			Network: x402.NetworkDuckChain,
			Amount:  "1000",
			Asset:   x402.DuckChain.TokenAddress,
			PayTo:   "0xA618c4427bb4e05B51e14c3D913640D5e38EDe52",
		},
		Payload: map[string]interface{}{"signature": "0xabc"},
	}

	header, err := EncodePayment(payment)
	require.NoError(t, err)

	decoded, err := DecodePayment(header)
	require.NoError(t, err)
	assert.Equal(t, payment.Accepted, decoded.Accepted)
	assert.Equal(t, "0xabc", decoded.Payload.(map[string]interface{})["signature"])
}

func TestDecodePayment_Malformed(t *testing.T) {
	_, err := DecodePayment("not base64!")
	assert.ErrorContains(t, err, "base64")

	_, err = DecodePayment(base64.StdEncoding.EncodeToString([]byte("{")))
	assert.ErrorContains(t, err, "unmarshal payment")
}

func TestSettlementHeader(t *testing.T) {
	header, err := EncodeSettlement(x402.SettleResponse{Success: true, Transaction: "0xtx", Network: x402.NetworkDuckChain})
	require.NoError(t, err)

	settlement, err := DecodeSettlement(header)
	require.NoError(t, err)
	assert.True(t, settlement.Success)
	assert.Equal(t, "0xtx", settlement.Transaction)
}

func TestEncodePaymentV1(t *testing.T) {
	header, err := EncodePaymentV1(x402.PaymentPayloadV1{X402Version: 1, Scheme: "exact", Network: "duckchain"})
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x402Version":1,"scheme":"exact","network":"duckchain","payload":null}`, string(raw))
}
