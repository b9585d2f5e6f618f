package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/mxber2022/duck-x402"
)

func TestParseChallenge_V2(t *testing.T) {
	body := []byte(`{
		"x402Version": 2,
		"error": "payment required",
		"resource": {"url": "http://localhost:4000/pay?invoiceId=1"},
		"accepts": [{
			"scheme": "exact",
			"network": "eip155:5545",
			"amount": "10500000000000000000",
			"asset": "0xdA65892eA771d3268610337E9964D916028B7dAD",
			"payTo": "0xA618c4427bb4e05B51e14c3D913640D5e38EDe52",
			"maxTimeoutSeconds": 60,
			"extra": {"name": "DUCK", "version": "1"}
		}]
	}`)

	challenge, err := ParseChallenge(body)
	require.NoError(t, err)
	assert.Equal(t, x402.X402Version, challenge.X402Version)
	require.Len(t, challenge.Accepts, 1)
	assert.Equal(t, x402.NetworkDuckChain, challenge.Accepts[0].Network)
	assert.Equal(t, "DUCK", challenge.Accepts[0].Extra["name"])
}

func TestParseChallenge_V1IsNormalized(t *testing.T) {
	body := []byte(`{
		"x402Version": 1,
		"accepts": [{
			"scheme": "exact",
			"network": "base-sepolia",
			"maxAmountRequired": "10000",
			"resource": "http://localhost:4000/pay",
			"payTo": "0xA618c4427bb4e05B51e14c3D913640D5e38EDe52",
			"maxTimeoutSeconds": 60,
			"asset": "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			"extra": null
		}]
	}`)

	challenge, err := ParseChallenge(body)
	require.NoError(t, err)
	assert.Equal(t, x402.X402VersionV1, challenge.X402Version)
	assert.Equal(t, x402.NetworkBaseSepolia, challenge.Accepts[0].Network)
	assert.Equal(t, "10000", challenge.Accepts[0].Amount)
}

func TestParseChallenge_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>402</html>`},
		{"no version", `{"accepts": []}`},
		{"unknown version", `{"x402Version": 7, "accepts": []}`},
		{"empty accepts", `{"x402Version": 2, "accepts": []}`},
		{"missing payTo", `{"x402Version": 2, "accepts": [{"scheme":"exact","network":"eip155:5545","amount":"1","asset":"0x0"}]}`},
		{"decimal amount", `{"x402Version": 2, "accepts": [{"scheme":"exact","network":"eip155:5545","amount":"1.5","asset":"0x0","payTo":"0x1"}]}`},
		{"unknown v1 network", `{"x402Version": 1, "accepts": [{"scheme":"exact","network":"atlantis","maxAmountRequired":"1","resource":"r","payTo":"0x1","asset":"0x0"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChallenge([]byte(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, x402.ErrProtocol)
		})
	}
}

func TestParseChallenge_UnknownVersionWrapsSentinel(t *testing.T) {
	_, err := ParseChallenge([]byte(`{"x402Version": 3, "accepts": []}`))
	assert.ErrorIs(t, err, x402.ErrUnsupportedVersion)
}
