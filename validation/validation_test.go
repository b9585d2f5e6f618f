package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/mxber2022/duck-x402"
)

const payTo = "0xA618c4427bb4e05B51e14c3D913640D5e38EDe52"

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, ValidateAmount("0"))
	assert.NoError(t, ValidateAmount("100000000000000000000"))
	assert.Error(t, ValidateAmount(""))
	assert.Error(t, ValidateAmount("1.5"))
	assert.Error(t, ValidateAmount("-1"))
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(payTo))
	assert.Error(t, ValidateAddress(""))
	assert.Error(t, ValidateAddress("A618c4427bb4e05B51e14c3D913640D5e38EDe52"), "0x prefix required")
	assert.Error(t, ValidateAddress("0x1234"))
}

func TestValidatePaymentRequirements(t *testing.T) {
	valid := x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           x402.NetworkDuckChain,
		Amount:            "1000",
		Asset:             x402.DuckChain.TokenAddress,
		PayTo:             payTo,
		MaxTimeoutSeconds: 60,
	}
	require.NoError(t, ValidatePaymentRequirements(valid))

	tests := []struct {
		name   string
		mutate func(*x402.PaymentRequirements)
	}{
		{"scheme", func(r *x402.PaymentRequirements) { r.Scheme = "upto" }},
		{"network", func(r *x402.PaymentRequirements) { r.Network = "duckchain" }},
		{"amount", func(r *x402.PaymentRequirements) { r.Amount = "ten" }},
		{"payTo", func(r *x402.PaymentRequirements) { r.PayTo = "0xnope" }},
		{"asset", func(r *x402.PaymentRequirements) { r.Asset = "" }},
		{"timeout", func(r *x402.PaymentRequirements) { r.MaxTimeoutSeconds = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			assert.Error(t, ValidatePaymentRequirements(req))
		})
	}
}

func TestParseAmount(t *testing.T) {
	for _, in := range []string{"$10.50", "10.50", "10", " $0.01 "} {
		_, err := ParseAmount(in)
		assert.NoError(t, err, in)
	}
	for _, in := range []string{"", "$", "ten dollars", "0", "-5", "$-1"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}

	d, err := ParseAmount("$10.50")
	require.NoError(t, err)
	assert.Equal(t, "10.5", d.String())
}

func TestAtomicAmount(t *testing.T) {
	v, err := AtomicAmount("$10.50", 6)
	require.NoError(t, err)
	assert.Equal(t, "10500000", v.String())

	v, err = AtomicAmount("1", 18)
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", v.String())

	_, err = AtomicAmount("0.0000001", 6)
	assert.Error(t, err)
}

func TestValidateInvoiceID(t *testing.T) {
	assert.NoError(t, ValidateInvoiceID("3f2c9a2e-7f55-4e0b-a1a4-b2f7f7a0b1c3"))
	assert.Error(t, ValidateInvoiceID(""))
	assert.Error(t, ValidateInvoiceID("   "))
	assert.Error(t, ValidateInvoiceID("../admin"))
}

func TestValidateDescription(t *testing.T) {
	assert.NoError(t, ValidateDescription("coffee"))
	assert.Error(t, ValidateDescription(" "))
}
