package x402

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSigner struct {
	network   string
	tokens    []TokenConfig
	priority  int
	maxAmount *big.Int
	signErr   error
	calls     int
}

func (m *mockSigner) Network() string { return m.network }
func (m *mockSigner) Scheme() string  { return SchemeExact }
func (m *mockSigner) CanSign(req *PaymentRequirements) bool {
	if req.Network != m.network || req.Scheme != SchemeExact {
		return false
	}
	for _, token := range m.tokens {
		if token.Address == req.Asset {
			return true
		}
	}
	return false
}
func (m *mockSigner) Sign(req *PaymentRequirements) (*PaymentPayload, error) {
	m.calls++
	if m.signErr != nil {
		return nil, m.signErr
	}
	return &PaymentPayload{
		X402Version: X402Version,
		Accepted:    *req,
		Payload:     EVMPayload{Signature: "0xsig", Authorization: EVMAuthorization{To: req.PayTo, Value: req.Amount}},
	}, nil
}
func (m *mockSigner) GetPriority() int         { return m.priority }
func (m *mockSigner) GetTokens() []TokenConfig { return m.tokens }
func (m *mockSigner) GetMaxAmount() *big.Int   { return m.maxAmount }

func duckRequirement(amount string) PaymentRequirements {
	return PaymentRequirements{
		Scheme:            SchemeExact,
		Network:           NetworkDuckChain,
		Amount:            amount,
		Asset:             DuckChain.TokenAddress,
		PayTo:             "0xA618c4427bb4e05B51e14c3D913640D5e38EDe52",
		MaxTimeoutSeconds: 60,
	}
}

func TestSelectAndSign_PicksHighestPriority(t *testing.T) {
	low := &mockSigner{network: NetworkDuckChain, tokens: []TokenConfig{DuckChain.TokenConfig(1)}, priority: 2}
	high := &mockSigner{network: NetworkDuckChain, tokens: []TokenConfig{DuckChain.TokenConfig(1)}, priority: 1}

	payment, err := NewDefaultPaymentSelector().SelectAndSign([]Signer{low, high}, []PaymentRequirements{duckRequirement("1000")})
	require.NoError(t, err)
	assert.Equal(t, "1000", payment.Accepted.Amount)
	assert.Equal(t, 0, low.calls)
	assert.Equal(t, 1, high.calls)
}

func TestSelectAndSign_SkipsUnsupportedRequirement(t *testing.T) {
	signer := &mockSigner{network: NetworkDuckChain, tokens: []TokenConfig{DuckChain.TokenConfig(1)}, priority: 1}
	other := PaymentRequirements{Scheme: SchemeExact, Network: NetworkBase, Amount: "5", Asset: BaseMainnet.TokenAddress}

	payment, err := NewDefaultPaymentSelector().SelectAndSign([]Signer{signer}, []PaymentRequirements{other, duckRequirement("7")})
	require.NoError(t, err)
	assert.Equal(t, NetworkDuckChain, payment.Accepted.Network)
}

func TestSelectAndSign_Errors(t *testing.T) {
	signer := &mockSigner{network: NetworkDuckChain, tokens: []TokenConfig{DuckChain.TokenConfig(1)}, priority: 1}

	tests := []struct {
		name     string
		signers  []Signer
		reqs     []PaymentRequirements
		wantCode ErrorCode
		wantErr  error
	}{
		{"no signers", nil, []PaymentRequirements{duckRequirement("1")}, CodeSigning, ErrNoValidSigner},
		{"no requirements", []Signer{signer}, nil, CodeProtocol, ErrInvalidRequirements},
		{"bad amount", []Signer{signer}, []PaymentRequirements{duckRequirement("abc")}, CodeProtocol, ErrInvalidRequirements},
		{"other network", []Signer{signer}, []PaymentRequirements{{Scheme: SchemeExact, Network: NetworkBase, Amount: "1"}}, CodeSigning, ErrNoValidSigner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDefaultPaymentSelector().SelectAndSign(tt.signers, tt.reqs)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, CodeOf(err))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSelectAndSign_RespectsMaxAmount(t *testing.T) {
	signer := &mockSigner{
		network:   NetworkDuckChain,
		tokens:    []TokenConfig{DuckChain.TokenConfig(1)},
		maxAmount: big.NewInt(100),
	}

	_, err := NewDefaultPaymentSelector().SelectAndSign([]Signer{signer}, []PaymentRequirements{duckRequirement("101")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSigning)
	assert.Equal(t, 0, signer.calls)
}

func TestSelectAndSign_SignFailureIsSigningError(t *testing.T) {
	boom := errors.New("hardware wallet locked")
	signer := &mockSigner{network: NetworkDuckChain, tokens: []TokenConfig{DuckChain.TokenConfig(1)}, signErr: boom}

	_, err := NewDefaultPaymentSelector().SelectAndSign([]Signer{signer}, []PaymentRequirements{duckRequirement("1"), duckRequirement("2")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSigning)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, signer.calls, "a failed signature is never retried")
}

func TestFindMatchingRequirement(t *testing.T) {
	reqs := []PaymentRequirements{duckRequirement("10")}

	match, err := FindMatchingRequirement(&PaymentPayload{Accepted: duckRequirement("10")}, reqs)
	require.NoError(t, err)
	assert.Same(t, &reqs[0], match)

	other := duckRequirement("10")
	other.PayTo = "0x0000000000000000000000000000000000000001"
	_, err = FindMatchingRequirement(&PaymentPayload{Accepted: other}, reqs)
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}
