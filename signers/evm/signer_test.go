package evm

import (
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/internal/eip3009"
)

// Foundry/Anvil first default account. Never use outside tests.
const (
	testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	payee          = "0xA618c4427bb4e05B51e14c3D913640D5e38EDe52"
)

func newDuckSigner(t *testing.T, opts ...Option) *Signer {
	t.Helper()
	s, err := NewSigner(x402.NetworkDuckChain, "0x"+testPrivateKey, []x402.TokenConfig{x402.DuckChain.TokenConfig(1)}, opts...)
	require.NoError(t, err)
	return s
}

func duckRequirement(amount string) *x402.PaymentRequirements {
	return &x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           x402.NetworkDuckChain,
		Amount:            amount,
		Asset:             x402.DuckChain.TokenAddress,
		PayTo:             payee,
		MaxTimeoutSeconds: 60,
		Extra:             x402.DuckChain.EIP712Extra(),
	}
}

func TestNewSigner(t *testing.T) {
	s := newDuckSigner(t, WithPriority(2), WithMaxAmount(big.NewInt(10)))
	assert.Equal(t, testAddress, s.Address().Hex())
	assert.Equal(t, x402.NetworkDuckChain, s.Network())
	assert.Equal(t, 2, s.GetPriority())
	assert.Equal(t, int64(10), s.GetMaxAmount().Int64())
}

func TestNewSigner_Errors(t *testing.T) {
	tokens := []x402.TokenConfig{x402.DuckChain.TokenConfig(1)}

	_, err := NewSigner(x402.NetworkDuckChain, "not-a-key", tokens)
	assert.ErrorIs(t, err, x402.ErrInvalidKey)

	_, err = NewSigner("duckchain", testPrivateKey, tokens)
	assert.ErrorIs(t, err, x402.ErrInvalidNetwork)

	_, err = NewSigner(x402.NetworkDuckChain, testPrivateKey, nil)
	assert.ErrorIs(t, err, x402.ErrNoTokens)

	_, err = NewSigner(x402.NetworkDuckChain, testPrivateKey, []x402.TokenConfig{{Address: "duck"}})
	assert.ErrorIs(t, err, x402.ErrInvalidToken)

	_, err = NewSigner(x402.NetworkDuckChain, testPrivateKey, tokens, WithMaxAmount(big.NewInt(-1)))
	assert.ErrorIs(t, err, x402.ErrInvalidAmount)
}

func TestCanSign(t *testing.T) {
	s := newDuckSigner(t)

	assert.True(t, s.CanSign(duckRequirement("1")))

	wrongNetwork := duckRequirement("1")
	wrongNetwork.Network = x402.NetworkBase
	assert.False(t, s.CanSign(wrongNetwork))

	wrongScheme := duckRequirement("1")
	wrongScheme.Scheme = "upto"
	assert.False(t, s.CanSign(wrongScheme))

	wrongAsset := duckRequirement("1")
	wrongAsset.Asset = x402.BaseMainnet.TokenAddress
	assert.False(t, s.CanSign(wrongAsset))
}

func TestSign_ProducesVerifiableAuthorization(t *testing.T) {
	s := newDuckSigner(t)
	req := duckRequirement("10500000000000000000")

	payment, err := s.Sign(req)
	require.NoError(t, err)
	assert.Equal(t, x402.X402Version, payment.X402Version)
	assert.Equal(t, *req, payment.Accepted)

	evmPayload, ok := payment.Payload.(x402.EVMPayload)
	require.True(t, ok)
	assert.Equal(t, testAddress, evmPayload.Authorization.From)
	assert.True(t, strings.EqualFold(payee, evmPayload.Authorization.To))
	assert.Equal(t, req.Amount, evmPayload.Authorization.Value)

	auth, err := eip3009.FromPayload(evmPayload.Authorization)
	require.NoError(t, err)
	domain, err := eip3009.DomainFor(req)
	require.NoError(t, err)
	recovered, err := eip3009.RecoverSigner(domain, auth, evmPayload.Signature)
	require.NoError(t, err)
	assert.Equal(t, testAddress, recovered.Hex())
}

func TestSign_Errors(t *testing.T) {
	s := newDuckSigner(t, WithMaxAmount(big.NewInt(100)))

	_, err := s.Sign(duckRequirement("101"))
	assert.ErrorIs(t, err, x402.ErrAmountExceeded)

	_, err = s.Sign(duckRequirement("ten"))
	assert.ErrorIs(t, err, x402.ErrInvalidAmount)

	badPayee := duckRequirement("1")
	badPayee.PayTo = "nobody"
	_, err = s.Sign(badPayee)
	assert.ErrorIs(t, err, x402.ErrInvalidRequirements)

	other := duckRequirement("1")
	other.Network = x402.NetworkBase
	_, err = s.Sign(other)
	assert.ErrorIs(t, err, x402.ErrNoValidSigner)
}

func TestSign_ConcurrentCallsUseDistinctNonces(t *testing.T) {
	s := newDuckSigner(t)

	const n = 16
	nonces := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payment, err := s.Sign(duckRequirement("1"))
			if assert.NoError(t, err) {
				nonces[i] = payment.Payload.(x402.EVMPayload).Authorization.Nonce
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, nonce := range nonces {
		assert.False(t, seen[nonce], "nonce reused: %s", nonce)
		seen[nonce] = true
	}
}
