package gin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/facilitator/local"
	"github.com/mxber2022/duck-x402/http/internal/helpers"
	"github.com/mxber2022/duck-x402/signers/evm"
)

const (
	testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	payee          = "0xA618c4427bb4e05B51e14c3D913640D5e38EDe52"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func duckRequirements() []x402.PaymentRequirements {
	return []x402.PaymentRequirements{{
		Scheme:            x402.SchemeExact,
		Network:           x402.NetworkDuckChain,
		Amount:            "10000",
		Asset:             x402.DuckChain.TokenAddress,
		PayTo:             payee,
		MaxTimeoutSeconds: 60,
	}}
}

func newRouter(t *testing.T, config Config) *gin.Engine {
	t.Helper()
	if config.Facilitator == nil {
		f, err := local.New([]string{x402.NetworkDuckChain})
		require.NoError(t, err)
		config.Facilitator = f
	}
	if config.PaymentRequirements == nil && config.Requirements == nil {
		config.PaymentRequirements = duckRequirements()
	}

	r := gin.New()
	r.GET("/data", NewX402Middleware(config), func(c *gin.Context) {
		payment := GetPaymentFromContext(c)
		settlement := GetSettlementFromContext(c)
		body := gin.H{"payer": payment.Payer, "settled": settlement != nil}
		if req := GetRequirementFromContext(c); req != nil {
			body["amount"] = req.Amount
		}
		c.JSON(http.StatusOK, body)
	})
	return r
}

func paymentHeader(t *testing.T, req x402.PaymentRequirements) string {
	t.Helper()
	signer, err := evm.NewSigner(x402.NetworkDuckChain, testPrivateKey, []x402.TokenConfig{x402.DuckChain.TokenConfig(1)})
	require.NoError(t, err)
	payment, err := signer.Sign(&req)
	require.NoError(t, err)
	header, err := helpers.BuildPaymentHeader(payment, x402.X402Version)
	require.NoError(t, err)
	return header
}

func serve(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	if header != "" {
		req.Header.Set(helpers.PaymentHeader, header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_NoPaymentReturns402(t *testing.T) {
	r := newRouter(t, Config{})

	rec := serve(r, "")
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var challenge x402.PaymentRequired
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&challenge))
	assert.Equal(t, x402.X402Version, challenge.X402Version)
	require.Len(t, challenge.Accepts, 1)
	assert.Equal(t, x402.NetworkDuckChain, challenge.Accepts[0].Network)
	// Token domain comes from the facilitator's supported kinds.
	assert.Equal(t, "DUCK", challenge.Accepts[0].Extra["name"])
	require.NotNil(t, challenge.Resource)
	assert.Equal(t, "http://example.com/data", challenge.Resource.URL)
}

func TestMiddleware_ValidPaymentSettles(t *testing.T) {
	r := newRouter(t, Config{})
	req := duckRequirements()[0]
	req.Extra = x402.DuckChain.EIP712Extra()
	header := paymentHeader(t, req)

	rec := serve(r, header)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	settlement := helpers.ParseSettlement(rec.Header().Get(helpers.PaymentResponseHeader))
	require.NotNil(t, settlement)
	assert.True(t, settlement.Success)
	assert.NotEmpty(t, settlement.Transaction)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testAddress, body["payer"])
	assert.Equal(t, true, body["settled"])
	assert.Equal(t, "10000", body["amount"])

	replay := serve(r, header)
	assert.Equal(t, http.StatusPaymentRequired, replay.Code)
	assert.Contains(t, replay.Body.String(), local.ReasonNonceUsed)
}

func TestMiddleware_VerifyOnly(t *testing.T) {
	r := newRouter(t, Config{VerifyOnly: true})
	req := duckRequirements()[0]
	req.Extra = x402.DuckChain.EIP712Extra()

	rec := serve(r, paymentHeader(t, req))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(helpers.PaymentResponseHeader))
	assert.Contains(t, rec.Body.String(), `"settled":false`)
}

func TestMiddleware_InvalidHeader(t *testing.T) {
	r := newRouter(t, Config{})
	rec := serve(r, "%%%not-base64")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid payment header")
}

func TestMiddleware_UnmatchedPayment(t *testing.T) {
	r := newRouter(t, Config{})
	req := duckRequirements()[0]
	req.Extra = x402.DuckChain.EIP712Extra()
	req.PayTo = testAddress

	rec := serve(r, paymentHeader(t, req))
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, rec.Body.String(), "No matching payment requirement")
}

func TestMiddleware_RequirementsFunc(t *testing.T) {
	r := newRouter(t, Config{Requirements: func(c *gin.Context) ([]x402.PaymentRequirements, error) {
		return nil, errors.New("price feed down")
	}})

	rec := serve(r, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
