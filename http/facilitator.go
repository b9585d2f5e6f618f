package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/facilitator"
	"github.com/mxber2022/duck-x402/retry"
)

// AuthorizationProvider returns an Authorization header value per request.
// It is called on every attempt, retries included, and must be safe for
// concurrent use.
type AuthorizationProvider func(*http.Request) string

// OnBeforeFunc may abort a verify or settle call by returning an error.
type OnBeforeFunc func(context.Context, x402.PaymentPayload, x402.PaymentRequirements) error

// OnAfterVerifyFunc observes a finished verify call.
type OnAfterVerifyFunc func(context.Context, x402.PaymentPayload, x402.PaymentRequirements, *x402.VerifyResponse, error)

// OnAfterSettleFunc observes a finished settle call.
type OnAfterSettleFunc func(context.Context, x402.PaymentPayload, x402.PaymentRequirements, *x402.SettleResponse, error)

// FacilitatorClient talks to a remote facilitator over HTTP. Only
// unavailability (transport errors) is retried; a facilitator that answers
// with a rejection is never asked twice.
type FacilitatorClient struct {
	BaseURL string
	Client  *http.Client

	Timeouts x402.TimeoutConfig

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	RetryDelay time.Duration

	Authorization         string
	AuthorizationProvider AuthorizationProvider

	OnBeforeVerify OnBeforeFunc
	OnAfterVerify  OnAfterVerifyFunc
	OnBeforeSettle OnBeforeFunc
	OnAfterSettle  OnAfterSettleFunc
}

var _ facilitator.Interface = (*FacilitatorClient)(nil)

func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

func (c *FacilitatorClient) endpoint(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

func (c *FacilitatorClient) setAuthorizationHeader(req *http.Request) {
	value := c.Authorization
	if c.AuthorizationProvider != nil {
		value = c.AuthorizationProvider(req)
	}
	if value != "" {
		req.Header.Set("Authorization", value)
	}
}

func (c *FacilitatorClient) retryConfig() retry.Config {
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retry.Config{
		MaxAttempts:  retries + 1,
		InitialDelay: delay,
		MaxDelay:     delay * 4,
		Multiplier:   2.0,
	}
}

// Verify posts to /verify.
func (c *FacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	if c.OnBeforeVerify != nil {
		if err := c.OnBeforeVerify(ctx, payload, requirements); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(facilitator.VerifyRequest{
		X402Version:         x402.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verify request: %w", err)
	}

	resp, resultErr := retry.WithRetry(ctx, c.retryConfig(), isFacilitatorUnavailableError, func() (*x402.VerifyResponse, error) {
		var verifyResp x402.VerifyResponse
		if err := c.post(ctx, "/verify", c.Timeouts.VerifyTimeout, data, x402.ErrVerificationFailed, &verifyResp); err != nil {
			return nil, err
		}
		if verifyResp.Payer == "" {
			verifyResp.Payer = extractPayer(payload)
		}
		return &verifyResp, nil
	})

	if c.OnAfterVerify != nil {
		c.OnAfterVerify(ctx, payload, requirements, resp, resultErr)
	}
	return resp, resultErr
}

// Settle posts to /settle.
func (c *FacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettleResponse, error) {
	if c.OnBeforeSettle != nil {
		if err := c.OnBeforeSettle(ctx, payload, requirements); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(facilitator.SettleRequest{
		X402Version:         x402.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirements,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settle request: %w", err)
	}

	resp, resultErr := retry.WithRetry(ctx, c.retryConfig(), isFacilitatorUnavailableError, func() (*x402.SettleResponse, error) {
		var settleResp x402.SettleResponse
		if err := c.post(ctx, "/settle", c.Timeouts.SettleTimeout, data, x402.ErrSettlementFailed, &settleResp); err != nil {
			return nil, err
		}
		return &settleResp, nil
	})

	if c.OnAfterSettle != nil {
		c.OnAfterSettle(ctx, payload, requirements, resp, resultErr)
	}
	return resp, resultErr
}

// Supported fetches GET /supported.
func (c *FacilitatorClient) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	reqCtx, cancel := withDefaultTimeout(ctx, c.Timeouts.VerifyTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.endpoint("/supported"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuthorizationHeader(httpReq)

	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supported endpoint failed: status %d", httpResp.StatusCode)
	}

	var supported x402.SupportedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&supported); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}
	return &supported, nil
}

// EnrichRequirements merges the facilitator's per-kind Extra into each
// requirement without overwriting keys that are already set. On failure the
// requirements are returned unchanged with the error.
func (c *FacilitatorClient) EnrichRequirements(ctx context.Context, requirements []x402.PaymentRequirements) ([]x402.PaymentRequirements, error) {
	supported, err := c.Supported(ctx)
	if err != nil {
		return requirements, fmt.Errorf("failed to fetch supported payment kinds: %w", err)
	}
	return MergeSupportedExtra(requirements, supported), nil
}

// MergeSupportedExtra copies Extra entries from matching supported kinds.
func MergeSupportedExtra(requirements []x402.PaymentRequirements, supported *x402.SupportedResponse) []x402.PaymentRequirements {
	kinds := make(map[string]x402.SupportedKind)
	if supported != nil {
		for _, kind := range supported.Kinds {
			kinds[kind.Network+"-"+kind.Scheme] = kind
		}
	}

	enriched := make([]x402.PaymentRequirements, len(requirements))
	for i, req := range requirements {
		enriched[i] = req
		kind, ok := kinds[req.Network+"-"+req.Scheme]
		if !ok || kind.Extra == nil {
			continue
		}
		extra := make(map[string]interface{}, len(req.Extra)+len(kind.Extra))
		for k, v := range req.Extra {
			extra[k] = v
		}
		for k, v := range kind.Extra {
			if _, exists := extra[k]; !exists {
				extra[k] = v
			}
		}
		enriched[i].Extra = extra
	}
	return enriched
}

func (c *FacilitatorClient) post(ctx context.Context, path string, timeout time.Duration, data []byte, failure error, out interface{}) error {
	reqCtx, cancel := withDefaultTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint(path), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuthorizationHeader(httpReq)

	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return parseErrorResponse(httpResp, failure)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", strings.TrimPrefix(path, "/"), err)
	}
	return nil
}

// withDefaultTimeout applies d only when ctx carries no deadline of its own.
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func parseErrorResponse(resp *http.Response, baseErr error) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var doc map[string]interface{}
	if json.Unmarshal(body, &doc) == nil {
		for _, key := range []string{"invalidReason", "errorReason"} {
			if reason, ok := doc[key].(string); ok && reason != "" {
				return fmt.Errorf("%w: status %d, reason: %s", baseErr, resp.StatusCode, reason)
			}
		}
	}
	if len(body) > 0 && len(body) < 500 {
		return fmt.Errorf("%w: status %d, body: %s", baseErr, resp.StatusCode, string(body))
	}
	return fmt.Errorf("%w: status %d", baseErr, resp.StatusCode)
}

func extractPayer(payload x402.PaymentPayload) string {
	switch p := payload.Payload.(type) {
	case x402.EVMPayload:
		return p.Authorization.From
	case *x402.EVMPayload:
		if p != nil {
			return p.Authorization.From
		}
	case map[string]interface{}:
		if auth, ok := p["authorization"].(map[string]interface{}); ok {
			if from, ok := auth["from"].(string); ok {
				return from
			}
		}
	}
	return ""
}

func isFacilitatorUnavailableError(err error) bool {
	return errors.Is(err, x402.ErrFacilitatorUnavailable)
}
