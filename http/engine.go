// Package http is the payment-gated request engine: it sends a request to the
// resource server, answers a 402 challenge with exactly one signed
// authorization, and retries exactly once.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
	"github.com/mxber2022/duck-x402/http/internal/helpers"
)

const defaultMaxBodyBytes = 10 << 20

// Engine holds immutable configuration only; every Send call is
// self-contained and Engine is safe for concurrent use.
type Engine struct {
	baseURL      *url.URL
	client       *http.Client
	signers      []x402.Signer
	selector     x402.PaymentSelector
	logger       *zap.Logger
	maxBodyBytes int64
	userAgent    string

	onAttempt x402.PaymentCallback
	onSuccess x402.PaymentCallback
	onFailure x402.PaymentCallback
}

// NewEngine creates an engine for the resource server at baseURL.
func NewEngine(baseURL string, opts ...EngineOption) (*Engine, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: want http(s)://host", baseURL)
	}

	e := &Engine{
		baseURL:      u,
		client:       &http.Client{},
		selector:     x402.NewDefaultPaymentSelector(),
		logger:       zap.NewNop(),
		maxBodyBytes: defaultMaxBodyBytes,
		userAgent:    "duck-x402",
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.selector == nil {
		return nil, fmt.Errorf("payment selector cannot be nil")
	}
	return e, nil
}

// BaseURL returns the resource server base URL.
func (e *Engine) BaseURL() string {
	return e.baseURL.String()
}

// Send performs one logical call. A non-402 response is returned as is. A 402
// is answered by signing once and retrying once with the X-PAYMENT header; a
// second 402 ends the call as a rejected payment.
//
// The returned Outcome is never nil. Its Err is nil exactly when the final
// response was 2xx.
func (e *Engine) Send(ctx context.Context, method, path string, body interface{}) *Outcome {
	callID := uuid.NewString()
	out := &Outcome{
		CallID: callID,
		Method: method,
		Path:   path,
		trace:  x402.NewCallTrace(),
		logger: e.logger.With(
			zap.String("call_id", callID),
			zap.String("method", method),
			zap.String("path", path),
		),
	}

	if method == "" {
		return out.fail(x402.NewError(x402.CodeValidation, "request method is required", nil))
	}
	if path == "" {
		return out.fail(x402.NewError(x402.CodeValidation, "request path is required", nil))
	}
	target, err := e.resolve(path)
	if err != nil {
		return out.fail(x402.NewError(x402.CodeValidation, "invalid request path", err))
	}
	payload, err := encodeBody(body)
	if err != nil {
		return out.fail(x402.NewError(x402.CodeValidation, "request body is not JSON-serializable", err))
	}

	out.advance(x402.StateAwaitingResponse)
	resp, err := e.do(ctx, method, target, payload, "")
	if err != nil {
		return out.fail(connectivityError(err))
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return e.finish(out, resp)
	}

	out.advance(x402.StateChallengeReceived)
	challenge, err := helpers.ReadChallenge(resp)
	if err != nil {
		return out.fail(x402.AsError(err, x402.CodeProtocol).WithStatus(http.StatusPaymentRequired))
	}
	out.Challenge = challenge

	return e.pay(ctx, out, target, payload)
}

// pay signs the challenge once and sends the single retry.
func (e *Engine) pay(ctx context.Context, out *Outcome, target string, payload []byte) *Outcome {
	out.advance(x402.StateSigning)
	start := time.Now()

	payment, err := e.selector.SelectAndSign(e.signers, out.Challenge.Accepts)
	if err != nil {
		return out.fail(x402.AsError(err, x402.CodeSigning))
	}
	accepted := payment.Accepted
	out.Payment = &accepted

	header, err := helpers.BuildPaymentHeader(payment, out.Challenge.X402Version)
	if err != nil {
		return out.fail(x402.NewError(x402.CodeSigning, "failed to encode payment authorization", err))
	}
	e.emit(e.onAttempt, out, x402.PaymentEventAttempt, start, nil)
	out.logger.Info("paying for request",
		zap.String("network", accepted.Network),
		zap.String("asset", accepted.Asset),
		zap.String("amount", accepted.Amount),
		zap.String("pay_to", accepted.PayTo),
	)

	// The authorization answers this challenge only. If the call is already
	// over it is dropped here and never sent.
	if ctxErr := ctx.Err(); ctxErr != nil {
		err := x402.NewError(x402.CodeConnectivity, "call cancelled before the paid retry", errors.Join(x402.ErrAuthorizationDiscarded, ctxErr))
		e.emit(e.onFailure, out, x402.PaymentEventFailure, start, err)
		return out.fail(err)
	}

	out.advance(x402.StateRetried)
	resp, err := e.do(ctx, out.Method, target, payload, header)
	if err != nil {
		xe := connectivityError(err)
		e.emit(e.onFailure, out, x402.PaymentEventFailure, start, xe)
		return out.fail(xe)
	}

	if resp.StatusCode == http.StatusPaymentRequired {
		reason := readReason(resp, e.maxBodyBytes)
		xe := x402.NewError(x402.CodeRemote, "payment rejected", x402.ErrPaymentRejected).WithStatus(resp.StatusCode)
		if reason != "" {
			xe.WithDetails("reason", reason)
		}
		e.emit(e.onFailure, out, x402.PaymentEventFailure, start, xe)
		return out.fail(xe)
	}

	out.Settlement = helpers.ParseSettlement(resp.Header.Get(helpers.PaymentResponseHeader))
	out = e.finish(out, resp)
	if out.Err != nil {
		e.emit(e.onFailure, out, x402.PaymentEventFailure, start, out.Err)
	} else {
		e.emit(e.onSuccess, out, x402.PaymentEventSuccess, start, nil)
	}
	return out
}

// finish reads the final response and classifies it.
func (e *Engine) finish(out *Outcome, resp *http.Response) *Outcome {
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBodyBytes))
	out.StatusCode = resp.StatusCode
	out.Header = resp.Header
	out.Body = body
	if err != nil {
		return out.fail(connectivityError(err).WithStatus(resp.StatusCode))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		out.advance(x402.StateSuccess)
		out.logger.Debug("call succeeded", zap.Int("status", resp.StatusCode), zap.Bool("paid", out.Paid()))
		return out
	}
	return out.fail(classifyStatus(resp.StatusCode, body))
}

func (e *Engine) do(ctx context.Context, method, target string, payload []byte, paymentHeader string) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	if paymentHeader != "" {
		req.Header.Set(helpers.PaymentHeader, paymentHeader)
	}
	return e.client.Do(req)
}

func (e *Engine) resolve(path string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := e.baseURL.String() + path
	if _, err := url.Parse(target); err != nil {
		return "", err
	}
	return target, nil
}

func (e *Engine) emit(cb x402.PaymentCallback, out *Outcome, kind x402.PaymentEventType, start time.Time, err error) {
	if cb == nil {
		return
	}
	event := x402.PaymentEvent{
		Type:      kind,
		Timestamp: time.Now(),
		CallID:    out.CallID,
		Method:    out.Method,
		URL:       e.baseURL.String() + out.Path,
		Error:     err,
		Duration:  time.Since(start),
	}
	if out.Payment != nil {
		event.Network = out.Payment.Network
		event.Scheme = out.Payment.Scheme
		event.Amount = out.Payment.Amount
		event.Asset = out.Payment.Asset
		event.Recipient = out.Payment.PayTo
	}
	if out.Settlement != nil {
		event.Payer = out.Settlement.Payer
		event.Transaction = out.Settlement.Transaction
	}
	cb(event)
}

func encodeBody(body interface{}) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if !json.Valid(b) {
			return nil, fmt.Errorf("raw body is not valid JSON")
		}
		return b, nil
	}
	return json.Marshal(body)
}

func connectivityError(err error) *x402.Error {
	msg := "resource server unreachable"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		msg = "call cancelled"
	}
	return x402.NewError(x402.CodeConnectivity, msg, err)
}

// classifyStatus maps a non-success, non-402 response to the error taxonomy.
func classifyStatus(status int, body []byte) *x402.Error {
	reason := errorReason(body)
	var xe *x402.Error
	switch status {
	case http.StatusBadRequest:
		if reason == "" {
			reason = "request rejected"
		}
		xe = x402.NewError(x402.CodeValidation, reason, nil)
	case http.StatusNotFound:
		xe = x402.NewError(x402.CodeNotFound, "not found", nil)
		if reason != "" {
			xe.WithDetails("reason", reason)
		}
	default:
		msg := fmt.Sprintf("resource server returned %d %s", status, http.StatusText(status))
		if reason != "" {
			msg += ": " + reason
		}
		xe = x402.NewError(x402.CodeRemote, msg, nil)
	}
	return xe.WithStatus(status)
}

// errorReason extracts {"error": "..."} or {"message": "..."} from a body, or
// a short prefix of a plain text body.
func errorReason(body []byte) string {
	var doc struct {
		Error   interface{} `json:"error"`
		Message string      `json:"message"`
	}
	if json.Unmarshal(body, &doc) == nil {
		if s, ok := doc.Error.(string); ok && s != "" {
			return s
		}
		if doc.Message != "" {
			return doc.Message
		}
		return ""
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func readReason(resp *http.Response, limit int64) string {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return ""
	}
	return errorReason(body)
}
