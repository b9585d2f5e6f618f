package http

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine) error

// WithHTTPClient replaces the default client. Its Transport must not follow
// x402 challenges on its own.
func WithHTTPClient(httpClient *http.Client) EngineOption {
	return func(e *Engine) error {
		if httpClient == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		e.client = httpClient
		return nil
	}
}

// WithSigner adds a signer. Signers are ranked by the selector.
func WithSigner(signer x402.Signer) EngineOption {
	return func(e *Engine) error {
		if signer == nil {
			return fmt.Errorf("signer cannot be nil")
		}
		e.signers = append(e.signers, signer)
		return nil
	}
}

// WithSelector replaces the DefaultPaymentSelector.
func WithSelector(selector x402.PaymentSelector) EngineOption {
	return func(e *Engine) error {
		e.selector = selector
		return nil
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) error {
		if logger != nil {
			e.logger = logger
		}
		return nil
	}
}

// WithMaxBodyBytes bounds how much of a response body is kept in an Outcome.
func WithMaxBodyBytes(n int64) EngineOption {
	return func(e *Engine) error {
		if n <= 0 {
			return fmt.Errorf("max body bytes must be positive, got %d", n)
		}
		e.maxBodyBytes = n
		return nil
	}
}

// WithUserAgent sets the User-Agent of every request.
func WithUserAgent(ua string) EngineOption {
	return func(e *Engine) error {
		e.userAgent = ua
		return nil
	}
}

// WithPaymentCallback registers a callback for one payment event type.
func WithPaymentCallback(eventType x402.PaymentEventType, callback x402.PaymentCallback) EngineOption {
	return func(e *Engine) error {
		switch eventType {
		case x402.PaymentEventAttempt:
			e.onAttempt = callback
		case x402.PaymentEventSuccess:
			e.onSuccess = callback
		case x402.PaymentEventFailure:
			e.onFailure = callback
		default:
			return fmt.Errorf("unknown payment event type: %s", eventType)
		}
		return nil
	}
}

// WithPaymentCallbacks registers callbacks for every event type. Nil
// callbacks are skipped.
func WithPaymentCallbacks(onAttempt, onSuccess, onFailure x402.PaymentCallback) EngineOption {
	return func(e *Engine) error {
		if onAttempt != nil {
			e.onAttempt = onAttempt
		}
		if onSuccess != nil {
			e.onSuccess = onSuccess
		}
		if onFailure != nil {
			e.onFailure = onFailure
		}
		return nil
	}
}
