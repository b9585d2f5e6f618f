package x402

import (
	"fmt"
	"time"
)

// TimeoutConfig holds the server-side timeouts of the payment flow.
type TimeoutConfig struct {
	// VerifyTimeout bounds one facilitator verify call.
	VerifyTimeout time.Duration

	// SettleTimeout bounds one facilitator settle call.
	SettleTimeout time.Duration

	// RequestTimeout bounds every other facilitator request.
	RequestTimeout time.Duration
}

// DefaultTimeouts are used when a component is given a zero TimeoutConfig.
var DefaultTimeouts = TimeoutConfig{
	VerifyTimeout:  5 * time.Second,
	SettleTimeout:  60 * time.Second,
	RequestTimeout: 120 * time.Second,
}

// WithVerifyTimeout returns a copy with the verify timeout set.
func (tc TimeoutConfig) WithVerifyTimeout(d time.Duration) TimeoutConfig {
	tc.VerifyTimeout = d
	return tc
}

// WithSettleTimeout returns a copy with the settle timeout set.
func (tc TimeoutConfig) WithSettleTimeout(d time.Duration) TimeoutConfig {
	tc.SettleTimeout = d
	return tc
}

// Validate ensures timeout values are usable.
func (tc TimeoutConfig) Validate() error {
	switch {
	case tc.VerifyTimeout <= 0:
		return fmt.Errorf("verify timeout must be positive, got %v", tc.VerifyTimeout)
	case tc.SettleTimeout <= 0:
		return fmt.Errorf("settle timeout must be positive, got %v", tc.SettleTimeout)
	case tc.RequestTimeout <= 0:
		return fmt.Errorf("request timeout must be positive, got %v", tc.RequestTimeout)
	case tc.SettleTimeout < tc.VerifyTimeout:
		return fmt.Errorf("settle timeout (%v) should be >= verify timeout (%v)", tc.SettleTimeout, tc.VerifyTimeout)
	}
	return nil
}
