package http

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	x402 "github.com/mxber2022/duck-x402"
)

// Outcome is the result of one Engine.Send call. It is owned by the caller
// and never shared between calls.
type Outcome struct {
	// CallID identifies the call in logs and payment events.
	CallID string

	Method string
	Path   string

	// StatusCode, Header and Body describe the final response. They are zero
	// when no response was received.
	StatusCode int
	Header     http.Header
	Body       []byte

	// Challenge is the 402 challenge that was answered, if any.
	Challenge *x402.PaymentRequired

	// Payment is the requirement that was signed, if any.
	Payment *x402.PaymentRequirements

	// Settlement is decoded from X-PAYMENT-RESPONSE when the server sent one.
	Settlement *x402.SettleResponse

	// Err is nil on success and the classified failure otherwise.
	Err *x402.Error

	trace  *x402.CallTrace
	logger *zap.Logger
}

// Succeeded reports whether the call ended in StateSuccess.
func (o *Outcome) Succeeded() bool {
	return o.Err == nil && o.State() == x402.StateSuccess
}

// Paid reports whether an authorization was attached to a retry.
func (o *Outcome) Paid() bool {
	return o.trace.Visited(x402.StateRetried)
}

// Failure returns Err as an error interface value, nil on success.
func (o *Outcome) Failure() error {
	if o.Err == nil {
		return nil
	}
	return o.Err
}

// State returns the state the call ended in.
func (o *Outcome) State() x402.CallState {
	return o.trace.Current()
}

// States returns every state the call passed through.
func (o *Outcome) States() []x402.CallState {
	return o.trace.States()
}

// Decode unmarshals the response body into v. A body that does not decode is
// a remote failure.
func (o *Outcome) Decode(v interface{}) error {
	if err := json.Unmarshal(o.Body, v); err != nil {
		return x402.NewError(x402.CodeRemote, "unexpected response body", err).
			WithStatus(o.StatusCode).
			WithDetails("path", o.Path)
	}
	return nil
}

func (o *Outcome) advance(next x402.CallState) {
	if err := o.trace.Advance(next); err != nil {
		o.logger.DPanic("call state violation", zap.Error(err))
		return
	}
	o.logger.Debug("call state", zap.Stringer("state", next))
}

func (o *Outcome) fail(err *x402.Error) *Outcome {
	err.WithDetails("method", o.Method).WithDetails("path", o.Path)
	o.Err = err
	o.advance(x402.StateTerminalFailure)
	o.logger.Warn("call failed",
		zap.String("code", string(err.Code)),
		zap.Int("status", err.Status),
		zap.Error(err),
	)
	return o
}
