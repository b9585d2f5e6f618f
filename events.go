package x402

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	PaymentEventAttempt PaymentEventType = "attempt"
	PaymentEventSuccess PaymentEventType = "success"
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent reports progress of the payment half of a call: the signed
// attempt, and the outcome of the retry that carried it.
type PaymentEvent struct {
	Type      PaymentEventType
	Timestamp time.Time

	// CallID identifies the call the event belongs to.
	CallID string

	// Method and URL of the gated request.
	Method string
	URL    string

	Amount    string
	Asset     string
	Network   string
	Scheme    string
	Recipient string

	// Payer and Transaction are set on success when the server settles.
	Payer       string
	Transaction string

	// Error is set on failure.
	Error error

	// Duration is measured from the challenge to the event.
	Duration time.Duration
}

// PaymentCallback receives payment events synchronously.
type PaymentCallback func(PaymentEvent)
