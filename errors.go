package x402

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies every failure a caller can observe.
type ErrorCode string

const (
	// CodeValidation: arguments rejected locally or by the server (400).
	CodeValidation ErrorCode = "VALIDATION"

	// CodeNotFound: the server has no such invoice or resource (404).
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeRemote: any other non-success response, including a rejected payment.
	CodeRemote ErrorCode = "REMOTE"

	// CodeConnectivity: the server was unreachable or the call was cancelled.
	CodeConnectivity ErrorCode = "CONNECTIVITY"

	// CodeProtocol: a 402 challenge that cannot be understood.
	CodeProtocol ErrorCode = "PROTOCOL"

	// CodeSigning: no authorization could be produced for a challenge.
	CodeSigning ErrorCode = "SIGNING"
)

// Class sentinels. An *Error matches the sentinel of its code with errors.Is.
var (
	ErrValidation   = errors.New("x402: validation failed")
	ErrNotFound     = errors.New("x402: not found")
	ErrRemote       = errors.New("x402: remote failure")
	ErrConnectivity = errors.New("x402: resource server unreachable")
	ErrProtocol     = errors.New("x402: malformed payment challenge")
	ErrSigning      = errors.New("x402: payment signing failed")
)

// Detail sentinels wrapped inside an *Error.
var (
	// ErrNoValidSigner indicates no signer can satisfy the payment requirements.
	ErrNoValidSigner = errors.New("x402: no signer can satisfy payment requirements")

	// ErrAmountExceeded indicates the payment amount exceeds the per-call limit.
	ErrAmountExceeded = errors.New("x402: payment amount exceeds per-call limit")

	ErrInvalidRequirements = errors.New("x402: invalid payment requirements")
	ErrInvalidAmount       = errors.New("x402: invalid amount")
	ErrInvalidKey          = errors.New("x402: invalid private key")
	ErrInvalidNetwork      = errors.New("x402: invalid or unsupported network")
	ErrInvalidToken        = errors.New("x402: invalid token configuration")
	ErrNoTokens            = errors.New("x402: no tokens configured")
	ErrUnsupportedVersion  = errors.New("x402: unsupported protocol version")
	ErrUnsupportedScheme   = errors.New("x402: unsupported payment scheme")
	ErrMalformedHeader     = errors.New("x402: malformed payment header")

	// ErrPaymentRejected indicates the server answered the paid retry with
	// another 402.
	ErrPaymentRejected = errors.New("x402: payment rejected by resource server")

	// ErrAuthorizationDiscarded indicates a signed authorization was dropped
	// unused because the call ended before the retry was sent.
	ErrAuthorizationDiscarded = errors.New("x402: signed authorization discarded")

	ErrFacilitatorUnavailable = errors.New("x402: facilitator service unavailable")
	ErrVerificationFailed     = errors.New("x402: payment verification failed")
	ErrSettlementFailed       = errors.New("x402: payment settlement failed")
)

var sentinelByCode = map[ErrorCode]error{
	CodeValidation:   ErrValidation,
	CodeNotFound:     ErrNotFound,
	CodeRemote:       ErrRemote,
	CodeConnectivity: ErrConnectivity,
	CodeProtocol:     ErrProtocol,
	CodeSigning:      ErrSigning,
}

// Error is the single error type returned by the engine and the invoice
// operations.
type Error struct {
	Code ErrorCode

	// Op names the operation that failed, e.g. "get invoice status".
	Op string

	// Subject is what the operation acted on: an invoice id or a request path.
	Subject string

	// Status is the HTTP status that produced the error, zero if none.
	Status int

	Message string
	Details map[string]interface{}
	Err     error
}

// NewError creates an Error with the given code and message.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		if e.Subject != "" {
			fmt.Fprintf(&b, " %q", e.Subject)
		}
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the class sentinel of e's code.
func (e *Error) Is(target error) bool {
	s, ok := sentinelByCode[e.Code]
	return ok && s == target
}

// WithOp records the operation and subject. An already recorded operation is
// kept so the innermost context wins.
func (e *Error) WithOp(op, subject string) *Error {
	if e.Op == "" {
		e.Op = op
	}
	if e.Subject == "" {
		e.Subject = subject
	}
	return e
}

// WithStatus records the HTTP status.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithDetails adds additional context to the error.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Code
	}
	return ""
}

// AsError converts any error into an *Error, classifying unknown errors with
// the fallback code.
func AsError(err error, fallback ErrorCode) *Error {
	if err == nil {
		return nil
	}
	var xe *Error
	if errors.As(err, &xe) {
		return xe
	}
	return NewError(fallback, strings.ToLower(string(fallback))+" failure", err)
}

// ValidationError reports an argument rejected before any network I/O.
func ValidationError(op, subject, message string) *Error {
	return NewError(CodeValidation, message, nil).WithOp(op, subject)
}
