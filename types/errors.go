package types

import "strings"

// ScanPayError is the error type returned across package boundaries.
// Code identifies the failure class, Kind narrows validation failures.
type ScanPayError struct {
	Code     string   `json:"code"`
	Kind     string   `json:"kind,omitempty"`
	Message  string   `json:"message"`
	Failures []string `json:"failures,omitempty"`
	Err      error    `json:"-"`
}

func (e *ScanPayError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ScanPayError) Unwrap() error {
	return e.Err
}

// Is matches on Code, and on Kind or any listed failure when the target sets
// a Kind, so callers can write errors.Is(err, types.ErrInvalidAmountTarget).
func (e *ScanPayError) Is(target error) bool {
	t, ok := target.(*ScanPayError)
	if !ok {
		return false
	}
	if t.Code != e.Code {
		return false
	}
	if t.Kind == "" || t.Kind == e.Kind {
		return true
	}
	for _, f := range e.Failures {
		if f == t.Kind {
			return true
		}
	}
	return false
}

// Common error codes
const (
	ErrParse               = "PARSE_ERROR"
	ErrValidation          = "VALIDATION_ERROR"
	ErrEncoding            = "ENCODING_ERROR"
	ErrNoActiveAccount     = "NO_ACTIVE_ACCOUNT"
	ErrPaymentInFlight     = "PAYMENT_IN_FLIGHT"
	ErrSubmission          = "SUBMISSION_ERROR"
	ErrConfirmationTimeout = "CONFIRMATION_TIMEOUT"
	ErrConfirmationFailed  = "CONFIRMATION_FAILED"
	ErrCanceled            = "CANCELED"
	ErrConfigError         = "CONFIG_ERROR"
	ErrUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
	ErrNetworkError        = "NETWORK_ERROR"
)

// Validation kinds
const (
	KindInvalidAddress = "INVALID_ADDRESS"
	KindInvalidAmount  = "INVALID_AMOUNT"
)

// User-facing messages, one per failure.
const (
	MsgParse               = `invalid QR format. Expected: {"ma": "address", "a": "amount"}`
	MsgInvalidAddress      = "invalid merchant address format"
	MsgInvalidAmount       = "invalid amount"
	MsgNoActiveAccount     = "no active account: connect a wallet first"
	MsgPaymentInFlight     = "a payment is already in progress"
	MsgSubmission          = "payment transaction failed"
	MsgConfirmationTimeout = "timed out waiting for payment confirmation"
	MsgConfirmationFailed  = "payment was included but reverted"
	MsgCanceled            = "payment confirmation was canceled"
)

// Sentinel targets for errors.Is.
var (
	ErrParseTarget               = &ScanPayError{Code: ErrParse}
	ErrValidationTarget          = &ScanPayError{Code: ErrValidation}
	ErrInvalidAddressTarget      = &ScanPayError{Code: ErrValidation, Kind: KindInvalidAddress}
	ErrInvalidAmountTarget       = &ScanPayError{Code: ErrValidation, Kind: KindInvalidAmount}
	ErrEncodingTarget            = &ScanPayError{Code: ErrEncoding}
	ErrNoActiveAccountTarget     = &ScanPayError{Code: ErrNoActiveAccount}
	ErrPaymentInFlightTarget     = &ScanPayError{Code: ErrPaymentInFlight}
	ErrSubmissionTarget          = &ScanPayError{Code: ErrSubmission}
	ErrConfirmationTimeoutTarget = &ScanPayError{Code: ErrConfirmationTimeout}
	ErrConfirmationFailedTarget  = &ScanPayError{Code: ErrConfirmationFailed}
	ErrCanceledTarget            = &ScanPayError{Code: ErrCanceled}
)

// NewValidationError builds a validation error whose primary kind is the
// first failure in check order.
func NewValidationError(failures []string) *ScanPayError {
	if len(failures) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(failures))
	for _, f := range failures {
		msgs = append(msgs, KindMessage(f))
	}
	return &ScanPayError{
		Code:     ErrValidation,
		Kind:     failures[0],
		Message:  strings.Join(msgs, "; "),
		Failures: failures,
	}
}

// KindMessage maps a validation kind to its user-facing message.
func KindMessage(kind string) string {
	switch kind {
	case KindInvalidAddress:
		return MsgInvalidAddress
	case KindInvalidAmount:
		return MsgInvalidAmount
	default:
		return "invalid payment"
	}
}
