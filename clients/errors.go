package clients

import (
	"errors"
	"fmt"
)

// Relay failure reasons. Providers report their own errors; these label the
// step that failed so the processor can log it.
const (
	ErrReasonNonce       = "nonce_lookup_failed"
	ErrReasonGasPrice    = "gas_price_failed"
	ErrReasonEstimate    = "gas_estimation_failed"
	ErrReasonSponsor     = "sponsorship_failed"
	ErrReasonSign        = "signing_failed"
	ErrReasonSend        = "send_failed"
	ErrReasonReceipt     = "receipt_lookup_failed"
	ErrReasonEncode      = "call_encoding_failed"
	ErrReasonBadHandle   = "invalid_handle"
	ErrReasonNoAccount   = "no_active_account"
	ErrReasonEmptyBatch  = "empty_batch"
	ErrReasonUnsupported = "unsupported_handle_kind"
)

// ErrNoSigner is returned by Relay when the session has no active account.
var ErrNoSigner = errors.New("session has no signer")

// RelayError tags a provider error with the relay step that produced it.
type RelayError struct {
	Reason string
	Err    error
}

func (e *RelayError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *RelayError) Unwrap() error { return e.Err }

func relayErr(reason string, err error) error {
	return &RelayError{Reason: reason, Err: err}
}
