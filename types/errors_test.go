package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanPayError_Is(t *testing.T) {
	err := NewValidationError([]string{KindInvalidAddress, KindInvalidAmount})
	wrapped := fmt.Errorf("scan: %w", err)

	assert.ErrorIs(t, wrapped, ErrValidationTarget)
	assert.ErrorIs(t, wrapped, ErrInvalidAddressTarget)
	assert.ErrorIs(t, wrapped, ErrInvalidAmountTarget)
	assert.NotErrorIs(t, wrapped, ErrParseTarget)

	only := NewValidationError([]string{KindInvalidAmount})
	assert.NotErrorIs(t, only, ErrInvalidAddressTarget)
	assert.Equal(t, KindInvalidAmount, only.Kind)
}

func TestScanPayError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ScanPayError{Code: ErrSubmission, Message: MsgSubmission, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrSubmissionTarget)
	assert.Equal(t, "payment transaction failed: connection refused", err.Error())
}

func TestNewValidationError(t *testing.T) {
	assert.Nil(t, NewValidationError(nil))

	err := NewValidationError([]string{KindInvalidAddress, KindInvalidAmount})
	require.NotNil(t, err)
	assert.Equal(t, KindInvalidAddress, err.Kind)
	assert.Equal(t, MsgInvalidAddress+"; "+MsgInvalidAmount, err.Message)
}

func TestKindMessage(t *testing.T) {
	assert.Equal(t, MsgInvalidAddress, KindMessage(KindInvalidAddress))
	assert.Equal(t, MsgInvalidAmount, KindMessage(KindInvalidAmount))
	assert.Equal(t, "invalid payment", KindMessage("OTHER"))
}
