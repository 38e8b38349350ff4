package payment

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/scanpay/types"
	"github.com/vitwit/scanpay/utils"
)

type wirePayload struct {
	MerchantAddress json.RawMessage `json:"ma"`
	A               json.RawMessage `json:"a"`
	Amount          json.RawMessage `json:"amount"`
	Txn             json.RawMessage `json:"txn"`
}

// Parse decodes a scanned or typed payload. The payload must be a JSON object
// with a merchant address ("ma") and an amount ("a" or, for older producers,
// "amount"); "a" wins when both are set.
func Parse(raw string) (*types.PaymentDescriptor, error) {
	d, _, err := parse(raw)
	return d, err
}

// parse also reports whether the legacy "amount" field supplied the amount.
func parse(raw string) (*types.PaymentDescriptor, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false, parseError(nil)
	}

	var w wirePayload
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return nil, false, parseError(err)
	}

	merchant, ok := fieldText(w.MerchantAddress)
	if !ok {
		return nil, false, parseError(nil)
	}

	legacy := false
	amount, ok := fieldText(w.A)
	if !ok {
		amount, ok = fieldText(w.Amount)
		if !ok {
			return nil, false, parseError(nil)
		}
		legacy = true
	}

	kind, ok := fieldText(w.Txn)
	if !ok {
		kind = types.DefaultPaymentKind
	}

	return &types.PaymentDescriptor{
		MerchantAddress: merchant,
		Amount:          amount,
		PaymentKind:     kind,
	}, legacy, nil
}

// fieldText returns the text of a payload field and whether it counts as set.
// Strings are unquoted and numbers kept as written; null, "", 0 and false
// count as unset.
func fieldText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	switch raw[0] {
	case 'n', 'f':
		return "", false
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	case '{', '[', 't':
		return string(raw), true
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		if f, err := n.Float64(); err == nil && f == 0 {
			return "", false
		}
		return n.String(), true
	}
}

// Validate checks the merchant address and then the amount. Both checks
// always run; the address failure, if any, is reported first.
func Validate(d *types.PaymentDescriptor) (*types.ValidatedPayment, error) {
	if d == nil {
		return nil, parseError(nil)
	}

	if failures := utils.ValidateDescriptor(d); len(failures) > 0 {
		return nil, types.NewValidationError(failures)
	}

	amount, err := utils.ValidateAmount(d.Amount)
	if err != nil {
		return nil, types.NewValidationError([]string{types.KindInvalidAmount})
	}

	return &types.ValidatedPayment{
		Descriptor: *d,
		Merchant:   common.HexToAddress(d.MerchantAddress),
		Amount:     *amount,
	}, nil
}

func parseError(err error) error {
	return &types.ScanPayError{
		Code:    types.ErrParse,
		Message: types.MsgParse,
		Err:     err,
	}
}
