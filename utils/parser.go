package utils

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/scanpay/types"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	validate.RegisterValidation("evmaddr", validateAddressTag)
	validate.RegisterValidation("posamount", validateAmountTag)
}

func validateAddressTag(fl validator.FieldLevel) bool {
	return IsValidAddress(fl.Field().String())
}

func validateAmountTag(fl validator.FieldLevel) bool {
	_, err := ValidateAmount(fl.Field().String())
	return err == nil
}

var descriptorFieldKinds = map[string]string{
	"MerchantAddress": types.KindInvalidAddress,
	"Amount":          types.KindInvalidAmount,
}

// ValidateDescriptor runs the descriptor's struct tags and returns the failed
// validation kinds in field order (address before amount).
func ValidateDescriptor(d *types.PaymentDescriptor) []string {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{types.KindInvalidAddress}
	}

	failures := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if kind, ok := descriptorFieldKinds[fe.StructField()]; ok {
			failures = append(failures, kind)
		}
	}
	return failures
}

// ValidateConfig validates a ScanPayConfig using struct tags and its own cross-field rules
func ValidateConfig(cfg *types.ScanPayConfig) error {
	if cfg == nil {
		return &types.ScanPayError{
			Code:    types.ErrConfigError,
			Message: "config is required",
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return &types.ScanPayError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	if _, err := HexToBytes32(cfg.Payment.PaymentID); err != nil {
		return &types.ScanPayError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("invalid payment id: %v", err),
		}
	}

	return cfg.Validate()
}

// ParseScanPayConfig parses ScanPayConfig from JSON
func ParseScanPayConfig(data []byte) (*types.ScanPayConfig, error) {
	var config types.ScanPayConfig

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, &types.ScanPayError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("failed to parse scanpay config: %v", err),
		}
	}

	if err := ValidateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// NormalizeJSON formats JSON with consistent indentation
func NormalizeJSON(data interface{}) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}
