package utils

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// MaxAmountDigits bounds the significant digits and the decimal exponent of
// an amount. 2^256 has 78 decimal digits.
const MaxAmountDigits = 78

// maxAmountLength caps the raw amount text before it is parsed.
const maxAmountLength = 2*MaxAmountDigits + 8

var (
	hexAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	txHashRe     = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

	errAmountRange = errors.New("amount is out of range")
)

// IsValidAddress applies the EVM address rule: 0x followed by 40 hex digits,
// and when the digits are mixed case they must carry a valid EIP-55 checksum.
func IsValidAddress(address string) bool {
	if !hexAddressRe.MatchString(address) {
		return false
	}
	digits := address[2:]
	if digits == strings.ToLower(digits) || digits == strings.ToUpper(digits) {
		return true
	}
	return common.HexToAddress(address).Hex() == address
}

// ValidateAmount checks that an amount string is a decimal strictly greater
// than zero whose digits and exponent fit a uint256 token amount.
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}
	if len(amount) > maxAmountLength {
		return nil, errAmountRange
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if !dec.IsPositive() {
		return nil, fmt.Errorf("amount must be greater than zero")
	}
	if !amountInRange(dec) {
		return nil, errAmountRange
	}

	return &dec, nil
}

// amountInRange bounds the coefficient length and the exponent, so scaling
// never has to expand a large power of ten.
func amountInRange(d decimal.Decimal) bool {
	digits := int64(coefficientDigits(d))
	exp := int64(d.Exponent())
	return digits <= MaxAmountDigits &&
		exp <= MaxAmountDigits && exp >= -MaxAmountDigits &&
		exp+digits <= MaxAmountDigits
}

func coefficientDigits(d decimal.Decimal) int {
	return len(new(big.Int).Abs(d.Coefficient()).String())
}

// ValidateTransactionHash validates an EVM transaction or user operation hash
func ValidateTransactionHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}
	if !txHashRe.MatchString(hash) {
		return fmt.Errorf("transaction hash must be 0x followed by 64 hex characters")
	}
	return nil
}

// ScaleAmount converts a decimal amount into base units. The scaled value must
// be a whole number that fits in a uint256.
func ScaleAmount(amount decimal.Decimal, decimals int) (*big.Int, error) {
	if decimals < 0 || decimals > MaxAmountDigits {
		return nil, fmt.Errorf("decimals must be between 0 and %d", MaxAmountDigits)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount cannot be negative")
	}
	if !amountInRange(amount) {
		return nil, errAmountRange
	}

	coef := new(big.Int).Abs(amount.Coefficient())
	exp := int64(amount.Exponent()) + int64(decimals)
	if coef.Sign() != 0 && exp+int64(coefficientDigits(amount)) > MaxAmountDigits {
		return nil, fmt.Errorf("amount does not fit in uint256")
	}

	result := new(big.Int)
	if exp >= 0 {
		result.Mul(coef, pow10(exp))
	} else {
		rem := new(big.Int)
		result.QuoRem(coef, pow10(-exp), rem)
		if rem.Sign() != 0 {
			return nil, fmt.Errorf("amount has more than %d decimal places", decimals)
		}
	}

	if _, overflow := uint256.FromBig(result); overflow {
		return nil, fmt.Errorf("amount does not fit in uint256")
	}
	return result, nil
}

// pow10 is only called with exponents already bounded by MaxAmountDigits.
func pow10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

// FormatAmountFromBigInt formats a big.Int amount to decimal string with specified decimals
func FormatAmountFromBigInt(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// ExplorerTxURL builds the public explorer link for a transaction.
func ExplorerTxURL(explorerBase, txHash string) string {
	if explorerBase == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(explorerBase, "/") + "/tx/" + txHash
}
