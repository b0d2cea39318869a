package core

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/shopspring/decimal"
)

// MaxUint256 is the largest integer an on-chain uint256 argument can carry.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Plain non-negative decimal: digits, optionally followed by a dot and more digits.
// Signs, exponents and bare dots are rejected before the value reaches decimal.
var decimalAmountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ToBaseUnits converts a human readable amount into the integer base units of a token with the given precision.
// Trailing zeros past the precision are tolerated ("1.50" with 1 decimal is 15), any other extra fractional digit is not.
func ToBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	if !decimalAmountPattern.MatchString(amount) {
		return nil, fmt.Errorf("%w: %q is not a non-negative decimal", ErrMalformedAmount, amount)
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrMalformedAmount, amount, err)
	}

	scaled := value.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", ErrMalformedAmount, amount, decimals)
	}

	result := scaled.BigInt()
	if result.Cmp(MaxUint256) > 0 {
		return nil, fmt.Errorf("%w: %q overflows uint256 at %d decimals", ErrMalformedAmount, amount, decimals)
	}

	return result, nil
}

// ParseWholeAmount parses an amount that is passed on-chain without scaling, such as a constructor's initial supply.
func ParseWholeAmount(amount string) (*big.Int, error) {
	return ToBaseUnits(amount, 0)
}

// FormatUnits is the inverse of ToBaseUnits. The result carries no trailing fractional zeros.
func FormatUnits(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}
