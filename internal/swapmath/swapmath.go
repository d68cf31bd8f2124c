// Package swapmath implements the router's constant product pricing with a
// 0.3% fee, using exact integers throughout.
package swapmath

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	feeNumerator   = 997
	feeDenominator = 1000

	// BasisPoints is 100%.
	BasisPoints = 10_000
)

var ErrInvalidInput = errors.New("invalid input")

var (
	bigFeeNum = big.NewInt(feeNumerator)
	bigFeeDen = big.NewInt(feeDenominator)
)

func positive(name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrInvalidInput, name)
	}
	return nil
}

// QuoteOut returns the output amount for amountIn against the given reserves:
// amountIn*997*reserveOut / (reserveIn*1000 + amountIn*997), truncated.
func QuoteOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if err := positive("amount in", amountIn); err != nil {
		return nil, err
	}
	if err := positive("reserve in", reserveIn); err != nil {
		return nil, err
	}
	if err := positive("reserve out", reserveOut); err != nil {
		return nil, err
	}

	withFee := new(big.Int).Mul(amountIn, bigFeeNum)
	num := new(big.Int).Mul(withFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, bigFeeDen)
	den.Add(den, withFee)
	return num.Quo(num, den), nil
}

// QuoteIn returns the input needed to receive amountOut, rounded up the way the
// router's get_amount_in does.
func QuoteIn(amountOut, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if err := positive("amount out", amountOut); err != nil {
		return nil, err
	}
	if err := positive("reserve in", reserveIn); err != nil {
		return nil, err
	}
	if err := positive("reserve out", reserveOut); err != nil {
		return nil, err
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: amount out exceeds reserve", ErrInvalidInput)
	}

	num := new(big.Int).Mul(reserveIn, amountOut)
	num.Mul(num, bigFeeDen)
	den := new(big.Int).Sub(reserveOut, amountOut)
	den.Mul(den, bigFeeNum)
	num.Quo(num, den)
	return num.Add(num, big.NewInt(1)), nil
}

// MinOut applies a slippage tolerance in basis points: amount*(10000-bps)/10000.
func MinOut(amount *big.Int, slippageBps uint32) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	if slippageBps > BasisPoints {
		return nil, fmt.Errorf("%w: slippage %d bps exceeds 100%%", ErrInvalidInput, slippageBps)
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(BasisPoints-slippageBps)))
	return out.Quo(out, big.NewInt(BasisPoints)), nil
}

// ParseUnits converts a decimal string such as "1.5" into base units for a
// token with the given decimals. More fractional digits than decimals is an
// error rather than a silent truncation.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", ErrInvalidInput, s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: amount %q is negative", ErrInvalidInput, s)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: amount %q has more than %d decimal places", ErrInvalidInput, s, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders base units as a decimal string without trailing zeros.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}
