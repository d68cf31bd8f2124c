package swapmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func n(v int64) *big.Int { return big.NewInt(v) }

func TestQuoteOut(t *testing.T) {
	tests := []struct {
		name                   string
		in, reserveIn, reserve *big.Int
		want                   string
	}{
		// floor(1000*997*1_000_000 / (1_000_000*1000 + 1000*997)) = floor(997000000000/1000997000)
		{name: "balanced pool", in: n(1000), reserveIn: n(1_000_000), reserve: n(1_000_000), want: "996"},
		{name: "tiny input rounds to zero", in: n(1), reserveIn: n(1_000_000), reserve: n(1_000_000), want: "0"},
		{name: "skewed pool", in: n(10_000_000_000), reserveIn: n(1_000_000_000_000), reserve: n(5_000_000_000_000), want: "49357901719"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuoteOut(tt.in, tt.reserveIn, tt.reserve)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestQuoteOutLargeValues(t *testing.T) {
	e18 := new(big.Int).Exp(n(10), n(18), nil)
	reserve := new(big.Int).Mul(e18, n(1_000_000_000))
	got, err := QuoteOut(e18, reserve, reserve)
	require.NoError(t, err)
	// below the fee-adjusted input and above zero
	assert.Equal(t, -1, got.Cmp(e18))
	assert.Equal(t, 1, got.Sign())
}

func TestQuoteOutInvalidInput(t *testing.T) {
	tests := []struct {
		name          string
		in, rIn, rOut *big.Int
	}{
		{"zero amount", n(0), n(1), n(1)},
		{"negative amount", n(-5), n(1), n(1)},
		{"zero reserve in", n(1), n(0), n(1)},
		{"zero reserve out", n(1), n(1), n(0)},
		{"nil amount", nil, n(1), n(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := QuoteOut(tt.in, tt.rIn, tt.rOut)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestQuoteOutDoesNotMutate(t *testing.T) {
	in, rIn, rOut := n(1000), n(1_000_000), n(1_000_000)
	_, err := QuoteOut(in, rIn, rOut)
	require.NoError(t, err)
	assert.Equal(t, "1000", in.String())
	assert.Equal(t, "1000000", rIn.String())
	assert.Equal(t, "1000000", rOut.String())
}

func TestQuoteIn(t *testing.T) {
	// (1_000_000*996*1000) / ((1_000_000-996)*997) + 1
	got, err := QuoteIn(n(996), n(1_000_000), n(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "1000", got.String())

	out, err := QuoteOut(got, n(1_000_000), n(1_000_000))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out.Int64(), int64(996))

	_, err = QuoteIn(n(1_000_000), n(1_000_000), n(1_000_000))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = QuoteIn(n(0), n(1), n(2))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMinOut(t *testing.T) {
	got, err := MinOut(n(10_000), 50)
	require.NoError(t, err)
	assert.Equal(t, "9950", got.String())

	got, err = MinOut(n(999), 0)
	require.NoError(t, err)
	assert.Equal(t, "999", got.String())

	got, err = MinOut(n(999), BasisPoints)
	require.NoError(t, err)
	assert.Equal(t, "0", got.String())

	_, err = MinOut(n(1), BasisPoints+1)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = MinOut(n(-1), 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{in: "10", decimals: 9, want: "10000000000"},
		{in: "1.5", decimals: 18, want: "1500000000000000000"},
		{in: "0.000000001", decimals: 9, want: "1"},
		{in: "0", decimals: 9, want: "0"},
		{in: " 2 ", decimals: 0, want: "2"},
		{in: "0.0000000001", decimals: 9, wantErr: true},
		{in: "-1", decimals: 9, wantErr: true},
		{in: "abc", decimals: 9, wantErr: true},
		{in: "", decimals: 9, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "10", FormatUnits(n(10_000_000_000), 9))
	assert.Equal(t, "1.5", FormatUnits(n(1_500_000_000), 9))
	assert.Equal(t, "0.000000001", FormatUnits(n(1), 9))
	assert.Equal(t, "0", FormatUnits(nil, 9))
}
