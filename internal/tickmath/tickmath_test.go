package tickmath

import (
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fromString(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func TestGetSqrtRatioAtTick(t *testing.T) {
	t.Run("rejects out of bounds", func(t *testing.T) {
		_, err := GetSqrtRatioAtTick(MinTick - 1)
		assert.ErrorIs(t, err, ErrTickOutOfBounds)
		_, err = GetSqrtRatioAtTick(MaxTick + 1)
		assert.ErrorIs(t, err, ErrTickOutOfBounds)
	})

	t.Run("min tick", func(t *testing.T) {
		r, err := GetSqrtRatioAtTick(MinTick)
		require.NoError(t, err)
		assert.Zero(t, MinSqrtRatio.Cmp(r))
	})

	t.Run("max tick", func(t *testing.T) {
		r, err := GetSqrtRatioAtTick(MaxTick)
		require.NoError(t, err)
		assert.Zero(t, MaxSqrtRatio.Cmp(r))
	})

	t.Run("tick zero is 2^96", func(t *testing.T) {
		r, err := GetSqrtRatioAtTick(0)
		require.NoError(t, err)
		assert.Zero(t, fromString("79228162514264337593543950336").Cmp(r))
	})

	t.Run("monotonic", func(t *testing.T) {
		prev, err := GetSqrtRatioAtTick(-1000)
		require.NoError(t, err)
		for tick := int32(-999); tick <= 1000; tick += 37 {
			cur, err := GetSqrtRatioAtTick(tick)
			require.NoError(t, err)
			assert.Equal(t, 1, cur.Cmp(prev), "tick %d", tick)
			prev = cur
		}
	})
}

func TestGetTickAtSqrtRatio(t *testing.T) {
	t.Run("rejects out of bounds", func(t *testing.T) {
		_, err := GetTickAtSqrtRatio(new(big.Int).Sub(MinSqrtRatio, big.NewInt(1)))
		assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)
		_, err = GetTickAtSqrtRatio(MaxSqrtRatio)
		assert.ErrorIs(t, err, ErrSqrtPriceOutOfBounds)
	})

	t.Run("bounds", func(t *testing.T) {
		tick, err := GetTickAtSqrtRatio(MinSqrtRatio)
		require.NoError(t, err)
		assert.Equal(t, MinTick, tick)

		tick, err = GetTickAtSqrtRatio(new(big.Int).Sub(MaxSqrtRatio, big.NewInt(1)))
		require.NoError(t, err)
		assert.Equal(t, MaxTick-1, tick)
	})

	t.Run("round trip", func(t *testing.T) {
		for _, want := range []int32{-887000, -200, -1, 0, 1, 200, 300, 887000} {
			r, err := GetSqrtRatioAtTick(want)
			require.NoError(t, err)
			got, err := GetTickAtSqrtRatio(r)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})
}

func TestPriceAtTick(t *testing.T) {
	assert.InDelta(t, 1.0, PriceAtTick(0, 18, 18, false), 1e-12)
	assert.InDelta(t, 1.0001, PriceAtTick(1, 18, 18, false), 1e-9)
	assert.InDelta(t, 1/1.0001, PriceAtTick(1, 18, 18, true), 1e-9)

	// 18/6 decimals shift by 1e12.
	assert.InDelta(t, 1e12, PriceAtTick(0, 18, 6, false), 1)

	assert.True(t, math.IsInf(PriceAtTick(MaxTick, 18, 6, false), 1))
	assert.Equal(t, 0.0, PriceAtTick(MinTick, 6, 18, false))
	assert.True(t, math.IsInf(PriceAtTick(MinTick, 6, 18, true), 1))
}

func TestInvertPrice(t *testing.T) {
	assert.True(t, math.IsInf(InvertPrice(0), 1))
	assert.Equal(t, 0.0, InvertPrice(math.Inf(1)))

	for _, clamped := range []float64{0, math.Inf(1)} {
		v := clamped
		for i := 0; i < 4; i++ {
			v = InvertPrice(InvertPrice(v))
		}
		assert.Equal(t, clamped, v)
	}

	for _, p := range []float64{1e-6, 0.5, 1, 1843.27, 1e15} {
		assert.InEpsilon(t, p, InvertPrice(InvertPrice(p)), 1e-12)
	}

	for _, tick := range []int32{-5000, 0, 5000} {
		direct := PriceAtTick(tick, 18, 6, false)
		inverted := PriceAtTick(tick, 18, 6, true)
		assert.InEpsilon(t, direct, InvertPrice(inverted), 1e-9)
	}
}

func TestIsFullRangePosition(t *testing.T) {
	for _, spacing := range []int32{1, 10, 60, 200} {
		lo, hi := UsableTickBounds(spacing)
		assert.True(t, IsFullRangePosition(spacing, lo, hi), "spacing %d", spacing)
		assert.False(t, IsFullRangePosition(spacing, lo+spacing, hi), "spacing %d lower", spacing)
		assert.False(t, IsFullRangePosition(spacing, lo, hi-spacing), "spacing %d upper", spacing)
	}
	assert.False(t, IsFullRangePosition(0, MinTick, MaxTick))
}

func TestRoundTickToSpacing(t *testing.T) {
	cases := []struct {
		tick    int32
		spacing int32
		mode    Rounding
		want    int32
	}{
		{-15, 10, RoundFloor, -20},
		{-15, 10, RoundCeil, -10},
		{15, 10, RoundFloor, 10},
		{15, 10, RoundCeil, 20},
		{200, 10, RoundFloor, 200},
		{200, 10, RoundCeil, 200},
		{MinTick, 60, RoundFloor, -887220},
		{MaxTick, 60, RoundCeil, 887220},
	}
	for _, tc := range cases {
		got := RoundTickToSpacing(tc.tick, tc.spacing, tc.mode)
		assert.Equal(t, tc.want, got, "tick %d spacing %d", tc.tick, tc.spacing)
		assert.Zero(t, got%tc.spacing)
	}
}
