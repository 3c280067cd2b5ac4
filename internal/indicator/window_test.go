package indicator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func pushAll(w *Window, values ...float64) {
	for _, v := range values {
		w.Push(dec(v))
	}
}

func TestWindowEviction(t *testing.T) {
	w := NewWindow(3)

	pushAll(w, 1, 2, 3)
	require.True(t, w.Full())
	assert.Equal(t, 3, w.Len())

	w.Push(dec(4))
	assert.Equal(t, 3, w.Len())
	assert.True(t, w.Values()[0].Equal(dec(2)))
	assert.True(t, w.Values()[2].Equal(dec(4)))
}

func TestWindowAggregates(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		values   []float64
		max      float64
		min      float64
		sum      float64
		mean     float64
	}{
		{
			name:     "ascending",
			capacity: 4,
			values:   []float64{1, 2, 3, 4},
			max:      4,
			min:      1,
			sum:      10,
			mean:     2.5,
		},
		{
			name:     "with negatives",
			capacity: 3,
			values:   []float64{-5, 0, 5},
			max:      5,
			min:      -5,
			sum:      0,
			mean:     0,
		},
		{
			name:     "partial fill",
			capacity: 10,
			values:   []float64{7, 3},
			max:      7,
			min:      3,
			sum:      10,
			mean:     5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWindow(tt.capacity)
			pushAll(w, tt.values...)

			require.True(t, w.Max().IsSome())
			assert.True(t, w.Max().Unwrap().Equal(dec(tt.max)))
			assert.True(t, w.Min().Unwrap().Equal(dec(tt.min)))
			assert.True(t, w.Sum().Equal(dec(tt.sum)))
			assert.True(t, w.Mean().Unwrap().Equal(dec(tt.mean)))
		})
	}
}

func TestWindowEmptyAggregates(t *testing.T) {
	w := NewWindow(5)

	assert.True(t, w.Max().IsNone())
	assert.True(t, w.Min().IsNone())
	assert.True(t, w.Mean().IsNone())
	assert.True(t, w.Sum().IsZero())
	assert.False(t, w.Full())
}

func TestWindowSumLast(t *testing.T) {
	w := NewWindow(5)
	pushAll(w, 1, 2, 3, 4, 5)

	assert.True(t, w.SumLast(2).Equal(dec(9)))
	assert.True(t, w.SumLast(5).Equal(dec(15)))
	// More than held sums everything.
	assert.True(t, w.SumLast(10).Equal(dec(15)))
}

func TestWindowZeroCapacity(t *testing.T) {
	w := NewWindow(0)
	w.Push(dec(1))

	assert.Equal(t, 0, w.Len())
	assert.False(t, w.Full())
}
