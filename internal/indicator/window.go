package indicator

import (
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Window is a fixed-capacity rolling window of decimal values. Pushing beyond
// capacity evicts the oldest value. Aggregates return None on an empty window.
type Window struct {
	capacity int
	values   []decimal.Decimal
}

// NewWindow creates a rolling window with the given capacity.
func NewWindow(capacity int) *Window {
	return &Window{
		capacity: capacity,
		values:   make([]decimal.Decimal, 0, capacity),
	}
}

// Push appends a value, evicting the oldest when the window is at capacity.
func (w *Window) Push(v decimal.Decimal) {
	if w.capacity <= 0 {
		return
	}

	if len(w.values) == w.capacity {
		copy(w.values, w.values[1:])
		w.values = w.values[:len(w.values)-1]
	}

	w.values = append(w.values, v)
}

// Len returns the number of values currently held.
func (w *Window) Len() int {
	return len(w.values)
}

// Full reports whether the window holds exactly its capacity.
func (w *Window) Full() bool {
	return w.capacity > 0 && len(w.values) == w.capacity
}

// Values returns the held values, oldest first. The slice is shared; callers
// must not mutate it.
func (w *Window) Values() []decimal.Decimal {
	return w.values
}

// Max returns the largest held value.
func (w *Window) Max() optional.Option[decimal.Decimal] {
	if len(w.values) == 0 {
		return optional.None[decimal.Decimal]()
	}

	max := w.values[0]
	for _, v := range w.values[1:] {
		if v.GreaterThan(max) {
			max = v
		}
	}

	return optional.Some(max)
}

// Min returns the smallest held value.
func (w *Window) Min() optional.Option[decimal.Decimal] {
	if len(w.values) == 0 {
		return optional.None[decimal.Decimal]()
	}

	min := w.values[0]
	for _, v := range w.values[1:] {
		if v.LessThan(min) {
			min = v
		}
	}

	return optional.Some(min)
}

// Sum returns the sum of all held values.
func (w *Window) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range w.values {
		sum = sum.Add(v)
	}

	return sum
}

// SumLast returns the sum of the newest n values. When fewer than n values
// are held, all of them are summed.
func (w *Window) SumLast(n int) decimal.Decimal {
	if n > len(w.values) {
		n = len(w.values)
	}

	sum := decimal.Zero
	for _, v := range w.values[len(w.values)-n:] {
		sum = sum.Add(v)
	}

	return sum
}

// Mean returns the arithmetic mean of all held values.
func (w *Window) Mean() optional.Option[decimal.Decimal] {
	if len(w.values) == 0 {
		return optional.None[decimal.Decimal]()
	}

	return optional.Some(w.Sum().Div(decimal.NewFromInt(int64(len(w.values)))))
}
