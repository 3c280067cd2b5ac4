package datasource

import (
	"sort"
	"time"

	"github.com/moznion/go-optional"

	"github.com/signalhouse/tickerlab/internal/types"
)

// MemoryBarSource holds bars in memory. Used by tests and small runs.
type MemoryBarSource struct {
	bars []types.Bar
}

// NewMemoryBarSource creates a bar source over the given bars. The bars are
// copied and sorted by symbol then date.
func NewMemoryBarSource(bars []types.Bar) *MemoryBarSource {
	sorted := make([]types.Bar, len(bars))
	copy(sorted, bars)

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Symbol != sorted[j].Symbol {
			return sorted[i].Symbol < sorted[j].Symbol
		}

		return sorted[i].Date.Before(sorted[j].Date)
	})

	return &MemoryBarSource{bars: sorted}
}

// Initialize implements BarSource. It is a no-op for the in-memory source.
func (m *MemoryBarSource) Initialize(path string) error {
	return nil
}

// Count implements BarSource.
func (m *MemoryBarSource) Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error) {
	count := 0

	for _, bar := range m.bars {
		if inRange(bar.Date, start, end) {
			count++
		}
	}

	return count, nil
}

// ReadAll implements BarSource.
func (m *MemoryBarSource) ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool) {
	return func(yield func(types.Bar, error) bool) {
		for _, bar := range m.bars {
			if !inRange(bar.Date, start, end) {
				continue
			}

			if !yield(bar, nil) {
				return
			}
		}
	}
}

// GetRange implements BarSource.
func (m *MemoryBarSource) GetRange(symbol string, start optional.Option[time.Time], end optional.Option[time.Time]) ([]types.Bar, error) {
	var bars []types.Bar

	for _, bar := range m.bars {
		if bar.Symbol == symbol && inRange(bar.Date, start, end) {
			bars = append(bars, bar)
		}
	}

	return bars, nil
}

// Symbols implements BarSource.
func (m *MemoryBarSource) Symbols() ([]string, error) {
	var symbols []string

	seen := make(map[string]bool)

	for _, bar := range m.bars {
		if !seen[bar.Symbol] {
			seen[bar.Symbol] = true

			symbols = append(symbols, bar.Symbol)
		}
	}

	sort.Strings(symbols)

	return symbols, nil
}

// Close implements BarSource.
func (m *MemoryBarSource) Close() error {
	return nil
}

func inRange(date time.Time, start optional.Option[time.Time], end optional.Option[time.Time]) bool {
	if start.IsSome() && date.Before(start.Unwrap()) {
		return false
	}

	if end.IsSome() && date.After(end.Unwrap()) {
		return false
	}

	return true
}
