package datasource

import (
	"time"

	"github.com/moznion/go-optional"

	"github.com/signalhouse/tickerlab/internal/types"
)

// BarSource provides daily bars to the indicator engine and the backtester.
type BarSource interface {
	// Initialize loads bar data from the given path (CSV or Parquet).
	Initialize(path string) error
	// Count returns the number of bars, optionally bounded by date.
	Count(start optional.Option[time.Time], end optional.Option[time.Time]) (int, error)
	// ReadAll iterates every bar ordered by symbol then date.
	ReadAll(start optional.Option[time.Time], end optional.Option[time.Time]) func(yield func(types.Bar, error) bool)
	// GetRange returns one symbol's bars in ascending date order.
	GetRange(symbol string, start optional.Option[time.Time], end optional.Option[time.Time]) ([]types.Bar, error)
	// Symbols lists the distinct symbols present, ascending.
	Symbols() ([]string, error)
	// Close releases the underlying resources.
	Close() error
}
