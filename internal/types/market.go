package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Bar is a single daily bar for a symbol. Price fields are optional because
// upstream data can have gaps; a bar missing any OHLC value is treated as
// malformed by the indicator engine and skipped.
type Bar struct {
	Symbol string                           `yaml:"symbol" json:"symbol" csv:"symbol"`
	Date   time.Time                        `yaml:"date" json:"date" csv:"date"`
	Open   optional.Option[decimal.Decimal] `yaml:"open" json:"open" csv:"open"`
	High   optional.Option[decimal.Decimal] `yaml:"high" json:"high" csv:"high"`
	Low    optional.Option[decimal.Decimal] `yaml:"low" json:"low" csv:"low"`
	Close  optional.Option[decimal.Decimal] `yaml:"close" json:"close" csv:"close"`
	Volume int64                            `yaml:"volume" json:"volume" csv:"volume"`
}

// HasOHLC reports whether all four price fields are present.
func (b Bar) HasOHLC() bool {
	return b.Open.IsSome() && b.High.IsSome() && b.Low.IsSome() && b.Close.IsSome()
}

// DateKey normalizes a timestamp to UTC midnight so that bars, metrics and
// alerts from different sources key on the same calendar day.
func DateKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date string into a UTC midnight time.
func ParseDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// FormatDate renders a time as a YYYY-MM-DD date string.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}
