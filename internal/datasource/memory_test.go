package datasource

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalhouse/tickerlab/internal/types"
)

func memBar(symbol string, date string, close float64) types.Bar {
	parsed, err := types.ParseDate(date)
	if err != nil {
		panic(err)
	}

	price := optional.Some(decimal.NewFromFloat(close))

	return types.Bar{
		Symbol: symbol,
		Date:   parsed,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: 100,
	}
}

func memorySource() *MemoryBarSource {
	// Deliberately unsorted; the constructor sorts by symbol then date.
	return NewMemoryBarSource([]types.Bar{
		memBar("BBB", "2024-01-03", 20),
		memBar("AAA", "2024-01-02", 11),
		memBar("AAA", "2024-01-01", 10),
		memBar("BBB", "2024-01-01", 19),
		memBar("AAA", "2024-01-03", 12),
	})
}

func TestMemoryBarSourceSymbols(t *testing.T) {
	source := memorySource()
	defer source.Close()

	symbols, err := source.Symbols()
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, symbols)
}

func TestMemoryBarSourceCount(t *testing.T) {
	source := memorySource()
	defer source.Close()

	count, err := source.Count(optional.None[time.Time](), optional.None[time.Time]())
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	since, err := types.ParseDate("2024-01-02")
	require.NoError(t, err)

	count, err = source.Count(optional.Some(since), optional.None[time.Time]())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryBarSourceGetRange(t *testing.T) {
	source := memorySource()
	defer source.Close()

	bars, err := source.GetRange("AAA", optional.None[time.Time](), optional.None[time.Time]())
	require.NoError(t, err)
	require.Len(t, bars, 3)

	// Ascending by date.
	assert.True(t, bars[0].Date.Before(bars[1].Date))
	assert.True(t, bars[1].Date.Before(bars[2].Date))

	end, err := types.ParseDate("2024-01-02")
	require.NoError(t, err)

	bars, err = source.GetRange("AAA", optional.None[time.Time](), optional.Some(end))
	require.NoError(t, err)
	assert.Len(t, bars, 2)

	bars, err = source.GetRange("ZZZ", optional.None[time.Time](), optional.None[time.Time]())
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestMemoryBarSourceReadAll(t *testing.T) {
	source := memorySource()
	defer source.Close()

	var seen []string

	for bar, err := range source.ReadAll(optional.None[time.Time](), optional.None[time.Time]()) {
		require.NoError(t, err)
		seen = append(seen, bar.Symbol+"/"+types.FormatDate(bar.Date))
	}

	assert.Equal(t, []string{
		"AAA/2024-01-01",
		"AAA/2024-01-02",
		"AAA/2024-01-03",
		"BBB/2024-01-01",
		"BBB/2024-01-03",
	}, seen)
}
