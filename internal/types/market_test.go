package types

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBarHasOHLC(t *testing.T) {
	bar := Bar{
		Symbol: "AAA",
		Date:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:   optional.Some(decimal.NewFromInt(10)),
		High:   optional.Some(decimal.NewFromInt(11)),
		Low:    optional.Some(decimal.NewFromInt(9)),
		Close:  optional.Some(decimal.NewFromInt(10)),
	}

	assert.True(t, bar.HasOHLC())

	bar.Low = optional.None[decimal.Decimal]()
	assert.False(t, bar.HasOHLC())
}

func TestDateKey(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	stamp := time.Date(2024, 1, 2, 15, 4, 5, 123, paris)
	key := DateKey(stamp)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), key)
	assert.Equal(t, key, DateKey(key))
}

func TestParseAndFormatDate(t *testing.T) {
	date, err := ParseDate("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), date)
	assert.Equal(t, "2024-03-15", FormatDate(date))

	_, err = ParseDate("15/03/2024")
	assert.Error(t, err)
}
