package store

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/signalhouse/tickerlab/internal/logger"
	"github.com/signalhouse/tickerlab/internal/types"
)

type StoreTestSuite struct {
	suite.Suite

	store *Store
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	store, err := NewStore("", logger.NewNopLogger())
	s.Require().NoError(err)

	s.store = store
}

func (s *StoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func day(d int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func storeMetric(symbol string, d int) types.Metric {
	return types.Metric{
		Symbol:     symbol,
		Date:       day(d),
		P:          optional.Some(decimal.NewFromFloat(10.25)),
		M1:         optional.Some(decimal.NewFromFloat(10.1)),
		RatioP:     optional.Some(decimal.NewFromInt(60)),
		NbPosP:     optional.Some(3),
		ComputedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func storeAlert(symbol string, d int, code types.AlertCode) types.Alert {
	return types.Alert{
		Symbol:    symbol,
		Date:      day(d),
		Code:      code,
		CreatedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (s *StoreTestSuite) TestSaveAndReadBack() {
	metrics := []types.Metric{
		storeMetric("AAA", 0),
		storeMetric("AAA", 1),
		storeMetric("AAA", 2),
	}
	s.Require().NoError(s.store.SaveMetrics(metrics))

	alerts := []types.Alert{
		storeAlert("AAA", 1, types.AlertA1),
		storeAlert("AAA", 2, types.AlertB1),
	}
	s.Require().NoError(s.store.SaveAlerts(alerts))

	dates, err := s.store.GetMetricDates("AAA")
	s.Require().NoError(err)
	s.Equal([]time.Time{day(0), day(1), day(2)}, dates)

	got, err := s.store.GetAlerts("AAA")
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(types.AlertA1, got[0].Code)
	s.Equal(day(1), got[0].Date)
	s.Equal(types.AlertB1, got[1].Code)

	last, err := s.store.LastComputedDate("AAA")
	s.Require().NoError(err)
	s.Require().True(last.IsSome())
	s.Equal(day(2), last.Unwrap())
}

func (s *StoreTestSuite) TestEmptyBatchesAreNoOps() {
	s.Require().NoError(s.store.SaveMetrics(nil))
	s.Require().NoError(s.store.SaveAlerts(nil))

	last, err := s.store.LastComputedDate("AAA")
	s.Require().NoError(err)
	s.True(last.IsNone())
}

func (s *StoreTestSuite) TestDeleteFrom() {
	s.Require().NoError(s.store.SaveMetrics([]types.Metric{
		storeMetric("AAA", 0),
		storeMetric("AAA", 1),
		storeMetric("AAA", 2),
		storeMetric("BBB", 2),
	}))
	s.Require().NoError(s.store.SaveAlerts([]types.Alert{
		storeAlert("AAA", 0, types.AlertA1),
		storeAlert("AAA", 2, types.AlertB1),
		storeAlert("BBB", 2, types.AlertA1),
	}))

	s.Require().NoError(s.store.DeleteFrom("AAA", day(1)))

	dates, err := s.store.GetMetricDates("AAA")
	s.Require().NoError(err)
	s.Equal([]time.Time{day(0)}, dates)

	alerts, err := s.store.GetAlerts("AAA")
	s.Require().NoError(err)
	s.Require().Len(alerts, 1)
	s.Equal(day(0), alerts[0].Date)

	// Other symbols are untouched.
	dates, err = s.store.GetMetricDates("BBB")
	s.Require().NoError(err)
	s.Len(dates, 1)
}

func (s *StoreTestSuite) TestDeleteAll() {
	s.Require().NoError(s.store.SaveMetrics([]types.Metric{storeMetric("AAA", 0)}))
	s.Require().NoError(s.store.SaveAlerts([]types.Alert{storeAlert("AAA", 0, types.AlertA1)}))

	s.Require().NoError(s.store.DeleteAll())

	dates, err := s.store.GetMetricDates("AAA")
	s.Require().NoError(err)
	s.Empty(dates)

	alerts, err := s.store.GetAlerts("AAA")
	s.Require().NoError(err)
	s.Empty(alerts)
}

func (s *StoreTestSuite) TestScenarioHash() {
	hash, err := s.store.ScenarioHash("base")
	s.Require().NoError(err)
	s.True(hash.IsNone())

	s.Require().NoError(s.store.SetScenarioHash("base", "abc123"))

	hash, err = s.store.ScenarioHash("base")
	s.Require().NoError(err)
	s.Require().True(hash.IsSome())
	s.Equal("abc123", hash.Unwrap())

	// Overwriting replaces the stored hash.
	s.Require().NoError(s.store.SetScenarioHash("base", "def456"))

	hash, err = s.store.ScenarioHash("base")
	s.Require().NoError(err)
	s.Equal("def456", hash.Unwrap())
}

func (s *StoreTestSuite) TestNoneValuesRoundTrip() {
	metric := types.Metric{
		Symbol:     "AAA",
		Date:       day(0),
		ComputedAt: time.Now().UTC(),
	}

	s.Require().NoError(s.store.SaveMetrics([]types.Metric{metric}))

	dates, err := s.store.GetMetricDates("AAA")
	s.Require().NoError(err)
	s.Equal([]time.Time{day(0)}, dates)
}
