package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/signalhouse/tickerlab/internal/types"
	"github.com/signalhouse/tickerlab/pkg/errors"
)

type EngineTestSuite struct {
	suite.Suite
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func testParams() types.ScenarioParams {
	return types.ScenarioParams{
		Name:         "test",
		A:            decimal.NewFromInt(1),
		B:            decimal.NewFromInt(1),
		C:            decimal.NewFromInt(1),
		D:            decimal.NewFromInt(1),
		E:            decimal.NewFromInt(2),
		VC:           decimal.NewFromFloat(0.5),
		FL:           decimal.NewFromInt(1),
		N1:           5,
		N2:           3,
		N3:           2,
		N4:           3,
		N5:           4,
		K2J:          2,
		CR:           decimal.NewFromInt(1),
		MV:           0,
		HistoryYears: 1,
	}
}

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testBar(day int, open, high, low, close float64) types.Bar {
	return types.Bar{
		Symbol: "AAA",
		Date:   testEpoch.AddDate(0, 0, day),
		Open:   optional.Some(decimal.NewFromFloat(open)),
		High:   optional.Some(decimal.NewFromFloat(high)),
		Low:    optional.Some(decimal.NewFromFloat(low)),
		Close:  optional.Some(decimal.NewFromFloat(close)),
		Volume: 1000,
	}
}

func flatBars(n int, price float64) []types.Bar {
	bars := make([]types.Bar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, testBar(i, price, price, price, price))
	}

	return bars
}

// wavyBars produces a deterministic oscillating series so that every window
// and crossing rule gets exercised.
func wavyBars(n int) []types.Bar {
	bars := make([]types.Bar, 0, n)
	for i := 0; i < n; i++ {
		price := 50 + 10*math.Sin(float64(i)/3) + float64(i%5)
		bars = append(bars, testBar(i, price*0.99, price*1.02, price*0.97, price))
	}

	return bars
}

func (s *EngineTestSuite) newTestEngine(params types.ScenarioParams) *Engine {
	engine, err := NewEngine(params, nil)
	s.Require().NoError(err)

	// Pin the clock so two passes produce byte-identical metrics.
	engine.now = func() time.Time { return testEpoch }

	return engine
}

func (s *EngineTestSuite) TestNewEngineValidation() {
	params := testParams()
	params.E = decimal.Zero

	_, err := NewEngine(params, nil)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidScenario))

	params = testParams()
	params.N1 = 0

	_, err = NewEngine(params, nil)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidScenario))
}

func (s *EngineTestSuite) TestFlatSeries() {
	engine := s.newTestEngine(testParams())

	metrics, alerts, err := engine.ComputeAll(flatBars(15, 10))
	s.Require().NoError(err)
	s.Require().Len(metrics, 15)
	s.Empty(alerts)

	ten := decimal.NewFromInt(10)

	// Extrema need five prior days, the channel means three more.
	s.True(metrics[4].M.IsNone())
	s.True(metrics[5].M.IsSome())
	s.True(metrics[7].M1.IsNone())
	s.True(metrics[8].M1.IsSome())

	last := metrics[14]
	s.True(last.P.Unwrap().Equal(ten))
	s.True(last.M.Unwrap().Equal(ten))
	s.True(last.X.Unwrap().Equal(ten))
	s.True(last.M1.Unwrap().Equal(ten))
	s.True(last.X1.Unwrap().Equal(ten))
	s.True(last.T.Unwrap().IsZero())
	s.True(last.Q.Unwrap().Equal(ten))
	s.True(last.S.Unwrap().Equal(ten))
	s.True(last.K1.Unwrap().IsZero())
	s.True(last.K2.Unwrap().IsZero())
	s.True(last.K3.Unwrap().IsZero())
	s.True(last.K4.Unwrap().IsZero())
	s.True(last.K1f.Unwrap().IsZero())
	s.True(last.K2f.Unwrap().IsZero())

	// No daily change means a zero slope and a zero positivity ratio.
	s.True(last.SlopeP.Unwrap().IsZero())
	s.Equal(0, last.NbPosP.Unwrap())
	s.True(last.RatioP.Unwrap().IsZero())
	s.True(last.AmpH.IsNone())

	// V line disabled at m_v = 0.
	s.True(last.VLine.IsNone())
}

func (s *EngineTestSuite) TestVLineNeedsWindow() {
	params := testParams()
	params.MV = 6

	engine := s.newTestEngine(params)

	metrics, _, err := engine.ComputeAll(flatBars(15, 10))
	s.Require().NoError(err)
	s.Require().Len(metrics, 15)

	// Six highs for V_pre, then three V_pre values for the mean.
	s.True(metrics[4].VPre.IsNone())
	s.True(metrics[5].VPre.IsSome())
	s.True(metrics[6].VLine.IsNone())
	s.True(metrics[7].VLine.IsSome())
	s.True(metrics[14].VLine.Unwrap().Equal(decimal.NewFromInt(10)))
}

func (s *EngineTestSuite) TestMalformedBarSkipped() {
	engine := s.newTestEngine(testParams())

	bars := flatBars(15, 10)
	bars[6].Close = optional.None[decimal.Decimal]()

	metrics, _, err := engine.ComputeAll(bars)
	s.Require().NoError(err)
	s.Require().Len(metrics, 14)

	for _, metric := range metrics {
		s.False(metric.Date.Equal(bars[6].Date))
	}
}

func (s *EngineTestSuite) TestZeroWeightSumSkipsEveryBar() {
	params := testParams()
	params.A = decimal.Zero
	params.B = decimal.Zero
	params.C = decimal.Zero
	params.D = decimal.Zero

	engine := s.newTestEngine(params)

	metrics, alerts, err := engine.ComputeAll(flatBars(10, 10))
	s.Require().NoError(err)
	s.Empty(metrics)
	s.Empty(alerts)
}

func (s *EngineTestSuite) TestUnorderedBars() {
	engine := s.newTestEngine(testParams())

	bars := flatBars(5, 10)
	bars[3].Date = bars[2].Date

	_, _, err := engine.ComputeAll(bars)
	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeUnorderedBars))
}

func (s *EngineTestSuite) TestIncrementalMatchesFullPass() {
	params := testParams()
	params.MV = 6

	bars := wavyBars(120)
	since := types.DateKey(bars[80].Date)

	fullEngine := s.newTestEngine(params)
	fullMetrics, fullAlerts, err := fullEngine.ComputeAll(bars)
	s.Require().NoError(err)
	s.Require().Len(fullMetrics, 120)

	incEngine := s.newTestEngine(params)
	incMetrics, incAlerts, err := incEngine.ComputeFrom(bars, since)
	s.Require().NoError(err)

	s.Equal(fullMetrics[80:], incMetrics)

	wantAlerts := make([]types.Alert, 0)
	for _, alert := range fullAlerts {
		if !alert.Date.Before(since) {
			wantAlerts = append(wantAlerts, alert)
		}
	}

	s.Equal(wantAlerts, incAlerts)
}

func (s *EngineTestSuite) TestIncrementalMatchesFullPassSlowSmoothing() {
	// The K2f smoothing window only starts filling once the channel block
	// exists, so the rewind has to cover the whole chain, not just the
	// longest single window.
	params := testParams()
	params.N1 = 30
	params.N2 = 30
	params.N5 = 5
	params.K2J = 40

	bars := wavyBars(160)
	since := types.DateKey(bars[140].Date)

	fullEngine := s.newTestEngine(params)
	fullMetrics, fullAlerts, err := fullEngine.ComputeAll(bars)
	s.Require().NoError(err)
	s.Require().Len(fullMetrics, 160)
	s.Require().True(fullMetrics[140].K2f.IsSome())

	incEngine := s.newTestEngine(params)
	incMetrics, incAlerts, err := incEngine.ComputeFrom(bars, since)
	s.Require().NoError(err)

	s.Equal(fullMetrics[140:], incMetrics)

	wantAlerts := make([]types.Alert, 0)
	for _, alert := range fullAlerts {
		if !alert.Date.Before(since) {
			wantAlerts = append(wantAlerts, alert)
		}
	}

	s.Equal(wantAlerts, incAlerts)
}

func (s *EngineTestSuite) TestPrevVLineTracksPreviousDay() {
	params := testParams()
	params.MV = 6

	engine := s.newTestEngine(params)
	st := engine.newState()

	// V_line first becomes defined on the eighth day. Until then the
	// previous-day tracker must hold None so I1/J1 stay suppressed.
	for _, bar := range flatBars(7, 10) {
		_, _, ok := engine.step(st, bar)
		s.Require().True(ok)
	}

	s.True(st.prevVLine.IsNone())

	_, _, ok := engine.step(st, testBar(7, 10, 10, 10, 10))
	s.Require().True(ok)
	s.True(st.prevVLine.IsSome())
}

func (s *EngineTestSuite) TestComputeFromBeforeHistoryStart() {
	engine := s.newTestEngine(testParams())

	bars := flatBars(15, 10)

	fullMetrics, _, err := engine.ComputeAll(bars)
	s.Require().NoError(err)

	// A since date before the first bar replays everything from scratch.
	incMetrics, _, err := engine.ComputeFrom(bars, testEpoch.AddDate(-1, 0, 0))
	s.Require().NoError(err)

	s.Equal(fullMetrics, incMetrics)
}
