package indicator

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/signalhouse/tickerlab/internal/logger"
	"github.com/signalhouse/tickerlab/internal/types"
	"github.com/signalhouse/tickerlab/pkg/errors"
)

var (
	hundred = decimal.NewFromInt(100)
	ninety  = decimal.NewFromInt(90)
)

// Engine computes the derived metric series and alerts of one scenario over a
// single symbol's daily bars. It is not safe for concurrent use; create one
// engine per symbol.
type Engine struct {
	params types.ScenarioParams
	logger *logger.Logger
	now    func() time.Time
}

// NewEngine creates an engine for the given scenario parameters. The
// parameters are validated up front.
func NewEngine(params types.ScenarioParams, log *logger.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Engine{
		params: params,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// WarmupDays returns the replay rewind used by incremental recomputes.
func (e *Engine) WarmupDays() int {
	return e.params.WarmupDays()
}

// state carries all rolling windows and previous-day values of one pass.
type state struct {
	priorP *Window // weighted prices of strictly prior days
	priorM *Window // rolling maxima of strictly prior days
	priorX *Window // rolling minima of strictly prior days
	closes *Window // last n3+1 closes, today included
	slopes *Window // slope_P history, today included
	pVars  *Window // daily weighted price variations, today included
	k2fPre *Window // K2f_pre history, today included
	highs  *Window // daily highs, today included
	vPre   *Window // V_pre history, today included

	prevClose optional.Option[decimal.Decimal]
	prevP     optional.Option[decimal.Decimal]
	prevHigh  optional.Option[decimal.Decimal]
	prevVLine optional.Option[decimal.Decimal]

	prev prevCore
}

// prevCore is the last day on which the channel block was fully defined. It
// is only replaced by another fully defined day, so crossings tolerate gaps.
type prevCore struct {
	valid              bool
	p, m1, x1, q, s, k1 decimal.Decimal
	k1f                optional.Option[decimal.Decimal]
	k2f                optional.Option[decimal.Decimal]
}

func (e *Engine) newState() *state {
	p := e.params

	return &state{
		priorP: NewWindow(p.N1),
		priorM: NewWindow(p.N2),
		priorX: NewWindow(p.N2),
		closes: NewWindow(p.N3 + 1),
		slopes: NewWindow(p.N4),
		pVars:  NewWindow(p.N5),
		k2fPre: NewWindow(p.K2J),
		highs:  NewWindow(p.MV),
		vPre:   NewWindow(p.M1V()),
	}
}

// ComputeAll runs a full pass over the bars, which must be in ascending date
// order, and returns the metric series plus every alert raised.
func (e *Engine) ComputeAll(bars []types.Bar) ([]types.Metric, []types.Alert, error) {
	return e.compute(bars, time.Time{})
}

// ComputeFrom runs an incremental pass: it rewinds WarmupDays bars before the
// first bar at or after since, replays with fresh state, and emits only days
// at or after since. The emitted days are bit-identical to a full pass.
func (e *Engine) ComputeFrom(bars []types.Bar, since time.Time) ([]types.Metric, []types.Alert, error) {
	since = types.DateKey(since)

	start := len(bars)
	for i, bar := range bars {
		if !types.DateKey(bar.Date).Before(since) {
			start = i
			break
		}
	}

	start -= e.WarmupDays()
	if start < 0 {
		start = 0
	}

	return e.compute(bars[start:], since)
}

// compute replays bars through a fresh state, emitting metrics and alerts for
// days at or after emitFrom (zero time emits everything).
func (e *Engine) compute(bars []types.Bar, emitFrom time.Time) ([]types.Metric, []types.Alert, error) {
	st := e.newState()

	metrics := make([]types.Metric, 0, len(bars))
	alerts := make([]types.Alert, 0)

	var lastDate time.Time

	for _, bar := range bars {
		date := types.DateKey(bar.Date)
		if !lastDate.IsZero() && !date.After(lastDate) {
			return nil, nil, errors.Newf(errors.ErrCodeUnorderedBars,
				"bars for %s are not in ascending date order: %s after %s",
				bar.Symbol, types.FormatDate(date), types.FormatDate(lastDate))
		}

		lastDate = date

		metric, dayAlerts, ok := e.step(st, bar)
		if !ok {
			continue
		}

		if emitFrom.IsZero() || !date.Before(emitFrom) {
			metrics = append(metrics, metric)
			alerts = append(alerts, dayAlerts...)
		}
	}

	e.logger.Debug("computed metric series",
		zap.Int("bars", len(bars)),
		zap.Int("metrics", len(metrics)),
		zap.Int("alerts", len(alerts)))

	return metrics, alerts, nil
}

// step advances the state by one bar. A malformed bar (missing any OHLC
// value) or a zero weight sum produces no metric and leaves the state
// untouched.
func (e *Engine) step(st *state, bar types.Bar) (types.Metric, []types.Alert, bool) {
	if !bar.HasOHLC() {
		return types.Metric{}, nil, false
	}

	p := e.params

	denom := p.A.Add(p.B).Add(p.C).Add(p.D)
	if denom.IsZero() {
		return types.Metric{}, nil, false
	}

	open := bar.Open.Unwrap()
	high := bar.High.Unwrap()
	low := bar.Low.Unwrap()
	close := bar.Close.Unwrap()

	metric := types.Metric{
		Symbol:     bar.Symbol,
		Date:       types.DateKey(bar.Date),
		ComputedAt: e.now(),
	}

	// Weighted price.
	weighted := p.A.Mul(close).Add(p.B.Mul(high)).Add(p.C.Mul(low)).Add(p.D.Mul(open)).Div(denom)
	metric.P = optional.Some(weighted)

	// Daily close variation in percent.
	if st.prevClose.IsSome() && !st.prevClose.Unwrap().IsZero() {
		prevClose := st.prevClose.Unwrap()
		metric.V = optional.Some(close.Sub(prevClose).Mul(hundred).Div(prevClose))
	}

	// Rolling extrema over strictly prior weighted prices.
	if st.priorP.Full() {
		metric.M = st.priorP.Max()
		metric.X = st.priorP.Min()
	}

	// Channel means over strictly prior extrema.
	if st.priorM.Full() {
		metric.M1 = st.priorM.Mean()
	}

	if st.priorX.Full() {
		metric.X1 = st.priorX.Mean()
	}

	if metric.M1.IsSome() && metric.X1.IsSome() {
		m1 := metric.M1.Unwrap()
		x1 := metric.X1.Unwrap()

		t := m1.Sub(x1).Div(p.E)
		metric.T = optional.Some(t)
		metric.Q = optional.Some(m1.Sub(t))
		metric.S = optional.Some(m1.Add(t))
		metric.K1 = optional.Some(weighted.Sub(m1))
		metric.K2 = optional.Some(weighted.Sub(x1))
		metric.K3 = optional.Some(weighted.Sub(m1.Sub(t)))
		metric.K4 = optional.Some(weighted.Sub(m1.Add(t)))
	}

	e.stepTrend(st, close, &metric)
	e.stepK1f(&metric)
	e.stepK2f(st, weighted, &metric)
	e.stepVLine(st, high, &metric)

	dayAlerts := detectAlerts(st, high, &metric)

	// End-of-day state updates. The prior windows only ever see values from
	// days before the one being computed.
	st.priorP.Push(weighted)

	if metric.M.IsSome() {
		st.priorM.Push(metric.M.Unwrap())
	}

	if metric.X.IsSome() {
		st.priorX.Push(metric.X.Unwrap())
	}

	if metric.P.IsSome() && metric.M1.IsSome() && metric.X1.IsSome() && metric.Q.IsSome() && metric.S.IsSome() {
		st.prev = prevCore{
			valid: true,
			p:     metric.P.Unwrap(),
			m1:    metric.M1.Unwrap(),
			x1:    metric.X1.Unwrap(),
			q:     metric.Q.Unwrap(),
			s:     metric.S.Unwrap(),
			k1:    metric.K1.Unwrap(),
			k1f:   metric.K1f,
			k2f:   metric.K2f,
		}
	}

	st.prevHigh = optional.Some(high)
	st.prevVLine = metric.VLine

	st.prevClose = optional.Some(close)
	st.prevP = metric.P

	return metric, dayAlerts, true
}

// stepTrend computes the slope and positivity block. It runs every day
// regardless of whether the channel block is defined.
func (e *Engine) stepTrend(st *state, close decimal.Decimal, metric *types.Metric) {
	p := e.params

	st.closes.Push(close)

	if st.closes.Full() {
		closes := st.closes.Values()
		sum := decimal.Zero
		count := 0

		for i := 1; i < len(closes); i++ {
			if closes[i-1].IsZero() {
				continue
			}

			sum = sum.Add(closes[i].Sub(closes[i-1]).Mul(hundred).Div(closes[i-1]))
			count++
		}

		if count == p.N3 {
			metric.SlopeP = optional.Some(sum.Div(decimal.NewFromInt(int64(p.N3))))
		}
	}

	if metric.SlopeP.IsSome() {
		st.slopes.Push(metric.SlopeP.Unwrap())
	}

	if !st.slopes.Full() {
		return
	}

	nbPos := 0
	sumPos := decimal.Zero

	for _, slope := range st.slopes.Values() {
		if slope.IsPositive() {
			nbPos++
			sumPos = sumPos.Add(slope)
		}
	}

	metric.NbPosP = optional.Some(nbPos)
	metric.SumPosP = optional.Some(sumPos)
	metric.RatioP = optional.Some(decimal.NewFromInt(int64(nbPos)).Mul(hundred).Div(decimal.NewFromInt(int64(p.N4))))

	if nbPos > 0 {
		metric.AmpH = optional.Some(sumPos.Mul(hundred).Div(decimal.NewFromInt(int64(nbPos * p.N3))))
	}
}

// stepK1f applies the positivity-ratio adjustment to K1.
func (e *Engine) stepK1f(metric *types.Metric) {
	if metric.K1.IsNone() || metric.M1.IsNone() || metric.X1.IsNone() {
		return
	}

	p := e.params

	correction := decimal.Zero
	if metric.RatioP.IsSome() {
		ratioFrac := metric.RatioP.Unwrap().Div(hundred)
		correction = p.VC.Sub(ratioFrac).Mul(p.FL).Mul(metric.M1.Unwrap().Sub(metric.X1.Unwrap()))
	}

	metric.K1f = optional.Some(metric.K1.Unwrap().Add(correction))
}

// stepK2f maintains the weighted price variation window and the smoothed
// K2f series. The variation is pushed every day the previous weighted price
// is usable; the correction itself also needs the channel block.
func (e *Engine) stepK2f(st *state, weighted decimal.Decimal, metric *types.Metric) {
	p := e.params

	if st.prevP.IsSome() && !st.prevP.Unwrap().IsZero() {
		prevP := st.prevP.Unwrap()
		st.pVars.Push(weighted.Sub(prevP).Div(prevP))
	}

	if !st.pVars.Full() || metric.T.IsNone() || metric.K1.IsNone() {
		return
	}

	slope1 := st.pVars.Sum().Mul(hundred)

	half := p.N5 / 2
	if half < 1 {
		half = 1
	}

	slope2 := st.pVars.SumLast(half).Mul(hundred)

	metric.Diff = optional.Some(slope2.Sub(slope1))

	slopeDeg := slope1.Div(ninety)
	correction := slopeDeg.Mul(metric.T.Unwrap()).Mul(p.CR)

	pre := metric.K1.Unwrap().Sub(correction)
	metric.K2fPre = optional.Some(pre)

	st.k2fPre.Push(pre)

	if st.k2fPre.Full() {
		metric.K2f = st.k2fPre.Mean()
	}
}

// stepVLine maintains the high-price resistance line. Disabled when the
// window is too short to be meaningful.
func (e *Engine) stepVLine(st *state, high decimal.Decimal, metric *types.Metric) {
	if e.params.MV <= 1 {
		return
	}

	st.highs.Push(high)

	if !st.highs.Full() {
		return
	}

	pre := st.highs.Max().Unwrap()
	metric.VPre = optional.Some(pre)

	st.vPre.Push(pre)

	if st.vPre.Full() {
		metric.VLine = st.vPre.Mean()
	}
}
