package backtest

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/signalhouse/tickerlab/internal/logger"
	"github.com/signalhouse/tickerlab/internal/types"
	"github.com/signalhouse/tickerlab/internal/version"
	"github.com/signalhouse/tickerlab/pkg/errors"
)

// Inputs carries the precomputed data a simulator run consumes: per-symbol
// bars and metrics in ascending date order, plus the alert stream.
type Inputs struct {
	Bars    map[string][]types.Bar
	Metrics map[string][]types.Metric
	Alerts  []types.Alert
}

// OnProgress is called after each simulated day.
type OnProgress func(current, total int)

// Simulator replays alerts over daily bars and books trades per
// (symbol, signal line) slot. Signals read on day T schedule orders that
// execute at the symbol's next trading day open.
type Simulator struct {
	config      types.BacktestConfig
	logger      *logger.Logger
	initialized bool
}

// NewSimulator creates an uninitialized simulator.
func NewSimulator(log *logger.Logger) *Simulator {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Simulator{logger: log}
}

// Initialize parses and validates a YAML config.
func (s *Simulator) Initialize(configYAML string) error {
	var config types.BacktestConfig
	if err := yaml.Unmarshal([]byte(configYAML), &config); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestConfigError, "failed to parse backtest config", err)
	}

	return s.SetConfig(config)
}

// Config returns the installed config.
func (s *Simulator) Config() types.BacktestConfig {
	return s.config
}

// SetConfig validates and installs a config.
func (s *Simulator) SetConfig(config types.BacktestConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	s.config = config
	s.initialized = true

	return nil
}

// run-scoped indexes over the inputs.
type runData struct {
	barsByDate   map[string]map[time.Time]types.Bar
	metricByDate map[string]map[time.Time]types.Metric
	prevMetric   map[string]map[time.Time]types.Metric
	alertsByDate map[string]map[time.Time]map[types.AlertCode]bool
	calendar     []time.Time
}

// Run executes the simulation and returns the full result. onProgress may be
// nil.
func (s *Simulator) Run(inputs Inputs, onProgress OnProgress) (*types.BacktestResult, error) {
	if !s.initialized {
		return nil, errors.New(errors.ErrCodeBacktestInitFailed, "simulator is not initialized")
	}

	data, err := s.index(inputs)
	if err != nil {
		return nil, err
	}

	slots := s.buildSlots()
	tracker := newPortfolioTracker(&s.config)

	var trades []types.Trade

	for i, date := range data.calendar {
		// Mark-to-market prices carry forward over days without a bar.
		for symbol, bars := range data.barsByDate {
			if bar, ok := bars[date]; ok && bar.Close.IsSome() {
				tracker.markPrice(symbol, bar.Close.Unwrap())
			}
		}

		trades = append(trades, s.executeSells(slots, data, date, tracker)...)
		s.executeBuys(slots, data, date, tracker)

		s.bookkeeping(slots, data, date)
		s.readSignals(slots, data, date, tracker)

		for _, sl := range slots {
			if _, ok := data.barsByDate[sl.symbol][date]; ok {
				sl.recordDay(date, s.ratioOn(data, sl.symbol, date))
			}
		}

		tracker.snapshot(date, slots)

		if onProgress != nil {
			onProgress(i+1, len(data.calendar))
		}
	}

	if s.config.ClosePositionsAtEnd {
		trades = append(trades, s.forceClose(slots, data, tracker)...)
	}

	lines := make([]types.LineResult, 0, len(slots))
	for _, sl := range slots {
		lines = append(lines, sl.result())
	}

	result := &types.BacktestResult{
		ID:            uuid.NewString(),
		EngineVersion: version.GetVersion(),
		GeneratedAt:   time.Now().UTC(),
		Config:        s.config,
		Trades:        trades,
		Lines:         lines,
		Portfolio:     tracker.rows,
		KPI:           tracker.kpis(),
	}

	s.logger.Info("backtest run complete",
		zap.String("id", result.ID),
		zap.Int("days", len(data.calendar)),
		zap.Int("trades", len(trades)))

	return result, nil
}

// index builds the per-day lookups and the trading calendar.
func (s *Simulator) index(inputs Inputs) (*runData, error) {
	data := &runData{
		barsByDate:   make(map[string]map[time.Time]types.Bar),
		metricByDate: make(map[string]map[time.Time]types.Metric),
		prevMetric:   make(map[string]map[time.Time]types.Metric),
		alertsByDate: make(map[string]map[time.Time]map[types.AlertCode]bool),
	}

	start := types.DateKey(s.config.StartDate)
	end := types.DateKey(s.config.EndDate)

	dates := make(map[time.Time]bool)

	for _, symbol := range s.config.Symbols {
		byDate := make(map[time.Time]types.Bar)

		for _, bar := range inputs.Bars[symbol] {
			date := types.DateKey(bar.Date)
			byDate[date] = bar

			if !date.Before(start) && !date.After(end) {
				dates[date] = true
			}
		}

		data.barsByDate[symbol] = byDate

		metricByDate := make(map[time.Time]types.Metric)
		prevMetric := make(map[time.Time]types.Metric)

		for i, metric := range inputs.Metrics[symbol] {
			date := types.DateKey(metric.Date)
			metricByDate[date] = metric

			if i > 0 {
				prevMetric[date] = inputs.Metrics[symbol][i-1]
			}
		}

		data.metricByDate[symbol] = metricByDate
		data.prevMetric[symbol] = prevMetric
	}

	for _, alert := range inputs.Alerts {
		byDate, ok := data.alertsByDate[alert.Symbol]
		if !ok {
			byDate = make(map[time.Time]map[types.AlertCode]bool)
			data.alertsByDate[alert.Symbol] = byDate
		}

		date := types.DateKey(alert.Date)
		if byDate[date] == nil {
			byDate[date] = make(map[types.AlertCode]bool)
		}

		byDate[date][alert.Code] = true
	}

	if len(dates) == 0 {
		return nil, errors.Newf(errors.ErrCodeBacktestNoBars,
			"no bars for any universe symbol between %s and %s",
			types.FormatDate(start), types.FormatDate(end))
	}

	data.calendar = make([]time.Time, 0, len(dates))
	for date := range dates {
		data.calendar = append(data.calendar, date)
	}

	sort.Slice(data.calendar, func(i, j int) bool {
		return data.calendar[i].Before(data.calendar[j])
	})

	return data, nil
}

// buildSlots creates one slot per (symbol, line), symbols ascending so ties
// rank deterministically.
func (s *Simulator) buildSlots() []*slot {
	symbols := make([]string, len(s.config.Symbols))
	copy(symbols, s.config.Symbols)
	sort.Strings(symbols)

	var slots []*slot

	for _, symbol := range symbols {
		capital := decimal.NewFromFloat(s.config.SlotCapital(symbol))
		for i, line := range s.config.SignalLines {
			slots = append(slots, newSlot(symbol, i, line, capital))
		}
	}

	return slots
}

// executeSells fills pending sells at today's open. A missing or zero open
// cancels the order; a later sell signal can reschedule it.
func (s *Simulator) executeSells(slots []*slot, data *runData, date time.Time, tracker *portfolioTracker) []types.Trade {
	var trades []types.Trade

	for _, sl := range slots {
		if !sl.pendingSell || !sl.inPosition {
			continue
		}

		bar, ok := data.barsByDate[sl.symbol][date]
		if !ok {
			continue
		}

		if bar.Open.IsNone() || bar.Open.Unwrap().IsZero() {
			sl.pendingSell = false

			s.logger.Warn("sell cancelled, no usable open price",
				zap.String("symbol", sl.symbol),
				zap.Int("line", sl.lineIndex),
				zap.String("date", types.FormatDate(date)))

			continue
		}

		trade := sl.closeTrade(uuid.NewString(), date, bar.Open.Unwrap(), false)
		trades = append(trades, trade)

		if tracker.constrained {
			tracker.pool = tracker.pool.Add(sl.wallet)
			sl.allocated = false
		}
	}

	return trades
}

// executeBuys fills pending buys at today's open, buying whole shares only.
// Orders that cannot fill are refunded and cancelled.
func (s *Simulator) executeBuys(slots []*slot, data *runData, date time.Time, tracker *portfolioTracker) {
	for _, sl := range slots {
		if !sl.pendingBuy {
			continue
		}

		bar, ok := data.barsByDate[sl.symbol][date]
		if !ok {
			continue
		}

		if bar.Open.IsNone() || bar.Open.Unwrap().IsZero() {
			s.refundBuy(sl, tracker)

			continue
		}

		open := bar.Open.Unwrap()
		budget := sl.wallet

		shares := budget.Div(open).IntPart()
		if shares <= 0 {
			s.refundBuy(sl, tracker)

			continue
		}

		cost := open.Mul(decimal.NewFromInt(shares))

		sl.wallet = budget.Sub(cost)
		sl.shares = shares
		sl.inPosition = true
		sl.entryPrice = open
		sl.entryDate = date
		sl.pendingBuy = false

		if !tracker.constrained && !sl.everAllocated {
			sl.everAllocated = true
			tracker.investedCum = tracker.investedCum.Add(budget)
		}
	}
}

func (s *Simulator) refundBuy(sl *slot, tracker *portfolioTracker) {
	if tracker.constrained && sl.allocated {
		tracker.pool = tracker.pool.Add(sl.wallet)
		sl.allocated = false
	}

	sl.pendingBuy = false
}

// bookkeeping advances the per-slot day counters for symbols trading today.
func (s *Simulator) bookkeeping(slots []*slot, data *runData, date time.Time) {
	for _, sl := range slots {
		if _, ok := data.barsByDate[sl.symbol][date]; !ok {
			continue
		}

		if sl.inPosition {
			sl.holdingDays++

			continue
		}

		if sl.pendingBuy {
			continue
		}

		if s.eligible(data, sl.symbol, date) {
			sl.tradableDays++
		}
	}
}

// eligible applies the ratio gate for a symbol on a day.
func (s *Simulator) eligible(data *runData, symbol string, date time.Time) bool {
	if s.config.IncludeAllTickers {
		return true
	}

	ratio := s.ratioOn(data, symbol, date)
	if ratio.IsNone() {
		return false
	}

	return ratio.Unwrap().GreaterThanOrEqual(decimal.NewFromFloat(s.config.RatioThreshold))
}

func (s *Simulator) ratioOn(data *runData, symbol string, date time.Time) optional.Option[decimal.Decimal] {
	metric, ok := data.metricByDate[symbol][date]
	if !ok {
		return optional.None[decimal.Decimal]()
	}

	return metric.RatioP
}

// readSignals schedules sells for held slots and ranks buy candidates. In
// constrained mode a buy reserves the slot's wallet from the pool at signal
// time; candidates the pool cannot fund are skipped, not queued.
func (s *Simulator) readSignals(slots []*slot, data *runData, date time.Time, tracker *portfolioTracker) {
	for _, sl := range slots {
		if !sl.inPosition || sl.pendingSell {
			continue
		}

		if sl.line.SpecialExit {
			if s.specialExit(data, sl.symbol, date) {
				sl.pendingSell = true
			}

			continue
		}

		if data.alertsByDate[sl.symbol][date][sl.line.Sell] {
			sl.pendingSell = true
		}
	}

	type candidate struct {
		sl    *slot
		ratio decimal.Decimal
	}

	var candidates []candidate

	for _, sl := range slots {
		if sl.inPosition || sl.pendingBuy {
			continue
		}

		if !data.alertsByDate[sl.symbol][date][sl.line.Buy] {
			continue
		}

		if !s.eligible(data, sl.symbol, date) {
			continue
		}

		if !sl.wallet.IsPositive() {
			continue
		}

		ratio := decimal.NewFromInt(-1)
		if r := s.ratioOn(data, sl.symbol, date); r.IsSome() {
			ratio = r.Unwrap()
		}

		candidates = append(candidates, candidate{sl: sl, ratio: ratio})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if !candidates[i].ratio.Equal(candidates[j].ratio) {
			return candidates[i].ratio.GreaterThan(candidates[j].ratio)
		}

		if candidates[i].sl.symbol != candidates[j].sl.symbol {
			return candidates[i].sl.symbol < candidates[j].sl.symbol
		}

		return candidates[i].sl.lineIndex < candidates[j].sl.lineIndex
	})

	for _, c := range candidates {
		if tracker.constrained {
			needed := c.sl.wallet
			if tracker.pool.LessThan(needed) {
				continue
			}

			tracker.pool = tracker.pool.Sub(needed)
			c.sl.allocated = true
		}

		c.sl.pendingBuy = true
	}
}

// specialExit evaluates the K1f exit rule on a day: a downward crossing of
// zero, or of the closest K line strictly below K1f on the previous day.
func (s *Simulator) specialExit(data *runData, symbol string, date time.Time) bool {
	cur, ok := data.metricByDate[symbol][date]
	if !ok {
		return false
	}

	prev, ok := data.prevMetric[symbol][date]
	if !ok {
		return false
	}

	if cur.K1f.IsNone() || prev.K1f.IsNone() {
		return false
	}

	curK1f := cur.K1f.Unwrap()
	prevK1f := prev.K1f.Unwrap()

	if prevK1f.IsPositive() && curK1f.IsNegative() {
		return true
	}

	prevLines := []optional.Option[decimal.Decimal]{prev.K1, prev.K2, prev.K3, prev.K4}
	curLines := []optional.Option[decimal.Decimal]{cur.K1, cur.K2, cur.K3, cur.K4}

	var (
		refPrev, refCur decimal.Decimal
		found           bool
	)

	for i := range prevLines {
		if prevLines[i].IsNone() || curLines[i].IsNone() {
			continue
		}

		prevLine := prevLines[i].Unwrap()
		if !prevLine.LessThan(prevK1f) {
			continue
		}

		if !found || prevLine.GreaterThan(refPrev) {
			refPrev = prevLine
			refCur = curLines[i].Unwrap()
			found = true
		}
	}

	if !found {
		return false
	}

	return prevK1f.GreaterThan(refPrev) && curK1f.LessThan(refCur)
}

// forceClose closes every open position at the symbol's last known price.
func (s *Simulator) forceClose(slots []*slot, data *runData, tracker *portfolioTracker) []types.Trade {
	if len(data.calendar) == 0 {
		return nil
	}

	lastDate := data.calendar[len(data.calendar)-1]

	var trades []types.Trade

	for _, sl := range slots {
		if !sl.inPosition {
			continue
		}

		price, ok := tracker.lastPrice[sl.symbol]
		if !ok || !price.IsPositive() {
			continue
		}

		trade := sl.closeTrade(uuid.NewString(), lastDate, price, true)
		trades = append(trades, trade)

		if tracker.constrained {
			tracker.pool = tracker.pool.Add(sl.wallet)
			sl.allocated = false
		}

		sl.amendLastDay()
	}

	if len(trades) > 0 {
		tracker.amendLastRow(slots)
	}

	return trades
}
