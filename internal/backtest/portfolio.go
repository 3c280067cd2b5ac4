package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/signalhouse/tickerlab/internal/types"
)

// portfolioTracker aggregates the portfolio-level daily series and its
// end-of-run KPIs across all slots.
type portfolioTracker struct {
	constrained  bool
	capitalTotal decimal.Decimal

	// pool is the unreserved shared cash in constrained mode.
	pool decimal.Decimal

	// investedMax tracks the running maximum of pool draw-down in
	// constrained mode; investedCum accumulates first-buy wallets in
	// unconstrained mode.
	investedMax decimal.Decimal
	investedCum decimal.Decimal

	peak        decimal.Decimal
	peakSet     bool
	maxDrawdown decimal.Decimal
	nbDays      int

	// lastPrice carries the last known close per symbol so positions keep a
	// mark on days without a bar.
	lastPrice map[string]decimal.Decimal

	rows []types.PortfolioDaily
}

func newPortfolioTracker(config *types.BacktestConfig) *portfolioTracker {
	capital := decimal.NewFromFloat(config.CapitalTotal)

	return &portfolioTracker{
		constrained:  config.Constrained(),
		capitalTotal: capital,
		pool:         capital,
		investedMax:  decimal.Zero,
		investedCum:  decimal.Zero,
		maxDrawdown:  decimal.Zero,
		lastPrice:    make(map[string]decimal.Decimal),
	}
}

// markPrice records a symbol's latest close.
func (p *portfolioTracker) markPrice(symbol string, close decimal.Decimal) {
	p.lastPrice[symbol] = close
}

// compose values the slots against last known prices.
func (p *portfolioTracker) compose(slots []*slot) (cashAllocated, positionsValue decimal.Decimal) {
	cashAllocated = decimal.Zero
	positionsValue = decimal.Zero

	for _, s := range slots {
		switch {
		case s.inPosition:
			cashAllocated = cashAllocated.Add(s.wallet)

			if price, ok := p.lastPrice[s.symbol]; ok {
				positionsValue = positionsValue.Add(price.Mul(decimal.NewFromInt(s.shares)))
			}
		case p.constrained && s.allocated:
			cashAllocated = cashAllocated.Add(s.wallet)
		case !p.constrained && s.everAllocated:
			cashAllocated = cashAllocated.Add(s.wallet)
		}
	}

	return cashAllocated, positionsValue
}

// snapshot appends the portfolio row for one day.
func (p *portfolioTracker) snapshot(date time.Time, slots []*slot) {
	cashAllocated, positionsValue := p.compose(slots)

	globalCash := decimal.Zero
	if p.constrained {
		globalCash = p.pool
	}

	equity := globalCash.Add(cashAllocated).Add(positionsValue)

	invested := p.invested()

	if invested.IsPositive() {
		p.nbDays++
	}

	drawdown := decimal.Zero

	if equity.IsPositive() {
		if !p.peakSet || equity.GreaterThan(p.peak) {
			p.peak = equity
			p.peakSet = true
		}
	}

	if p.peakSet && p.peak.IsPositive() {
		drawdown = equity.Sub(p.peak).Div(p.peak)
		if drawdown.LessThan(p.maxDrawdown) {
			p.maxDrawdown = drawdown
		}
	}

	p.rows = append(p.rows, types.PortfolioDaily{
		Date:           date,
		GlobalCash:     globalCash.InexactFloat64(),
		CashAllocated:  cashAllocated.InexactFloat64(),
		PositionsValue: positionsValue.InexactFloat64(),
		Equity:         equity.InexactFloat64(),
		Invested:       invested.InexactFloat64(),
		Drawdown:       drawdown.InexactFloat64(),
	})
}

// invested returns the capital considered deployed up to now. Constrained
// runs report the deepest pool draw so far; unconstrained runs report the sum
// of wallets that ever bought.
func (p *portfolioTracker) invested() decimal.Decimal {
	if p.constrained {
		current := p.capitalTotal.Sub(p.pool)
		if current.GreaterThan(p.investedMax) {
			p.investedMax = current
		}

		return p.investedMax
	}

	return p.investedCum
}

// amendLastRow rewrites the final row after forced closes moved value from
// positions into cash. Equity is unchanged because closes execute at the
// valuation price.
func (p *portfolioTracker) amendLastRow(slots []*slot) {
	if len(p.rows) == 0 {
		return
	}

	last := &p.rows[len(p.rows)-1]

	cashAllocated, positionsValue := p.compose(slots)

	globalCash := decimal.Zero
	if p.constrained {
		globalCash = p.pool
	}

	last.GlobalCash = globalCash.InexactFloat64()
	last.CashAllocated = cashAllocated.InexactFloat64()
	last.PositionsValue = positionsValue.InexactFloat64()
}

// kpis computes the end-of-run summary.
func (p *portfolioTracker) kpis() types.PortfolioKPI {
	kpi := types.PortfolioKPI{
		CapitalTotal: p.capitalTotal.InexactFloat64(),
		NbDays:       p.nbDays,
		MaxDrawdown:  p.maxDrawdown.InexactFloat64(),
	}

	if len(p.rows) == 0 {
		return kpi
	}

	last := p.rows[len(p.rows)-1]
	kpi.InvestedEnd = last.Invested
	kpi.EquityEnd = last.Equity

	if last.Invested > 0 {
		btReturn := (last.Equity - last.Invested) / last.Invested
		kpi.BTReturn = &btReturn

		if p.nbDays > 0 {
			bmjReturn := btReturn / float64(p.nbDays)
			kpi.BMJReturn = &bmjReturn
		}
	}

	return kpi
}
