package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/signalhouse/tickerlab/internal/types"
)

// crossUp reports a strict upward crossing: the series was strictly below the
// line on the previous day and is strictly above it today. A touch is not a
// crossing.
func crossUp(prevSeries, prevLine, curSeries, curLine decimal.Decimal) bool {
	return prevSeries.LessThan(prevLine) && curSeries.GreaterThan(curLine)
}

// crossDown is the mirror of crossUp.
func crossDown(prevSeries, prevLine, curSeries, curLine decimal.Decimal) bool {
	return prevSeries.GreaterThan(prevLine) && curSeries.LessThan(curLine)
}

// detectAlerts evaluates every crossing rule for one day. Each rule requires
// all four of its values; a missing value suppresses that rule only. Codes
// are appended in a fixed order so recomputes are reproducible.
func detectAlerts(st *state, high decimal.Decimal, metric *types.Metric) []types.Alert {
	var codes []types.AlertCode

	emit := func(code types.AlertCode) {
		codes = append(codes, code)
	}

	prev := st.prev

	if prev.valid && metric.P.IsSome() && metric.M1.IsSome() {
		p := metric.P.Unwrap()

		// P against the channel mean M1.
		m1 := metric.M1.Unwrap()
		if crossUp(prev.p, prev.m1, p, m1) {
			emit(types.AlertA1)
		}

		if crossDown(prev.p, prev.m1, p, m1) {
			emit(types.AlertB1)
		}

		// P against the adjusted mean M1 - (K1f - K1).
		if prev.k1f.IsSome() && metric.K1f.IsSome() && metric.K1.IsSome() {
			prevLine := prev.m1.Sub(prev.k1f.Unwrap().Sub(prev.k1))
			curLine := m1.Sub(metric.K1f.Unwrap().Sub(metric.K1.Unwrap()))

			if crossUp(prev.p, prevLine, p, curLine) {
				emit(types.AlertA1f)
			}

			if crossDown(prev.p, prevLine, p, curLine) {
				emit(types.AlertB1f)
			}
		}

		// P against the channel floor X1.
		if metric.X1.IsSome() {
			x1 := metric.X1.Unwrap()
			if crossUp(prev.p, prev.x1, p, x1) {
				emit(types.AlertC1)
			}

			if crossDown(prev.p, prev.x1, p, x1) {
				emit(types.AlertD1)
			}
		}

		// P against the lower band Q.
		if metric.Q.IsSome() {
			q := metric.Q.Unwrap()
			if crossUp(prev.p, prev.q, p, q) {
				emit(types.AlertE1)
			}

			if crossDown(prev.p, prev.q, p, q) {
				emit(types.AlertF1)
			}
		}

		// P against the upper band S.
		if metric.S.IsSome() {
			s := metric.S.Unwrap()
			if crossUp(prev.p, prev.s, p, s) {
				emit(types.AlertG1)
			}

			if crossDown(prev.p, prev.s, p, s) {
				emit(types.AlertH1)
			}
		}

		// P against the smoothed line M1 + K2f. B2f also fires on a negative
		// slope divergence while the line is defined on both days.
		if prev.k2f.IsSome() && metric.K2f.IsSome() {
			prevLine := prev.m1.Add(prev.k2f.Unwrap())
			curLine := m1.Add(metric.K2f.Unwrap())

			if crossUp(prev.p, prevLine, p, curLine) {
				emit(types.AlertA2f)
			}

			diffNegative := metric.Diff.IsSome() && metric.Diff.Unwrap().IsNegative()
			if crossDown(prev.p, prevLine, p, curLine) || diffNegative {
				emit(types.AlertB2f)
			}
		}
	}

	// High against the resistance line V_line, gated independently of the
	// channel block.
	if st.prevHigh.IsSome() && st.prevVLine.IsSome() && metric.VLine.IsSome() {
		prevHigh := st.prevHigh.Unwrap()
		prevVLine := st.prevVLine.Unwrap()
		curVLine := metric.VLine.Unwrap()

		if crossUp(prevHigh, prevVLine, high, curVLine) {
			emit(types.AlertI1)
		}

		if crossDown(prevHigh, prevVLine, high, curVLine) {
			emit(types.AlertJ1)
		}
	}

	if len(codes) == 0 {
		return nil
	}

	alerts := make([]types.Alert, 0, len(codes))
	for _, code := range codes {
		alerts = append(alerts, types.Alert{
			Symbol:    metric.Symbol,
			Date:      metric.Date,
			Code:      code,
			CreatedAt: metric.ComputedAt,
		})
	}

	return alerts
}
