package backtest

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/signalhouse/tickerlab/internal/types"
)

// slot is the unit of position keeping: one (symbol, signal line) pair. A
// slot is flat or holds one position; it never pyramids.
type slot struct {
	symbol    string
	lineIndex int
	line      types.SignalLine

	// wallet is the slot's cash. Flat and unreserved it is the next
	// allocation size; while a position is open it holds the remainder that
	// did not buy a whole share.
	wallet decimal.Decimal

	// allocated marks a wallet reserved from the shared pool (constrained
	// mode only).
	allocated bool
	// everAllocated marks a slot that has executed at least one buy
	// (unconstrained accounting).
	everAllocated bool

	inPosition bool
	shares     int64
	entryPrice decimal.Decimal
	entryDate  time.Time

	pendingBuy  bool
	pendingSell bool

	n            int
	sumG         decimal.Decimal
	tradableDays int
	holdingDays  int

	// closedG holds the gain of a trade closed today until the day's stat row
	// is recorded.
	closedG optional.Option[decimal.Decimal]

	daily []types.DailyStat
}

func newSlot(symbol string, lineIndex int, line types.SignalLine, capital decimal.Decimal) *slot {
	return &slot{
		symbol:    symbol,
		lineIndex: lineIndex,
		line:      line,
		wallet:    capital,
		sumG:      decimal.Zero,
	}
}

// closeTrade books a completed round trip and returns the trade record.
// proceeds plus the held remainder become the slot's new wallet.
func (s *slot) closeTrade(id string, exitDate time.Time, exitPrice decimal.Decimal, forced bool) types.Trade {
	proceeds := exitPrice.Mul(decimal.NewFromInt(s.shares))
	g := exitPrice.Sub(s.entryPrice).Div(s.entryPrice)

	trade := types.Trade{
		ID:          id,
		Symbol:      s.symbol,
		LineIndex:   s.lineIndex,
		EntryDate:   s.entryDate,
		EntryPrice:  s.entryPrice.InexactFloat64(),
		ExitDate:    exitDate,
		ExitPrice:   exitPrice.InexactFloat64(),
		Shares:      s.shares,
		G:           g.InexactFloat64(),
		ForcedClose: forced,
	}

	s.wallet = s.wallet.Add(proceeds)
	s.n++
	s.sumG = s.sumG.Add(g)
	s.closedG = optional.Some(g)
	s.inPosition = false
	s.shares = 0
	s.entryPrice = decimal.Zero
	s.entryDate = time.Time{}
	s.pendingSell = false

	return trade
}

// recordDay appends the slot's end-of-day stat row. ratio is the symbol's
// positivity ratio on that day, when defined.
func (s *slot) recordDay(date time.Time, ratio optional.Option[decimal.Decimal]) {
	stat := types.DailyStat{
		Date:         date,
		InPosition:   s.inPosition,
		Shares:       s.shares,
		Wallet:       s.wallet.InexactFloat64(),
		N:            s.n,
		SumG:         s.sumG.InexactFloat64(),
		BT:           s.sumG.InexactFloat64(),
		TradableDays: s.tradableDays,
		HoldingDays:  s.holdingDays,
	}

	if ratio.IsSome() {
		r := ratio.Unwrap().InexactFloat64()
		stat.RatioP = &r
	}

	if s.closedG.IsSome() {
		g := s.closedG.Unwrap().InexactFloat64()
		stat.G = &g
		s.closedG = optional.None[decimal.Decimal]()
	}

	if s.n > 0 {
		sgn := s.sumG.Div(decimal.NewFromInt(int64(s.n))).InexactFloat64()
		stat.SGN = &sgn
	}

	if s.tradableDays > 0 {
		bmj := s.sumG.Div(decimal.NewFromInt(int64(s.tradableDays))).InexactFloat64()
		stat.BMJ = &bmj
	}

	if s.holdingDays > 0 {
		bmd := s.sumG.Div(decimal.NewFromInt(int64(s.holdingDays))).InexactFloat64()
		stat.BMD = &bmd
	}

	s.daily = append(s.daily, stat)
}

// amendLastDay rewrites the most recent stat row after a forced close changed
// the slot's state on that day. The replaced row's ratio is kept.
func (s *slot) amendLastDay() {
	if len(s.daily) == 0 {
		return
	}

	last := s.daily[len(s.daily)-1]
	s.daily = s.daily[:len(s.daily)-1]

	ratio := optional.None[decimal.Decimal]()
	if last.RatioP != nil {
		ratio = optional.Some(decimal.NewFromFloat(*last.RatioP))
	}

	s.recordDay(last.Date, ratio)
}

// result assembles the slot's line-level output.
func (s *slot) result() types.LineResult {
	res := types.LineResult{
		Symbol:       s.symbol,
		LineIndex:    s.lineIndex,
		Line:         s.line,
		N:            s.n,
		SumG:         s.sumG.InexactFloat64(),
		BT:           s.sumG.InexactFloat64(),
		TradableDays: s.tradableDays,
		HoldingDays:  s.holdingDays,
		Daily:        s.daily,
	}

	if s.n > 0 {
		sgn := s.sumG.Div(decimal.NewFromInt(int64(s.n))).InexactFloat64()
		res.SGN = &sgn
	}

	if s.tradableDays > 0 {
		bmj := s.sumG.Div(decimal.NewFromInt(int64(s.tradableDays))).InexactFloat64()
		res.BMJ = &bmj
	}

	if s.holdingDays > 0 {
		bmd := s.sumG.Div(decimal.NewFromInt(int64(s.holdingDays))).InexactFloat64()
		res.BMD = &bmd
	}

	return res
}
