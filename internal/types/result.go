package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalhouse/tickerlab/internal/version"
	"github.com/signalhouse/tickerlab/pkg/errors"
)

// Trade is one completed round trip on a (symbol, line) slot.
type Trade struct {
	ID        string `yaml:"id" json:"id"`
	Symbol    string `yaml:"symbol" json:"symbol"`
	LineIndex int    `yaml:"line_index" json:"line_index"`
	// Entry and exit both execute at the open of the day following the signal.
	EntryDate  time.Time `yaml:"entry_date" json:"entry_date"`
	EntryPrice float64   `yaml:"entry_price" json:"entry_price"`
	ExitDate   time.Time `yaml:"exit_date" json:"exit_date"`
	ExitPrice  float64   `yaml:"exit_price" json:"exit_price"`
	Shares     int64     `yaml:"shares" json:"shares"`
	// G is the per-trade return (exit - entry) / entry.
	G float64 `yaml:"g" json:"g"`
	// ForcedClose marks trades closed by the end-of-run flag rather than a signal.
	ForcedClose bool `yaml:"forced_close,omitempty" json:"forced_close,omitempty"`
}

// DailyStat is the per-day state of one (symbol, line) slot.
type DailyStat struct {
	Date       time.Time `yaml:"date" json:"date"`
	InPosition bool      `yaml:"in_position" json:"in_position"`
	Shares     int64     `yaml:"shares" json:"shares"`
	Wallet     float64   `yaml:"wallet" json:"wallet"`
	// RatioP is the symbol's positivity ratio that day; nil when undefined.
	RatioP *float64 `yaml:"ratio_p" json:"ratio_p"`
	// N is the number of completed trades so far.
	N int `yaml:"n" json:"n"`
	// G is the gain of the trade closed that day; nil when none closed.
	G    *float64 `yaml:"g" json:"g"`
	SumG float64  `yaml:"sum_g" json:"sum_g"`
	// SGN is sum_g / N; nil until the first trade completes.
	SGN *float64 `yaml:"sgn" json:"sgn"`
	BT  float64  `yaml:"bt" json:"bt"`
	// BMJ is BT per tradable day, BMD is BT per holding day. Nil while the
	// respective counter is zero.
	BMJ          *float64 `yaml:"bmj" json:"bmj"`
	BMD          *float64 `yaml:"bmd" json:"bmd"`
	TradableDays int      `yaml:"tradable_days" json:"tradable_days"`
	HoldingDays  int      `yaml:"holding_days" json:"holding_days"`
}

// LineResult is the full output of one (symbol, line) slot: its summary
// figures plus the daily series.
type LineResult struct {
	Symbol       string     `yaml:"symbol" json:"symbol"`
	LineIndex    int        `yaml:"line_index" json:"line_index"`
	Line         SignalLine `yaml:"line" json:"line"`
	N            int        `yaml:"n" json:"n"`
	SumG         float64    `yaml:"sum_g" json:"sum_g"`
	SGN          *float64   `yaml:"sgn" json:"sgn"`
	BT           float64    `yaml:"bt" json:"bt"`
	BMJ          *float64   `yaml:"bmj" json:"bmj"`
	BMD          *float64   `yaml:"bmd" json:"bmd"`
	TradableDays int        `yaml:"tradable_days" json:"tradable_days"`
	HoldingDays  int        `yaml:"holding_days" json:"holding_days"`
	Daily        []DailyStat `yaml:"daily" json:"daily"`
}

// PortfolioDaily is one row of the portfolio-level daily series.
type PortfolioDaily struct {
	Date time.Time `yaml:"date" json:"date"`
	// GlobalCash is the unreserved pool; always zero in unconstrained mode.
	GlobalCash float64 `yaml:"global_cash" json:"global_cash"`
	// CashAllocated is cash held by slots: in-position remainders plus
	// active reservations, plus flat wallets in unconstrained mode.
	CashAllocated  float64 `yaml:"cash_allocated" json:"cash_allocated"`
	PositionsValue float64 `yaml:"positions_value" json:"positions_value"`
	Equity         float64 `yaml:"equity" json:"equity"`
	Invested       float64 `yaml:"invested" json:"invested"`
	// Drawdown is (equity - peak) / peak, never positive.
	Drawdown float64 `yaml:"drawdown" json:"drawdown"`
}

// PortfolioKPI summarizes the portfolio series at the end of the run.
type PortfolioKPI struct {
	CapitalTotal float64  `yaml:"capital_total" json:"capital_total"`
	InvestedEnd  float64  `yaml:"invested_end" json:"invested_end"`
	EquityEnd    float64  `yaml:"equity_end" json:"equity_end"`
	BTReturn     *float64 `yaml:"bt_return" json:"bt_return"`
	BMJReturn    *float64 `yaml:"bmj_return" json:"bmj_return"`
	// NbDays counts days with capital deployed.
	NbDays      int     `yaml:"nb_days" json:"nb_days"`
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown"`
}

// BacktestResult is the persisted output of one simulator run.
type BacktestResult struct {
	// ID is the unique identifier for this backtest run.
	ID string `yaml:"id" json:"id"`
	// EngineVersion is the engine version that produced this file, checked
	// with semver compatibility on load.
	EngineVersion string         `yaml:"engine_version" json:"engine_version"`
	GeneratedAt   time.Time      `yaml:"generated_at" json:"generated_at"`
	Config        BacktestConfig `yaml:"config" json:"config"`
	Trades        []Trade        `yaml:"trades" json:"trades"`
	Lines         []LineResult   `yaml:"lines" json:"lines"`
	Portfolio     []PortfolioDaily `yaml:"portfolio" json:"portfolio"`
	KPI           PortfolioKPI     `yaml:"kpi" json:"kpi"`
}

// WriteResultFile serializes a backtest result to a YAML file.
func WriteResultFile(path string, result *BacktestResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest result to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write backtest result to file: %w", err)
	}

	return nil
}

// LoadResultFile reads a backtest result from a YAML file and checks that
// the recorded engine version is compatible with the running engine.
func LoadResultFile(path string) (*BacktestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backtest result file: %w", err)
	}

	var result BacktestResult
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal backtest result: %w", err)
	}

	if err := version.CheckVersionCompatibility(version.GetVersion(), result.EngineVersion); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidVersion, "backtest result file is incompatible with this engine", err)
	}

	return &result, nil
}
