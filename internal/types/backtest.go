package types

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/signalhouse/tickerlab/pkg/errors"
)

// SignalLine pairs a buy alert code with an exit rule. When SpecialExit is
// set the line exits on the K1f downward crossing rule instead of a sell
// alert code, and Sell may be empty.
type SignalLine struct {
	Buy         AlertCode `yaml:"buy" json:"buy" jsonschema:"title=Buy Code,description=Alert code that opens a position"`
	Sell        AlertCode `yaml:"sell" json:"sell" jsonschema:"title=Sell Code,description=Alert code that closes a position"`
	SpecialExit bool      `yaml:"special_exit" json:"special_exit" jsonschema:"title=Special Exit,description=Exit on the K1f downward crossing rule instead of a sell code"`
}

// Validate checks the line's codes against their direction.
func (l SignalLine) Validate() error {
	if !l.Buy.IsBuy() {
		return errors.Newf(errors.ErrCodeInvalidSignalLine, "buy code %q is not an upward crossing code", l.Buy)
	}

	if l.SpecialExit {
		if l.Sell != "" && !l.Sell.IsSell() {
			return errors.Newf(errors.ErrCodeInvalidSignalLine, "sell code %q is not a downward crossing code", l.Sell)
		}

		return nil
	}

	if !l.Sell.IsSell() {
		return errors.Newf(errors.ErrCodeInvalidSignalLine, "sell code %q is not a downward crossing code", l.Sell)
	}

	return nil
}

// BacktestConfig configures a simulator run. Capital is expressed in plain
// currency units; a CapitalTotal of zero selects unconstrained mode where
// every slot funds itself independently.
type BacktestConfig struct {
	StartDate time.Time `yaml:"-" json:"start_date" validate:"required" jsonschema:"title=Start Date,description=First simulated day (YYYY-MM-DD)"`
	EndDate   time.Time `yaml:"-" json:"end_date" validate:"required" jsonschema:"title=End Date,description=Last simulated day (YYYY-MM-DD)"`

	// Symbols is the trading universe, snapshotted into the result file.
	Symbols []string `yaml:"symbols" json:"symbols" validate:"required,min=1" jsonschema:"title=Symbols,description=Trading universe"`

	// CapitalTotal is the shared pool (CP). Zero disables pool constraints.
	CapitalTotal float64 `yaml:"capital_total" json:"capital_total" validate:"gte=0" jsonschema:"title=Capital Total,description=Shared capital pool; 0 for unconstrained mode,minimum=0"`
	// CapitalPerTicker is the default allocation per slot (CT).
	CapitalPerTicker float64 `yaml:"capital_per_ticker" json:"capital_per_ticker" validate:"gte=0" jsonschema:"title=Capital Per Ticker,description=Default allocation per slot,minimum=0"`
	// SymbolCapital overrides CapitalPerTicker for specific symbols.
	SymbolCapital map[string]float64 `yaml:"symbol_capital" json:"symbol_capital,omitempty" jsonschema:"title=Symbol Capital,description=Per symbol allocation overrides"`

	// RatioThreshold is the minimum eligibility ratio (percent) to allocate.
	RatioThreshold float64 `yaml:"ratio_threshold" json:"ratio_threshold" validate:"gte=0" jsonschema:"title=Ratio Threshold,description=Minimum eligibility ratio in percent,minimum=0"`
	// IncludeAllTickers skips the ratio gate entirely.
	IncludeAllTickers bool `yaml:"include_all_tickers" json:"include_all_tickers" jsonschema:"title=Include All Tickers,description=Ignore the ratio threshold"`

	SignalLines []SignalLine `yaml:"signal_lines" json:"signal_lines" validate:"required,min=1" jsonschema:"title=Signal Lines,description=Buy and sell code pairs traded per symbol"`

	// ClosePositionsAtEnd force-closes open positions at the last known price.
	ClosePositionsAtEnd bool `yaml:"close_positions_at_end" json:"close_positions_at_end" jsonschema:"title=Close Positions At End,description=Force close open positions on the final day"`
}

// UnmarshalYAML implements custom unmarshaling for BacktestConfig.
// Dates are written as YYYY-MM-DD strings.
func (c *BacktestConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type config struct {
		StartDate           string             `yaml:"start_date"`
		EndDate             string             `yaml:"end_date"`
		Symbols             []string           `yaml:"symbols"`
		CapitalTotal        float64            `yaml:"capital_total"`
		CapitalPerTicker    float64            `yaml:"capital_per_ticker"`
		SymbolCapital       map[string]float64 `yaml:"symbol_capital"`
		RatioThreshold      float64            `yaml:"ratio_threshold"`
		IncludeAllTickers   bool               `yaml:"include_all_tickers"`
		SignalLines         []SignalLine       `yaml:"signal_lines"`
		ClosePositionsAtEnd bool               `yaml:"close_positions_at_end"`
	}

	var raw config
	if err := unmarshal(&raw); err != nil {
		return err
	}

	if raw.StartDate != "" {
		start, err := ParseDate(raw.StartDate)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidDateRange, err, "invalid start_date %q", raw.StartDate)
		}

		c.StartDate = start
	}

	if raw.EndDate != "" {
		end, err := ParseDate(raw.EndDate)
		if err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidDateRange, err, "invalid end_date %q", raw.EndDate)
		}

		c.EndDate = end
	}

	c.Symbols = raw.Symbols
	c.CapitalTotal = raw.CapitalTotal
	c.CapitalPerTicker = raw.CapitalPerTicker
	c.SymbolCapital = raw.SymbolCapital
	c.RatioThreshold = raw.RatioThreshold
	c.IncludeAllTickers = raw.IncludeAllTickers
	c.SignalLines = raw.SignalLines
	c.ClosePositionsAtEnd = raw.ClosePositionsAtEnd

	return nil
}

// MarshalYAML renders the config with YYYY-MM-DD date strings.
func (c BacktestConfig) MarshalYAML() (interface{}, error) {
	type config struct {
		StartDate           string             `yaml:"start_date"`
		EndDate             string             `yaml:"end_date"`
		Symbols             []string           `yaml:"symbols"`
		CapitalTotal        float64            `yaml:"capital_total"`
		CapitalPerTicker    float64            `yaml:"capital_per_ticker"`
		SymbolCapital       map[string]float64 `yaml:"symbol_capital,omitempty"`
		RatioThreshold      float64            `yaml:"ratio_threshold"`
		IncludeAllTickers   bool               `yaml:"include_all_tickers"`
		SignalLines         []SignalLine       `yaml:"signal_lines"`
		ClosePositionsAtEnd bool               `yaml:"close_positions_at_end"`
	}

	return config{
		StartDate:           FormatDate(c.StartDate),
		EndDate:             FormatDate(c.EndDate),
		Symbols:             c.Symbols,
		CapitalTotal:        c.CapitalTotal,
		CapitalPerTicker:    c.CapitalPerTicker,
		SymbolCapital:       c.SymbolCapital,
		RatioThreshold:      c.RatioThreshold,
		IncludeAllTickers:   c.IncludeAllTickers,
		SignalLines:         c.SignalLines,
		ClosePositionsAtEnd: c.ClosePositionsAtEnd,
	}, nil
}

// Validate checks the config before a run. Errors here abort the run with no
// partial output.
func (c *BacktestConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeBacktestConfigError, "invalid backtest config", err)
	}

	if len(c.Symbols) == 0 {
		return errors.New(errors.ErrCodeEmptyUniverse, "symbol universe is empty")
	}

	if c.EndDate.Before(c.StartDate) {
		return errors.Newf(errors.ErrCodeInvalidDateRange, "end_date %s is before start_date %s",
			FormatDate(c.EndDate), FormatDate(c.StartDate))
	}

	if len(c.SignalLines) == 0 {
		return errors.New(errors.ErrCodeInvalidSignalLine, "no signal lines configured")
	}

	for i, line := range c.SignalLines {
		if err := line.Validate(); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidSignalLine, err, "signal line %d", i)
		}
	}

	if c.CapitalTotal > 0 && c.CapitalPerTicker <= 0 {
		return errors.New(errors.ErrCodeBacktestConfigError, "capital_per_ticker must be positive in constrained mode")
	}

	return nil
}

// SlotCapital returns the initial allocation for a symbol, honoring
// per-symbol overrides.
func (c *BacktestConfig) SlotCapital(symbol string) float64 {
	if override, ok := c.SymbolCapital[symbol]; ok {
		return override
	}

	return c.CapitalPerTicker
}

// Constrained reports whether the run draws allocations from a shared pool.
func (c *BacktestConfig) Constrained() bool {
	return c.CapitalTotal > 0
}

// GenerateSchema generates a JSON schema for the BacktestConfig.
func (c *BacktestConfig) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t.String() == "types.AlertCode" {
				codes := make([]any, 0, len(AllAlertCodes))
				for _, code := range AllAlertCodes {
					codes = append(codes, string(code))
				}

				return &jsonschema.Schema{
					Type: "string",
					Enum: codes,
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)

	schema.Title = "backtest-config"
	schema.Description = "Configuration schema for the backtest simulator"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the BacktestConfig.
func (c *BacktestConfig) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

// EmptyConfig returns a BacktestConfig with default values.
func EmptyConfig() BacktestConfig {
	return BacktestConfig{
		Symbols:     []string{},
		SignalLines: []SignalLine{},
	}
}
