package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/signalhouse/tickerlab/pkg/errors"
)

// warmupSlack extends the replay window of incremental recomputes beyond the
// strict minimum so that every window is saturated before the first emitted day.
const warmupSlack = 10

// ScenarioParams is the full parameter set of an indicator scenario.
// Two scenarios are considered equal when their Hash values match.
type ScenarioParams struct {
	Name string `yaml:"name" json:"name" jsonschema:"title=Name,description=Human readable scenario name"`

	// Weighted price coefficients. P = (a*close + b*high + c*low + d*open) / (a+b+c+d).
	A decimal.Decimal `yaml:"a" json:"a" jsonschema:"title=A,description=Close weight of the weighted price"`
	B decimal.Decimal `yaml:"b" json:"b" jsonschema:"title=B,description=High weight of the weighted price"`
	C decimal.Decimal `yaml:"c" json:"c" jsonschema:"title=C,description=Low weight of the weighted price"`
	D decimal.Decimal `yaml:"d" json:"d" jsonschema:"title=D,description=Open weight of the weighted price"`

	// E divides the channel half-width. Must be strictly positive.
	E decimal.Decimal `yaml:"e" json:"e" jsonschema:"title=E,description=Channel width divisor,exclusiveMinimum=0"`

	// VC and FL shape the K1f adjustment.
	VC decimal.Decimal `yaml:"vc" json:"vc" jsonschema:"title=VC,description=Ratio offset of the K1f adjustment"`
	FL decimal.Decimal `yaml:"fl" json:"fl" jsonschema:"title=FL,description=Scale factor of the K1f adjustment"`

	// Window lengths.
	N1  int `yaml:"n1" json:"n1" validate:"gte=1" jsonschema:"title=N1,description=Rolling extrema window over prior weighted prices,minimum=1"`
	N2  int `yaml:"n2" json:"n2" validate:"gte=1" jsonschema:"title=N2,description=Rolling mean window over prior extrema,minimum=1"`
	N3  int `yaml:"n3" json:"n3" validate:"gte=1" jsonschema:"title=N3,description=Close slope lookback in days,minimum=1"`
	N4  int `yaml:"n4" json:"n4" validate:"gte=1" jsonschema:"title=N4,description=Slope history window,minimum=1"`
	N5  int `yaml:"n5" json:"n5" validate:"gte=1" jsonschema:"title=N5,description=Weighted price variation window,minimum=1"`
	K2J int `yaml:"k2j" json:"k2j" validate:"gte=1" jsonschema:"title=K2J,description=K2f smoothing window,minimum=1"`

	// CR scales the K2f correction term.
	CR decimal.Decimal `yaml:"cr" json:"cr" jsonschema:"title=CR,description=K2f correction scale"`

	// MV is the high-price window of the V line. Values below 2 disable the line.
	MV int `yaml:"m_v" json:"m_v" validate:"gte=0" jsonschema:"title=MV,description=High price window of the V line,minimum=0"`

	// HistoryYears bounds how much bar history is loaded for this scenario.
	HistoryYears int `yaml:"history_years" json:"history_years" validate:"gte=1" jsonschema:"title=History Years,description=Years of bar history to load,minimum=1"`
}

// UnmarshalYAML implements custom unmarshaling for ScenarioParams.
// Decimal parameters are written as plain numbers in YAML.
func (p *ScenarioParams) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type params struct {
		Name         string  `yaml:"name"`
		A            float64 `yaml:"a"`
		B            float64 `yaml:"b"`
		C            float64 `yaml:"c"`
		D            float64 `yaml:"d"`
		E            float64 `yaml:"e"`
		VC           float64 `yaml:"vc"`
		FL           float64 `yaml:"fl"`
		N1           int     `yaml:"n1"`
		N2           int     `yaml:"n2"`
		N3           int     `yaml:"n3"`
		N4           int     `yaml:"n4"`
		N5           int     `yaml:"n5"`
		K2J          int     `yaml:"k2j"`
		CR           float64 `yaml:"cr"`
		MV           int     `yaml:"m_v"`
		HistoryYears int     `yaml:"history_years"`
	}

	var raw params
	if err := unmarshal(&raw); err != nil {
		return err
	}

	p.Name = raw.Name
	p.A = decimal.NewFromFloat(raw.A)
	p.B = decimal.NewFromFloat(raw.B)
	p.C = decimal.NewFromFloat(raw.C)
	p.D = decimal.NewFromFloat(raw.D)
	p.E = decimal.NewFromFloat(raw.E)
	p.VC = decimal.NewFromFloat(raw.VC)
	p.FL = decimal.NewFromFloat(raw.FL)
	p.N1 = raw.N1
	p.N2 = raw.N2
	p.N3 = raw.N3
	p.N4 = raw.N4
	p.N5 = raw.N5
	p.K2J = raw.K2J
	p.CR = decimal.NewFromFloat(raw.CR)
	p.MV = raw.MV
	p.HistoryYears = raw.HistoryYears

	return nil
}

// Validate checks the parameter set. E must be strictly positive; window
// lengths must be at least one.
func (p *ScenarioParams) Validate() error {
	validate := validator.New()
	if err := validate.Struct(p); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidScenario, "invalid scenario parameters", err)
	}

	if !p.E.IsPositive() {
		return errors.Newf(errors.ErrCodeInvalidScenario, "parameter e must be strictly positive, got %s", p.E.String())
	}

	return nil
}

// M1V is the derived V-line smoothing window: max(1, m_v/2).
func (p *ScenarioParams) M1V() int {
	m := p.MV / 2
	if m < 1 {
		return 1
	}

	return m
}

// WarmupDays is the number of bars an incremental recompute must replay before
// its first emitted day so that every rolling window is fully saturated. With
// this rewind, an incremental pass is bit-identical to a full pass over the
// emitted range.
func (p *ScenarioParams) WarmupDays() int {
	warmup := p.N1 + p.N2
	if d := p.N3 + p.N4; d > warmup {
		warmup = d
	}

	// K2f_pre only starts accumulating once both the channel block and the
	// variation window are saturated, then needs k2j values to smooth.
	k2fChain := p.N1 + p.N2
	if p.N5 > k2fChain {
		k2fChain = p.N5
	}

	if d := k2fChain + p.K2J; d > warmup {
		warmup = d
	}

	if d := p.MV + p.M1V(); d > warmup {
		warmup = d
	}

	return warmup + warmupSlack
}

// Hash returns the hex-encoded SHA-256 of the canonical scenario string.
// Every computation parameter participates, so any change forces a full
// recompute. Name and HistoryYears are excluded: neither affects the
// computed values.
func (p *ScenarioParams) Hash() string {
	fields := []string{
		p.A.String(),
		p.B.String(),
		p.C.String(),
		p.D.String(),
		p.E.String(),
		p.VC.String(),
		p.FL.String(),
		strconv.Itoa(p.N1),
		strconv.Itoa(p.N2),
		strconv.Itoa(p.N3),
		strconv.Itoa(p.N4),
		strconv.Itoa(p.N5),
		strconv.Itoa(p.K2J),
		p.CR.String(),
		strconv.Itoa(p.MV),
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))

	return hex.EncodeToString(sum[:])
}
