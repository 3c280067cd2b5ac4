package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Metric holds every derived value for one symbol and day. A value is None
// when its inputs were unavailable on that day, either because the scenario
// windows were not yet saturated or because an input was itself None.
type Metric struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`

	// Weighted price and rolling extrema.
	P  optional.Option[decimal.Decimal] `json:"p"`
	M  optional.Option[decimal.Decimal] `json:"m"`
	X  optional.Option[decimal.Decimal] `json:"x"`
	M1 optional.Option[decimal.Decimal] `json:"m1"`
	X1 optional.Option[decimal.Decimal] `json:"x1"`

	// Channel values derived from M1/X1.
	T optional.Option[decimal.Decimal] `json:"t"`
	Q optional.Option[decimal.Decimal] `json:"q"`
	S optional.Option[decimal.Decimal] `json:"s"`

	// Distances of P to the channel lines.
	K1 optional.Option[decimal.Decimal] `json:"k1"`
	K2 optional.Option[decimal.Decimal] `json:"k2"`
	K3 optional.Option[decimal.Decimal] `json:"k3"`
	K4 optional.Option[decimal.Decimal] `json:"k4"`

	// Trend-adjusted distances.
	K1f    optional.Option[decimal.Decimal] `json:"k1f"`
	K2fPre optional.Option[decimal.Decimal] `json:"k2f_pre"`
	K2f    optional.Option[decimal.Decimal] `json:"k2f"`
	Diff   optional.Option[decimal.Decimal] `json:"diff"`

	// V line over daily highs.
	VPre  optional.Option[decimal.Decimal] `json:"v_pre"`
	VLine optional.Option[decimal.Decimal] `json:"v_line"`

	// Trend block.
	V       optional.Option[decimal.Decimal] `json:"v"`
	SlopeP  optional.Option[decimal.Decimal] `json:"slope_p"`
	NbPosP  optional.Option[int]             `json:"nb_pos_p"`
	SumPosP optional.Option[decimal.Decimal] `json:"sum_pos_p"`
	RatioP  optional.Option[decimal.Decimal] `json:"ratio_p"`
	AmpH    optional.Option[decimal.Decimal] `json:"amp_h"`

	ComputedAt time.Time `json:"computed_at"`
}

// AlertCode identifies a signal produced by a crossing detector.
type AlertCode string

const (
	AlertA1  AlertCode = "A1"
	AlertB1  AlertCode = "B1"
	AlertA1f AlertCode = "A1f"
	AlertB1f AlertCode = "B1f"
	AlertC1  AlertCode = "C1"
	AlertD1  AlertCode = "D1"
	AlertE1  AlertCode = "E1"
	AlertF1  AlertCode = "F1"
	AlertG1  AlertCode = "G1"
	AlertH1  AlertCode = "H1"
	AlertA2f AlertCode = "A2f"
	AlertB2f AlertCode = "B2f"
	AlertI1  AlertCode = "I1"
	AlertJ1  AlertCode = "J1"
)

// AllAlertCodes lists every code in emission order.
var AllAlertCodes = []AlertCode{
	AlertA1, AlertB1,
	AlertA1f, AlertB1f,
	AlertC1, AlertD1,
	AlertE1, AlertF1,
	AlertG1, AlertH1,
	AlertA2f, AlertB2f,
	AlertI1, AlertJ1,
}

// IsBuy reports whether the code signals an upward crossing.
func (c AlertCode) IsBuy() bool {
	switch c {
	case AlertA1, AlertA1f, AlertC1, AlertE1, AlertG1, AlertA2f, AlertI1:
		return true
	default:
		return false
	}
}

// IsSell reports whether the code signals a downward crossing.
func (c AlertCode) IsSell() bool {
	switch c {
	case AlertB1, AlertB1f, AlertD1, AlertF1, AlertH1, AlertB2f, AlertJ1:
		return true
	default:
		return false
	}
}

// IsValid reports whether the code is one of the known alert codes.
func (c AlertCode) IsValid() bool {
	return c.IsBuy() || c.IsSell()
}

// Alert is a single signal emitted for a symbol and day.
type Alert struct {
	Symbol    string    `json:"symbol"`
	Date      time.Time `json:"date"`
	Code      AlertCode `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}
