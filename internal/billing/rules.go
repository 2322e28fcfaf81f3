package billing

// Method selects how base maintenance is computed.
type Method string

const (
	MethodSqft     Method = "sqft"
	MethodVariable Method = "variable"
)

// Distribution selects how a pooled amount is split across flats.
type Distribution string

const (
	DistEqual Distribution = "equal"
	DistSqft  Distribution = "sqft"
)

// WaterMode selects the water charge calculation.
type WaterMode string

const (
	WaterFlat   WaterMode = "flat"
	WaterPerson WaterMode = "person"
	WaterMeter  WaterMode = "meter"
)

// FundRule configures one fund component. The pooled total is Total when
// set, otherwise RatePerSqft times the society's total area.
type FundRule struct {
	Total        float64      `json:"total" validate:"gte=0"`
	RatePerSqft  float64      `json:"rate_per_sqft" validate:"gte=0"`
	Distribution Distribution `json:"distribution" validate:"omitempty,oneof=equal sqft"`
}

// RuleSet is the society's billing configuration, maintained by the admin
// subsystem and validated before every calculation run.
type RuleSet struct {
	SocietyID         int64        `json:"-"`
	Method            Method       `json:"method" validate:"oneof=sqft variable"`
	RatePerSqft       float64      `json:"rate_per_sqft" validate:"gte=0"`
	VariablePool      float64      `json:"variable_pool" validate:"gte=0"`
	FixedExpenseCodes []string     `json:"fixed_expense_codes"`
	FixedDistribution Distribution `json:"fixed_distribution" validate:"omitempty,oneof=equal sqft"`
	WaterMode         WaterMode    `json:"water_mode" validate:"oneof=flat person meter"`
	WaterExpenseCodes []string     `json:"water_expense_codes"`
	Sinking           FundRule     `json:"sinking"`
	Repair            FundRule     `json:"repair"`
	Corpus            FundRule     `json:"corpus"`
}

// Overrides lets the admin replace computed pools for one generation run.
type Overrides struct {
	WaterTotal *float64
	FixedPool  *float64
	// Occupants adjusts the effective occupant count per flat; it feeds the
	// shared per-person denominator as well as the flat's own share.
	Occupants map[int64]int
	// MeterCharges supplies metered water amounts per flat for WaterMeter
	// societies.
	MeterCharges map[int64]float64
}
