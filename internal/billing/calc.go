package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/societyledger/societyledger/internal/ledger/shared"
)

// FlatInput is the roster slice the calculation needs per flat.
type FlatInput struct {
	ID        int64
	Number    string
	AreaSqft  float64
	Occupants int
}

// PeriodInput gathers everything one calculation run depends on. Pools are
// already resolved (override or summed transactions) by the caller.
type PeriodInput struct {
	Month             int
	Year              int
	Flats             []FlatInput
	Rules             RuleSet
	WaterTotal        float64
	FixedPool         float64
	Arrears           map[int64]float64
	OccupantOverrides map[int64]int
	MeterCharges      map[int64]float64
}

// Draft is one flat's computed bill before persistence.
type Draft struct {
	FlatID     int64
	FlatNumber string
	Breakdown  Breakdown
	Amount     float64
	Arrears    float64
}

// effectiveOccupants returns the admin-adjusted override when present, else
// the recorded occupant count.
func (in PeriodInput) effectiveOccupants(flat FlatInput) int {
	if n, ok := in.OccupantOverrides[flat.ID]; ok {
		return n
	}
	return flat.Occupants
}

// ComputeBills runs the per-flat charge calculation. Intermediate
// distribution math is full precision; each component is rounded to two
// decimals only when the draft is materialized, and the flat amount is the
// exact sum of its rounded components. Every pooled component must
// reconcile to its pool within 0.01 per flat.
func ComputeBills(ctx context.Context, in PeriodInput) ([]Draft, error) {
	if len(in.Flats) == 0 {
		return nil, nil
	}
	count := decimal.NewFromInt(int64(len(in.Flats)))

	totalArea := decimal.Zero
	totalOccupants := decimal.Zero
	for _, flat := range in.Flats {
		totalArea = totalArea.Add(decimal.NewFromFloat(flat.AreaSqft))
		totalOccupants = totalOccupants.Add(decimal.NewFromInt(int64(in.effectiveOccupants(flat))))
	}

	water := decimal.NewFromFloat(in.WaterTotal)
	fixed := decimal.NewFromFloat(in.FixedPool)
	variablePool := decimal.NewFromFloat(in.Rules.VariablePool)
	if in.Rules.Method == MethodVariable && variablePool.IsZero() {
		variablePool = fundTotal(in.Rules.Sinking, totalArea)
	}
	sinking := fundTotal(in.Rules.Sinking, totalArea)
	repair := fundTotal(in.Rules.Repair, totalArea)
	corpus := fundTotal(in.Rules.Corpus, totalArea)

	if err := checkDenominators(in, totalArea, totalOccupants, water, fixed, variablePool, sinking, repair, corpus); err != nil {
		return nil, err
	}

	var perPerson decimal.Decimal
	if in.Rules.WaterMode == WaterPerson && totalOccupants.IsPositive() {
		perPerson = water.Div(totalOccupants)
	}

	drafts := make([]Draft, len(in.Flats))
	g, _ := errgroup.WithContext(ctx)
	for i, flat := range in.Flats {
		i, flat := i, flat
		g.Go(func() error {
			area := decimal.NewFromFloat(flat.AreaSqft)
			occupants := decimal.NewFromInt(int64(in.effectiveOccupants(flat)))

			var maintenance decimal.Decimal
			if in.Rules.Method == MethodSqft {
				maintenance = decimal.NewFromFloat(in.Rules.RatePerSqft).Mul(area)
			} else {
				maintenance = distribute(variablePool, DistEqual, area, totalArea, count)
			}

			var flatWater decimal.Decimal
			switch in.Rules.WaterMode {
			case WaterPerson:
				flatWater = perPerson.Mul(occupants)
			case WaterFlat:
				flatWater = water.Div(count)
			case WaterMeter:
				flatWater = decimal.NewFromFloat(in.MeterCharges[flat.ID])
			}

			breakdown := Breakdown{
				Maintenance:   round2(maintenance),
				Water:         round2(flatWater),
				FixedExpenses: round2(distribute(fixed, in.Rules.FixedDistribution, area, totalArea, count)),
				SinkingFund:   round2(distribute(sinking, in.Rules.Sinking.Distribution, area, totalArea, count)),
				RepairFund:    round2(distribute(repair, in.Rules.Repair.Distribution, area, totalArea, count)),
				CorpusFund:    round2(distribute(corpus, in.Rules.Corpus.Distribution, area, totalArea, count)),
			}
			arrears := in.Arrears[flat.ID]
			amount := breakdown.Total()
			drafts[i] = Draft{
				FlatID:     flat.ID,
				FlatNumber: flat.Number,
				Breakdown:  breakdown,
				Amount:     amount,
				Arrears:    arrears,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := reconcile(in, drafts, water, fixed, variablePool, sinking, repair, corpus); err != nil {
		return nil, err
	}
	return drafts, nil
}

// fundTotal resolves a fund pool: explicit total wins, else rate times the
// society's area.
func fundTotal(rule FundRule, totalArea decimal.Decimal) decimal.Decimal {
	total := decimal.NewFromFloat(rule.Total)
	if total.IsPositive() {
		return total
	}
	return decimal.NewFromFloat(rule.RatePerSqft).Mul(totalArea)
}

// distribute splits a pool across flats equally or weighted by area.
func distribute(pool decimal.Decimal, dist Distribution, area, totalArea, count decimal.Decimal) decimal.Decimal {
	if pool.IsZero() {
		return decimal.Zero
	}
	if dist == DistSqft {
		return pool.Mul(area).Div(totalArea)
	}
	return pool.Div(count)
}

func checkDenominators(in PeriodInput, totalArea, totalOccupants, water, fixed, variablePool, sinking, repair, corpus decimal.Decimal) error {
	if in.Rules.WaterMode == WaterPerson && water.IsPositive() && !totalOccupants.IsPositive() {
		return shared.Validationf("water pool %.2f cannot be distributed: no occupants recorded", in.WaterTotal)
	}
	needsArea := in.Rules.Method == MethodSqft ||
		(fixed.IsPositive() && in.Rules.FixedDistribution == DistSqft) ||
		(sinking.IsPositive() && in.Rules.Sinking.Distribution == DistSqft) ||
		(repair.IsPositive() && in.Rules.Repair.Distribution == DistSqft) ||
		(corpus.IsPositive() && in.Rules.Corpus.Distribution == DistSqft)
	if needsArea && !totalArea.IsPositive() {
		return shared.Validationf("area-weighted distribution needs flat areas on record")
	}
	_ = variablePool
	return nil
}

// reconcile verifies each pooled component sums back to its pool within
// 0.01 per flat after rounding.
func reconcile(in PeriodInput, drafts []Draft, water, fixed, variablePool, sinking, repair, corpus decimal.Decimal) error {
	var sums Breakdown
	for _, d := range drafts {
		sums.Maintenance += d.Breakdown.Maintenance
		sums.Water += d.Breakdown.Water
		sums.FixedExpenses += d.Breakdown.FixedExpenses
		sums.SinkingFund += d.Breakdown.SinkingFund
		sums.RepairFund += d.Breakdown.RepairFund
		sums.CorpusFund += d.Breakdown.CorpusFund
	}
	tolerance := shared.Tolerance * float64(len(drafts))
	check := func(name string, got float64, pool decimal.Decimal) error {
		want, _ := pool.Float64()
		if diff := got - want; diff > tolerance || diff < -tolerance {
			return shared.Arithmeticf("%s distribution drifted: distributed %.4f vs pool %.2f", name, got, want)
		}
		return nil
	}
	if in.Rules.Method == MethodVariable {
		if err := check("maintenance", sums.Maintenance, variablePool); err != nil {
			return err
		}
	}
	if in.Rules.WaterMode != WaterMeter {
		if err := check("water", sums.Water, water); err != nil {
			return err
		}
	}
	if err := check("fixed expense", sums.FixedExpenses, fixed); err != nil {
		return err
	}
	if err := check("sinking fund", sums.SinkingFund, sinking); err != nil {
		return err
	}
	if err := check("repair fund", sums.RepairFund, repair); err != nil {
		return err
	}
	return check("corpus fund", sums.CorpusFund, corpus)
}

func round2(v decimal.Decimal) float64 {
	f, _ := v.Round(2).Float64()
	return f
}

// BillDescription labels a bill's ledger lines.
func BillDescription(flatNumber string, month, year int) string {
	return fmt.Sprintf("Maintenance bill %02d/%04d flat %s", month, year, flatNumber)
}
