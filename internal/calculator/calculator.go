// Package calculator derives the planning fields of a product from its stock
// snapshot and trailing 60-day sales. All functions are pure; quantity math
// uses decimals to match the upstream ERP's fractional stock units.
package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/prodplan/prodplan_api/internal/models"
)

// salesWindowDays is the length of the turnover window the inputs refer to.
const salesWindowDays = 60

// priority weights per product type.
const (
	weightCritical = 60
	weightNew      = 20
	weightSteady   = 10

	runwayBonusMax = 40
	reserveBonus   = 10
)

// Tunables are the thresholds of the classification and production-need
// rules. Values come from the general settings singleton.
type Tunables struct {
	LowStock        decimal.Decimal // stock below this while selling => critical
	LowSales        decimal.Decimal // 60-day sales at or below this => slow mover
	MedSalesHi      decimal.Decimal // upper bound of the medium sales band (exclusive)
	MedStockHi      decimal.Decimal // stock bound for the medium sales band
	TargetDays      decimal.Decimal // days of stock a batch should cover
	DefaultNewStock decimal.Decimal // initial batch size for products with no sales
}

// DefaultTunables returns the stock thresholds used when no settings row
// overrides them.
func DefaultTunables() Tunables {
	return Tunables{
		LowStock:        decimal.NewFromInt(5),
		LowSales:        decimal.NewFromInt(3),
		MedSalesHi:      decimal.NewFromInt(10),
		MedStockHi:      decimal.NewFromInt(6),
		TargetDays:      decimal.NewFromInt(15),
		DefaultNewStock: decimal.NewFromInt(10),
	}
}

// TunablesFromSettings builds Tunables from the general settings singleton.
func TunablesFromSettings(s *models.GeneralSettings) Tunables {
	return Tunables{
		LowStock:        decimal.NewFromInt(int64(s.LowStockThreshold)),
		LowSales:        decimal.NewFromInt(int64(s.LowSalesThreshold)),
		MedSalesHi:      decimal.NewFromInt(int64(s.MediumSalesUpper)),
		MedStockHi:      decimal.NewFromInt(int64(s.MediumStockUpper)),
		TargetDays:      decimal.NewFromInt(int64(s.TargetStockDays)),
		DefaultNewStock: decimal.NewFromInt(int64(s.DefaultNewProductStock)),
	}
}

// Inputs is the consistent triple a calculation runs on.
type Inputs struct {
	Stock   decimal.Decimal
	Reserve decimal.Decimal
	Sales60 decimal.Decimal
}

// Result carries every derived planning field.
type Result struct {
	Type                models.ProductType
	AvgDailyConsumption decimal.Decimal     // sales60 / 60, rounded to 4 dp
	DaysOfStock         decimal.NullDecimal // defined only when consumption > 0
	ProductionNeed      decimal.Decimal
	Priority            int // 0..100
}

// Calculate derives classification, runway, production need and priority.
func Calculate(in Inputs, t Tunables) Result {
	res := Result{Type: classify(in, t)}

	res.AvgDailyConsumption = in.Sales60.
		Div(decimal.NewFromInt(salesWindowDays)).
		Round(4)
	if res.AvgDailyConsumption.IsPositive() {
		res.DaysOfStock = decimal.NullDecimal{
			Decimal: in.Stock.DivRound(res.AvgDailyConsumption, 4),
			Valid:   true,
		}
	}

	need := branchNeed(in, t, res)
	// A reserved quantity is already promised to someone; production must
	// cover it no matter what the branch said.
	if in.Reserve.IsPositive() && in.Reserve.GreaterThan(need) {
		need = in.Reserve
	}
	res.ProductionNeed = need

	res.Priority = priority(in, t, res)
	return res
}

// classify applies the type rules. Classification is independent of the
// production-need branches.
func classify(in Inputs, t Tunables) models.ProductType {
	switch {
	case in.Stock.LessThan(t.LowStock) && in.Sales60.IsPositive():
		return models.ProductTypeCritical
	case in.Sales60.IsZero():
		return models.ProductTypeNew
	default:
		return models.ProductTypeSteady
	}
}

// branchNeed computes the per-type production need before the reserve floor.
func branchNeed(in Inputs, t Tunables, res Result) decimal.Decimal {
	zero := decimal.Zero

	switch res.Type {
	case models.ProductTypeCritical:
		return topUpToTarget(in.Stock, res.AvgDailyConsumption, t.TargetDays)

	case models.ProductTypeNew:
		if in.Stock.LessThan(t.DefaultNewStock) && in.Sales60.IsZero() {
			return t.DefaultNewStock.Sub(in.Stock)
		}
		return zero

	default: // steady
		switch {
		case in.Sales60.LessThanOrEqual(t.LowSales) && in.Stock.LessThan(t.LowStock):
			if diff := t.LowStock.Sub(in.Stock); diff.IsPositive() {
				return diff
			}
			return zero
		case in.Sales60.GreaterThan(t.LowSales) && in.Sales60.LessThan(t.MedSalesHi) &&
			in.Stock.LessThanOrEqual(t.MedStockHi):
			return topUpToTarget(in.Stock, res.AvgDailyConsumption, t.TargetDays)
		case in.Sales60.GreaterThanOrEqual(t.MedSalesHi):
			return topUpToTarget(in.Stock, res.AvgDailyConsumption, t.TargetDays)
		default:
			return zero
		}
	}
}

// topUpToTarget returns ceil(targetDays*adc - stock) floored at zero.
func topUpToTarget(stock, adc, targetDays decimal.Decimal) decimal.Decimal {
	need := targetDays.Mul(adc).Sub(stock).Ceil()
	if need.IsNegative() {
		return decimal.Zero
	}
	return need
}

// priority ranks a product 0..100 from its type, runway and reserve.
func priority(in Inputs, t Tunables, res Result) int {
	p := 0
	switch res.Type {
	case models.ProductTypeCritical:
		p = weightCritical
	case models.ProductTypeNew:
		p = weightNew
	default:
		p = weightSteady
	}

	if res.DaysOfStock.Valid && t.TargetDays.IsPositive() {
		shortness := decimal.NewFromInt(1).Sub(res.DaysOfStock.Decimal.Div(t.TargetDays))
		if shortness.IsPositive() {
			bonus := shortness.Mul(decimal.NewFromInt(runwayBonusMax)).Round(0).IntPart()
			if bonus > runwayBonusMax {
				bonus = runwayBonusMax
			}
			p += int(bonus)
		}
	}

	if in.Reserve.IsPositive() {
		p += reserveBonus
	}

	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// Apply writes a calculation result onto a product.
func Apply(p *models.Product, res Result) {
	p.AvgDailyConsumption = res.AvgDailyConsumption
	p.ProductType = res.Type
	p.DaysOfStock = res.DaysOfStock
	p.ProductionNeed = res.ProductionNeed
	p.ProductionPriority = res.Priority
}

// SortByPriority orders products for production lists: highest priority
// first, ties broken by ascending article.
func SortByPriority(products []models.Product) {
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].ProductionPriority != products[j].ProductionPriority {
			return products[i].ProductionPriority > products[j].ProductionPriority
		}
		return products[i].Article < products[j].Article
	})
}
