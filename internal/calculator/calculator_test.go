package calculator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prodplan/prodplan_api/internal/models"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func in(stock, reserve, sales60 string) Inputs {
	return Inputs{Stock: dec(stock), Reserve: dec(reserve), Sales60: dec(sales60)}
}

func TestCalculate_CriticalRunway(t *testing.T) {
	res := Calculate(in("3", "0", "60"), DefaultTunables())

	assert.Equal(t, models.ProductTypeCritical, res.Type)
	assert.True(t, dec("1").Equal(res.AvgDailyConsumption), "adc = %s", res.AvgDailyConsumption)
	require.True(t, res.DaysOfStock.Valid)
	assert.True(t, dec("3").Equal(res.DaysOfStock.Decimal), "days = %s", res.DaysOfStock.Decimal)
	// ceil(15*1 - 3) = 12
	assert.True(t, dec("12").Equal(res.ProductionNeed), "need = %s", res.ProductionNeed)
	assert.GreaterOrEqual(t, res.Priority, 88)
}

func TestCalculate_ReserveOverride(t *testing.T) {
	res := Calculate(in("100", "800", "0"), DefaultTunables())

	assert.Equal(t, models.ProductTypeNew, res.Type)
	assert.False(t, res.DaysOfStock.Valid)
	// branch yields 0; the reserve floor lifts the need to 800
	assert.True(t, dec("800").Equal(res.ProductionNeed), "need = %s", res.ProductionNeed)
	assert.GreaterOrEqual(t, res.Priority, 30)
}

func TestCalculate_LowStockWithSlowSales(t *testing.T) {
	// stock < 5 while selling makes the product critical even when the
	// runway looks comfortable; the need branch can still come out zero.
	res := Calculate(in("4", "0", "6"), DefaultTunables())

	assert.Equal(t, models.ProductTypeCritical, res.Type)
	assert.True(t, dec("0.1").Equal(res.AvgDailyConsumption))
	require.True(t, res.DaysOfStock.Valid)
	assert.True(t, dec("40").Equal(res.DaysOfStock.Decimal))
	// ceil(15*0.1 - 4) = ceil(-2.5) -> floored at 0
	assert.True(t, res.ProductionNeed.IsZero(), "need = %s", res.ProductionNeed)
}

func TestCalculate_NewProductBatch(t *testing.T) {
	res := Calculate(in("2", "0", "0"), DefaultTunables())

	assert.Equal(t, models.ProductTypeNew, res.Type)
	assert.True(t, dec("8").Equal(res.ProductionNeed), "need = %s", res.ProductionNeed)

	// Already stocked above the initial batch: nothing to produce.
	res = Calculate(in("12", "0", "0"), DefaultTunables())
	assert.True(t, res.ProductionNeed.IsZero())
}

func TestCalculate_SteadyBands(t *testing.T) {
	tun := DefaultTunables()

	// Slow mover at the low-stock threshold: nothing to produce.
	res := Calculate(in("5", "0", "2"), tun)
	assert.Equal(t, models.ProductTypeSteady, res.Type)
	assert.True(t, res.ProductionNeed.IsZero())

	// Medium sales with stock inside the band: top up to target days.
	res = Calculate(in("6", "0", "8"), tun)
	assert.Equal(t, models.ProductTypeSteady, res.Type)
	// adc = 8/60 = 0.1333, ceil(15*0.1333 - 6) = ceil(-4.0005) -> 0
	assert.True(t, res.ProductionNeed.IsZero())

	// High sales: always top up to target days.
	res = Calculate(in("10", "0", "120"), tun)
	assert.Equal(t, models.ProductTypeSteady, res.Type)
	// adc = 2, ceil(30 - 10) = 20
	assert.True(t, dec("20").Equal(res.ProductionNeed), "need = %s", res.ProductionNeed)
}

func TestCalculate_Classification(t *testing.T) {
	tun := DefaultTunables()

	assert.Equal(t, models.ProductTypeCritical, Calculate(in("4.99", "0", "1"), tun).Type)
	assert.Equal(t, models.ProductTypeNew, Calculate(in("0", "0", "0"), tun).Type)
	assert.Equal(t, models.ProductTypeNew, Calculate(in("3", "0", "0"), tun).Type)
	assert.Equal(t, models.ProductTypeSteady, Calculate(in("5", "0", "1"), tun).Type)
}

func TestCalculate_NeedNeverNegativeAndCoversReserve(t *testing.T) {
	tun := DefaultTunables()
	stocks := []string{"0", "1", "4", "5", "10", "50", "1000"}
	reserves := []string{"0", "0.5", "3", "100"}
	sales := []string{"0", "1", "3", "6", "10", "60", "600"}

	for _, st := range stocks {
		for _, rv := range reserves {
			for _, sl := range sales {
				res := Calculate(in(st, rv, sl), tun)
				assert.False(t, res.ProductionNeed.IsNegative(),
					"stock=%s reserve=%s sales=%s", st, rv, sl)
				if dec(rv).IsPositive() {
					assert.True(t, res.ProductionNeed.GreaterThanOrEqual(dec(rv)),
						"need %s < reserve %s (stock=%s sales=%s)",
						res.ProductionNeed, rv, st, sl)
				}
				assert.GreaterOrEqual(t, res.Priority, 0)
				assert.LessOrEqual(t, res.Priority, 100)
			}
		}
	}
}

func TestCalculate_MonotonicInStock(t *testing.T) {
	tun := DefaultTunables()
	sales := []string{"0", "2", "6", "20", "120"}
	reserves := []string{"0", "5"}

	for _, sl := range sales {
		for _, rv := range reserves {
			prev := decimal.NewFromInt(-1)
			// walk stock downward; the need must never decrease
			for _, st := range []string{"30", "20", "12", "8", "6", "4", "2", "1", "0"} {
				res := Calculate(in(st, rv, sl), tun)
				if prev.Sign() >= 0 {
					assert.True(t, res.ProductionNeed.GreaterThanOrEqual(prev),
						"need dropped from %s to %s at stock=%s sales=%s reserve=%s",
						prev, res.ProductionNeed, st, sl, rv)
				}
				prev = res.ProductionNeed
			}
		}
	}
}

func TestCalculate_ADCRounding(t *testing.T) {
	res := Calculate(in("10", "0", "1"), DefaultTunables())
	// 1/60 = 0.016666... -> 0.0167 at 4 dp
	assert.True(t, dec("0.0167").Equal(res.AvgDailyConsumption), "adc = %s", res.AvgDailyConsumption)
}

func TestSortByPriority(t *testing.T) {
	products := []models.Product{
		{Article: "B-2", ProductionPriority: 50},
		{Article: "A-1", ProductionPriority: 90},
		{Article: "A-0", ProductionPriority: 50},
	}
	SortByPriority(products)

	assert.Equal(t, "A-1", products[0].Article)
	assert.Equal(t, "A-0", products[1].Article)
	assert.Equal(t, "B-2", products[2].Article)
}

func TestApply(t *testing.T) {
	p := &models.Product{}
	res := Calculate(in("3", "1", "60"), DefaultTunables())
	Apply(p, res)

	assert.Equal(t, res.Type, p.ProductType)
	assert.True(t, res.ProductionNeed.Equal(p.ProductionNeed))
	assert.Equal(t, res.Priority, p.ProductionPriority)
	assert.True(t, res.AvgDailyConsumption.Equal(p.AvgDailyConsumption))
}
