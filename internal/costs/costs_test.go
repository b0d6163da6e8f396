package costs

import (
	"math"
	"testing"
	"time"

	"github.com/strategylab/core/pkg/models"
)

func TestCommissionFloor(t *testing.T) {
	r := CommissionRates{Rate: 0.00025, MinFee: 5.0}
	if got := r.Commission(1000); got != 5.0 {
		t.Fatalf("small trade commission = %v, want floor 5.0", got)
	}
	if got := r.Commission(1_000_000); got != 250.0 {
		t.Fatalf("large trade commission = %v, want 250.0", got)
	}
}

func TestStampTaxSellSideOnly(t *testing.T) {
	r := StampTaxRate{Rate: 0.0005}
	if tax := r.StampTax(10000, models.SideLong, models.ActionOpen); tax != 0 {
		t.Fatalf("buy-side stamp tax = %v, want 0", tax)
	}
	if tax := r.StampTax(10000, models.SideLong, models.ActionClose); tax != 5.0 {
		t.Fatalf("sell-side stamp tax = %v, want 5.0", tax)
	}
	if tax := r.StampTax(10000, models.SideShort, models.ActionOpen); tax != 5.0 {
		t.Fatalf("short-open stamp tax = %v, want 5.0", tax)
	}
}

func TestSlippageDirectionality(t *testing.T) {
	fx := FixedSlippage{Pct: 0.01}
	ctx := MarketContext{Volume: 1000}
	buy := fx.AdjustPrice(100, 10, ctx, BuySide)
	sell := fx.AdjustPrice(100, 10, ctx, SellSide)
	if buy <= 100 {
		t.Fatalf("buy fill price %v should exceed reference 100", buy)
	}
	if sell >= 100 {
		t.Fatalf("sell fill price %v should be below reference 100", sell)
	}
}

func TestVolumeSlippageGrowsWithParticipation(t *testing.T) {
	v := VolumeSlippage{K: 0.1}
	ctx := MarketContext{Volume: 10000}
	small := v.AdjustPrice(100, 10, ctx, BuySide)
	large := v.AdjustPrice(100, 5000, ctx, BuySide)
	if large-100 <= small-100 {
		t.Fatalf("larger participation should produce larger slippage: small=%v large=%v", small, large)
	}
}

func TestVolumeSlippageClipsToMax(t *testing.T) {
	v := VolumeSlippage{K: 10, MaxPct: 0.05}
	ctx := MarketContext{Volume: 100}
	got := v.AdjustPrice(100, 9000, ctx, BuySide)
	if got > 100*1.05+1e-9 {
		t.Fatalf("slippage %v exceeds the 5%% clip", got)
	}
}

func TestMarketImpactGrowsWithParticipation(t *testing.T) {
	m := MarketImpactSlippage{VolatilityWeight: 1, Alpha: 0.5, UrgencyFactor: 1}
	ctx := MarketContext{Volume: 10000, Volatility: 0.02}
	small := m.AdjustPrice(100, 10, ctx, BuySide)
	large := m.AdjustPrice(100, 5000, ctx, BuySide)
	if large-100 <= small-100 {
		t.Fatalf("larger participation should produce larger impact: small=%v large=%v", small, large)
	}
}

func TestBidAskUsesLiveQuoteWhenAvailable(t *testing.T) {
	b := BidAskSpreadSlippage{BaseSpreadPct: 0.002}
	ctx := MarketContext{HasQuote: true, Bid: 99.5, Ask: 100.5}
	if got := b.AdjustPrice(100, 10, ctx, BuySide); got != 100.5 {
		t.Fatalf("buy with live quote = %v, want ask 100.5", got)
	}
	if got := b.AdjustPrice(100, 10, ctx, SellSide); got != 99.5 {
		t.Fatalf("sell with live quote = %v, want bid 99.5", got)
	}
}

func TestBidAskFallsBackToHalfSpread(t *testing.T) {
	b := BidAskSpreadSlippage{BaseSpreadPct: 0.01, VolatilityFactor: 0.5}
	ctx := MarketContext{Volatility: 0.02}
	got := b.AdjustPrice(100, 10, ctx, BuySide)
	wantPct := 0.01/2 + 0.5*0.02
	want := 100 * (1 + wantPct)
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("half-spread buy price = %v, want %v", got, want)
	}
}

func TestShortInterestAccrual(t *testing.T) {
	r := ShortInterestRate{AnnualRate: 0.08}
	daily := r.AccrueDaily(36000)
	want := 36000 * 0.08 / 360
	if math.Abs(daily-want) > 1e-9 {
		t.Fatalf("daily accrual = %v, want %v", daily, want)
	}
	if got := r.AccrueOverDays(36000, 30); math.Abs(got-daily*30) > 1e-9 {
		t.Fatalf("30-day accrual = %v, want %v", got, daily*30)
	}
}

func TestAnalyzerBreakdown(t *testing.T) {
	trades := []models.Trade{
		{Quantity: 100, FillPrice: 10, Commission: 5, StampTax: 5, SlippageCost: 1},
		{Quantity: 50, FillPrice: 20, Commission: 5, StampTax: 5, SlippageCost: 1},
	}
	equity := EquitySeries{{Equity: 100000, CumCost: 0}, {Equity: 100100, CumCost: 22}}
	a := New(trades, equity)
	b := a.Analyze()

	if b.TotalCost != 22 {
		t.Fatalf("total cost = %v, want 22", b.TotalCost)
	}
	wantTurnover := 100*10.0 + 50*20.0
	if b.GrossTurnover != wantTurnover {
		t.Fatalf("gross turnover = %v, want %v", b.GrossTurnover, wantTurnover)
	}
	if b.AverageCapital <= 0 {
		t.Fatal("expected positive average capital")
	}
}

func TestAnalyzerRescaleZeroRemovesCosts(t *testing.T) {
	equity := EquitySeries{{Equity: 100000, CumCost: 0}, {Equity: 99900, CumCost: 100}}
	a := New(nil, equity)
	rescaled := a.Rescale(0)
	if rescaled[1].Equity != 100000 {
		t.Fatalf("zero-cost rescale equity = %v, want 100000", rescaled[1].Equity)
	}
	if rescaled[1].CumCost != 0 {
		t.Fatalf("zero-cost rescale CumCost = %v, want 0", rescaled[1].CumCost)
	}
}

func TestAnalyzerRescaleIdentityAtOne(t *testing.T) {
	equity := EquitySeries{{Equity: 99900, CumCost: 100}}
	a := New(nil, equity)
	rescaled := a.Rescale(1.0)
	if rescaled[0].Equity != equity[0].Equity || rescaled[0].CumCost != equity[0].CumCost {
		t.Fatalf("multiplier=1 rescale should be identity, got %+v want %+v", rescaled[0], equity[0])
	}
}

func TestAnalyzerByStockAttributesAndSorts(t *testing.T) {
	trades := []models.Trade{
		{Stock: "A", Quantity: 100, FillPrice: 10, Commission: 5, StampTax: 0, SlippageCost: 1},
		{Stock: "B", Quantity: 100, FillPrice: 10, Commission: 5, StampTax: 10, SlippageCost: 1},
		{Stock: "A", Quantity: 100, FillPrice: 11, Commission: 5, StampTax: 11, SlippageCost: 1},
	}
	a := New(trades, nil)
	byStock := a.ByStock()
	if len(byStock) != 2 {
		t.Fatalf("got %d stocks, want 2", len(byStock))
	}
	if byStock[0].Stock != "A" {
		t.Fatalf("highest-cost stock first: got %s", byStock[0].Stock)
	}
	if byStock[0].TradeCount != 2 || byStock[0].Commission != 10 {
		t.Fatalf("A attribution wrong: %+v", byStock[0])
	}
}

func TestAnalyzerByDayCumulates(t *testing.T) {
	d1 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		{Stock: "A", FillDate: d2, Commission: 3},
		{Stock: "A", FillDate: d1, Commission: 5, StampTax: 2},
		{Stock: "B", FillDate: d1, Commission: 1},
	}
	a := New(trades, nil)
	byDay := a.ByDay()
	if len(byDay) != 2 {
		t.Fatalf("got %d days, want 2", len(byDay))
	}
	if !byDay[0].Date.Equal(d1) || byDay[0].Cost != 8 {
		t.Fatalf("first day wrong: %+v", byDay[0])
	}
	if byDay[1].CumCost != 11 {
		t.Fatalf("cumulative cost = %v, want 11", byDay[1].CumCost)
	}
}
