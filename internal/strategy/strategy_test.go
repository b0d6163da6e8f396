package strategy

import (
	"context"
	"testing"

	"github.com/strategylab/core/internal/calendar"
	"github.com/strategylab/core/pkg/models"
)

func mkBars(closes []float64) []models.OHLCV {
	out := make([]models.OHLCV, len(closes))
	for i, c := range closes {
		out[i] = models.OHLCV{Close: c, High: c + 1, Low: c - 1, Volume: 1000}
	}
	return out
}

func TestSMA(t *testing.T) {
	bars := mkBars([]float64{1, 2, 3, 4, 5})
	got, ok := SMA(bars, 4, 3)
	if !ok {
		t.Fatal("expected enough bars for SMA(3)")
	}
	want := (3.0 + 4.0 + 5.0) / 3.0
	if got != want {
		t.Fatalf("SMA = %v, want %v", got, want)
	}
	if _, ok := SMA(bars, 1, 5); ok {
		t.Fatal("expected insufficient bars for SMA(5) at index 1")
	}
}

func TestRSIBoundsZeroToHundred(t *testing.T) {
	allUp := mkBars([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15})
	rsi, ok := RSI(allUp, 14, 14)
	if !ok {
		t.Fatal("expected RSI available")
	}
	if rsi != 100 {
		t.Fatalf("all-gains RSI = %v, want 100", rsi)
	}
}

func TestMomentumSelectorRanksByReturn(t *testing.T) {
	history := map[models.StockCode][]models.OHLCV{
		"A": mkBars([]float64{10, 11, 12, 20}),
		"B": mkBars([]float64{10, 10, 10, 10}),
	}
	sel := NewMomentumSelector(3, 2, history)
	snap := MarketSnapshot{Pos: 3}
	candidates, scores, err := sel.Select(context.Background(), snap, []models.StockCode{"A", "B"})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) == 0 || candidates[0] != "A" {
		t.Fatalf("expected A to rank first, got %v (scores=%v)", candidates, scores)
	}
}

func TestImmediateEntryEntersAllCandidates(t *testing.T) {
	e := NewImmediateEntry(0.1)
	decisions, err := e.Decide(context.Background(), MarketSnapshot{}, []models.StockCode{"A", "B"})
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 2 {
		t.Fatalf("expected 2 entry decisions, got %d", len(decisions))
	}
	for _, d := range decisions {
		if !d.Enter || d.TargetWeight != 0.1 {
			t.Fatalf("unexpected decision: %+v", d)
		}
	}
}

func TestFixedStopExitTriggers(t *testing.T) {
	history := map[models.StockCode][]models.OHLCV{"A": mkBars([]float64{100, 90, 80})}
	entry := map[models.StockCode]float64{"A": 100}
	exit := NewFixedStopExit(0.15, entry, history)
	decisions, err := exit.Decide(context.Background(), MarketSnapshot{Pos: 2}, []models.StockCode{"A"})
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 1 || !decisions[0].Exit {
		t.Fatalf("expected stop to trigger at 20%% loss, got %+v", decisions)
	}
}

func TestTimeBasedExitTriggersAfterMaxBars(t *testing.T) {
	entryPos := map[models.StockCode]int{"A": 0}
	exit := NewTimeBasedExit(5, entryPos)
	decisions, err := exit.Decide(context.Background(), MarketSnapshot{Pos: 5}, []models.StockCode{"A"})
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 1 {
		t.Fatalf("expected time-based exit to trigger, got %+v", decisions)
	}
}

func TestCombinedExitUnionsTriggers(t *testing.T) {
	entryPos := map[models.StockCode]int{"A": 0, "B": 0}
	timeExit := NewTimeBasedExit(100, entryPos) // won't trigger
	history := map[models.StockCode][]models.OHLCV{
		"A": mkBars([]float64{100, 50}),
		"B": mkBars([]float64{100, 99}),
	}
	stopExit := NewFixedStopExit(0.1, map[models.StockCode]float64{"A": 100, "B": 100}, history)
	combined := NewCombinedExit(timeExit, stopExit)

	decisions, err := combined.Decide(context.Background(), MarketSnapshot{Pos: 1}, []models.StockCode{"A", "B"})
	if err != nil {
		t.Fatal(err)
	}
	if len(decisions) != 1 || decisions[0].Stock != "A" {
		t.Fatalf("expected only A to exit via combined stop, got %+v", decisions)
	}
}

func TestComposerFiltersExitingStocksFromEntries(t *testing.T) {
	history := map[models.StockCode][]models.OHLCV{
		"A": mkBars([]float64{10, 20}),
		"B": mkBars([]float64{10, 10}),
	}
	sel := NewMomentumSelector(1, 5, history)
	entry := NewImmediateEntry(0.5)
	entryPos := map[models.StockCode]int{"A": 0}
	exit := NewTimeBasedExit(1, entryPos) // A has been held >= 1 bar, should exit

	c := &Composer{Selector: sel, Entry: entry, Exit: exit}
	decision, err := c.Decide(context.Background(), MarketSnapshot{Pos: 1}, []models.StockCode{"A", "B"}, []models.StockCode{"A"})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range decision.Entries {
		if e.Stock == "A" {
			t.Fatalf("stock A is exiting this period, should not also appear in entries: %+v", decision.Entries)
		}
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestValidateParamsRejectsUnknownKey(t *testing.T) {
	schema := models.ParamSchema{Specs: []models.ParamSpec{{Name: "lookback", Type: models.ParamInt}}}
	err := ValidateParams(schema, map[string]interface{}{"lookback": 10, "bogus": 1})
	if err == nil {
		t.Fatal("expected an error for an unknown parameter")
	}
}

func TestValidateParamsEnforcesRange(t *testing.T) {
	schema := models.ParamSchema{Specs: []models.ParamSpec{
		{Name: "threshold", Type: models.ParamFloat, Min: floatPtr(0), Max: floatPtr(1)},
	}}
	if err := ValidateParams(schema, map[string]interface{}{"threshold": 1.5}); err == nil {
		t.Fatal("expected an error for a threshold above max")
	}
	if err := ValidateParams(schema, map[string]interface{}{"threshold": 0.5}); err != nil {
		t.Fatalf("unexpected error for an in-range threshold: %v", err)
	}
}

func TestValidateParamsChecksSelectOptions(t *testing.T) {
	schema := models.ParamSchema{Specs: []models.ParamSpec{
		{Name: "mode", Type: models.ParamSelect, Options: []string{"long_only", "market_neutral"}},
	}}
	if err := ValidateParams(schema, map[string]interface{}{"mode": "bogus"}); err == nil {
		t.Fatal("expected an error for a select value outside its options")
	}
	if err := ValidateParams(schema, map[string]interface{}{"mode": "long_only"}); err != nil {
		t.Fatalf("unexpected error for a valid select value: %v", err)
	}
}

func TestValidateParamsRejectsTypeMismatch(t *testing.T) {
	schema := models.ParamSchema{Specs: []models.ParamSpec{{Name: "lookback", Type: models.ParamInt}}}
	if err := ValidateParams(schema, map[string]interface{}{"lookback": "twenty"}); err == nil {
		t.Fatal("expected an error for a string value where an int was declared")
	}
}

func TestBindParamsAppliesDefaults(t *testing.T) {
	schema := models.ParamSchema{Specs: []models.ParamSpec{
		{Name: "lookback", Type: models.ParamInt, Default: 20},
	}}
	var b Base
	if err := b.BindParams(schema, map[string]interface{}{}); err != nil {
		t.Fatalf("BindParams() error: %v", err)
	}
	if b.Params["lookback"] != 20 {
		t.Fatalf("got lookback %v, want default 20", b.Params["lookback"])
	}
}

func TestComposerValidateRejectsBadFrequency(t *testing.T) {
	history := map[models.StockCode][]models.OHLCV{"A": mkBars([]float64{10, 11})}
	c := &Composer{
		Selector:      NewMomentumSelector(1, 5, history),
		Entry:         NewImmediateEntry(0.5),
		Exit:          NewTimeBasedExit(10, map[models.StockCode]int{}),
		RebalanceFreq: "Q",
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected Validate() to reject an unsupported rebalance frequency")
	}
	c.RebalanceFreq = calendar.Weekly
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() with a supported frequency: unexpected error: %v", err)
	}
}

func TestComposerCompositionIDAndMetadata(t *testing.T) {
	history := map[models.StockCode][]models.OHLCV{"A": mkBars([]float64{10, 11})}
	c := &Composer{
		Selector:      NewMomentumSelector(1, 5, history),
		Entry:         NewImmediateEntry(0.5),
		Exit:          NewTimeBasedExit(10, map[models.StockCode]int{}),
		RebalanceFreq: calendar.Daily,
	}
	id := c.CompositionID()
	if id != "momentum__immediate__time_based_exit__D" {
		t.Fatalf("got composition id %q", id)
	}
	meta := c.Metadata()
	if meta.ID != id || meta.RebalanceFreq != "D" {
		t.Fatalf("Metadata() = %+v, want id %q and rebalance_freq D", meta, id)
	}
}
