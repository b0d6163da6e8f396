package strategy

import (
	"context"

	"github.com/strategylab/core/pkg/models"
)

// ImmediateEntry enters every candidate at equal weight, the simplest
// possible entry rule: "if selected, buy".
type ImmediateEntry struct {
	Base
	WeightPerStock float64
}

// NewImmediateEntry builds an ImmediateEntry with the given per-stock
// target weight (fraction of portfolio value).
func NewImmediateEntry(weightPerStock float64) *ImmediateEntry {
	return &ImmediateEntry{Base: Base{ID: "immediate", Name: "Immediate Entry"}, WeightPerStock: weightPerStock}
}

func (e *ImmediateEntry) Metadata() models.StrategyMetadata { return e.Base.Metadata(models.KindEntry) }

func (e *ImmediateEntry) Decide(ctx context.Context, snap MarketSnapshot, candidates []models.StockCode) ([]EntryDecision, error) {
	out := make([]EntryDecision, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, EntryDecision{Stock: c, Enter: true, TargetWeight: e.WeightPerStock, Reason: "selected"})
	}
	return out, nil
}

// MACrossoverEntry enters a candidate only once its fast SMA crosses above
// its slow SMA (a classic trend-confirmation filter layered on top of
// whatever the selector already picked).
type MACrossoverEntry struct {
	Base
	Fast, Slow     int
	WeightPerStock float64
	history        map[models.StockCode][]models.OHLCV
}

// NewMACrossoverEntry builds a MACrossoverEntry reading bar history from
// the given per-stock history map.
func NewMACrossoverEntry(fast, slow int, weightPerStock float64, history map[models.StockCode][]models.OHLCV) *MACrossoverEntry {
	return &MACrossoverEntry{
		Base:           Base{ID: "ma_crossover_entry", Name: "Moving Average Crossover Entry"},
		Fast:           fast,
		Slow:           slow,
		WeightPerStock: weightPerStock,
		history:        history,
	}
}

func (e *MACrossoverEntry) Metadata() models.StrategyMetadata {
	return e.Base.Metadata(models.KindEntry)
}

func (e *MACrossoverEntry) Decide(ctx context.Context, snap MarketSnapshot, candidates []models.StockCode) ([]EntryDecision, error) {
	out := make([]EntryDecision, 0, len(candidates))
	for _, stock := range candidates {
		bars, ok := e.history[stock]
		if !ok || snap.Pos >= len(bars) {
			continue
		}
		fastSMA, fok := SMA(bars, snap.Pos, e.Fast)
		slowSMA, sok := SMA(bars, snap.Pos, e.Slow)
		if !fok || !sok {
			continue
		}
		if fastSMA > slowSMA {
			out = append(out, EntryDecision{Stock: stock, Enter: true, TargetWeight: e.WeightPerStock, Reason: "fast SMA above slow SMA"})
		}
	}
	return out, nil
}

// RSIOversoldEntry enters a candidate only if its RSI reading is below the
// oversold Threshold, i.e. "buy the dip" confirmation.
type RSIOversoldEntry struct {
	Base
	Period         int
	Threshold      float64
	WeightPerStock float64
	history        map[models.StockCode][]models.OHLCV
}

// NewRSIOversoldEntry builds an RSIOversoldEntry.
func NewRSIOversoldEntry(period int, threshold, weightPerStock float64, history map[models.StockCode][]models.OHLCV) *RSIOversoldEntry {
	return &RSIOversoldEntry{
		Base:           Base{ID: "rsi_oversold_entry", Name: "RSI Oversold Entry"},
		Period:         period,
		Threshold:      threshold,
		WeightPerStock: weightPerStock,
		history:        history,
	}
}

func (e *RSIOversoldEntry) Metadata() models.StrategyMetadata {
	return e.Base.Metadata(models.KindEntry)
}

func (e *RSIOversoldEntry) Decide(ctx context.Context, snap MarketSnapshot, candidates []models.StockCode) ([]EntryDecision, error) {
	out := make([]EntryDecision, 0, len(candidates))
	for _, stock := range candidates {
		bars, ok := e.history[stock]
		if !ok || snap.Pos >= len(bars) {
			continue
		}
		rsi, ok := RSI(bars, snap.Pos, e.Period)
		if !ok {
			continue
		}
		if rsi < e.Threshold {
			out = append(out, EntryDecision{Stock: stock, Enter: true, TargetWeight: e.WeightPerStock, Reason: "RSI oversold"})
		}
	}
	return out, nil
}
