package strategy

import (
	"context"

	"github.com/strategylab/core/pkg/models"
)

// FixedStopExit closes a position once its mark-to-market loss from entry
// price exceeds StopPct.
type FixedStopExit struct {
	Base
	StopPct    float64
	entryPrice map[models.StockCode]float64
	history    map[models.StockCode][]models.OHLCV
}

// NewFixedStopExit builds a FixedStopExit tracking entry prices supplied
// by the caller (the engine records them as positions open).
func NewFixedStopExit(stopPct float64, entryPrice map[models.StockCode]float64, history map[models.StockCode][]models.OHLCV) *FixedStopExit {
	return &FixedStopExit{
		Base:       Base{ID: "fixed_stop_exit", Name: "Fixed Stop-Loss Exit"},
		StopPct:    stopPct,
		entryPrice: entryPrice,
		history:    history,
	}
}

func (e *FixedStopExit) Metadata() models.StrategyMetadata { return e.Base.Metadata(models.KindExit) }

func (e *FixedStopExit) Decide(ctx context.Context, snap MarketSnapshot, held []models.StockCode) ([]ExitDecision, error) {
	out := make([]ExitDecision, 0, len(held))
	for _, stock := range held {
		bars, ok := e.history[stock]
		entry, eok := e.entryPrice[stock]
		if !ok || !eok || snap.Pos >= len(bars) || entry <= 0 {
			continue
		}
		loss := (entry - bars[snap.Pos].Close) / entry
		if loss >= e.StopPct {
			out = append(out, ExitDecision{Stock: stock, Exit: true, Reason: "fixed stop triggered"})
		}
	}
	return out, nil
}

// ATRStopExit closes a position once price falls more than Multiplier*ATR
// below the highest close observed since entry (a trailing ATR stop).
type ATRStopExit struct {
	Base
	Period     int
	Multiplier float64
	entryPos   map[models.StockCode]int
	history    map[models.StockCode][]models.OHLCV
}

// NewATRStopExit builds an ATRStopExit tracking each position's entry
// position index (supplied by the caller when a position opens).
func NewATRStopExit(period int, mult float64, entryPos map[models.StockCode]int, history map[models.StockCode][]models.OHLCV) *ATRStopExit {
	return &ATRStopExit{
		Base:       Base{ID: "atr_stop_exit", Name: "ATR Trailing Stop Exit"},
		Period:     period,
		Multiplier: mult,
		entryPos:   entryPos,
		history:    history,
	}
}

func (e *ATRStopExit) Metadata() models.StrategyMetadata { return e.Base.Metadata(models.KindExit) }

func (e *ATRStopExit) Decide(ctx context.Context, snap MarketSnapshot, held []models.StockCode) ([]ExitDecision, error) {
	out := make([]ExitDecision, 0, len(held))
	for _, stock := range held {
		bars, ok := e.history[stock]
		start, sok := e.entryPos[stock]
		if !ok || !sok || snap.Pos >= len(bars) {
			continue
		}
		atr, aok := ATR(bars, snap.Pos, e.Period)
		if !aok {
			continue
		}
		highest := bars[start].Close
		for k := start; k <= snap.Pos; k++ {
			if bars[k].Close > highest {
				highest = bars[k].Close
			}
		}
		if bars[snap.Pos].Close < highest-e.Multiplier*atr {
			out = append(out, ExitDecision{Stock: stock, Exit: true, Reason: "ATR trailing stop triggered"})
		}
	}
	return out, nil
}

// TimeBasedExit closes any position held for MaxBars or more date
// positions (trading days), regardless of price action.
type TimeBasedExit struct {
	Base
	MaxBars  int
	entryPos map[models.StockCode]int
}

// NewTimeBasedExit builds a TimeBasedExit.
func NewTimeBasedExit(maxBars int, entryPos map[models.StockCode]int) *TimeBasedExit {
	return &TimeBasedExit{Base: Base{ID: "time_based_exit", Name: "Time-Based Exit"}, MaxBars: maxBars, entryPos: entryPos}
}

func (e *TimeBasedExit) Metadata() models.StrategyMetadata { return e.Base.Metadata(models.KindExit) }

func (e *TimeBasedExit) Decide(ctx context.Context, snap MarketSnapshot, held []models.StockCode) ([]ExitDecision, error) {
	out := make([]ExitDecision, 0, len(held))
	for _, stock := range held {
		start, ok := e.entryPos[stock]
		if !ok {
			continue
		}
		if snap.Pos-start >= e.MaxBars {
			out = append(out, ExitDecision{Stock: stock, Exit: true, Reason: "max holding period reached"})
		}
	}
	return out, nil
}

// CombinedExit exits a position if ANY of its wrapped exit strategies say
// to exit — a logical OR composition, the common case for "stop loss OR
// time-based exit, whichever comes first".
type CombinedExit struct {
	Base
	Exits []ExitStrategy
}

// NewCombinedExit builds a CombinedExit over the given component exits.
func NewCombinedExit(exits ...ExitStrategy) *CombinedExit {
	return &CombinedExit{Base: Base{ID: "combined_exit", Name: "Combined Exit"}, Exits: exits}
}

func (e *CombinedExit) Metadata() models.StrategyMetadata { return e.Base.Metadata(models.KindExit) }

func (e *CombinedExit) Decide(ctx context.Context, snap MarketSnapshot, held []models.StockCode) ([]ExitDecision, error) {
	reasons := make(map[models.StockCode]string)
	for _, sub := range e.Exits {
		decisions, err := sub.Decide(ctx, snap, held)
		if err != nil {
			return nil, err
		}
		for _, d := range decisions {
			if d.Exit {
				if _, already := reasons[d.Stock]; !already {
					reasons[d.Stock] = d.Reason
				}
			}
		}
	}
	out := make([]ExitDecision, 0, len(reasons))
	for _, stock := range held {
		if reason, ok := reasons[stock]; ok {
			out = append(out, ExitDecision{Stock: stock, Exit: true, Reason: reason})
		}
	}
	return out, nil
}
