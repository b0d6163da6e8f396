package backtest

import (
	"context"
	"fmt"

	"github.com/strategylab/core/internal/executor"
)

// ChunkedConfig configures the memory-bounded chunked run mode: the date
// range is carved into chunks of at most ChunkSize positions. Portfolio
// state carries continuously across chunk boundaries, so a chunked run
// produces the same trades and equity curve as an unchunked Run over the
// same input — chunking only bounds how much of the date range is live in
// a single runRange call, it never changes the compounding sequence.
//
// Overlap is accepted for API compatibility with a panel-slicing chunked
// mode (where each chunk would only see its own slice of OHLCV history and
// needs a lookback window to warm up moving-average/ATR state before its
// first emitted position). This engine's strategies read indicator history
// from maps covering the full date range regardless of which chunk is
// executing, so Overlap has no effect on results here — continuous state
// already makes every chunk pick up exactly where the last one left off.
// It is validated (must be >= 0) and otherwise ignored.
type ChunkedConfig struct {
	ChunkSize int
	Overlap   int
}

// RunChunked processes the engine's full date range in bounded chunks,
// stitching the per-chunk Results into one continuous Result equivalent to
// Run's output.
func (e *Engine) RunChunked(ctx context.Context, cfg ChunkedConfig) (*Result, error) {
	total := e.Prices.Dates.Len()
	if total == 0 {
		return &Result{}, nil
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("backtest: ChunkedConfig.ChunkSize must be positive")
	}
	if cfg.Overlap < 0 {
		return nil, fmt.Errorf("backtest: ChunkedConfig.Overlap must be non-negative")
	}

	chunks, err := executor.Partition(total, executor.BySize, cfg.ChunkSize, 0)
	if err != nil {
		return nil, fmt.Errorf("backtest: %w", err)
	}

	merged := &Result{}
	st := newState(e.Config.InitialCapital)
	for i, c := range chunks {
		endPos := c.End - 1
		var res *Result
		res, st, err = e.runRange(ctx, c.Start, endPos, c.Start, st)
		if err != nil {
			return nil, fmt.Errorf("backtest: chunk %d: %w", i, err)
		}
		merged.Trades = append(merged.Trades, res.Trades...)
		merged.Equity = append(merged.Equity, res.Equity...)
		merged.Dates = append(merged.Dates, res.Dates...)
		merged.Final = res.Final
	}

	return merged, nil
}
