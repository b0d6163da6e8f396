// Package strategy defines the three-layer strategy protocol (stock
// selector, entry strategy, exit strategy) plus a composer that runs them
// together. Each layer is a narrow interface; an embeddable Base carries
// the id/name/schema/params bookkeeping every layer shares.
package strategy

import (
	"context"
	"fmt"

	"github.com/strategylab/core/internal/calendar"
	"github.com/strategylab/core/pkg/models"
)

// MarketSnapshot is the read-only view a selector/entry/exit callback
// receives for one date position: the cross-section of OHLCV bars for the
// universe as of that date, plus any score panel a prior stage produced.
// Nothing in MarketSnapshot exposes dates beyond Pos — this is the
// look-ahead boundary every built-in strategy is held to.
type MarketSnapshot struct {
	Pos       int
	Bars      map[models.StockCode]models.OHLCV
	Scores    map[models.StockCode]float64
	Portfolio PortfolioView
}

// PortfolioView is the minimal read-only slice of portfolio state a
// strategy callback needs: current holdings and cash, without exposing
// mutation methods (mutation happens only through the Engine's own
// order-issuing path, keeping the look-ahead and no-self-mutation
// invariants mechanically enforced by the type system).
type PortfolioView struct {
	Cash          float64
	LongHoldings  map[models.StockCode]int64
	ShortHoldings map[models.StockCode]int64
}

// Base carries the bookkeeping every layer exposes identically: an
// identifier, display name, and parameter schema/values.
type Base struct {
	ID     string
	Name   string
	Schema models.ParamSchema
	Params map[string]interface{}
}

// Metadata builds the StrategyMetadata record for this component; kind is
// supplied by the embedding type since Base itself doesn't know its layer.
func (b Base) Metadata(kind models.StrategyKind) models.StrategyMetadata {
	return models.StrategyMetadata{
		ID:     b.ID,
		Name:   b.Name,
		Kind:   kind,
		Schema: b.Schema,
		Params: b.Params,
	}
}

// StockSelector narrows a universe down to a candidate list for a given
// date position, optionally producing a score per candidate (used by
// downstream factor analysis and position sizing).
type StockSelector interface {
	Select(ctx context.Context, snap MarketSnapshot, universe []models.StockCode) ([]models.StockCode, map[models.StockCode]float64, error)
	Metadata() models.StrategyMetadata
}

// EntryDecision is one stock's entry verdict: whether to open/add a
// position and at what target weight (fraction of portfolio value).
type EntryDecision struct {
	Stock        models.StockCode
	Enter        bool
	TargetWeight float64
	Reason       string
}

// EntryStrategy decides, among selected candidates, which to actually
// enter and at what sizing.
type EntryStrategy interface {
	Decide(ctx context.Context, snap MarketSnapshot, candidates []models.StockCode) ([]EntryDecision, error)
	Metadata() models.StrategyMetadata
}

// ExitDecision is one held position's exit verdict.
type ExitDecision struct {
	Stock  models.StockCode
	Exit   bool
	Reason string
}

// ExitStrategy decides, among currently held positions, which to close.
type ExitStrategy interface {
	Decide(ctx context.Context, snap MarketSnapshot, held []models.StockCode) ([]ExitDecision, error)
	Metadata() models.StrategyMetadata
}

// Composer wires a selector + entry + exit together into the single
// decision the backtest engine consumes each rebalance date: which
// positions to close, and which to open/resize. RebalanceFreq records the
// cadence the composition was built for; it is validated and carried in
// the composition identifier rather than consulted by Decide itself (the
// backtest engine's day loop is the actual rebalance-date scheduler).
type Composer struct {
	Selector      StockSelector
	Entry         EntryStrategy
	Exit          ExitStrategy
	RebalanceFreq calendar.Frequency
}

// Validate resolves each sub-strategy's own params against its declared
// schema and checks RebalanceFreq is one of the three supported cadences.
// Any failure returns an error before the Composer is fit to run, matching
// the "any failure raises before the object becomes usable" contract.
func (c *Composer) Validate() error {
	switch c.RebalanceFreq {
	case calendar.Daily, calendar.Weekly, calendar.Monthly:
	default:
		return fmt.Errorf("strategy: composer: rebalance_freq %q must be one of D, W, M", c.RebalanceFreq)
	}
	for _, part := range []struct {
		label string
		meta  models.StrategyMetadata
	}{
		{"selector", c.Selector.Metadata()},
		{"entry", c.Entry.Metadata()},
		{"exit", c.Exit.Metadata()},
	} {
		if err := ValidateParams(part.meta.Schema, part.meta.Params); err != nil {
			return fmt.Errorf("strategy: composer: %s: %w", part.label, err)
		}
	}
	return nil
}

// CompositionID returns the stable identifier for this selector/entry/exit/
// frequency combination, used to key cached results and comparison reports.
func (c *Composer) CompositionID() string {
	return fmt.Sprintf("%s__%s__%s__%s",
		c.Selector.Metadata().ID, c.Entry.Metadata().ID, c.Exit.Metadata().ID, c.RebalanceFreq)
}

// Metadata assembles the machine-readable metadata bundle describing the
// full composition: its identifier, cadence, and each layer's own
// StrategyMetadata record.
func (c *Composer) Metadata() models.CompositionMetadata {
	return models.CompositionMetadata{
		ID:            c.CompositionID(),
		RebalanceFreq: string(c.RebalanceFreq),
		Selector:      c.Selector.Metadata(),
		Entry:         c.Entry.Metadata(),
		Exit:          c.Exit.Metadata(),
	}
}

// Decision is the composer's full output for one rebalance date.
type Decision struct {
	Exits   []ExitDecision
	Entries []EntryDecision
	Scores  map[models.StockCode]float64
	// Candidates is the selector's raw ranked output for this date, before
	// the exit-filtering step removes anything also flagged to exit. The
	// engine uses it to implement the "absent from new_top" half of the
	// stocks_to_sell rule (the holding-period half is the engine's own
	// day-position bookkeeping, which the strategy layer has no access to).
	Candidates []models.StockCode
}

// Decide runs the three layers in order: select a candidate universe,
// decide exits against the current holdings, decide entries against the
// selected candidates minus anything being exited this period.
func (c *Composer) Decide(ctx context.Context, snap MarketSnapshot, universe []models.StockCode, held []models.StockCode) (Decision, error) {
	candidates, scores, err := c.Selector.Select(ctx, snap, universe)
	if err != nil {
		return Decision{}, err
	}
	exits, err := c.Exit.Decide(ctx, snap, held)
	if err != nil {
		return Decision{}, err
	}
	exiting := make(map[models.StockCode]bool, len(exits))
	for _, e := range exits {
		if e.Exit {
			exiting[e.Stock] = true
		}
	}
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if !exiting[c] {
			filtered = append(filtered, c)
		}
	}
	entries, err := c.Entry.Decide(ctx, snap, filtered)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Exits: exits, Entries: entries, Scores: scores, Candidates: candidates}, nil
}
