package strategy

import (
	"context"
	"sort"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/strategylab/core/pkg/models"
)

// MomentumSelector ranks the universe by trailing return over Lookback
// bars and keeps the top TopN, the simplest factor-driven selector.
type MomentumSelector struct {
	Base
	Lookback int
	TopN     int
	history  map[models.StockCode][]models.OHLCV
}

// NewMomentumSelector builds a MomentumSelector reading bar history from
// the given per-stock history map (supplied by the caller once per run).
func NewMomentumSelector(lookback, topN int, history map[models.StockCode][]models.OHLCV) *MomentumSelector {
	return &MomentumSelector{
		Base:     Base{ID: "momentum", Name: "Momentum Selector"},
		Lookback: lookback,
		TopN:     topN,
		history:  history,
	}
}

func (s *MomentumSelector) Metadata() models.StrategyMetadata {
	return s.Base.Metadata(models.KindSelector)
}

func (s *MomentumSelector) Select(ctx context.Context, snap MarketSnapshot, universe []models.StockCode) ([]models.StockCode, map[models.StockCode]float64, error) {
	scores := make(map[models.StockCode]float64)
	for _, stock := range universe {
		bars, ok := s.history[stock]
		if !ok || snap.Pos >= len(bars) || snap.Pos-s.Lookback < 0 {
			continue
		}
		start := bars[snap.Pos-s.Lookback].Close
		end := bars[snap.Pos].Close
		if start <= 0 {
			continue
		}
		scores[stock] = (end - start) / start
	}
	ranked := rankDescending(scores)
	if s.TopN > 0 && s.TopN < len(ranked) {
		ranked = ranked[:s.TopN]
	}
	return ranked, scores, nil
}

// ValueSelector ranks the universe by an externally-supplied score panel
// (e.g. book-to-market, earnings yield) passed in via snap.Scores, keeping
// the top TopN. This models the case where the fundamental score is
// computed outside the engine and fed in ready-made.
type ValueSelector struct {
	Base
	TopN int
}

// NewValueSelector builds a ValueSelector.
func NewValueSelector(topN int) *ValueSelector {
	return &ValueSelector{Base: Base{ID: "value", Name: "Value Selector"}, TopN: topN}
}

func (s *ValueSelector) Metadata() models.StrategyMetadata {
	return s.Base.Metadata(models.KindSelector)
}

func (s *ValueSelector) Select(ctx context.Context, snap MarketSnapshot, universe []models.StockCode) ([]models.StockCode, map[models.StockCode]float64, error) {
	scores := make(map[models.StockCode]float64)
	for _, stock := range universe {
		if v, ok := snap.Scores[stock]; ok {
			scores[stock] = v
		}
	}
	ranked := rankDescending(scores)
	if s.TopN > 0 && s.TopN < len(ranked) {
		ranked = ranked[:s.TopN]
	}
	return ranked, scores, nil
}

// ScoreModel is a pre-fitted scoring artifact the engine only consumes,
// never trains.
type ScoreModel interface {
	Score(features map[string]float64) float64
}

// MLSelector ranks candidates by a pre-fitted ScoreModel's output over a
// per-stock feature map (supplied externally; this engine never computes
// or trains features itself).
type MLSelector struct {
	Base
	Model    ScoreModel
	Features map[models.StockCode]map[string]float64
	TopN     int
}

// NewMLSelector builds an MLSelector around an injected, pre-fitted model.
func NewMLSelector(model ScoreModel, features map[models.StockCode]map[string]float64, topN int) *MLSelector {
	return &MLSelector{Base: Base{ID: "ml", Name: "ML Selector"}, Model: model, Features: features, TopN: topN}
}

func (s *MLSelector) Metadata() models.StrategyMetadata { return s.Base.Metadata(models.KindSelector) }

func (s *MLSelector) Select(ctx context.Context, snap MarketSnapshot, universe []models.StockCode) ([]models.StockCode, map[models.StockCode]float64, error) {
	scores := make(map[models.StockCode]float64)
	for _, stock := range universe {
		feats, ok := s.Features[stock]
		if !ok {
			continue
		}
		scores[stock] = s.Model.Score(feats)
	}
	ranked := rankDescending(scores)
	if s.TopN > 0 && s.TopN < len(ranked) {
		ranked = ranked[:s.TopN]
	}
	return ranked, scores, nil
}

// ExternalCandidate is one row recovered from an external watchlist source.
type ExternalCandidate struct {
	Stock models.StockCode
	Score float64
}

// ExternalSelector draws its candidate list from outside the panel data
// the engine otherwise operates on: either an HTML watchlist/screener
// table (scraped with goquery) or an RSS candidate feed (parsed with
// gofeed). Exactly one of HTMLFetch/FeedURL is used per instance.
type ExternalSelector struct {
	Base
	// HTMLFetch, when set, returns raw HTML containing a table of
	// candidates; RowSelector/StockSelector/ScoreSelector are goquery
	// selector strings locating the table rows and their stock-code/score
	// cells.
	HTMLFetch     func(ctx context.Context) (string, error)
	RowSelector   string
	StockSelector string
	ScoreSelector string

	// FeedParser/FeedURL, when set, parses an RSS feed whose item titles
	// encode a candidate stock code (ExtractStock extracts it); items with
	// no extractable code are skipped.
	FeedParser   *gofeed.Parser
	FeedURL      string
	ExtractStock func(item *gofeed.Item) (models.StockCode, bool)

	TopN int
}

// NewExternalHTMLSelector builds an ExternalSelector backed by an HTML
// watchlist table.
func NewExternalHTMLSelector(fetch func(ctx context.Context) (string, error), rowSel, stockSel, scoreSel string, topN int) *ExternalSelector {
	return &ExternalSelector{
		Base:          Base{ID: "external_html", Name: "External HTML Watchlist Selector"},
		HTMLFetch:     fetch,
		RowSelector:   rowSel,
		StockSelector: stockSel,
		ScoreSelector: scoreSel,
		TopN:          topN,
	}
}

// NewExternalFeedSelector builds an ExternalSelector backed by an RSS
// candidate feed.
func NewExternalFeedSelector(feedURL string, extract func(item *gofeed.Item) (models.StockCode, bool), topN int) *ExternalSelector {
	return &ExternalSelector{
		Base:         Base{ID: "external_feed", Name: "External RSS Candidate Selector"},
		FeedParser:   gofeed.NewParser(),
		FeedURL:      feedURL,
		ExtractStock: extract,
		TopN:         topN,
	}
}

func (s *ExternalSelector) Metadata() models.StrategyMetadata {
	return s.Base.Metadata(models.KindSelector)
}

func (s *ExternalSelector) Select(ctx context.Context, snap MarketSnapshot, universe []models.StockCode) ([]models.StockCode, map[models.StockCode]float64, error) {
	allowed := make(map[models.StockCode]bool, len(universe))
	for _, u := range universe {
		allowed[u] = true
	}

	var candidates []ExternalCandidate
	var err error
	switch {
	case s.HTMLFetch != nil:
		candidates, err = s.selectFromHTML(ctx)
	case s.FeedURL != "":
		candidates, err = s.selectFromFeed(ctx)
	}
	if err != nil {
		return nil, nil, err
	}

	scores := make(map[models.StockCode]float64)
	for _, c := range candidates {
		if allowed[c.Stock] {
			scores[c.Stock] = c.Score
		}
	}
	ranked := rankDescending(scores)
	if s.TopN > 0 && s.TopN < len(ranked) {
		ranked = ranked[:s.TopN]
	}
	return ranked, scores, nil
}

func (s *ExternalSelector) selectFromHTML(ctx context.Context) ([]ExternalCandidate, error) {
	html, err := s.HTMLFetch(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(stringsReader(html))
	if err != nil {
		return nil, err
	}
	var out []ExternalCandidate
	doc.Find(s.RowSelector).Each(func(_ int, row *goquery.Selection) {
		stock := trimText(row.Find(s.StockSelector).Text())
		if stock == "" {
			return
		}
		scoreText := trimText(row.Find(s.ScoreSelector).Text())
		score := parseFloatOrZero(scoreText)
		out = append(out, ExternalCandidate{Stock: models.StockCode(stock), Score: score})
	})
	return out, nil
}

func (s *ExternalSelector) selectFromFeed(ctx context.Context) ([]ExternalCandidate, error) {
	feed, err := s.FeedParser.ParseURLWithContext(s.FeedURL, ctx)
	if err != nil {
		return nil, err
	}
	var out []ExternalCandidate
	for _, item := range feed.Items {
		stock, ok := s.ExtractStock(item)
		if !ok {
			continue
		}
		out = append(out, ExternalCandidate{Stock: stock, Score: 1.0})
	}
	return out, nil
}

func rankDescending(scores map[models.StockCode]float64) []models.StockCode {
	out := make([]models.StockCode, 0, len(scores))
	for s := range scores {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if scores[out[i]] != scores[out[j]] {
			return scores[out[i]] > scores[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
