// Package datafeed is the thin file-based adapter the CLI uses to get
// panel data into the core: a flat CSV loader standing in for a live
// market-data feed. It is intentionally minimal: no retries, no live
// ingestion, header-row column lookup and per-row float parsing with a
// skip-on-error policy.
package datafeed

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/strategylab/core/pkg/models"
)

// LoadOHLCV reads a long-format CSV (columns: date,stock,open,high,low,
// close,volume) into an OHLCVPanel. Rows are grouped by stock and sorted
// by date; the resulting panel's date index is the union of all dates
// seen across all stocks.
func LoadOHLCV(path string) (*models.OHLCVPanel, []models.StockCode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("datafeed: opening %s: %w", path, err)
	}
	defer f.Close()

	type row struct {
		date time.Time
		bar  models.OHLCV
	}
	byStock := make(map[models.StockCode][]row)
	dateSet := make(map[int64]time.Time)

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("datafeed: reading header: %w", err)
	}
	col := indexHeader(header)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("datafeed: reading row: %w", err)
		}
		date, err := time.Parse("2006-01-02", rec[col["date"]])
		if err != nil {
			continue
		}
		stock := models.StockCode(rec[col["stock"]])
		open, errO := strconv.ParseFloat(rec[col["open"]], 64)
		high, errH := strconv.ParseFloat(rec[col["high"]], 64)
		low, errL := strconv.ParseFloat(rec[col["low"]], 64)
		closeP, errC := strconv.ParseFloat(rec[col["close"]], 64)
		volume, errV := strconv.ParseFloat(rec[col["volume"]], 64)
		if errO != nil || errH != nil || errL != nil || errC != nil || errV != nil {
			continue
		}
		byStock[stock] = append(byStock[stock], row{
			date: date,
			bar:  models.OHLCV{Date: date, Open: open, High: high, Low: low, Close: closeP, Volume: volume},
		})
		dateSet[date.Unix()] = date
	}

	dates := make([]time.Time, 0, len(dateSet))
	for _, d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	index := models.NewDateIndex(dates)

	panel := models.NewOHLCVPanel(index)
	stocks := make([]models.StockCode, 0, len(byStock))
	for stock, rows := range byStock {
		sort.Slice(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })
		bars := make([]models.OHLCV, index.Len())
		pos := 0
		for _, rr := range rows {
			for pos < index.Len() && index.At(pos).Before(rr.date) {
				pos++
			}
			if pos < index.Len() && index.At(pos).Equal(rr.date) {
				bars[pos] = rr.bar
			}
		}
		if err := panel.SetBars(stock, bars); err != nil {
			return nil, nil, fmt.Errorf("datafeed: setting bars for %s: %w", stock, err)
		}
		stocks = append(stocks, stock)
	}
	sort.Slice(stocks, func(i, j int) bool { return stocks[i] < stocks[j] })
	return panel, stocks, nil
}

// LoadScores reads a long-format CSV (columns: date,stock,score) into a
// ScorePanel aligned to the given date index.
func LoadScores(path string, index *models.DateIndex) (*models.ScorePanel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("datafeed: opening %s: %w", path, err)
	}
	defer f.Close()

	byStock := make(map[models.StockCode][]float64)
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("datafeed: reading header: %w", err)
	}
	col := indexHeader(header)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("datafeed: reading row: %w", err)
		}
		date, err := time.Parse("2006-01-02", rec[col["date"]])
		if err != nil {
			continue
		}
		pos := index.IndexOf(date)
		if pos < 0 {
			continue
		}
		stock := models.StockCode(rec[col["stock"]])
		score, err := strconv.ParseFloat(rec[col["score"]], 64)
		if err != nil {
			continue
		}
		values, ok := byStock[stock]
		if !ok {
			values = make([]float64, index.Len())
			for i := range values {
				values[i] = math.NaN()
			}
		}
		values[pos] = score
		byStock[stock] = values
	}

	panel := models.NewScorePanel(index)
	for stock, values := range byStock {
		if err := panel.SetColumn(stock, values); err != nil {
			return nil, fmt.Errorf("datafeed: setting scores for %s: %w", stock, err)
		}
	}
	return panel, nil
}

// ClosePrices projects an OHLCVPanel down to a PricePanel of closing
// prices for the given stocks, the shape the factor analyzer and the
// momentum/value selectors consume.
func ClosePrices(panel *models.OHLCVPanel, stocks []models.StockCode) *models.PricePanel {
	prices := models.NewPricePanel(panel.Dates)
	for _, stock := range stocks {
		bars := panel.Bars(stock)
		closes := make([]float64, len(bars))
		for i, bar := range bars {
			closes[i] = bar.Close
		}
		// len(closes) == panel.Dates.Len() by construction (Bars always
		// returns a dense per-date slice), so SetColumn cannot fail here.
		_ = prices.SetColumn(stock, closes)
	}
	return prices
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}
