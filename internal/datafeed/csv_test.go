package datafeed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/strategylab/core/pkg/models"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestLoadOHLCVAlignsDatesAcrossStocks(t *testing.T) {
	csv := `date,stock,open,high,low,close,volume
2026-01-05,A,10,11,9,10.5,1000
2026-01-06,A,10.5,12,10,11.5,1100
2026-01-05,B,20,21,19,20.5,2000
`
	path := writeTemp(t, "ohlcv.csv", csv)
	panel, stocks, err := LoadOHLCV(path)
	if err != nil {
		t.Fatalf("LoadOHLCV() error: %v", err)
	}
	if len(stocks) != 2 {
		t.Fatalf("got %d stocks, want 2", len(stocks))
	}
	if panel.Dates.Len() != 2 {
		t.Fatalf("got %d dates, want 2", panel.Dates.Len())
	}
	barA1, ok := panel.BarAt(models.StockCode("A"), 1)
	if !ok || barA1.Close != 11.5 {
		t.Errorf("A bar at pos 1: got %+v, ok=%v", barA1, ok)
	}
	barB0, ok := panel.BarAt(models.StockCode("B"), 0)
	if !ok || barB0.Close != 20.5 {
		t.Errorf("B bar at pos 0: got %+v, ok=%v", barB0, ok)
	}
}

func TestLoadScoresMissingIsNaNNotZero(t *testing.T) {
	ohlcv := `date,stock,open,high,low,close,volume
2026-01-05,A,10,11,9,10.5,1000
2026-01-06,A,10.5,12,10,11.5,1100
`
	panel, _, err := LoadOHLCV(writeTemp(t, "ohlcv.csv", ohlcv))
	if err != nil {
		t.Fatalf("LoadOHLCV() error: %v", err)
	}

	scoresCSV := `date,stock,score
2026-01-05,A,0.5
`
	scores, err := LoadScores(writeTemp(t, "scores.csv", scoresCSV), panel.Dates)
	if err != nil {
		t.Fatalf("LoadScores() error: %v", err)
	}
	v0, ok := scores.At(models.StockCode("A"), 0)
	if !ok || v0 != 0.5 {
		t.Errorf("score at pos 0: got %v, ok=%v", v0, ok)
	}
	v1, ok := scores.At(models.StockCode("A"), 1)
	if ok {
		t.Errorf("score at pos 1 (unobserved day): got %v, ok=%v, want missing", v1, ok)
	}
}
