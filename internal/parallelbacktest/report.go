package parallelbacktest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
)

// WriteCSV serializes the comparison report as CSV, one row per variant,
// sorted as Compare left them (sharpe descending, failures last).
func (r ComparisonReport) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"label", "success", "total_return", "cagr", "sharpe", "max_drawdown", "win_rate", "trade_count", "error"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("parallelbacktest: csv header: %w", err)
	}
	for _, row := range r.Rows {
		record := []string{
			row.Label,
			fmt.Sprintf("%t", row.Success),
			fmt.Sprintf("%.6f", row.TotalReturn),
			fmt.Sprintf("%.6f", row.CAGR),
			fmt.Sprintf("%.6f", row.Sharpe),
			fmt.Sprintf("%.6f", row.MaxDrawdown),
			fmt.Sprintf("%.6f", row.WinRate),
			fmt.Sprintf("%d", row.TradeCount),
			row.Error,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("parallelbacktest: csv row %q: %w", row.Label, err)
		}
	}
	return nil
}

// CSV returns the comparison report rendered as a CSV byte slice.
func (r ComparisonReport) CSV() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var htmlReportTmpl = template.Must(
	template.New("comparison").
		Funcs(template.FuncMap{"mulf": func(a, b float64) float64 { return a * b }}).
		Parse(`<table border="1" cellpadding="4" cellspacing="0">
<thead><tr>
<th>Strategy</th><th>Total Return</th><th>CAGR</th><th>Sharpe</th><th>Max Drawdown</th><th>Win Rate</th><th>Trades</th><th>Status</th>
</tr></thead>
<tbody>
{{range .Rows}}<tr>
<td>{{.Label}}</td>
<td>{{printf "%.2f%%" (mulf .TotalReturn 100)}}</td>
<td>{{printf "%.2f%%" (mulf .CAGR 100)}}</td>
<td>{{printf "%.3f" .Sharpe}}</td>
<td>{{printf "%.2f%%" (mulf .MaxDrawdown 100)}}</td>
<td>{{printf "%.2f%%" (mulf .WinRate 100)}}</td>
<td>{{.TradeCount}}</td>
<td>{{if .Success}}ok{{else}}{{.Error}}{{end}}</td>
</tr>
{{end}}</tbody>
</table>
`))

// HTML renders the comparison report as a self-contained HTML table.
func (r ComparisonReport) HTML() (string, error) {
	var buf bytes.Buffer
	if err := htmlReportTmpl.Execute(&buf, r); err != nil {
		return "", fmt.Errorf("parallelbacktest: html render: %w", err)
	}
	return buf.String(), nil
}
