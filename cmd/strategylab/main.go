// strategylab — quantitative equity research core CLI.
//
// Main entrypoint using the cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/strategylab/core/internal/backtest"
	"github.com/strategylab/core/internal/calendar"
	"github.com/strategylab/core/internal/config"
	"github.com/strategylab/core/internal/costs"
	"github.com/strategylab/core/internal/datafeed"
	"github.com/strategylab/core/internal/factor"
	"github.com/strategylab/core/internal/parallelbacktest"
	"github.com/strategylab/core/internal/sandbox"
	"github.com/strategylab/core/internal/strategy"
	"github.com/strategylab/core/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config, loaded once in PersistentPreRunE.
var cfg *config.Config

// defaultRiskFreeRate is the annualized rate used for Sharpe/Sortino when
// the CLI has no per-run rate input; nothing in config.Config currently
// models it separately from the cost structure.
const defaultRiskFreeRate = 0.03

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "strategylab",
	Short: "strategylab — quantitative equity research core",
	Long: `strategylab is a Go core for equity strategy research: a
three-layer strategy protocol, a T+1-aware vectorized backtest engine, a
factor analysis pipeline, a parallel task executor, and a sandboxed
dynamic strategy loader.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(factorCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(configCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("strategylab %s (commit %s, built %s)\n", version, commit, date)
	},
}

// --- Backtest Command ---

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a single backtest over a momentum/value composition",
	Long: `Run a backtest with a built-in selector/entry/exit composition
over a flat CSV OHLCV dataset.

Examples:
  strategylab backtest --ohlcv prices.csv --selector momentum --lookback 20 --top-n 10
  strategylab backtest --ohlcv prices.csv --selector value --scores scores.csv --rebalance W`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ohlcvPath, _ := cmd.Flags().GetString("ohlcv")
		scoresPath, _ := cmd.Flags().GetString("scores")
		selectorName, _ := cmd.Flags().GetString("selector")
		lookback, _ := cmd.Flags().GetInt("lookback")
		topN, _ := cmd.Flags().GetInt("top-n")
		capital, _ := cmd.Flags().GetFloat64("capital")
		rebalance, _ := cmd.Flags().GetString("rebalance")
		marketNeutral, _ := cmd.Flags().GetBool("market-neutral")
		outputJSON, _ := cmd.Flags().GetBool("json")

		if ohlcvPath == "" {
			return fmt.Errorf("--ohlcv is required")
		}
		if capital <= 0 {
			capital = cfg.Backtest.InitialCapital
		}
		if capital <= 0 {
			capital = 1000000
		}
		if topN <= 0 {
			topN = cfg.Backtest.TopN
		}

		panel, universe, err := datafeed.LoadOHLCV(ohlcvPath)
		if err != nil {
			return fmt.Errorf("loading ohlcv data: %w", err)
		}
		history := historyByStock(panel, universe)

		composer, err := buildComposer(selectorName, lookback, topN, scoresPath, panel, history, calendar.Frequency(rebalance))
		if err != nil {
			return err
		}
		if err := composer.Validate(); err != nil {
			return fmt.Errorf("invalid composition: %w", err)
		}

		var externalScores *models.ScorePanel
		if scoresPath != "" {
			externalScores, err = datafeed.LoadScores(scoresPath, panel.Dates)
			if err != nil {
				return fmt.Errorf("loading scores: %w", err)
			}
		}

		mode := backtest.LongOnly
		shortTopN := cfg.Backtest.ShortTopN
		if marketNeutral {
			mode = backtest.MarketNeutral
			if shortTopN <= 0 {
				shortTopN = topN
			}
		}
		btCfg := backtest.Config{
			InitialCapital: capital,
			Mode:           mode,
			RebalanceFreq:  calendar.Frequency(rebalance),
			CostModel:      costs.DefaultModel(),
			Slippage:       costs.FixedSlippage{Pct: 0.0005},
			HoldingPeriod:  cfg.Backtest.HoldingPeriod,
			ShortTopN:      shortTopN,
			MarginRatio:    cfg.Costs.MarginRatio,
			ExternalScores: externalScores,
		}

		fmt.Printf("Backtesting %s (%s rebalance) over %d stocks, %d trading days\n",
			composer.CompositionID(), rebalance, len(universe), panel.Dates.Len())

		eng := backtest.New(btCfg, universe, panel, composer)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		result, err := eng.Run(ctx)
		if err != nil {
			return fmt.Errorf("backtest failed: %w", err)
		}

		metrics := backtest.ComputeMetrics(result, defaultRiskFreeRate)

		if outputJSON {
			resp := models.Success(struct {
				Metrics backtest.Metrics `json:"metrics"`
				Trades  int              `json:"trade_count"`
			}{metrics, len(result.Trades)})
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		}

		printMetrics(metrics)
		return nil
	},
}

func init() {
	backtestCmd.Flags().String("ohlcv", "", "path to a long-format OHLCV CSV (required)")
	backtestCmd.Flags().String("scores", "", "path to a long-format score CSV (required for --selector value)")
	backtestCmd.Flags().String("selector", "momentum", "stock selector: momentum or value")
	backtestCmd.Flags().Int("lookback", 20, "momentum lookback window in bars")
	backtestCmd.Flags().Int("top-n", 0, "number of stocks to hold (default from config)")
	backtestCmd.Flags().Float64("capital", 0, "initial capital (default from config)")
	backtestCmd.Flags().String("rebalance", "D", "rebalance frequency: D, W, or M")
	backtestCmd.Flags().Bool("market-neutral", false, "run long+short instead of long-only")
	backtestCmd.Flags().Bool("json", false, "output result as JSON")
}

// --- Compare Command ---

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Backtest several momentum lookback variants in parallel and rank them",
	Long: `Runs several momentum-lookback variants of the same composition
concurrently through the parallel executor and prints a Sharpe-sorted
comparison table.

Example:
  strategylab compare --ohlcv prices.csv --lookbacks 5,10,20,40`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ohlcvPath, _ := cmd.Flags().GetString("ohlcv")
		lookbacks, _ := cmd.Flags().GetIntSlice("lookbacks")
		topN, _ := cmd.Flags().GetInt("top-n")
		capital, _ := cmd.Flags().GetFloat64("capital")
		format, _ := cmd.Flags().GetString("format")

		if ohlcvPath == "" {
			return fmt.Errorf("--ohlcv is required")
		}
		if len(lookbacks) == 0 {
			lookbacks = []int{5, 10, 20, 40}
		}
		if topN <= 0 {
			topN = cfg.Backtest.TopN
		}
		if topN <= 0 {
			topN = 10
		}
		if capital <= 0 {
			capital = cfg.Backtest.InitialCapital
		}
		if capital <= 0 {
			capital = 1000000
		}

		panel, universe, err := datafeed.LoadOHLCV(ohlcvPath)
		if err != nil {
			return fmt.Errorf("loading ohlcv data: %w", err)
		}
		history := historyByStock(panel, universe)

		btCfg := backtest.Config{
			InitialCapital: capital,
			Mode:           backtest.LongOnly,
			RebalanceFreq:  calendar.Daily,
			CostModel:      costs.DefaultModel(),
			Slippage:       costs.FixedSlippage{Pct: 0.0005},
		}

		variants := make([]parallelbacktest.Variant, len(lookbacks))
		for i, lb := range lookbacks {
			lb := lb
			variants[i] = parallelbacktest.Variant{
				Label:  fmt.Sprintf("momentum-%d", lb),
				Config: btCfg,
				Build: func() (*strategy.Composer, error) {
					return &strategy.Composer{
						Selector:      strategy.NewMomentumSelector(lb, topN, history),
						Entry:         strategy.NewImmediateEntry(1.0 / float64(topN)),
						Exit:          strategy.NewTimeBasedExit(1000, map[models.StockCode]int{}),
						RebalanceFreq: calendar.Daily,
					}, nil
				},
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		results, err := parallelbacktest.Run(ctx, universe, panel, variants, parallelbacktest.Options{
			Workers: cfg.Executor.Workers,
		})
		if err != nil {
			return fmt.Errorf("compare failed: %w", err)
		}
		report := parallelbacktest.Compare(results)

		switch format {
		case "csv":
			out, err := report.CSV()
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(out)
			return err
		case "html":
			out, err := report.HTML()
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		default:
			printComparisonTable(report)
			return nil
		}
	},
}

func init() {
	compareCmd.Flags().String("ohlcv", "", "path to a long-format OHLCV CSV (required)")
	compareCmd.Flags().IntSlice("lookbacks", nil, "comma-separated momentum lookback windows to compare")
	compareCmd.Flags().Int("top-n", 0, "number of stocks to hold per variant")
	compareCmd.Flags().Float64("capital", 0, "initial capital (default from config)")
	compareCmd.Flags().String("format", "table", "output format: table, csv, or html")
}

// --- Factor Command ---

var factorCmd = &cobra.Command{
	Use:   "factor",
	Short: "Run IC/layering/combination analysis over one or more score panels",
	Long: `Analyzes one or more factor score CSVs against forward returns
derived from an OHLCV CSV: Pearson/Spearman IC, t-stat/p-value, quantile
layering, an optional correlation matrix, and an optional combination.

Example:
  strategylab factor --ohlcv prices.csv --scores value=value.csv --scores momentum=momentum.csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ohlcvPath, _ := cmd.Flags().GetString("ohlcv")
		scorePaths, _ := cmd.Flags().GetStringArray("scores")
		horizon, _ := cmd.Flags().GetInt("horizon")
		numLayers, _ := cmd.Flags().GetInt("layers")
		correlate, _ := cmd.Flags().GetBool("correlate")
		combine, _ := cmd.Flags().GetString("combine")
		longShort, _ := cmd.Flags().GetBool("long-short")
		highCorr, _ := cmd.Flags().GetFloat64("high-correlation-threshold")

		if ohlcvPath == "" || len(scorePaths) == 0 {
			return fmt.Errorf("--ohlcv and at least one --scores name=path are required")
		}
		if horizon <= 0 {
			horizon = cfg.Factor.Horizon
		}
		if horizon <= 0 {
			horizon = 5
		}
		if numLayers <= 0 {
			numLayers = cfg.Factor.NumLayers
		}
		if numLayers <= 0 {
			numLayers = 5
		}

		panel, universe, err := datafeed.LoadOHLCV(ohlcvPath)
		if err != nil {
			return fmt.Errorf("loading ohlcv data: %w", err)
		}
		prices := datafeed.ClosePrices(panel, universe)

		requests := make([]factor.AnalysisRequest, 0, len(scorePaths))
		for _, spec := range scorePaths {
			name, path, err := splitNameValue(spec)
			if err != nil {
				return err
			}
			scores, err := datafeed.LoadScores(path, panel.Dates)
			if err != nil {
				return fmt.Errorf("loading scores %q: %w", name, err)
			}
			requests = append(requests, factor.AnalysisRequest{Name: name, Scores: scores})
		}

		a := factor.New(prices, factor.Config{
			Horizon:       horizon,
			MinSamples:    cfg.Factor.MinSamples,
			NumLayers:     numLayers,
			Workers:       cfg.Executor.Workers,
			CorrelationOn: correlate,
			CombineMethod: models.CombinationMethod(combine),
			LongShort:     longShort,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		report, err := a.BatchAnalyze(ctx, requests)
		if err != nil {
			return fmt.Errorf("factor analysis failed: %w", err)
		}

		var highPairs []factor.CorrelatedPair
		if report.Correlation != nil && highCorr > 0 {
			highPairs = factor.FindHighPairs(*report.Correlation, highCorr)
		}

		resp := models.Success(report)
		if len(highPairs) > 0 {
			resp = resp.WithMetadata("high_correlation_pairs", highPairs)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	},
}

func init() {
	factorCmd.Flags().String("ohlcv", "", "path to a long-format OHLCV CSV (required)")
	factorCmd.Flags().StringArray("scores", nil, "name=path pairs, one per factor (required, repeatable)")
	factorCmd.Flags().Int("horizon", 0, "forward-return horizon in bars (default from config)")
	factorCmd.Flags().Int("layers", 0, "number of quantile layers (default from config)")
	factorCmd.Flags().Bool("correlate", false, "compute a factor correlation matrix")
	factorCmd.Flags().String("combine", "", "combination method: equal, ic_weighted, ir_weighted, or max_icir")
	factorCmd.Flags().Bool("long-short", false, "append a synthetic top-minus-bottom spread layer to each layering result")
	factorCmd.Flags().Float64("high-correlation-threshold", 0, "report factor pairs whose |correlation| meets this threshold (requires --correlate)")
}

// --- Load Command ---

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Run a dynamic strategy source file through the sandboxed loader",
	Long: `Runs a Go source file through the four-stage dynamic strategy
loader: integrity check, static analysis, permission check, and sandboxed
build. Prints the resulting risk tier or the stage at which the load
failed.

Example:
  strategylab load --source my_strategy.go --strategy-id my_strategy --strict`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sourcePath, _ := cmd.Flags().GetString("source")
		strategyID, _ := cmd.Flags().GetString("strategy-id")
		strict, _ := cmd.Flags().GetBool("strict")

		if sourcePath == "" || strategyID == "" {
			return fmt.Errorf("--source and --strategy-id are required")
		}
		source, err := os.ReadFile(sourcePath)
		if err != nil {
			return fmt.Errorf("reading source: %w", err)
		}

		auditDir := cfg.Sandbox.AuditDir
		if auditDir == "" {
			auditDir = "./audit"
		}
		registry := sandbox.NewRegistry(sandbox.Lenient)
		registry.Grant(strategyID, sandbox.PermReadMarketData, sandbox.PermReadPortfolio, sandbox.PermEmitOrders)
		loader := sandbox.NewLoader(registry, sandbox.NewLogger(auditDir))

		req := sandbox.LoadRequest{
			StrategyID:   strategyID,
			Source:       source,
			ExpectedHash: sandbox.HashSource(source),
			Strict:       strict || cfg.Sandbox.StrictMode,
			Permissions:  []sandbox.Permission{sandbox.PermReadMarketData},
		}
		result, err := loader.Load(req, func([]byte) error { return nil })
		if err != nil {
			return fmt.Errorf("load rejected: %w", err)
		}

		fmt.Printf("strategy %q loaded: risk tier %s, %d warning(s)\n", result.StrategyID, result.RiskTier, len(result.Warnings))
		for _, w := range result.Warnings {
			fmt.Println(" -", w)
		}
		return nil
	},
}

func init() {
	loadCmd.Flags().String("source", "", "path to the strategy's Go source file (required)")
	loadCmd.Flags().String("strategy-id", "", "strategy identifier used for audit/permission records (required)")
	loadCmd.Flags().Bool("strict", false, "reject medium-risk loads instead of warning")
}

// --- Config Command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	},
}

// --- shared helpers ---

func historyByStock(panel *models.OHLCVPanel, universe []models.StockCode) map[models.StockCode][]models.OHLCV {
	history := make(map[models.StockCode][]models.OHLCV, len(universe))
	for _, stock := range universe {
		history[stock] = panel.Bars(stock)
	}
	return history
}

func buildComposer(selectorName string, lookback, topN int, scoresPath string, panel *models.OHLCVPanel, history map[models.StockCode][]models.OHLCV, freq calendar.Frequency) (*strategy.Composer, error) {
	var selector strategy.StockSelector
	switch selectorName {
	case "momentum":
		selector = strategy.NewMomentumSelector(lookback, topN, history)
	case "value":
		if scoresPath == "" {
			return nil, fmt.Errorf("--scores is required for --selector value")
		}
		selector = strategy.NewValueSelector(topN)
	default:
		return nil, fmt.Errorf("unknown selector %q; available: momentum, value", selectorName)
	}
	return &strategy.Composer{
		Selector:      selector,
		Entry:         strategy.NewImmediateEntry(1.0 / float64(topN)),
		Exit:          strategy.NewTimeBasedExit(1000, map[models.StockCode]int{}),
		RebalanceFreq: freq,
	}, nil
}

func splitNameValue(spec string) (name, value string, err error) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == '=' {
			return spec[:i], spec[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("expected name=path, got %q", spec)
}

func printMetrics(m backtest.Metrics) {
	fmt.Printf("Total Return:   %.2f%%\n", m.TotalReturn*100)
	fmt.Printf("CAGR:           %.2f%%\n", m.CAGR*100)
	fmt.Printf("Annualized Vol: %.2f%%\n", m.AnnualizedVol*100)
	fmt.Printf("Sharpe:         %.3f\n", m.Sharpe)
	fmt.Printf("Sortino:        %.3f\n", m.Sortino)
	fmt.Printf("Max Drawdown:   %.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("Win Rate:       %.2f%%\n", m.WinRate*100)
	fmt.Printf("Trades:         %d\n", m.TradeCount)
}

func printComparisonTable(report parallelbacktest.ComparisonReport) {
	fmt.Printf("%-16s %10s %10s %10s %10s %8s\n", "Strategy", "Return", "CAGR", "Sharpe", "MaxDD", "Trades")
	for _, row := range report.Rows {
		if !row.Success {
			fmt.Printf("%-16s %s\n", row.Label, "FAILED: "+row.Error)
			continue
		}
		fmt.Printf("%-16s %9.2f%% %9.2f%% %10.3f %9.2f%% %8d\n",
			row.Label, row.TotalReturn*100, row.CAGR*100, row.Sharpe, row.MaxDrawdown*100, row.TradeCount)
	}
}
