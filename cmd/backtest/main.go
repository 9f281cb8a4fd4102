// Command backtest runs a single tick-granular backtest or a parameter
// sweep across symbols and strategies, replaying historical (or recorded
// live) tick data deterministically against a reference or user-supplied
// strategy.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"backtester/internal/backtester"
	"backtester/internal/config"
	"backtester/internal/dashboard"
	"backtester/internal/datasource/csvsource"
	"backtester/internal/matching"
	"backtester/internal/model"
	"backtester/internal/riskmonitor"
	"backtester/internal/runner"
	"backtester/internal/strategy"
	"backtester/strategies/smacrossover"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runCommand(os.Args[2:])
	case "sweep":
		err = sweepCommand(os.Args[2:])
	case "--help", "-h", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage:
  backtest run --data <file> [--strategy <name>] [--config <file>] [--symbol <sym>] [--out <dir>] [--dashboard <addr>]
  backtest sweep --data <file> --symbols <sym,...> [--strategies <name,...>] [--config <file>] [--out <dir>]`)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := parseLogLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildStrategy(name string, orders *matching.Manager, symbol string, logger *slog.Logger) (strategy.Strategy, error) {
	switch name {
	case "smacrossover", "sma", "":
		return smacrossover.New(orders, symbol, 5, 20, logger), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	strategyName := fs.String("strategy", "smacrossover", "strategy to run")
	configPath := fs.String("config", "", "path to YAML config (optional)")
	dataPath := fs.String("data", "", "path to tick/bar CSV data")
	symbol := fs.String("symbol", "UNKNOWN", "primary symbol")
	outDir := fs.String("out", ".", "directory for trade log / equity curve output")
	dashboardAddr := fs.String("dashboard", "", "if set, serve a live dashboard on this address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dataPath == "" {
		return fmt.Errorf("--data is required")
	}

	cfg, err := loadOrDefault(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runOne(ctx, runSpecInput{
		name:          *symbol,
		strategyName:  *strategyName,
		symbol:        *symbol,
		dataPath:      *dataPath,
		outDir:        *outDir,
		cfg:           cfg,
		logger:        logger,
		dashboardAddr: *dashboardAddr,
	})
}

type runSpecInput struct {
	name          string
	strategyName  string
	symbol        string
	dataPath      string
	outDir        string
	cfg           *config.Config
	logger        *slog.Logger
	dashboardAddr string
}

func runOne(ctx context.Context, in runSpecInput) error {
	source, err := csvsource.New(in.dataPath)
	if err != nil {
		return fmt.Errorf("load data source: %w", err)
	}

	tradeLogPath := fmt.Sprintf("%s/%s_trades.csv", in.outDir, in.name)
	equityPath := fmt.Sprintf("%s/%s_equity.csv", in.outDir, in.name)

	orders, err := matching.NewManager(matching.Config{
		InitialCash:     in.cfg.Backtester.InitialCash,
		Slippage:        in.cfg.SlippageTable(),
		TradeLogPath:    tradeLogPath,
		EquityCurvePath: equityPath,
		Logger:          in.logger,
	})
	if err != nil {
		return fmt.Errorf("create order manager: %w", err)
	}
	defer orders.Close()

	strat, err := buildStrategy(in.strategyName, orders, in.symbol, in.logger)
	if err != nil {
		return err
	}

	interval, err := time.ParseDuration(in.cfg.Backtester.BarInterval)
	if err != nil {
		return fmt.Errorf("parse bar_interval %q: %w", in.cfg.Backtester.BarInterval, err)
	}

	bt := backtester.New(in.symbol, []backtester.DataSource{source}, strat, orders, interval, in.logger)

	if in.cfg.Risk.MaxDrawdown > 0 {
		bt.SetRiskMonitor(riskmonitor.New(in.cfg.Risk.MaxDrawdown))
	}

	var dash *dashboard.Server
	if in.dashboardAddr != "" {
		hub := dashboard.NewHub(in.logger)
		go hub.Run()
		registry := dashboard.NewRegistry()

		bt.SetEquityObserver(func(equity float64, ts time.Time) {
			registry.Update(dashboard.RunView{Name: in.name, Equity: equity, LastUpdatedAt: ts})
			hub.Broadcast(dashboard.NewEquityEvent(in.name, equity, ts))
		})
		bt.SetFillObserver(func(f model.Fill) {
			hub.Broadcast(dashboard.NewFillEvent(in.name, f.Symbol, f.Side.String(), f.Quantity, f.Price, f.Timestamp))
		})

		dash = dashboard.NewServer(in.dashboardAddr, hub, registry, in.logger)
		go func() {
			if err := dash.Run(ctx); err != nil {
				in.logger.Error("dashboard server exited with error", "error", err)
			}
		}()
	}

	summary, err := bt.Run(ctx)
	if err != nil {
		in.logger.Error("backtest run ended with error", "error", err)
		return err
	}

	in.logger.Info("backtest complete",
		"final_cash", summary.FinalCash,
		"primary_position", summary.PrimarySymbolPosition,
		"ticks", summary.TicksProcessed,
		"bars", summary.BarsEmitted)

	return nil
}

func sweepCommand(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	strategies := fs.String("strategies", "smacrossover", "comma-separated strategy names")
	symbols := fs.String("symbols", "", "comma-separated symbols")
	dataPath := fs.String("data", "", "path to tick/bar CSV data, shared across the sweep")
	outDir := fs.String("out", ".", "directory for trade log / equity curve / summary output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dataPath == "" {
		return fmt.Errorf("--data is required")
	}
	if *symbols == "" {
		return fmt.Errorf("--symbols is required")
	}

	cfg, err := loadOrDefault(*configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strategyNames := strings.Split(*strategies, ",")
	symbolNames := strings.Split(*symbols, ",")

	var specs []runner.Spec
	for _, strategyName := range strategyNames {
		for _, symbol := range symbolNames {
			strategyName, symbol := strings.TrimSpace(strategyName), strings.TrimSpace(symbol)
			runName := fmt.Sprintf("%s_%s", strategyName, symbol)

			specs = append(specs, runner.Spec{
				Name: runName,
				Run: func(ctx context.Context) (backtester.Summary, error) {
					return runSweepUnit(ctx, runSweepUnitInput{
						runName:      runName,
						strategyName: strategyName,
						symbol:       symbol,
						dataPath:     *dataPath,
						outDir:       *outDir,
						cfg:          cfg,
						logger:       logger,
					})
				},
				SummaryPath: fmt.Sprintf("%s/%s_summary.json", *outDir, runName),
			})
		}
	}

	workers := cfg.Sweep.Workers
	results, err := runner.Run(ctx, specs, workers, logger)
	for _, r := range results {
		if r.Err != nil {
			logger.Error("sweep run failed", "name", r.Name, "error", r.Err)
		}
	}
	return err
}

type runSweepUnitInput struct {
	runName      string
	strategyName string
	symbol       string
	dataPath     string
	outDir       string
	cfg          *config.Config
	logger       *slog.Logger
}

func runSweepUnit(ctx context.Context, in runSweepUnitInput) (backtester.Summary, error) {
	source, err := csvsource.New(in.dataPath)
	if err != nil {
		return backtester.Summary{}, fmt.Errorf("load data source: %w", err)
	}

	tradeLogPath := fmt.Sprintf("%s/%s_trades.csv", in.outDir, in.runName)
	equityPath := fmt.Sprintf("%s/%s_equity.csv", in.outDir, in.runName)

	orders, err := matching.NewManager(matching.Config{
		InitialCash:     in.cfg.Backtester.InitialCash,
		Slippage:        in.cfg.SlippageTable(),
		TradeLogPath:    tradeLogPath,
		EquityCurvePath: equityPath,
		Logger:          in.logger,
	})
	if err != nil {
		return backtester.Summary{}, fmt.Errorf("create order manager: %w", err)
	}
	defer orders.Close()

	strat, err := buildStrategy(in.strategyName, orders, in.symbol, in.logger)
	if err != nil {
		return backtester.Summary{}, err
	}

	interval, err := time.ParseDuration(in.cfg.Backtester.BarInterval)
	if err != nil {
		return backtester.Summary{}, fmt.Errorf("parse bar_interval %q: %w", in.cfg.Backtester.BarInterval, err)
	}

	bt := backtester.New(in.symbol, []backtester.DataSource{source}, strat, orders, interval, in.logger)
	if in.cfg.Risk.MaxDrawdown > 0 {
		bt.SetRiskMonitor(riskmonitor.New(in.cfg.Risk.MaxDrawdown))
	}
	return bt.Run(ctx)
}

func loadOrDefault(path string) (*config.Config, error) {
	if path == "" {
		return &config.Config{
			Backtester: config.BacktesterConfig{InitialCash: 1_000_000, BarInterval: "1s"},
			Logging:    config.LoggingConfig{Level: "info", Format: "text"},
			Sweep:      config.SweepConfig{Workers: 4},
		}, nil
	}
	return config.Load(path)
}
