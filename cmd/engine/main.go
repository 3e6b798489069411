// Package main is the engine's operational entry point: `run live` starts
// the supervisor and blocks on signals; `run backtest`/`run walk-forward`
// replay OHLCV through a named strategy; `cancel order` and `activate
// kill-switch` are one-shot operator actions against a running instance's
// store. Grounded on the source repo's cmd/server main.go flag/zap
// bootstrap, restructured onto spf13/cobra subcommands per the external
// CLI surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/engine/internal/backtest"
	"github.com/atlas-desktop/engine/internal/config"
	"github.com/atlas-desktop/engine/internal/errs"
	"github.com/atlas-desktop/engine/internal/risk"
	"github.com/atlas-desktop/engine/internal/store"
	"github.com/atlas-desktop/engine/internal/strategy"
	"github.com/atlas-desktop/engine/internal/supervisor"
	"github.com/atlas-desktop/engine/pkg/types"
)

// Exit codes per the CLI surface: 0 success, 1 validation error, 2 runtime error.
const (
	exitOK         = 0
	exitValidation = 1
	exitRuntime    = 2
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "engine",
		Short: "multi-venue crypto trading engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{Use: "run", Short: "run a backtest, walk-forward, or live session"}
	runCmd.AddCommand(newRunBacktestCmd(), newRunWalkForwardCmd(), newRunLiveCmd())

	cancelCmd := &cobra.Command{Use: "cancel", Short: "cancel an order"}
	cancelCmd.AddCommand(newCancelOrderCmd())

	activateCmd := &cobra.Command{Use: "activate", Short: "activate an operator control"}
	activateCmd.AddCommand(newActivateKillSwitchCmd())

	root.AddCommand(runCmd, cancelCmd, activateCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitForErr(err))
	}
}

func exitForErr(err error) int {
	if kind, ok := errs.As(err); ok {
		switch kind {
		case errs.KindValidation, errs.KindConfigError:
			return exitValidation
		default:
			return exitRuntime
		}
	}
	if _, ok := err.(*validationError); ok {
		return exitValidation
	}
	return exitRuntime
}

// validationError marks a CLI input error as exit-code-1 rather than the
// generic runtime-error exit-code-2.
type validationError struct{ msg string }

func (v *validationError) Error() string { return v.msg }

func newLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}
	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}

func strategyByName(name string) (strategy.Strategy, error) {
	switch name {
	case "mock", "":
		return strategy.NewMockStrategy(10, 5), nil
	case "rule":
		return strategy.NewSMARule(10), nil
	default:
		return nil, &validationError{msg: fmt.Sprintf("unknown strategy %q", name)}
	}
}

func newRunBacktestCmd() *cobra.Command {
	var strategyName, barsPath, instrument string
	var seed int64

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "replay OHLCV through a strategy and report performance metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)
			defer logger.Sync()

			cfg, err := config.Load(configPath)
			if err != nil {
				return &validationError{msg: err.Error()}
			}
			impl, err := strategyByName(strategyName)
			if err != nil {
				return err
			}
			bars, err := loadBars(barsPath)
			if err != nil {
				return &validationError{msg: err.Error()}
			}
			_ = cfg // reserved for a future config-driven backtest profile
			backtestCfg := types.BacktestConfig{
				StrategyName:   strategyName,
				Instruments:    []string{instrument},
				InitialCapital: decimal.NewFromInt(100000),
				Timeframe:      types.Timeframe1h,
				SlippageBps:    decimal.NewFromInt(5),
				CommissionBps:  decimal.NewFromInt(10),
				TrainRatio:     0.6,
				ValidateRatio:  0.2,
				TestRatio:      0.2,
				MaxPositionPct: decimal.NewFromFloat(0.1),
				Seed:           seed,
			}
			engine := backtest.New()
			result, err := engine.Run(backtestCfg, impl, bars)
			if err != nil {
				return fmt.Errorf("backtest run: %w", err)
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&strategyName, "strategy", "mock", "strategy name")
	cmd.Flags().StringVar(&barsPath, "bars", "", "path to a JSON-encoded OHLCV bar array")
	cmd.Flags().StringVar(&instrument, "instrument", "BTC-USD", "instrument identifier")
	cmd.Flags().Int64Var(&seed, "seed", 42, "deterministic RNG seed")
	return cmd
}

func newRunWalkForwardCmd() *cobra.Command {
	var strategyName, barsPath, instrument string
	var windowDays, testDays, stepDays, minSamples int

	cmd := &cobra.Command{
		Use:   "walk-forward",
		Short: "replay OHLCV through sliding train/test windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)
			defer logger.Sync()

			impl, err := strategyByName(strategyName)
			if err != nil {
				return err
			}
			bars, err := loadBars(barsPath)
			if err != nil {
				return &validationError{msg: err.Error()}
			}
			backtestCfg := types.BacktestConfig{
				StrategyName:   strategyName,
				Instruments:    []string{instrument},
				InitialCapital: decimal.NewFromInt(100000),
				Timeframe:      types.Timeframe1h,
				SlippageBps:    decimal.NewFromInt(5),
				CommissionBps:  decimal.NewFromInt(10),
				MaxPositionPct: decimal.NewFromFloat(0.1),
				Seed:           42,
			}
			wfCfg := types.WalkForwardConfig{
				Enabled: true, WindowSizeDays: windowDays, TestWindowDays: testDays,
				StepSizeDays: stepDays, MinSamples: minSamples,
			}
			engine := backtest.New()
			result, err := engine.RunWalkForward(backtestCfg, wfCfg, impl, bars)
			if err != nil {
				return fmt.Errorf("walk-forward run: %w", err)
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&strategyName, "strategy", "mock", "strategy name")
	cmd.Flags().StringVar(&barsPath, "bars", "", "path to a JSON-encoded OHLCV bar array")
	cmd.Flags().StringVar(&instrument, "instrument", "BTC-USD", "instrument identifier")
	cmd.Flags().IntVar(&windowDays, "window-days", 30, "training window size in bars")
	cmd.Flags().IntVar(&testDays, "test-days", 7, "test window size in bars")
	cmd.Flags().IntVar(&stepDays, "step-days", 7, "stride between windows in bars")
	cmd.Flags().IntVar(&minSamples, "min-samples", 20, "minimum bars required to evaluate a window")
	return cmd
}

func newRunLiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "start the live multi-strategy supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(logLevel)
			defer logger.Sync()

			cfg, err := config.Load(configPath)
			if err != nil {
				return &validationError{msg: err.Error()}
			}
			config.ApplyDefaults(&cfg)

			clusters := clustersFromConfig(cfg)
			svc, err := supervisor.New(logger, cfg, clusters)
			if err != nil {
				return fmt.Errorf("wire services: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("engine starting",
				zap.String("storeDsn", cfg.StoreDSN),
				zap.Bool("paperTrading", cfg.PaperTrading),
				zap.Int("venues", len(cfg.Venues)))

			errCh := make(chan error, 1)
			go func() { errCh <- svc.StartTickLoops(ctx) }()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					logger.Error("service loop exited with error", zap.Error(err))
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := svc.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown error", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	}
	return cmd
}

func newCancelOrderCmd() *cobra.Command {
	var orderID, dsn string
	cmd := &cobra.Command{
		Use:   "order",
		Short: "print a cancel request for an order id (no venue adapter is called and no order state changes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orderID == "" {
				return &validationError{msg: "--order-id is required"}
			}
			db, err := store.Open(dsn)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()
			fmt.Printf("cancel requested order=%s (operator tooling: route through the venue adapter owning this order)\n", orderID)
			return nil
		},
	}
	cmd.Flags().StringVar(&orderID, "order-id", "", "order id to cancel")
	cmd.Flags().StringVar(&dsn, "store-dsn", "engine.db", "store DSN")
	return cmd
}

func newActivateKillSwitchCmd() *cobra.Command {
	var reason, dsn, scope, bookID string
	cmd := &cobra.Command{
		Use:   "kill-switch",
		Short: "activate the global or a per-book kill switch",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return &validationError{msg: "--reason is required"}
			}
			target := scope
			if scope == "book" {
				if bookID == "" {
					return &validationError{msg: "--book-id is required when --scope=book"}
				}
				target = bookID
			}
			db, err := store.Open(dsn)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()
			if err := db.SetKillSwitch(context.Background(), target, true, reason); err != nil {
				return fmt.Errorf("activate kill switch: %w", err)
			}
			fmt.Printf("kill switch activated scope=%s book=%s reason=%q\n", scope, bookID, reason)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason for activation")
	cmd.Flags().StringVar(&dsn, "store-dsn", "engine.db", "store DSN")
	cmd.Flags().StringVar(&scope, "scope", "global", "global or a book id")
	cmd.Flags().StringVar(&bookID, "book-id", "", "book id when scope=book")
	return cmd
}

func clustersFromConfig(cfg types.Config) []risk.ClusterConfig {
	// The source repo's correlation groups (defi/l1/...) map onto the
	// risk engine's named clusters. The config has no clusters document,
	// so this returns no clusters and the risk engine's cluster gate is a
	// no-op.
	return nil
}

func loadBars(path string) ([]types.OHLCV, error) {
	if path == "" {
		return nil, &validationError{msg: "--bars is required"}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bars []types.OHLCV
	if err := json.Unmarshal(raw, &bars); err != nil {
		return nil, fmt.Errorf("parse bars: %w", err)
	}
	return bars, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
