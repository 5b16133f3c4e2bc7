// Command engine is the CLI entry point for the automated trading engine.
//
// Architecture:
//
//	main.go                 — CLI surface: loads config, wires ports, runs the engine
//	internal/engine         — cooperative scheduler: Startup -> Discovery -> Connect -> Warmup -> Trading
//	internal/strategy       — pluggable Strategy port + built-in market-maker / sure-sweep strategies
//	internal/market         — Gamma API scanner, resolves the high-certainty index token per market
//	internal/book           — local order book mirror fed by WebSocket snapshots
//	internal/position       — flip-through-zero position and realized/unrealized P&L tracking
//	internal/risk           — pre-trade exposure limits and the reservation ledger
//	internal/order          — order lifecycle tracking and execution against the OrderSubmitter port
//	internal/exchange       — REST/WebSocket adapters implementing the OrderSubmitter/BookFeed/MarketCatalog ports
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"polymarket-mm/internal/api"
	"polymarket-mm/internal/config"
	"polymarket-mm/internal/engine"
	"polymarket-mm/internal/exchange"
	"polymarket-mm/internal/market"
	"polymarket-mm/internal/strategy"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var logLevel string

	root := &cobra.Command{
		Use:   "engine",
		Short: "Automated market-making engine for binary-outcome prediction markets",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("POLY_CONFIG", "configs/config.yaml"), "path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug|info|warn|error)")

	root.AddCommand(newRunCmd(&cfgPath, &logLevel))
	root.AddCommand(newListCmd())
	root.AddCommand(newTestGammaCmd(&cfgPath, &logLevel))
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered strategy names",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := strategy.DefaultRegistry(strategy.DefaultMarketMakerConfig(), strategy.DefaultSureSweepConfig())
			for _, name := range reg.Names() {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func newTestGammaCmd(cfgPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-gamma",
		Short: "Run one discovery pass against the Gamma API and print the selected markets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfigAndLogger(*cfgPath, *logLevel)
			if err != nil {
				return err
			}
			scanner := market.NewScanner(*cfg, logger)
			markets, err := scanner.Discover(cmd.Context())
			if err != nil {
				return fmt.Errorf("discover: %w", err)
			}
			for _, m := range markets {
				fmt.Printf("%s  %s\n", m.Slug, m.Question)
			}
			fmt.Printf("%d market(s) selected\n", len(markets))
			return nil
		},
	}
}

func newRunCmd(cfgPath, logLevel *string) *cobra.Command {
	var (
		dryRun     bool
		maxTicks   int
		skipWarmup bool
		strategies []string
	)

	cmd := &cobra.Command{
		Use:   "run [strategy...]",
		Short: "Run the trading engine with the given strategies (defaults to marketmaker)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				strategies = args
			}
			if len(strategies) == 0 {
				strategies = []string{"marketmaker"}
			}
			return runEngine(*cfgPath, *logLevel, dryRun, maxTicks, skipWarmup, strategies)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "override config and never submit real orders")
	cmd.Flags().IntVar(&maxTicks, "max-ticks", 0, "stop after this many ticks (0 = unbounded)")
	cmd.Flags().BoolVar(&skipWarmup, "skip-warmup", false, "skip waiting for the warmup book updates before trading")
	return cmd
}

func loadConfigAndLogger(cfgPath, logLevel string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel == "" {
		logLevel = cfg.Logging.Level
	}
	opts := &slog.HandlerOptions{Level: parseLogLevel(logLevel)}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return cfg, slog.New(handler), nil
}

func runEngine(cfgPath, logLevel string, dryRun bool, maxTicks int, skipWarmup bool, strategyNames []string) error {
	cfg, logger, err := loadConfigAndLogger(cfgPath, logLevel)
	if err != nil {
		return err
	}
	if dryRun {
		cfg.DryRun = true
	}
	if maxTicks > 0 {
		cfg.Engine.MaxTicks = maxTicks
	}
	if skipWarmup {
		cfg.Engine.SkipWarmup = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	auth, err := exchange.NewAuth(*cfg)
	if err != nil {
		return fmt.Errorf("build auth: %w", err)
	}
	restClient := exchange.NewClient(*cfg, auth, logger)
	submitter := exchange.NewSubmitter(restClient, cfg.DryRun, logger)

	marketFeed := exchange.NewMarketFeed(cfg.API.WSMarketURL, logger)
	bookFeed := exchange.NewBookFeedAdapter(marketFeed, logger)

	var fillFeed exchange.FillFeed
	var userFeedAdapter *exchange.UserFeedAdapter
	if auth.HasL2Credentials() && cfg.API.WSUserURL != "" {
		userFeed := exchange.NewUserFeed(cfg.API.WSUserURL, auth, logger)
		userFeedAdapter = exchange.NewUserFeedAdapter(userFeed, logger)
		fillFeed = userFeedAdapter
	}

	scanner := market.NewScanner(*cfg, logger)

	mmCfg := buildMarketMakerConfig(cfg.Strategy)
	swCfg := strategy.DefaultSureSweepConfig()
	registry := strategy.DefaultRegistry(mmCfg, swCfg)

	var built []strategy.Strategy
	for _, name := range strategyNames {
		s, ok := registry.Build(name)
		if !ok {
			return fmt.Errorf("unknown strategy %q (available: %v)", name, registry.Names())
		}
		built = append(built, s)
	}
	runtime := strategy.NewRuntime(built...)

	eng := engine.New(*cfg, scanner, bookFeed, fillFeed, submitter, runtime, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go marketFeed.Run(ctx)
	go bookFeed.Run(ctx)
	if userFeedAdapter != nil {
		go userFeedAdapter.Run(ctx)
	}

	var dashboard *api.Server
	if cfg.Dashboard.Enabled {
		dashboard = api.NewServer(cfg.Dashboard, eng, *cfg, logger)
		go func() {
			if err := dashboard.Start(); err != nil {
				logger.Error("dashboard server stopped", "error", err)
			}
		}()
		defer dashboard.Stop()
	}

	logger.Info("engine starting",
		"strategies", strategyNames,
		"dry_run", cfg.DryRun,
	)
	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	if err := eng.Run(ctx); err != nil {
		logger.Error("engine exited with error", "error", err)
		return err
	}
	logger.Info("engine stopped")
	return nil
}

func buildMarketMakerConfig(sc config.StrategyConfig) strategy.MarketMakerConfig {
	cfg := strategy.DefaultMarketMakerConfig()
	if sc.SpreadBps > 0 {
		cfg.SpreadBps = decimal.NewFromInt(int64(sc.SpreadBps))
	}
	if sc.SkewFactor > 0 {
		cfg.SkewFactor = decimal.NewFromFloat(sc.SkewFactor)
	}
	if sc.MaxPosition > 0 {
		cfg.MaxPosition = decimal.NewFromFloat(sc.MaxPosition)
	}
	if sc.MinEdge > 0 {
		cfg.MinEdge = decimal.NewFromFloat(sc.MinEdge)
	}
	if sc.TickSize > 0 {
		cfg.TickSize = decimal.NewFromFloat(sc.TickSize)
	}
	if sc.OrderSizeUSD > 0 {
		cfg.OrderSize = decimal.NewFromFloat(sc.OrderSizeUSD)
	}
	if sc.FlowWindow > 0 {
		cfg.FlowWindow = sc.FlowWindow
	}
	if sc.FlowToxicityThreshold > 0 {
		cfg.ToxicityThreshold = sc.FlowToxicityThreshold
	}
	if sc.FlowCooldownPeriod > 0 {
		cfg.ToxicityCooldown = sc.FlowCooldownPeriod
	}
	if sc.FlowMaxSpreadMultiplier > 0 {
		cfg.MaxSpreadMultiple = sc.FlowMaxSpreadMultiplier
	}
	return cfg
}

func parseLogLevel(level string) slog.Level {
	switch level {
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
