// Package main runs the trading bot: it polls closed candles from the
// broker gateway, detects reference-level breaks and reversals, and
// manages the resulting trades under the configured risk limits.
//
// Execution runs against the in-process paper gateway; a live broker
// plugs in behind broker.Gateway without touching the loop.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sst-bot/internal/broker"
	"sst-bot/internal/domain"
	"sst-bot/internal/engine"
	"sst-bot/internal/lifecycle"
	"sst-bot/internal/news"
	"sst-bot/internal/notify"
	"sst-bot/internal/observability"
	"sst-bot/internal/risk"
	sig "sst-bot/internal/signal"
	"sst-bot/internal/storage"
	chstore "sst-bot/internal/storage/clickhouse"
	"sst-bot/internal/storage/memory"
	"sst-bot/internal/storage/migrations"
	pgstore "sst-bot/internal/storage/postgres"
)

type botStores struct {
	signals       storage.SignalStore
	trades        storage.TradeStore
	sessionLevels storage.SessionLevelsStore
}

func main() {
	// Load .env if present; existing env vars win.
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	instruments := flag.String("instruments", envOr("INSTRUMENTS", "EUR_USD"), "Comma-separated instrument symbols")
	timeframe := flag.String("timeframe", envOr("TIMEFRAME", "M5"), "Candle timeframe (M1, M3, M5, M15, H1)")
	tickSize := flag.Float64("tick-size", 0.0001, "Minimum price increment, applied to all instruments")
	sessionOffset := flag.Duration("session-offset", 0, "Daily session boundary offset from midnight UTC")
	streamEndpoint := flag.String("stream-endpoint", os.Getenv("STREAM_ENDPOINT"), "Broker WebSocket price endpoint (optional)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for candle archival (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")

	balance := flag.Float64("balance", 10000, "Paper gateway starting balance")
	riskPercent := flag.Float64("risk-percent", 0.01, "Fraction of balance risked per trade")
	rewardRatio := flag.Float64("reward-ratio", 4, "Target distance as a multiple of stop distance")
	balanceBasis := flag.String("balance-basis", string(domain.BalanceCurrent), "Sizing balance basis (current or initial)")
	maxTrades := flag.Int("max-trades", 3, "Maximum simultaneously open trades")
	minBalance := flag.Float64("min-balance", 0, "Block new entries below this balance (0 disables)")
	maxDailyLoss := flag.Float64("max-daily-loss", 0, "Pause entries after losing this fraction of the day-start balance (0 disables)")

	cooldown := flag.Duration("signal-cooldown", time.Hour, "Dedup window for repeated signals off the same level")
	minDistTicks := flag.Float64("min-level-distance", 1, "Minimum trigger distance from the level, in ticks")
	maxDistTicks := flag.Float64("max-level-distance", 0, "Maximum continuation trigger distance, in ticks (0 disables)")
	stopBuffer := flag.Float64("stop-buffer", 0.0002, "Stop placement pad as a fraction of price")

	pollInterval := flag.Duration("poll-interval", 15*time.Second, "Candle poll interval")
	rolloverInterval := flag.Duration("rollover-interval", time.Minute, "Session boundary check interval")
	minSessionCandles := flag.Int("min-session-candles", 10, "Smallest prior-session candle count that yields fresh levels")

	newsFile := flag.String("news-file", os.Getenv("NEWS_FILE"), "JSON file with scheduled news events (optional)")
	webhookURL := flag.String("webhook-url", os.Getenv("WEBHOOK_URL"), "Webhook endpoint for trade notifications (optional)")

	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags)

	symbols := splitList(*instruments)
	if len(symbols) == 0 {
		logger.Fatal("--instruments is required")
	}
	tf := domain.Timeframe(*timeframe)
	if tf.Duration() <= 0 {
		logger.Fatalf("unknown timeframe %q", *timeframe)
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	riskCfg := domain.RiskConfig{
		RiskPercent:         *riskPercent,
		RewardRatio:         *rewardRatio,
		Basis:               domain.BalanceBasis(*balanceBasis),
		InitialBalance:      *balance,
		MaxConcurrentTrades: *maxTrades,
		MinBalance:          *minBalance,
		MaxDailyLossPercent: *maxDailyLoss,
	}
	if err := riskCfg.Validate(); err != nil {
		logger.Fatalf("risk config: %v", err)
	}
	validatorCfg := domain.ValidatorConfig{
		CooldownWindow:        *cooldown,
		MinLevelDistanceTicks: *minDistTicks,
		MaxLevelDistanceTicks: *maxDistTicks,
	}
	if err := validatorCfg.Validate(); err != nil {
		logger.Fatalf("validator config: %v", err)
	}

	instrumentList := make([]domain.Instrument, 0, len(symbols))
	for _, sym := range symbols {
		instrumentList = append(instrumentList, domain.Instrument{
			Symbol:        sym,
			TickSize:      *tickSize,
			SessionOffset: *sessionOffset,
		})
	}
	logger.Printf("instruments: %v, timeframe %s", symbols, tf)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, archive, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("create stores: %v", err)
	}
	defer cleanup()

	gateway := broker.NewReadRetrier(broker.NewPaperGateway(*balance))

	var newsFilter sig.NewsFilter
	if *newsFile != "" {
		events, err := loadNewsEvents(*newsFile)
		if err != nil {
			logger.Fatalf("load news events: %v", err)
		}
		newsFilter = news.NewCalendar(news.DefaultConfig(), events, logger)
		logger.Printf("loaded %d news events from %s", len(events), *newsFile)
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if *webhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(notify.DefaultWebhookConfig(*webhookURL), logger))
	}

	metrics := observability.NewMetrics("")
	manager := lifecycle.NewManager(gateway, stores.trades, riskCfg.MaxConcurrentTrades, logger)

	eng, err := engine.NewEngine(engine.Config{
		Instruments:           instrumentList,
		Timeframe:             tf,
		PollInterval:          *pollInterval,
		RolloverCheckInterval: *rolloverInterval,
		MinSessionCandles:     *minSessionCandles,
		StopBufferFrac:        *stopBuffer,
		DedupSeedWindow:       *cooldown,
	}, engine.Deps{
		Gateway:       gateway,
		Validator:     sig.NewValidator(validatorCfg, newsFilter, logger),
		Sizer:         risk.NewSizer(riskCfg),
		Lifecycle:     manager,
		Signals:       stores.signals,
		SessionLevels: stores.sessionLevels,
		Archive:       archive,
		Notifier:      notifiers,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatalf("create engine: %v", err)
	}

	if *streamEndpoint != "" {
		feed, err := broker.NewPriceFeed(ctx, *streamEndpoint, symbols, nil)
		if err != nil {
			logger.Fatalf("price feed: %v", err)
		}
		defer feed.Close()
		go eng.RunPriceFeed(ctx, feed.Updates())
	}

	go serveHTTP(*metricsAddr, logger)

	done := make(chan error, 1)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("received signal %v, shutting down", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("received second signal %v, forcing exit", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = eng.Run(ctx)
	done <- err
	if err != nil {
		logger.Fatalf("engine: %v", err)
	}
	logger.Println("shutdown complete")
}

// createStores builds the store set plus the optional candle archive.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (*botStores, engine.CandleArchive, func(), error) {
	var stores *botStores
	cleanups := []func(){}

	if useMemory {
		stores = &botStores{
			signals:       memory.NewSignalStore(),
			trades:        memory.NewTradeStore(),
			sessionLevels: memory.NewSessionLevelsStore(),
		}
	} else {
		pool, err := pgstore.NewPool(ctx, postgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		stores = &botStores{
			signals:       pgstore.NewSignalStore(pool),
			trades:        pgstore.NewTradeStore(pool),
			sessionLevels: pgstore.NewSessionLevelsStore(pool),
		}
	}

	var archive engine.CandleArchive
	if clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			for _, c := range cleanups {
				c()
			}
			return nil, nil, nil, err
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })
		archive = chstore.NewCandleStore(conn)
		logger.Println("candle archival enabled")
	}

	cleanup := func() {
		for _, c := range cleanups {
			c()
		}
	}
	return stores, archive, cleanup, nil
}

// serveHTTP exposes Prometheus metrics and a liveness probe.
func serveHTTP(addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	logger.Printf("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("metrics server: %v", err)
	}
}

// loadNewsEvents reads a JSON array of scheduled releases.
func loadNewsEvents(path string) ([]news.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var events []news.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
