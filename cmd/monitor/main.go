package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"updown-monitor/internal/costbasis"
	"updown-monitor/internal/hub"
	"updown-monitor/internal/ledger"
	"updown-monitor/internal/monitor"
	"updown-monitor/internal/observability"
	"updown-monitor/internal/rewards"
	"updown-monitor/internal/sink"
	"updown-monitor/internal/solana"
	"updown-monitor/internal/storage"
	chstore "updown-monitor/internal/storage/clickhouse"
	"updown-monitor/internal/storage/memory"
	"updown-monitor/internal/storage/migrations"
	pgstore "updown-monitor/internal/storage/postgres"
)

func main() {
	rpcEndpoint := flag.String("rpc-endpoint", "", "RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", "", "WebSocket endpoint")
	program := flag.String("program", "", "Market program ID to monitor")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (empty keeps volume in memory)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	listenAddr := flag.String("listen-addr", ":8080", "Subscriber WebSocket address (/ws)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	historyEndpoint := flag.String("history-endpoint", "", "External trade-history POST endpoint (optional)")
	volumeEndpoint := flag.String("volume-endpoint", "", "External volume POST endpoint (optional)")
	initialCycle := flag.Int64("initial-cycle", 0, "Market cycle id at startup")
	queueSize := flag.Int("queue-size", 1024, "Outbound sink queue capacity")
	queueWorkers := flag.Int("queue-workers", 4, "Outbound sink workers")
	rpcRate := flag.Float64("rpc-rate", 10, "Max RPC requests per second (0 to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[monitor] ", log.LstdFlags|log.Lshortfile)

	if err := run(logger, config{
		rpcEndpoint:     *rpcEndpoint,
		wsEndpoint:      *wsEndpoint,
		program:         *program,
		postgresDSN:     *postgresDSN,
		clickhouseDSN:   *clickhouseDSN,
		useMemory:       *useMemory,
		listenAddr:      *listenAddr,
		metricsAddr:     *metricsAddr,
		historyEndpoint: *historyEndpoint,
		volumeEndpoint:  *volumeEndpoint,
		initialCycle:    *initialCycle,
		queueSize:       *queueSize,
		queueWorkers:    *queueWorkers,
		rpcRate:         *rpcRate,
	}); err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type config struct {
	rpcEndpoint     string
	wsEndpoint      string
	program         string
	postgresDSN     string
	clickhouseDSN   string
	useMemory       bool
	listenAddr      string
	metricsAddr     string
	historyEndpoint string
	volumeEndpoint  string
	initialCycle    int64
	queueSize       int
	queueWorkers    int
	rpcRate         float64
}

func run(logger *log.Logger, cfg config) error {
	if cfg.rpcEndpoint == "" {
		return fmt.Errorf("--rpc-endpoint is required")
	}
	if cfg.wsEndpoint == "" {
		return fmt.Errorf("--ws-endpoint is required")
	}
	if cfg.program == "" {
		return fmt.Errorf("--program is required")
	}
	if !cfg.useMemory && cfg.postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	metrics := observability.NewMetrics("")

	if cfg.metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.metricsAddr)
			if err := http.ListenAndServe(cfg.metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Chain clients
	rpcOpts := []solana.ClientOption{}
	if cfg.rpcRate > 0 {
		rpcOpts = append(rpcOpts, solana.WithRateLimit(cfg.rpcRate, int(cfg.rpcRate)))
	}
	rpc := solana.NewHTTPClient(cfg.rpcEndpoint, rpcOpts...)

	ws, err := solana.NewWSClient(ctx, cfg.wsEndpoint, nil, logger)
	if err != nil {
		return fmt.Errorf("create websocket client: %w", err)
	}
	defer ws.Close()

	// Stores (use interfaces)
	var historyStore storage.TradeHistoryStore = memory.NewTradeHistoryStore()
	var pointsStore storage.PointsStore = memory.NewPointsStore()
	var volumeStore storage.VolumeStore = memory.NewVolumeStore()

	if !cfg.useMemory {
		pool, err := pgstore.NewPool(ctx, cfg.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}

		historyStore = pgstore.NewTradeHistoryStore(pool)
		pointsStore = pgstore.NewPointsStore(pool)
	}

	if cfg.clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()

		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}

		volumeStore = chstore.NewVolumeStore(conn)
	}

	// Broadcast hub with its own listener
	broadcastHub := hub.New(logger)
	broadcastHub.OnSubscriberChange(func(count int) { metrics.Subscribers.Set(float64(count)) })
	broadcastHub.OnRateLimited(metrics.ChatRateLimited.Inc)
	if cfg.listenAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/ws", broadcastHub.ServeWS)
			logger.Printf("Starting subscriber server on %s", cfg.listenAddr)
			if err := http.ListenAndServe(cfg.listenAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Subscriber server error: %v", err)
			}
		}()
	}

	// Outbound queue and optional forwarders. Workers run on the
	// background context so Close can drain pending tasks during
	// shutdown; signal cancellation must not kill them mid-drain.
	queue := sink.NewQueue(cfg.queueSize, logger, metrics.SinkTasksDropped.Inc)
	queue.OnFailure(metrics.SinkTaskFailures.Inc)
	queue.Start(context.Background(), cfg.queueWorkers)

	deps := monitor.Deps{
		WS:      ws,
		RPC:     rpc,
		Book:    ledger.NewBook(logger),
		Accruer: rewards.NewAccruer(pointsStore, costbasis.NewService(historyStore), logger),
		History: historyStore,
		Volume:  volumeStore,
		Queue:   queue,
		Hub:     broadcastHub,
		Metrics: metrics,
		Logger:  logger,
	}
	if cfg.historyEndpoint != "" {
		deps.HistoryForwarder = sink.NewHTTPHistorySink(cfg.historyEndpoint)
	}
	if cfg.volumeEndpoint != "" {
		deps.VolumeForwarder = sink.NewHTTPVolumeSink(cfg.volumeEndpoint)
	}

	m := monitor.New(deps, monitor.Options{
		ProgramID:      cfg.program,
		InitialCycleID: cfg.initialCycle,
	})

	logger.Printf("Monitoring program %s", cfg.program)
	return m.Run(ctx)
}
