package main

import (
	"RugShield/internal/audit"
	"RugShield/internal/config"
	"RugShield/internal/engine"
	"RugShield/internal/event"
	"RugShield/internal/feed"
	"RugShield/internal/ledger"
	"RugShield/internal/observability"
	"RugShield/internal/oracle"
	"RugShield/internal/persistence"
	"RugShield/internal/projection"
	"RugShield/internal/protocol"
	"RugShield/internal/query"
	"RugShield/internal/server"
	"RugShield/internal/state"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	persistChanSize = 1024
	publishChanSize = 4096

	persistBatchSize    = 50
	persistFlushTimeout = 10 * time.Millisecond
)

func main() {
	log := observability.NewLogger("main")
	log.Info().Msg("RugShield starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("Postgres connected")

	migrationsDir := os.Getenv("RUG_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}
	migrator := persistence.NewMigrator(db, migrationsDir, observability.NewLogger("migrate"))
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}
	log.Info().Msg("migrations applied")

	// --- NATS ---
	nc, js, err := audit.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	log.Info().Msg("NATS connected")

	if err := audit.EnsureStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure outbound stream")
	}
	if err := feed.EnsureStream(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure oracle stream")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Protocol state ---
	pcts := protocol.PoolPercents{
		Insurance: cfg.InsurancePct,
		Staking:   cfg.StakingPct,
		Lottery:   cfg.LotteryPct,
		Buyback:   cfg.BuybackPct,
	}
	proto, err := protocol.New(cfg.Authority, cfg.TokenMint, cfg.ReferenceMint, pcts)
	if err != nil {
		log.Fatal().Err(err).Msg("init protocol")
	}
	proto.TotalSupply = cfg.TotalSupply

	// --- Value ledger bootstrap ---
	// In-memory ledger seeded with the full supply in the treasury and a
	// tenth carved out as the migration reserve. Production would load
	// balances from the chain of record instead.
	vault := ledger.NewMemoryLedger()
	treasury := ledger.NewVaultHolder(engine.TreasuryVault, cfg.TokenMint)
	if err := vault.Mint(treasury, cfg.TotalSupply); err != nil {
		log.Fatal().Err(err).Msg("seed treasury")
	}
	reserve := ledger.NewReserveHolder(engine.MigrationReserve, cfg.TokenMint)
	if err := vault.Transfer(treasury, reserve, cfg.TotalSupply/10); err != nil {
		log.Fatal().Err(err).Msg("seed migration reserve")
	}

	// --- Migration window ---
	bootTime := time.Now()
	migration := state.NewMigration(
		cfg.LegacyMint,
		cfg.TokenMint,
		cfg.MigrationRatio,
		cfg.MigrationBonusMult,
		bootTime,
		bootTime.Add(cfg.MigrationWindow),
		bootTime.Add(cfg.MigrationBonus),
	)

	// --- Oracles ---
	// Price, risk, and rug status arrive over NATS; the store serves the
	// latest readings. Seeded with a boot price so local development works
	// before an oracle gateway publishes.
	oracleStore := feed.NewStore()
	oracleStore.SetPrice(oracle.FreshPrice(1_000_000, cfg.PriceExpo, bootTime))
	oracleStore.SeedRisk(oracle.RiskMetrics{Score: 50})

	oracleFeed := feed.NewSubscriber(js, oracleStore, observability.NewLogger("feed"))
	if err := oracleFeed.Subscribe(ctx); err != nil {
		log.Fatal().Err(err).Msg("subscribe oracle feed")
	}

	randomOracle := &oracle.HashRandomnessOracle{Seed: uint64(bootTime.UnixNano())}

	// --- Output channels ---
	// Persist channel blocks (no event loss); publish channel drops on full.
	persistChan := make(chan *event.Envelope, persistChanSize)
	publishChan := make(chan *event.Envelope, publishChanSize)

	// --- Engine ---
	eng, err := engine.New(engine.Options{
		Protocol:     proto,
		Ledger:       vault,
		Migration:    migration,
		Params:       engine.ParamsFromConfig(cfg),
		Clock:        time.Now,
		PriceOracle:  oracleStore,
		RiskOracle:   oracleStore,
		RugOracle:    oracleStore,
		RandomOracle: randomOracle,
		Metrics:      metrics,
		Logger:       observability.NewLogger("engine"),
		PersistChan:  persistChan,
		PublishChan:  publishChan,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("init engine")
	}

	// --- Services ---
	queryService := query.NewService(db)
	apiServer := server.New(eng, queryService, healthChecker, metrics, observability.NewLogger("http"))

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// --- Start goroutines ---
	errChan := make(chan error, 8)

	persistWorker := persistence.NewWorker(db, persistChan, persistBatchSize, persistFlushTimeout, metrics)
	go func() {
		errChan <- persistWorker.Run(ctx)
	}()

	publisher := audit.NewPublisher(js, publishChan)
	go func() {
		errChan <- publisher.Run(ctx)
	}()

	projWorker := projection.NewWorker(db, 500*time.Millisecond, 500, observability.NewLogger("projection"))
	go func() {
		errChan <- projWorker.Run(ctx)
	}()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	// Channel gauges for capacity alerting.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("persist", len(persistChan), cap(persistChan))
				metrics.SetChannelMetrics("publish", len(publishChan), cap(publishChan))
			}
		}
	}()

	healthChecker.SetReady(true)
	log.Info().
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Str("claim_mode", cfg.ClaimMode).
		Str("reward_variant", cfg.RewardVariant).
		Msg("RugShield ready")

	// --- Wait for shutdown ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	healthChecker.SetReady(false)
	oracleFeed.Stop()

	// Stop accepting requests first so no new events enter the channels,
	// then close the channels so the workers drain and flush.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}

	close(persistChan)
	close(publishChan)
	cancel()

	// Give the persistence worker a moment to finish its final flush.
	time.Sleep(500 * time.Millisecond)

	log.Info().Uint64("sequence", eng.Sequence()).Msg("RugShield shutdown complete")
}
