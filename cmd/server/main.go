package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	adminservice "confreg/internal/admin/service"
	adminstore "confreg/internal/admin/store"
	"confreg/internal/payment/gateway"
	"confreg/internal/payment/txid"
	"confreg/internal/platform/config"
	"confreg/internal/platform/database"
	"confreg/internal/platform/httpserver"
	"confreg/internal/platform/logger"
	"confreg/internal/platform/ratelimit"
	"confreg/internal/platform/redis"
	"confreg/internal/platform/tracing"
	"confreg/internal/pricing"
	reconhandler "confreg/internal/reconciliation/handler"
	reconmetrics "confreg/internal/reconciliation/metrics"
	reconservice "confreg/internal/reconciliation/service"
	"confreg/internal/reconciliation/worker"
	reghandler "confreg/internal/registration/handler"
	regmetrics "confreg/internal/registration/metrics"
	regservice "confreg/internal/registration/service"
	regstore "confreg/internal/registration/store"
	"confreg/pkg/platform/audit"
	"confreg/pkg/platform/audit/kafka"
	"confreg/pkg/platform/audit/publisher"
	auditmemory "confreg/pkg/platform/audit/store/memory"
	"confreg/pkg/platform/circuit"
	"confreg/pkg/platform/middleware/admin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type stores struct {
	participants regservice.Store
	admins       adminservice.Store
	db           *sql.DB
}

func openStores(ctx context.Context, cfg config.Storage, log *slog.Logger) (*stores, error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn("using in-memory storage; data is lost on restart")
		return &stores{participants: regstore.NewInMemory(), admins: adminstore.NewInMemory()}, nil
	}

	db, dialect, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	participants := regstore.NewSQL(db, dialect)
	if err := participants.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate participants: %w", err)
	}
	admins := adminstore.NewSQL(db, dialect)
	if err := admins.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate admins: %w", err)
	}
	log.Info("storage ready", "driver", cfg.Driver)
	return &stores{participants: participants, admins: admins, db: db}, nil
}

// openAuditStore keeps the queryable trail in memory and mirrors it to Kafka
// when brokers are configured. The broker connection joins checks.
func openAuditStore(ctx context.Context, cfg config.Audit, checks map[string]httpserver.HealthCheck, log *slog.Logger) (audit.Store, func(), error) {
	memory := auditmemory.NewInMemoryStore(cfg.MemoryLimit)
	if len(cfg.KafkaBrokers) == 0 {
		return memory, func() {}, nil
	}
	sink, err := kafka.NewSink(ctx, kafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka audit sink: %w", err)
	}
	checks["kafka"] = sink.Ping
	log.Info("audit events mirrored to kafka", "topic", cfg.KafkaTopic)
	return audit.Fanout(memory, sink), sink.Close, nil
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("starting confreg",
		"addr", cfg.Server.Addr,
		"store", cfg.Storage.Driver,
		"gateway", cfg.Gateway,
	)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checks := map[string]httpserver.HealthCheck{}

	st, err := openStores(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	if st.db != nil {
		defer st.db.Close()
		checks["database"] = st.db.PingContext
	}

	var reserver txid.Reserver = txid.NewMemoryReserver(cfg.Redis.ReservationTTL)
	redisClient, err := redis.Open(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		reserver = txid.NewRedisReserver(redisClient, cfg.Redis.ReservationTTL)
		checks["redis"] = redisClient.Health
	}

	auditStore, closeSink, err := openAuditStore(ctx, cfg.Audit, checks, log)
	if err != nil {
		return err
	}
	defer closeSink()
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
	)
	defer auditPublisher.Close()

	registrar := regservice.New(st.participants,
		regservice.WithLogger(log),
		regservice.WithAuditPublisher(auditPublisher),
		regservice.WithMetrics(regmetrics.New(reg)),
	)

	admins := adminservice.New(st.admins, adminservice.WithLogger(log))
	if _, err := admins.Bootstrap(ctx, cfg.Admin.BootstrapEmail, cfg.Admin.BootstrapPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	signer := gateway.NewSigner(cfg.Gateway.SaltKey, cfg.Gateway.SaltIndex)
	gatewayMetrics := gateway.NewMetrics(reg)
	gatewayClient := gateway.NewClient(cfg.Gateway, signer,
		gateway.WithLogger(log),
		gateway.WithMetrics(gatewayMetrics),
		gateway.WithBreaker(circuit.New("payment-gateway",
			circuit.WithFailureThreshold(cfg.Gateway.BreakerFailureThreshold),
			circuit.WithCooldown(cfg.Gateway.BreakerCooldown),
		)),
	)

	reconMetrics := reconmetrics.New(reg)
	reconciler := reconservice.New(
		gatewayClient,
		registrar,
		txid.NewMinter(txid.New(), reserver),
		pricing.New(pricing.Deadlines{
			EarlyBird: cfg.Pricing.EarlyBirdDeadline,
			Regular:   cfg.Pricing.RegularDeadline,
		}),
		signer,
		reconservice.WithLogger(log),
		reconservice.WithMetrics(reconMetrics),
		reconservice.WithCallbackRetry(cfg.Reconciliation.CallbackRetry),
	)
	sweeper := worker.NewSweeper(registrar, reconciler,
		worker.WithInterval(cfg.Reconciliation.SweepInterval),
		worker.WithStaleAfter(cfg.Reconciliation.StaleAfter),
		worker.WithConcurrency(cfg.Reconciliation.SweepConcurrency),
		worker.WithBatch(cfg.Reconciliation.SweepBatch),
		worker.WithLogger(log),
		worker.WithMetrics(reconMetrics),
	)

	regOpts := []reghandler.Option{
		reghandler.WithAdmin(admin.RequireAdmin(admins, log)),
		reghandler.WithAuditReader(auditPublisher),
	}
	var reconOpts []reconhandler.Option
	if cfg.RateLimit.Enabled {
		var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
		if redisClient != nil {
			limitStore = ratelimit.NewRedisStore(redisClient)
		}
		limitMetrics := ratelimit.NewMetrics(reg)
		newLimiter := func(name string) *ratelimit.Limiter {
			return ratelimit.New(name, limitStore, cfg.RateLimit.Requests, cfg.RateLimit.Window,
				ratelimit.WithTrustProxy(cfg.RateLimit.TrustProxy),
				ratelimit.WithLogger(log),
				ratelimit.WithMetrics(limitMetrics),
			)
		}
		regOpts = append(regOpts, reghandler.WithRateLimit(newLimiter("participants").Handler))
		reconOpts = append(reconOpts, reconhandler.WithRateLimit(newLimiter("payments").Handler))
	}

	router := httpserver.NewRouter(log, reg, checks,
		reghandler.New(registrar, log, regOpts...),
		reconhandler.New(reconciler, cfg.Server.ResultPageURL, log, reconOpts...),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, httpserver.New(cfg.Server.Addr, router), cfg.Server.ShutdownTimeout, log)
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	return g.Wait()
}
