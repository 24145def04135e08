package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"warehub/internal/api"
	"warehub/internal/availability"
	"warehub/internal/config"
	"warehub/internal/database"
	"warehub/internal/domain"
	"warehub/internal/events"
	"warehub/internal/export"
	"warehub/internal/google"
	"warehub/internal/logging"
	"warehub/internal/metrics"
	"warehub/internal/models"
	"warehub/internal/notify"
	"warehub/internal/pricing"
	"warehub/internal/repository"
	"warehub/internal/service"
	"warehub/internal/telemetry"
	"warehub/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, cfg.App)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	db, err := initDatabase(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	bus := events.NewEventBus()

	sheetsWorker := initSheetsSync(ctx, cfg, db, redisClient, &logger)

	svc, err := buildServices(cfg, db, redisClient, bus, sheetsWorker, &logger)
	if err != nil {
		return err
	}

	dispatcher, closeSinks, err := initNotifications(cfg, &logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	dispatcher.Attach(bus)
	go dispatcher.Run(ctx)

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, svc, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	var httpServer *api.HTTPServer
	if cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, svc, &logger)
	}

	if grpcServer == nil && httpServer == nil {
		logger.Warn().Msg("both HTTP and gRPC APIs are disabled in config, only background jobs will run")
	}

	return startServers(ctx, grpcServer, httpServer, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	seedPath := os.Getenv("SEED_PATH")
	if seedPath == "" {
		seedPath = cfg.SeedFile
	}
	if seedPath == "" {
		return db, nil
	}

	seed, err := loadSeed(seedPath, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := applySeed(ctx, db, seed); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply seed: %w", err)
	}
	logger.Info().
		Int("warehouses", len(seed.Warehouses)).
		Int("customers", len(seed.Customers)).
		Str("seed_path", seedPath).
		Msg("reference data seeded")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if !cfg.Redis.Enabled || cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initSheetsSync connects the ledger spreadsheet and starts its worker. It
// returns nil when sync is disabled or the sheet is unreachable.
func initSheetsSync(ctx context.Context, cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.SheetsWorker {
	if !cfg.Google.Enabled {
		return nil
	}

	sheetsLogger := logging.Component(logger, "sheets")
	sheets, err := google.NewSheetsService(ctx, cfg.Google.GoogleCredentialsFile, cfg.Google.BookingSpreadSheetID, cfg.Google.SheetName, sheetsLogger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheets.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheets.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}
	go sheets.StartCacheRefresh(ctx, 10*time.Minute)

	w := worker.NewSheetsWorker(db, db, sheets, redisClient, worker.RetryPolicy{}, logging.Component(logger, "sheets-worker"))
	go w.Start(ctx)

	// Пересобираем лист за текущий месяц при старте
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if err := w.EnqueueLedgerSync(ctx, from, from.AddDate(0, 1, -1)); err != nil {
		logger.Warn().Err(err).Msg("enqueue ledger sync failed")
	}

	logger.Info().Str("sheet", cfg.Google.SheetName).Msg("google sheets connected")
	return w
}

func buildServices(
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	bus *events.EventBus,
	sheetsWorker *worker.SheetsWorker,
	logger *zerolog.Logger,
) (api.Services, error) {
	pricingCfg, err := cfg.Pricing.ToPricing()
	if err != nil {
		return api.Services{}, fmt.Errorf("pricing config: %w", err)
	}
	calc, err := pricing.NewCalculator(pricingCfg)
	if err != nil {
		return api.Services{}, fmt.Errorf("pricing calculator: %w", err)
	}

	var cache domain.PricingCache = repository.NewMemoryPricingCache(cfg.Pricing.CacheTTL)
	if redisClient != nil {
		cache = repository.NewFailoverPricingCache(
			repository.NewRedisPricingCache(redisClient, cfg.Pricing.CacheTTL),
			cache,
			logging.Component(logger, "pricing-cache"),
		)
	}
	pricingSource := repository.NewCachedPricingSource(db, cache, cfg.Pricing.LookupTimeout, logger)

	provider, err := availability.NewProvider(db, db, cfg.Scheduling, cfg.Pricing.LookupTimeout)
	if err != nil {
		return api.Services{}, fmt.Errorf("availability: %w", err)
	}

	deps := service.BookingDeps{
		Repo:         db,
		Pricing:      pricingSource,
		Warehouses:   db,
		Customers:    db,
		Auth:         db,
		Availability: provider,
		Limiter:      cache,
		EventBus:     bus,
		Calculator:   calc,
	}
	if sheetsWorker != nil {
		deps.SheetsWorker = sheetsWorker
	}

	bookingLogger := logging.Component(logger, "bookings")
	bookings := service.NewBookingService(deps, bookingLogger)
	bookings.SetRateLimit(cfg.API.RateLimit.BookingsPerWindow, cfg.API.RateLimit.Window)
	if loc, err := time.LoadLocation(cfg.Scheduling.Timezone); err == nil {
		bookings.SetDefaultLocation(loc)
	}

	return api.Services{
		Bookings:  bookings,
		Slots:     service.NewTimeSlotService(bookings, provider),
		Approvals: service.NewApprovalService(bookings, db, cfg.Approvals.CancelOnReject, logging.Component(logger, "approvals")),
		Exporter:  export.NewExporter(bookings, cfg.Exports.Path, logging.Component(logger, "export")),
	}, nil
}

// initNotifications builds the dispatcher with every enabled sink. The
// returned func closes broker connections.
func initNotifications(cfg *config.Config, logger *zerolog.Logger) (*notify.Dispatcher, func(), error) {
	var (
		sinks   []notify.Sink
		closers []io.Closer
	)
	n := cfg.Notifications

	if n.Telegram.Enabled {
		tg, err := notify.NewTelegramNotifier(n.Telegram)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram notifications")
		} else {
			sinks = append(sinks, tg)
		}
	}

	if n.AMQP.Enabled {
		pub, err := notify.NewAMQPPublisher(n.AMQP)
		if err != nil {
			return nil, nil, fmt.Errorf("amqp publisher: %w", err)
		}
		sinks = append(sinks, pub)
		closers = append(closers, pub)
	}

	if n.Kafka.Enabled {
		pub := notify.NewKafkaPublisher(n.Kafka)
		sinks = append(sinks, pub)
		closers = append(closers, pub)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn().Err(err).Msg("close notification sink")
			}
		}
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Info().Strs("sinks", names).Msg("notifications configured")

	d := notify.NewDispatcher(models.WorkerQueueSize, 5*time.Second, logging.Component(logger, "notify"), sinks...)
	return d, closeAll, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(ctx context.Context, grpcServer *api.GRPCServer, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
		logger.Info().Str("grpc_addr", grpcServer.Addr()).Msg("gRPC API started")
	}

	if httpServer != nil {
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
