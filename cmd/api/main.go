package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carshine/internal/api"
	"carshine/internal/config"
	"carshine/internal/database"
	"carshine/internal/domain"
	"carshine/internal/events"
	"carshine/internal/google"
	"carshine/internal/logging"
	"carshine/internal/metrics"
	"carshine/internal/models"
	"carshine/internal/notify"
	"carshine/internal/repository"
	"carshine/internal/service"
	"carshine/internal/storage"
	"carshine/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	services, err := loadCatalog(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	states := initStates(cfg, redisClient, &logger)
	sheetsService := initGoogleSheets(cfg, &logger)
	notifier := initTelegram(cfg, &logger)

	notifyWorker := worker.NewNotifyWorker(
		db, notifier, sheetsWriter(sheetsService), redisClient,
		worker.RetryPolicy{}, log.New(os.Stdout, "notify-worker ", log.LstdFlags),
	)

	eventBus := events.NewEventBus()
	subscribeEventLog(eventBus, &logger)

	catalog := service.NewCatalogService(services, &logger)
	bookings := service.NewBookingService(db, catalog, eventBus, notifyWorker, cfg.Booking.MaxBookingDays, &logger)
	sessions := service.NewEditSessionService(states, bookings, &logger)

	store, err := storage.NewLocalStore(cfg.Storage.Path, cfg.Storage.PublicBaseURL, &logger)
	if err != nil {
		logger.Error().Err(err).Str("path", cfg.Storage.Path).Msg("init storage")
		return err
	}
	if err := store.EnsureBucket(storage.BucketConfig{Name: "progress-photos", Public: true}); err != nil {
		logger.Error().Err(err).Msg("ensure progress-photos bucket")
		return err
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Bookings: bookings,
		Sessions: sessions,
		Catalog:  catalog,
		Repo:     db,
		Store:    store,
		Notify:   notifyWorker,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go notifyWorker.Start(ctx)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	return serveHTTP(ctx, httpServer, cfg, &logger)
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

// loadCatalog prefers the standalone services file; the inline config list is
// the fallback.
func loadCatalog(cfg *config.Config, logger *zerolog.Logger) ([]models.Service, error) {
	servicesPath := os.Getenv("SERVICES_PATH")
	if servicesPath == "" {
		servicesPath = "configs/services.yaml"
	}

	data, err := os.ReadFile(servicesPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info().Str("services_path", servicesPath).Msg("no services file, using config catalog")
			return cfg.Services, nil
		}
		logger.Error().Err(err).Str("services_path", servicesPath).Msg("read services")
		return nil, err
	}

	var catalogFile struct {
		Services []models.Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &catalogFile); err != nil {
		logger.Error().Err(err).Str("services_path", servicesPath).Msg("parse services")
		return nil, err
	}
	if err := config.ValidateServices(catalogFile.Services); err != nil {
		return nil, err
	}

	return catalogFile.Services, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initStates builds the session store: redis behind a failover wrapper when
// available, otherwise plain in-memory.
func initStates(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	ttl := time.Duration(cfg.Booking.SessionTTLSeconds) * time.Second
	memory := repository.NewMemoryStateRepository(ttl)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisStateRepository(redisClient, ttl)
	return repository.NewFailoverStateRepository(primary, memory, logger)
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.BookingsSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(cfg.Google.CredentialsFile, cfg.Google.BookingsSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

// sheetsWriter keeps the worker's optional dependency a true nil when sheets
// are not configured.
func sheetsWriter(s *google.SheetsService) worker.SheetsClient {
	if s == nil {
		return nil
	}
	return s
}

func initTelegram(cfg *config.Config, logger *zerolog.Logger) worker.Notifier {
	if !cfg.Telegram.Enabled {
		return nil
	}

	bot, err := notify.NewBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return nil
	}

	logger.Info().Int("manager_chats", len(cfg.Telegram.ManagerChatIDs)).Msg("telegram connected")
	return notify.NewTelegramNotifier(bot, cfg.Telegram.ManagerChatIDs, cfg.Telegram.CustomerChatIDs, logger)
}

func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	handler := func(event *events.Event) error {
		logger.Info().
			Str("event", event.Type).
			RawJSON("payload", event.Payload).
			Msg("booking event")
		return nil
	}
	for _, eventType := range []string{
		events.EventBookingCreated,
		events.EventBookingUpdated,
		events.EventBookingDeleted,
		events.EventProgressUpdate,
	} {
		bus.Subscribe(eventType, handler)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serveHTTP(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
