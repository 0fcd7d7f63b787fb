package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/case-intake/internal/config"
	"github.com/kirillkom/case-intake/internal/core/ports"
	"github.com/kirillkom/case-intake/internal/core/usecase"
	"github.com/kirillkom/case-intake/internal/infrastructure/extractor/pdfmeta"
	"github.com/kirillkom/case-intake/internal/infrastructure/httpjson"
	"github.com/kirillkom/case-intake/internal/infrastructure/lock/memory"
	"github.com/kirillkom/case-intake/internal/infrastructure/lock/redislock"
	"github.com/kirillkom/case-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/case-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/case-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/case-intake/internal/infrastructure/services/analysis"
	"github.com/kirillkom/case-intake/internal/infrastructure/services/extraction"
	"github.com/kirillkom/case-intake/internal/infrastructure/services/mail"
	"github.com/kirillkom/case-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/case-intake/internal/infrastructure/storage/minio"
	"github.com/kirillkom/case-intake/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue         *nats.Queue
	Intake        *usecase.IntakeUseCase
	IntakeMetrics *metrics.IntakeMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	closers = append(closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		closeAll()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	intakeMetrics := metrics.NewIntakeMetrics(service)
	executor := resilience.NewExecutor(resilience.Policy{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    cfg.ResilienceRetryMaxAttempts,
			InitialBackoff: cfg.ResilienceRetryInitialBackoff,
			MaxBackoff:     cfg.ResilienceRetryMaxBackoff,
		},
		Breaker: resilience.BreakerPolicy{
			Enabled:     cfg.ResilienceBreakerEnabled,
			OpenTimeout: cfg.ResilienceBreakerOpenTimeout,
		},
	}).WithLogger(logger).WithStateListener(intakeMetrics.ObserveBreakerState)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		QueueGroup:         cfg.NATSQueueGroup,
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	closers = append(closers, queue.Close)

	locker, closeLocker, err := newCaseLocker(ctx, cfg, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init case locker: %w", err)
	}
	closers = append(closers, closeLocker)

	intake := usecase.NewIntakeUseCase(usecase.IntakeDeps{
		Cases:      postgres.NewCaseRepository(db),
		Documents:  postgres.NewDocumentRepository(db),
		Batches:    postgres.NewBatchRepository(db),
		Storage:    storage,
		Extraction: extraction.New(newServiceClient("extraction", cfg.ExtractionURL, cfg.ExtractionAPIKey, cfg, executor)),
		Analysis:   analysis.New(newServiceClient("analysis", cfg.AnalysisURL, cfg.AnalysisAPIKey, cfg, executor)),
		Mail:       mail.New(newServiceClient("mail", cfg.MailURL, cfg.MailAPIKey, cfg, executor)),
		Locker:     locker,
		Inspector:  pdfmeta.New(),
		Observer:   intakeMetrics,
		Logger:     logger,
	}, usecase.IntakeConfig{
		MaxConcurrentDocuments: cfg.MaxConcurrentDocuments,
		OrganizeConcurrency:    cfg.OrganizeConcurrency,
		Poller: usecase.PollerConfig{
			MaxAttempts:  cfg.PollMaxAttempts,
			BaseInterval: cfg.PollBaseInterval,
		},
	})

	return &App{
		Config:        cfg,
		Logger:        logger,
		Queue:         queue,
		Intake:        intake,
		IntakeMetrics: intakeMetrics,
		closeFn:       closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	switch strings.ToLower(cfg.StorageBackend) {
	case "", "localfs":
		return localfs.New(cfg.StoragePath)
	case "minio", "s3":
		return minio.New(ctx, minio.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newCaseLocker(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.CaseLocker, func(), error) {
	switch strings.ToLower(cfg.LockBackend) {
	case "", "memory":
		return memory.New(), func() {}, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		locker := redislock.New(client, redislock.Options{
			TTL:    cfg.RedisLockTTL,
			Logger: logger,
		})
		if err := locker.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return locker, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

func newServiceClient(service, baseURL, apiKey string, cfg config.Config, executor *resilience.Executor) *httpjson.Client {
	return httpjson.New(service, baseURL, httpjson.Options{
		Timeout:  cfg.ServiceTimeout,
		Executor: executor,
		Headers:  map[string]string{"Authorization": bearer(apiKey)},
	})
}

func bearer(apiKey string) string {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ""
	}
	return "Bearer " + apiKey
}
