package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ops/internal/health"
	"github.com/vladislavdragonenkov/ops/internal/storage/memory"
	"github.com/vladislavdragonenkov/ops/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/ops/internal/storage/redis"
)

// runtimeDependencies содержит репозитории, собранные под выбранный драйвер.
type runtimeDependencies struct {
	repo            domain.OrderRepository
	customerRepo    domain.CustomerRepository
	productRepo     domain.ProductRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	storageCheck healthcheck.CheckFunc
	closeFn      func() error
}

// initRuntimeDependencies собирает репозитории для cfg.StorageDriver.
// Memory-драйвер предназначен для разработки и демо и наполняется
// стартовыми клиентами и товарами.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		seedDemoData(store)
		logger.Info("memory storage initialized with demo data")

		deps := &runtimeDependencies{
			repo:         memory.NewOrderRepository(store),
			customerRepo: memory.NewCustomerRepository(store),
			productRepo:  memory.NewProductRepository(store),
			outboxRepo:   memory.NewOutboxRepository(),
			timelineRepo: memory.NewTimelineRepository(),
		}

		idempotencyRepo, err := initIdempotencyRepository(cfg, nil)
		if err != nil {
			return nil, err
		}
		deps.idempotencyRepo = idempotencyRepo
		return deps, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires a DSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		logger.Info("postgres storage initialized")

		deps := &runtimeDependencies{
			repo:         postgres.NewOrderRepository(store),
			customerRepo: postgres.NewCustomerRepository(store),
			productRepo:  postgres.NewProductRepository(store),
			outboxRepo:   postgres.NewOutboxRepository(store),
			timelineRepo: postgres.NewTimelineRepository(store),
			storageCheck: healthcheck.DatabasePing(store.DB(), 0),
			closeFn:      store.Close,
		}

		idempotencyRepo, err := initIdempotencyRepository(cfg, store)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		deps.idempotencyRepo = idempotencyRepo
		return deps, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// initIdempotencyRepository выбирает бэкенд для idempotency-ключей.
// Пустой backend наследует драйвер основного хранилища.
func initIdempotencyRepository(cfg Config, pgStore *postgres.Store) (domain.IdempotencyRepository, error) {
	backend := cfg.IdempotencyBackend
	if backend == "" {
		backend = cfg.StorageDriver
	}

	switch backend {
	case IdempotencyBackendMemory:
		return memory.NewIdempotencyRepository(), nil
	case IdempotencyBackendPostgres:
		if pgStore == nil {
			return nil, fmt.Errorf("postgres idempotency backend requires the postgres storage driver")
		}
		return postgres.NewIdempotencyRepository(pgStore), nil
	case IdempotencyBackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis idempotency backend requires an address")
		}
		return redisstore.NewIdempotencyRepository(cfg.RedisAddr), nil
	default:
		return nil, fmt.Errorf("unsupported idempotency backend %q", backend)
	}
}

// seedDemoData наполняет in-memory хранилище стартовыми данными.
func seedDemoData(store *memory.Store) {
	store.AddCustomer("John Doe")
	store.AddCustomer("Jane Smith")
	store.AddProduct("Product 1", 10000)
	store.AddProduct("Product 2", 20000)
}
