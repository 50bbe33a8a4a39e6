package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	if deps.repo == nil {
		t.Fatal("repo should not be nil for memory storage")
	}
	if deps.customerRepo == nil {
		t.Fatal("customerRepo should not be nil for memory storage")
	}
	if deps.productRepo == nil {
		t.Fatal("productRepo should not be nil for memory storage")
	}
	if deps.outboxRepo == nil {
		t.Fatal("outboxRepo should not be nil for memory storage")
	}
	if deps.timelineRepo == nil {
		t.Fatal("timelineRepo should not be nil for memory storage")
	}
	if deps.idempotencyRepo == nil {
		t.Fatal("idempotencyRepo should not be nil for memory storage")
	}
}

func TestInitRuntimeDependencies_MemorySeedsDemoData(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-seed"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}

	customers, err := deps.customerRepo.List()
	if err != nil {
		t.Fatalf("failed to list customers: %v", err)
	}
	if len(customers) != 2 {
		t.Fatalf("expected 2 demo customers, got %d", len(customers))
	}

	products, err := deps.productRepo.List()
	if err != nil {
		t.Fatalf("failed to list products: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 demo products, got %d", len(products))
	}
	if products[0].PriceMinor != 10000 || products[1].PriceMinor != 20000 {
		t.Fatalf("unexpected demo prices: %d, %d", products[0].PriceMinor, products[1].PriceMinor)
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil {
		t.Fatal("expected error for unsupported storage driver")
	}
}

func TestInitIdempotencyRepository_Backends(t *testing.T) {
	t.Parallel()

	// Memory-бэкенд не требует дополнительных настроек.
	repo, err := initIdempotencyRepository(Config{
		StorageDriver:      StorageDriverMemory,
		IdempotencyBackend: IdempotencyBackendMemory,
	}, nil)
	if err != nil {
		t.Fatalf("memory backend failed: %v", err)
	}
	if repo == nil {
		t.Fatal("expected non-nil memory idempotency repository")
	}

	// Postgres-бэкенд без подключения к базе недоступен.
	if _, err := initIdempotencyRepository(Config{
		StorageDriver:      StorageDriverMemory,
		IdempotencyBackend: IdempotencyBackendPostgres,
	}, nil); err == nil {
		t.Fatal("expected error for postgres backend without a store")
	}

	// Redis-бэкенд требует адрес.
	if _, err := initIdempotencyRepository(Config{
		StorageDriver:      StorageDriverMemory,
		IdempotencyBackend: IdempotencyBackendRedis,
	}, nil); err == nil {
		t.Fatal("expected error for redis backend without an address")
	}

	repo, err = initIdempotencyRepository(Config{
		StorageDriver:      StorageDriverMemory,
		IdempotencyBackend: IdempotencyBackendRedis,
		RedisAddr:          "localhost:6379",
	}, nil)
	if err != nil {
		t.Fatalf("redis backend failed: %v", err)
	}
	if repo == nil {
		t.Fatal("expected non-nil redis idempotency repository")
	}

	// Неизвестный бэкенд отклоняется.
	if _, err := initIdempotencyRepository(Config{
		StorageDriver:      StorageDriverMemory,
		IdempotencyBackend: "etcd",
	}, nil); err == nil {
		t.Fatal("expected error for unsupported idempotency backend")
	}
}
