package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ops/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

type seedCustomer struct {
	name string
}

type seedProduct struct {
	name       string
	priceMinor int64
}

// Стартовый набор данных: клиенты и каталог товаров создаются при
// инициализации базы и дальше сервисом не изменяются.
var (
	seedCustomers = []seedCustomer{
		{name: "John Doe"},
		{name: "Jane Smith"},
	}
	seedProducts = []seedProduct{
		{name: "Product 1", priceMinor: 10000},
		{name: "Product 2", priceMinor: 20000},
	}
)

func main() {
	var dsn string

	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: OPS_POSTGRES_DSN)")
	flag.Parse()

	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("OPS_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("OPS_POSTGRES_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		fail("apply migrations: %v", err)
	}

	customers, products, err := seed(ctx, store.DB())
	if err != nil {
		fail("seed failed: %v", err)
	}

	fmt.Printf("seed ok: customers=%d products=%d\n", customers, products)
}

// seed наполняет базу стартовыми данными. Повторный запуск безопасен:
// уже существующие записи (по имени) пропускаются.
func seed(ctx context.Context, db *sql.DB) (customers, products int, err error) {
	for _, customer := range seedCustomers {
		inserted, err := insertIfMissing(ctx, db,
			`INSERT INTO customers (name)
             SELECT $1 WHERE NOT EXISTS (SELECT 1 FROM customers WHERE name = $1)`,
			customer.name)
		if err != nil {
			return customers, products, fmt.Errorf("seed customer %q: %w", customer.name, err)
		}
		customers += inserted
	}

	for _, product := range seedProducts {
		inserted, err := insertIfMissing(ctx, db,
			`INSERT INTO products (name, price_minor)
             SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM products WHERE name = $1)`,
			product.name, product.priceMinor)
		if err != nil {
			return customers, products, fmt.Errorf("seed product %q: %w", product.name, err)
		}
		products += inserted
	}

	return customers, products, nil
}

func insertIfMissing(ctx context.Context, db *sql.DB, query string, args ...any) (int, error) {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
