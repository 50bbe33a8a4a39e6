package memory_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/storage/memory"
)

// newSeededStore готовит хранилище с клиентом и двумя товарами.
func newSeededStore(t *testing.T) (*memory.Store, domain.Customer, []domain.Product) {
	t.Helper()
	store := memory.NewStore()
	customer := store.AddCustomer("John Doe")
	products := []domain.Product{
		store.AddProduct("Product 1", 10000),
		store.AddProduct("Product 2", 20000),
	}
	return store, customer, products
}

func TestOrderRepository_CreateGet(t *testing.T) {
	store, customer, products := newSeededStore(t)
	repo := memory.NewOrderRepository(store)

	created, err := repo.Create(domain.Order{CustomerID: customer.ID, Products: products})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected assigned order id")
	}
	if created.IsFulfilled {
		t.Fatal("new order must be unfulfilled")
	}

	stored, err := repo.Get(created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got := stored.TotalPriceMinor(); got != 30000 {
		t.Fatalf("expected total 30000, got %d", got)
	}
	if len(stored.Products) != 2 {
		t.Fatalf("expected 2 associations, got %d", len(stored.Products))
	}
}

func TestOrderRepository_CreateUnfulfilledConflict(t *testing.T) {
	store, customer, products := newSeededStore(t)
	repo := memory.NewOrderRepository(store)

	if _, err := repo.Create(domain.Order{CustomerID: customer.ID, Products: products}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	_, err := repo.Create(domain.Order{CustomerID: customer.ID, Products: products[:1]})
	if !errors.Is(err, domain.ErrUnfulfilledOrderExists) {
		t.Fatalf("expected ErrUnfulfilledOrderExists, got %v", err)
	}
}

func TestOrderRepository_CreateUnknownCustomer(t *testing.T) {
	store, _, products := newSeededStore(t)
	repo := memory.NewOrderRepository(store)

	_, err := repo.Create(domain.Order{CustomerID: 99, Products: products})
	if !errors.Is(err, domain.ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestOrderRepository_GetNotFound(t *testing.T) {
	store, _, _ := newSeededStore(t)
	repo := memory.NewOrderRepository(store)

	if _, err := repo.Get(404); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_GetLivePrices(t *testing.T) {
	store, customer, products := newSeededStore(t)
	repo := memory.NewOrderRepository(store)

	created, err := repo.Create(domain.Order{CustomerID: customer.ID, Products: products})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Итог не снимается при создании: смена цены видна при следующем чтении.
	if err := store.SetProductPrice(products[0].ID, 15000); err != nil {
		t.Fatalf("set price failed: %v", err)
	}

	stored, err := repo.Get(created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got := stored.TotalPriceMinor(); got != 35000 {
		t.Fatalf("expected live total 35000, got %d", got)
	}
}

func TestOrderRepository_MarkFulfilledReleasesGate(t *testing.T) {
	store, customer, products := newSeededStore(t)
	repo := memory.NewOrderRepository(store)

	created, err := repo.Create(domain.Order{CustomerID: customer.ID, Products: products})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	fulfilled, err := repo.MarkFulfilled(created.ID)
	if err != nil {
		t.Fatalf("mark fulfilled failed: %v", err)
	}
	if !fulfilled.IsFulfilled {
		t.Fatal("expected fulfilled order")
	}

	if _, err := repo.MarkFulfilled(created.ID); !errors.Is(err, domain.ErrOrderAlreadyFulfilled) {
		t.Fatalf("expected ErrOrderAlreadyFulfilled, got %v", err)
	}

	// После выполнения заказа клиент снова может заказывать.
	if _, err := repo.Create(domain.Order{CustomerID: customer.ID, Products: products[:1]}); err != nil {
		t.Fatalf("create after fulfillment failed: %v", err)
	}
}

func TestOrderRepository_FindUnfulfilled(t *testing.T) {
	store, customer, products := newSeededStore(t)
	repo := memory.NewOrderRepository(store)

	if _, exists, err := repo.FindUnfulfilled(customer.ID); err != nil || exists {
		t.Fatalf("expected no unfulfilled order, got exists=%v err=%v", exists, err)
	}

	created, err := repo.Create(domain.Order{CustomerID: customer.ID, Products: products})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	found, exists, err := repo.FindUnfulfilled(customer.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if !exists || found.ID != created.ID {
		t.Fatalf("expected order %d, got exists=%v id=%d", created.ID, exists, found.ID)
	}
}

func TestOrderRepository_ListByCustomer(t *testing.T) {
	store, customer, products := newSeededStore(t)
	repo := memory.NewOrderRepository(store)

	first, err := repo.Create(domain.Order{CustomerID: customer.ID, Products: products})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.MarkFulfilled(first.ID); err != nil {
		t.Fatalf("mark fulfilled failed: %v", err)
	}
	if _, err := repo.Create(domain.Order{CustomerID: customer.ID, Products: products[:1]}); err != nil {
		t.Fatalf("second create failed: %v", err)
	}

	orders, err := repo.ListByCustomer(customer.ID, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}

	limited, err := repo.ListByCustomer(customer.ID, 1)
	if err != nil {
		t.Fatalf("limited list failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 order, got %d", len(limited))
	}
}
