package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// Store — общее in-memory хранилище для локальной разработки и тестов.
// Таблицы защищены одним мьютексом, поэтому последовательность
// «проверить невыполненный заказ → вставить» выполняется атомарно.
type Store struct {
	mu sync.RWMutex

	customers     map[int64]domain.Customer
	products      map[int64]domain.Product
	orders        map[int64]domain.Order
	orderProducts map[int64][]int64

	nextCustomerID int64
	nextProductID  int64
	nextOrderID    int64
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		customers:     make(map[int64]domain.Customer),
		products:      make(map[int64]domain.Product),
		orders:        make(map[int64]domain.Order),
		orderProducts: make(map[int64][]int64),
	}
}

// AddCustomer регистрирует клиента и возвращает его с назначенным id.
func (s *Store) AddCustomer(name string) domain.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCustomerID++
	customer := domain.Customer{ID: s.nextCustomerID, Name: name}
	s.customers[customer.ID] = customer
	return customer
}

// AddProduct регистрирует товар и возвращает его с назначенным id.
func (s *Store) AddProduct(name string, priceMinor int64) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	product := domain.Product{ID: s.nextProductID, Name: name, PriceMinor: priceMinor}
	s.products[product.ID] = product
	return product
}

// SetProductPrice меняет цену существующего товара. Возвращает
// ErrProductNotFound, если товара нет.
func (s *Store) SetProductPrice(id, priceMinor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.PriceMinor = priceMinor
	s.products[id] = product
	return nil
}

// resolveOrderLocked собирает заказ с актуальными ценами товаров.
// Вызывается только под блокировкой.
func (s *Store) resolveOrderLocked(order domain.Order) domain.Order {
	ids := s.orderProducts[order.ID]
	products := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			products = append(products, product)
		}
	}
	order.Products = products
	return order
}

// nowUTC выделен для читаемости вызовов в репозиториях.
func nowUTC() time.Time {
	return time.Now().UTC()
}
