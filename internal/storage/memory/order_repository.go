package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// orderRepositoryInMemory — in-memory реализация OrderRepository поверх Store.
type orderRepositoryInMemory struct {
	store *Store
}

// NewOrderRepository возвращает in-memory репозиторий заказов.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepositoryInMemory{store: store}
}

// Create атомарно сохраняет заказ и его ассоциации. Проверка единственного
// невыполненного заказа выполняется под тем же мьютексом, что и вставка.
func (r *orderRepositoryInMemory) Create(order domain.Order) (domain.Order, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[order.CustomerID]; !ok {
		return domain.Order{}, domain.ErrCustomerNotFound
	}
	for _, existing := range s.orders {
		if existing.CustomerID == order.CustomerID && !existing.IsFulfilled {
			return domain.Order{}, domain.ErrUnfulfilledOrderExists
		}
	}

	productIDs := make([]int64, 0, len(order.Products))
	for _, product := range order.Products {
		if _, ok := s.products[product.ID]; !ok {
			return domain.Order{}, domain.ErrProductNotFound
		}
		productIDs = append(productIDs, product.ID)
	}

	s.nextOrderID++
	order.ID = s.nextOrderID
	order.IsFulfilled = false
	if order.CreatedAt.IsZero() {
		order.CreatedAt = nowUTC()
	}
	order.UpdatedAt = order.CreatedAt

	stored := order
	stored.Products = nil
	s.orders[order.ID] = stored
	s.orderProducts[order.ID] = productIDs

	return s.resolveOrderLocked(stored), nil
}

// Get возвращает заказ с актуальными ценами товаров или ErrOrderNotFound.
func (r *orderRepositoryInMemory) Get(id int64) (domain.Order, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return s.resolveOrderLocked(order), nil
}

// FindUnfulfilled возвращает текущий невыполненный заказ клиента, если он есть.
func (r *orderRepositoryInMemory) FindUnfulfilled(customerID int64) (domain.Order, bool, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, order := range s.orders {
		if order.CustomerID == customerID && !order.IsFulfilled {
			return s.resolveOrderLocked(order), true, nil
		}
	}
	return domain.Order{}, false, nil
}

// ListByCustomer возвращает заказы клиента, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByCustomer(customerID int64, limit int) ([]domain.Order, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.CustomerID != customerID {
			continue
		}
		result = append(result, s.resolveOrderLocked(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// MarkFulfilled переводит заказ в состояние fulfilled.
func (r *orderRepositoryInMemory) MarkFulfilled(id int64) (domain.Order, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if order.IsFulfilled {
		return domain.Order{}, domain.ErrOrderAlreadyFulfilled
	}

	order.IsFulfilled = true
	order.UpdatedAt = nowUTC()
	s.orders[id] = order

	return s.resolveOrderLocked(order), nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
