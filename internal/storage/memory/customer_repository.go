package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// customerRepositoryInMemory — in-memory реализация CustomerRepository.
type customerRepositoryInMemory struct {
	store *Store
}

// NewCustomerRepository возвращает in-memory репозиторий клиентов.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepositoryInMemory{store: store}
}

// Get возвращает клиента с его заказами или ErrCustomerNotFound.
func (r *customerRepositoryInMemory) Get(id int64) (domain.Customer, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	customer.Orders = s.customerOrdersLocked(id)
	return customer, nil
}

// List возвращает всех клиентов с их заказами в порядке идентификаторов.
func (r *customerRepositoryInMemory) List() ([]domain.Customer, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Customer, 0, len(s.customers))
	for _, customer := range s.customers {
		customer.Orders = s.customerOrdersLocked(customer.ID)
		result = append(result, customer)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// customerOrdersLocked собирает заказы клиента. Вызывается только под блокировкой.
func (s *Store) customerOrdersLocked(customerID int64) []domain.Order {
	orders := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.CustomerID == customerID {
			orders = append(orders, s.resolveOrderLocked(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ID < orders[j].ID
	})
	return orders
}

var _ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)
