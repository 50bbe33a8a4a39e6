package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// productRepositoryInMemory — in-memory реализация ProductRepository.
type productRepositoryInMemory struct {
	store *Store
}

// NewProductRepository возвращает in-memory репозиторий товаров.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepositoryInMemory{store: store}
}

// FindByIDs возвращает существующие товары, сохраняя порядок запроса.
// Неизвестные идентификаторы молча пропускаются.
func (r *productRepositoryInMemory) FindByIDs(ids []int64) ([]domain.Product, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			result = append(result, product)
		}
	}
	return result, nil
}

// List возвращает все товары в порядке идентификаторов.
func (r *productRepositoryInMemory) List() ([]domain.Product, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, product := range s.products {
		result = append(result, product)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
