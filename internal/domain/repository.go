package domain

// OrderRepository описывает требования к хранилищу заказов.
// Реализации сами ограничивают время операций; идентификаторы назначает хранилище.
type OrderRepository interface {
	// Create атомарно сохраняет заказ вместе со всеми ассоциациями и
	// возвращает заказ с назначенным идентификатором. Проверка «не более
	// одного невыполненного заказа на клиента» выполняется внутри той же
	// транзакции; нарушение возвращается как ErrUnfulfilledOrderExists.
	Create(order Order) (Order, error)
	// Get возвращает заказ с разрешённым графом товаров или ErrOrderNotFound.
	Get(id int64) (Order, error)
	// FindUnfulfilled возвращает текущий невыполненный заказ клиента.
	// Второй результат false означает, что такого заказа нет.
	FindUnfulfilled(customerID int64) (Order, bool, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(customerID int64, limit int) ([]Order, error)
	// MarkFulfilled переводит заказ в состояние fulfilled и возвращает его.
	// Повторный вызов возвращает ErrOrderAlreadyFulfilled.
	MarkFulfilled(id int64) (Order, error)
}

// CustomerRepository описывает хранилище клиентов.
type CustomerRepository interface {
	// Get возвращает клиента вместе с его заказами или ErrCustomerNotFound.
	Get(id int64) (Customer, error)
	// List возвращает всех клиентов с их заказами.
	List() ([]Customer, error)
}

// ProductRepository описывает хранилище товаров.
type ProductRepository interface {
	// FindByIDs возвращает товары по набору идентификаторов.
	// Неизвестные идентификаторы молча пропускаются — вызывающая сторона
	// не рассчитывает, что разрешатся все запрошенные id.
	FindByIDs(ids []int64) ([]Product, error)
	// List возвращает все товары.
	List() ([]Product, error)
}
