package domain

import "time"

// Order агрегирует заказ клиента и связанные с ним товары.
// Поле Products содержит разрешённый граф ассоциаций order_products → products.
type Order struct {
	ID          int64
	CustomerID  int64
	IsFulfilled bool
	Products    []Product
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TotalPriceMinor возвращает сумму цен всех связанных товаров в минимальных
// денежных единицах. Итог никогда не хранится: он пересчитывается по
// актуальным ценам при каждом чтении.
func (o *Order) TotalPriceMinor() int64 {
	var total int64
	for _, product := range o.Products {
		total += product.PriceMinor
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID <= 0 {
		errs = append(errs, ErrCustomerIDRequired)
	}

	// Композитный ключ (order_id, product_id) запрещает дубликаты ассоциаций.
	seen := make(map[int64]bool, len(o.Products))
	for _, product := range o.Products {
		if product.ID <= 0 {
			errs = append(errs, ErrProductIDRequired)
			continue
		}
		if seen[product.ID] {
			errs = append(errs, ErrDuplicateOrderProduct)
		}
		seen[product.ID] = true
		if product.PriceMinor < 0 {
			errs = append(errs, ErrProductPriceInvalid)
		}
	}

	return errs
}

// OrderProduct — ассоциация заказа и товара с композитной идентичностью.
// Используется на границе хранилища; доменный Order несёт уже разрешённые товары.
type OrderProduct struct {
	OrderID   int64
	ProductID int64
}
