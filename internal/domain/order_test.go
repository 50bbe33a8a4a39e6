package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/ops/internal/domain"
)

// helper для создания базового заказа с двумя товарами.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          1,
		CustomerID:  1,
		IsFulfilled: false,
		Products: []domain.Product{
			{ID: 1, Name: "Product 1", PriceMinor: 10000},
			{ID: 2, Name: "Product 2", PriceMinor: 20000},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderTotalPriceMinor(t *testing.T) {
	order := makeOrder()
	if got := order.TotalPriceMinor(); got != 30000 {
		t.Fatalf("expected total 30000, got %d", got)
	}
}

func TestOrderTotalPriceMinor_NoProducts(t *testing.T) {
	order := makeOrder()
	order.Products = nil
	if got := order.TotalPriceMinor(); got != 0 {
		t.Fatalf("expected total 0 for empty order, got %d", got)
	}
}

func TestOrderTotalPriceMinor_LivePrices(t *testing.T) {
	order := makeOrder()
	// Итог всегда считается по текущим ценам, без кеширования.
	order.Products[0].PriceMinor = 15000
	if got := order.TotalPriceMinor(); got != 35000 {
		t.Fatalf("expected total 35000 after price change, got %d", got)
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_EmptyProductsOk(t *testing.T) {
	order := makeOrder()
	order.Products = nil
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("order without associations must be valid, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no customer",
			mut: func(o *domain.Order) {
				o.CustomerID = 0
			},
			want: domain.ErrCustomerIDRequired,
		},
		{
			name: "product without id",
			mut: func(o *domain.Order) {
				o.Products[0].ID = 0
			},
			want: domain.ErrProductIDRequired,
		},
		{
			name: "duplicate association",
			mut: func(o *domain.Order) {
				o.Products[1].ID = o.Products[0].ID
			},
			want: domain.ErrDuplicateOrderProduct,
		},
		{
			name: "negative price",
			mut: func(o *domain.Order) {
				o.Products[0].PriceMinor = -1
			},
			want: domain.ErrProductPriceInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatal("expected validation errors")
			}
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}
