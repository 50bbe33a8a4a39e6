package httpx_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ops/internal/domain"
	"github.com/vladislavdragonenkov/ops/internal/service/httpx"
	"github.com/vladislavdragonenkov/ops/internal/service/order"
	"github.com/vladislavdragonenkov/ops/internal/storage/memory"
)

type apiFixture struct {
	store    *memory.Store
	server   *httptest.Server
	customer domain.Customer
	products []domain.Product
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := memory.NewStore()
	customer := store.AddCustomer("John Doe")
	products := []domain.Product{
		store.AddProduct("Product 1", 10000),
		store.AddProduct("Product 2", 20000),
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	entry := logger.WithField("component", "test")

	svc := order.NewService(
		memory.NewOrderRepository(store),
		memory.NewCustomerRepository(store),
		memory.NewProductRepository(store),
		memory.NewOutboxRepository(),
		memory.NewTimelineRepository(),
		nil,
		entry,
	)

	handler := httpx.NewHandler(svc, entry)
	server := httptest.NewServer(httpx.NewRouter(handler, nil))
	t.Cleanup(server.Close)

	return &apiFixture{
		store:    store,
		server:   server,
		customer: customer,
		products: products,
	}
}

func (f *apiFixture) postJSON(t *testing.T, path, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (f *apiFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestCreateOrder(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/api/orders", `{"customer_id":1,"product_ids":[1,2]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created httpx.OrderResponse
	decodeJSON(t, resp, &created)

	if created.ID == 0 {
		t.Fatal("expected a non-zero order id")
	}
	if created.CustomerID != 1 {
		t.Fatalf("expected customer 1, got %d", created.CustomerID)
	}
	if created.IsFulfilled {
		t.Fatal("new order must not be fulfilled")
	}
	if created.TotalPriceMinor != 30000 {
		t.Fatalf("expected total 30000, got %d", created.TotalPriceMinor)
	}
	if len(created.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(created.Products))
	}
}

func TestCreateOrder_SecondUnfulfilledConflicts(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/api/orders", `{"customer_id":1,"product_ids":[1]}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = f.postJSON(t, "/api/orders", `{"customer_id":1,"product_ids":[2]}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	var body httpx.ErrorResponse
	decodeJSON(t, resp, &body)
	if body.Error != "conflict" {
		t.Fatalf("expected error code conflict, got %q", body.Error)
	}
}

func TestCreateOrder_UnknownCustomer(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/api/orders", `{"customer_id":99,"product_ids":[1]}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCreateOrder_InvalidBody(t *testing.T) {
	f := newAPIFixture(t)

	for name, body := range map[string]string{
		"malformed json":      `{"customer_id":`,
		"missing customer_id": `{"product_ids":[1]}`,
	} {
		resp := f.postJSON(t, "/api/orders", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, resp.StatusCode)
		}
	}
}

func TestCreateOrder_UnknownProductsDropped(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/api/orders", `{"customer_id":1,"product_ids":[1,99]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created httpx.OrderResponse
	decodeJSON(t, resp, &created)

	if len(created.Products) != 1 {
		t.Fatalf("expected unknown product to be dropped, got %d products", len(created.Products))
	}
	if created.TotalPriceMinor != 10000 {
		t.Fatalf("expected total 10000, got %d", created.TotalPriceMinor)
	}
}

func TestGetOrder_LiveTotal(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/api/orders", `{"customer_id":1,"product_ids":[1,2]}`)
	var created httpx.OrderResponse
	decodeJSON(t, resp, &created)

	if err := f.store.SetProductPrice(1, 15000); err != nil {
		t.Fatalf("failed to reprice product: %v", err)
	}

	resp = f.get(t, "/api/orders/1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var fetched httpx.OrderResponse
	decodeJSON(t, resp, &fetched)

	if fetched.TotalPriceMinor != 35000 {
		t.Fatalf("expected total to follow the new price, got %d", fetched.TotalPriceMinor)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/api/orders/42")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetOrder_InvalidID(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/api/orders/abc")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestFulfillOrder(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/api/orders", `{"customer_id":1,"product_ids":[1]}`)
	resp.Body.Close()

	resp = f.postJSON(t, "/api/orders/1/fulfill", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var fulfilled httpx.OrderResponse
	decodeJSON(t, resp, &fulfilled)
	if !fulfilled.IsFulfilled {
		t.Fatal("expected the order to be fulfilled")
	}

	// Выполнение снимает блокировку: новый заказ для клиента разрешён.
	resp = f.postJSON(t, "/api/orders", `{"customer_id":1,"product_ids":[2]}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 after fulfillment, got %d", resp.StatusCode)
	}

	// Повторное выполнение — конфликт.
	resp = f.postJSON(t, "/api/orders/1/fulfill", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on double fulfillment, got %d", resp.StatusCode)
	}
}

func TestGetOrderTimeline(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/api/orders", `{"customer_id":1,"product_ids":[1]}`)
	resp.Body.Close()
	resp = f.postJSON(t, "/api/orders/1/fulfill", "")
	resp.Body.Close()

	resp = f.get(t, "/api/orders/1/timeline")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var events []httpx.TimelineEventResponse
	decodeJSON(t, resp, &events)

	if len(events) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(events))
	}
	if events[0].Type != "OrderCreated" || events[1].Type != "OrderFulfilled" {
		t.Fatalf("unexpected event order: %q, %q", events[0].Type, events[1].Type)
	}

	resp = f.get(t, "/api/orders/77/timeline")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown order, got %d", resp.StatusCode)
	}
}

func TestGetCustomer_WithOrders(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.postJSON(t, "/api/orders", `{"customer_id":1,"product_ids":[1,2]}`)
	resp.Body.Close()

	resp = f.get(t, "/api/customers/1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var customer httpx.CustomerResponse
	decodeJSON(t, resp, &customer)

	if customer.Name != "John Doe" {
		t.Fatalf("expected John Doe, got %q", customer.Name)
	}
	if len(customer.Orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(customer.Orders))
	}
	if customer.Orders[0].TotalPriceMinor != 30000 {
		t.Fatalf("expected order total 30000, got %d", customer.Orders[0].TotalPriceMinor)
	}
}

func TestListCustomersAndProducts(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.get(t, "/api/customers")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var customers []httpx.CustomerResponse
	decodeJSON(t, resp, &customers)
	if len(customers) != 1 {
		t.Fatalf("expected 1 customer, got %d", len(customers))
	}

	resp = f.get(t, "/api/products")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var products []httpx.ProductResponse
	decodeJSON(t, resp, &products)
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
	if products[0].PriceMinor != 10000 || products[1].PriceMinor != 20000 {
		t.Fatalf("unexpected prices: %d, %d", products[0].PriceMinor, products[1].PriceMinor)
	}
}

func TestListCustomerOrders_Limit(t *testing.T) {
	f := newAPIFixture(t)

	for i := 0; i < 3; i++ {
		resp := f.postJSON(t, "/api/orders", `{"customer_id":1,"product_ids":[1]}`)
		resp.Body.Close()
		resp = f.postJSON(t, "/api/orders/"+strconv.Itoa(i+1)+"/fulfill", "")
		resp.Body.Close()
	}

	resp := f.get(t, "/api/customers/1/orders?limit=2")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var orders []httpx.OrderResponse
	decodeJSON(t, resp, &orders)
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}

	resp = f.get(t, "/api/customers/1/orders?limit=-1")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", resp.StatusCode)
	}
}
