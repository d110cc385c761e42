package integration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jpcardenas/retail-backoffice/internal/database"
	"github.com/jpcardenas/retail-backoffice/internal/models"
	"github.com/jpcardenas/retail-backoffice/internal/store"
)

func TestCreateOrderReducesStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product1 := seedProduct(t, db, "Product 1", 50, nil)
	product2 := seedProduct(t, db, "Product 2", 30, nil)

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{
			posItem(product1, 5, nil),
			posItem(product2, 3, nil),
		},
		PaymentMethod: "cash",
		PaymentStatus: models.PaymentPaid,
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if order.ID == 0 {
		t.Error("Order ID should not be 0")
	}
	if !strings.HasPrefix(order.OrderNumber, "ORD-") {
		t.Errorf("Expected ORD- order number, got %s", order.OrderNumber)
	}
	if order.Status != models.OrderPending {
		t.Errorf("Expected pending status, got %s", order.Status)
	}

	expectedSubtotal := decimal.NewFromInt(800)
	if !order.Subtotal.Equal(expectedSubtotal) {
		t.Errorf("Expected subtotal %s, got %s", expectedSubtotal, order.Subtotal)
	}
	if !order.Total.Equal(expectedSubtotal) {
		t.Errorf("Expected total %s, got %s", expectedSubtotal, order.Total)
	}
	if !order.PaidAmount.Equal(expectedSubtotal) {
		t.Errorf("Expected paid amount %s, got %s", expectedSubtotal, order.PaidAmount)
	}

	product1After, err := store.GetProduct(ctx, db, product1.ID)
	if err != nil {
		t.Fatalf("Get product 1: %v", err)
	}
	if product1After.Stock != 45 {
		t.Errorf("Expected product 1 stock 45, got %d", product1After.Stock)
	}
	if product1After.Quantity != 45 {
		t.Errorf("Quantity should mirror stock, got %d", product1After.Quantity)
	}
	if product1After.QuantitiesSold != 5 {
		t.Errorf("Expected 5 sold, got %d", product1After.QuantitiesSold)
	}

	product2After, err := store.GetProduct(ctx, db, product2.ID)
	if err != nil {
		t.Fatalf("Get product 2: %v", err)
	}
	if product2After.Stock != 27 {
		t.Errorf("Expected product 2 stock 27, got %d", product2After.Stock)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Scarce Product", 5, nil)

	_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{posItem(product, 10, nil)},
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected insufficient stock error, got: %v", err)
	}

	productAfter, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if productAfter.Stock != 5 {
		t.Errorf("Stock should remain unchanged at 5, got %d", productAfter.Stock)
	}

	page, err := store.ListOrders(ctx, db, store.OrderFilters{}, 1, 10)
	if err != nil {
		t.Fatalf("List orders: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("No order should have been recorded, found %d", page.Total)
	}
}

func TestCreateOrderInactiveProduct(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product, err := store.CreateProduct(ctx, db, store.CreateProductParams{
		Name:      "Retired Product",
		BasePrice: decimal.NewFromInt(100),
		SalePrice: decimal.NewFromInt(100),
		Stock:     10,
		IsActive:  false,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	_, err = store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{posItem(product, 1, nil)},
	})
	if !errors.Is(err, database.ErrProductInactive) {
		t.Errorf("Expected inactive product error, got: %v", err)
	}
}

func TestCreateOrderVariantReduction(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Shirt", 10, shirtVariants(5, 5, 4, 6))

	_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{
			posItem(product, 2, map[string]string{"Color": "red", "Size": "M"}),
		},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.Stock != 8 {
		t.Errorf("Expected flat stock 8, got %d", after.Stock)
	}
	if got := after.FindVariantOption("Color", "red").Stocks; got != 3 {
		t.Errorf("Expected red 3, got %d", got)
	}
	if got := after.FindVariantOption("Color", "blue").Stocks; got != 5 {
		t.Errorf("Blue should be untouched, got %d", got)
	}
	if got := after.FindVariantOption("Size", "M").Stocks; got != 4 {
		t.Errorf("Expected M 4, got %d", got)
	}
	if after.QuantitiesSold != 2 {
		t.Errorf("Expected 2 sold, got %d", after.QuantitiesSold)
	}
}

func TestCreateOrderVariantAllOrNothing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	// Size S has only 1 unit; Color red has plenty. The whole item must
	// fail and no counter may move.
	product := seedProduct(t, db, "Shirt", 10, shirtVariants(5, 5, 1, 9))

	_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{
			posItem(product, 3, map[string]string{"Color": "red", "Size": "S"}),
		},
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Fatalf("Expected insufficient stock error, got: %v", err)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.Stock != 10 {
		t.Errorf("Flat stock should be unchanged, got %d", after.Stock)
	}
	if got := after.FindVariantOption("Color", "red").Stocks; got != 5 {
		t.Errorf("Red should be unchanged, got %d", got)
	}
	if got := after.FindVariantOption("Size", "S").Stocks; got != 1 {
		t.Errorf("S should be unchanged, got %d", got)
	}
}

func TestVariantFlatStockCeiling(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	// Option counters say 5 but only 1 unit exists overall: the flat
	// counter caps the sale.
	product := seedProduct(t, db, "Shirt", 1, shirtVariants(5, 5, 5, 5))

	_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{
			posItem(product, 2, map[string]string{"Color": "red"}),
		},
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected insufficient stock error, got: %v", err)
	}
}

func TestConcurrentOrderCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Contested Product", 10, nil)

	concurrency := 10
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
				Items: []store.OrderItemInput{posItem(product, 2, nil)},
			})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	insufficientCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock):
			insufficientCount++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount != 5 {
		t.Errorf("Expected 5 successful orders, got %d (insufficient: %d)", successCount, insufficientCount)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.Stock != 0 {
		t.Errorf("Expected final stock 0, got %d", after.Stock)
	}
	if after.QuantitiesSold != 10 {
		t.Errorf("Expected 10 sold, got %d", after.QuantitiesSold)
	}
}

func TestCancelOrderRestoresStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Shirt", 10, shirtVariants(5, 5, 4, 6))

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{
			posItem(product, 2, map[string]string{"Color": "red"}),
		},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	cancelled, err := store.CancelOrder(ctx, db, order.ID, "customer changed their mind", nil)
	if err != nil {
		t.Fatalf("Cancel order: %v", err)
	}
	if cancelled.Status != models.OrderCancelled {
		t.Errorf("Expected cancelled status, got %s", cancelled.Status)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.Stock != 10 {
		t.Errorf("Expected stock restored to 10, got %d", after.Stock)
	}
	if got := after.FindVariantOption("Color", "red").Stocks; got != 5 {
		t.Errorf("Expected red restored to 5, got %d", got)
	}
	if after.QuantitiesSold != 0 {
		t.Errorf("Expected sold counter back to 0, got %d", after.QuantitiesSold)
	}

	_, err = store.CancelOrder(ctx, db, order.ID, "again", nil)
	if !errors.Is(err, database.ErrInvalidStatus) {
		t.Errorf("Second cancel should fail, got: %v", err)
	}
}

func TestProcessReturnRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Shirt", 10, shirtVariants(5, 5, 4, 6))

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{
			posItem(product, 3, map[string]string{"Size": "M"}),
		},
		PaymentStatus: models.PaymentPaid,
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	returned, err := store.ProcessReturn(ctx, db, order.ID, store.ReturnRequest{
		Reason:          "wrong size",
		RefundRequested: true,
	}, "admin")
	if err != nil {
		t.Fatalf("Process return: %v", err)
	}

	if returned.Status != models.OrderReturned {
		t.Errorf("Expected returned status, got %s", returned.Status)
	}
	if returned.ReturnInfo == nil {
		t.Fatal("Return info should be recorded")
	}
	if returned.ReturnInfo.ProcessedBy != nil {
		t.Errorf("Non-UUID processor should be stored as nil, got %v", returned.ReturnInfo.ProcessedBy)
	}
	if !returned.ReturnInfo.RefundAmount.Equal(order.Total) {
		t.Errorf("Expected refund amount %s, got %s", order.Total, returned.ReturnInfo.RefundAmount)
	}

	after, err := store.GetProduct(ctx, db, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}
	if after.Stock != 10 {
		t.Errorf("Expected stock restored to 10, got %d", after.Stock)
	}
	if got := after.FindVariantOption("Size", "M").Stocks; got != 6 {
		t.Errorf("Expected M restored to 6, got %d", got)
	}
	if after.QuantitiesSold != 0 {
		t.Errorf("Expected sold counter back to 0, got %d", after.QuantitiesSold)
	}
}

func TestUpdateOrderStatusAllowList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Product", 10, nil)

	order, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{posItem(product, 1, nil)},
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	updated, err := store.UpdateOrderStatus(ctx, db, order.ID, models.OrderDelivered, nil)
	if err != nil {
		t.Fatalf("Update to delivered: %v", err)
	}
	if updated.Status != models.OrderDelivered {
		t.Errorf("Expected delivered, got %s", updated.Status)
	}

	// The register may also move an order backwards.
	if _, err := store.UpdateOrderStatus(ctx, db, order.ID, models.OrderPreparing, nil); err != nil {
		t.Errorf("Backwards move should be allowed, got: %v", err)
	}

	if _, err := store.UpdateOrderStatus(ctx, db, order.ID, models.OrderReturned, nil); !errors.Is(err, database.ErrInvalidStatus) {
		t.Errorf("Returned must not be settable directly, got: %v", err)
	}
	if _, err := store.UpdateOrderStatus(ctx, db, order.ID, "bogus", nil); !errors.Is(err, database.ErrInvalidStatus) {
		t.Errorf("Unknown status must be rejected, got: %v", err)
	}
	if _, err := store.UpdateOrderStatus(ctx, db, 99999, models.OrderConfirmed, nil); !errors.Is(err, database.ErrOrderNotFound) {
		t.Errorf("Expected not found, got: %v", err)
	}
}

func TestCustomerStatsRollup(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Product", 50, nil)

	req := store.CreateOrderRequest{
		Customer: store.CustomerInput{
			Identifier: "3001112233",
			Name:       "Maria Gomez",
			Phone:      "3001112233",
		},
		Items: []store.OrderItemInput{posItem(product, 2, nil)},
	}

	first, err := store.CreateOrder(ctx, db, req)
	if err != nil {
		t.Fatalf("Create first order: %v", err)
	}
	if first.CustomerID == nil {
		t.Fatal("Order should be linked to a directory customer")
	}
	if first.Customer.Name != "Maria Gomez" {
		t.Errorf("Snapshot name mismatch: %s", first.Customer.Name)
	}

	if _, err := store.CreateOrder(ctx, db, req); err != nil {
		t.Fatalf("Create second order: %v", err)
	}

	customer, err := store.FindCustomerByIdentifier(ctx, db, "3001112233")
	if err != nil {
		t.Fatalf("Find customer: %v", err)
	}
	if customer.TotalOrders != 2 {
		t.Errorf("Expected 2 orders on record, got %d", customer.TotalOrders)
	}
	expectedSpent := first.Total.Mul(decimal.NewFromInt(2))
	if !customer.TotalSpent.Equal(expectedSpent) {
		t.Errorf("Expected total spent %s, got %s", expectedSpent, customer.TotalSpent)
	}
	if customer.FirstOrderDate == nil || customer.LastOrderDate == nil {
		t.Error("Order dates should be set")
	}
}

func TestListOrdersCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Product", 100, nil)

	for i := 0; i < 15; i++ {
		_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
			Items: []store.OrderItemInput{posItem(product, 1, nil)},
		})
		if err != nil {
			t.Fatalf("Create order %d: %v", i, err)
		}
	}

	page1, err := store.ListOrdersCursor(ctx, db, "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}
	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}
	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}

	page2, err := store.ListOrdersCursor(ctx, db, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}
	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}
}

func TestLifecycleErrorsAreOpaque(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Product", 5, nil)

	// Losing the database mid-flight must surface as an internal error,
	// never as a raw driver error the API could leak.
	db.Close()

	_, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{posItem(product, 1, nil)},
	})
	if !errors.Is(err, database.ErrInternal) {
		t.Fatalf("Expected internal error after losing the database, got: %v", err)
	}
	if database.IsNotFound(err) || database.IsValidation(err) || database.IsDuplicate(err) {
		t.Errorf("Driver failure must not match a domain error kind: %v", err)
	}
}
