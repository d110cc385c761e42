package integration

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jpcardenas/retail-backoffice/internal/database"
	"github.com/jpcardenas/retail-backoffice/internal/store"
)

func TestCreateProductGeneratesSKU(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product, err := store.CreateProduct(ctx, db, store.CreateProductParams{
		Name:      "No SKU Product",
		BasePrice: decimal.NewFromInt(100),
		SalePrice: decimal.NewFromInt(90),
		Stock:     10,
		IsActive:  true,
	})
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}

	if !strings.HasPrefix(product.SKU, "PRD-") {
		t.Errorf("Expected generated PRD- sku, got %s", product.SKU)
	}
	if product.Quantity != 10 {
		t.Errorf("Quantity should mirror stock at creation, got %d", product.Quantity)
	}
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	params := store.CreateProductParams{
		SKU:       "DUP-001",
		Name:      "First",
		BasePrice: decimal.NewFromInt(100),
		SalePrice: decimal.NewFromInt(100),
		Stock:     1,
		IsActive:  true,
	}
	if _, err := store.CreateProduct(ctx, db, params); err != nil {
		t.Fatalf("Create first product: %v", err)
	}

	params.Name = "Second"
	_, err := store.CreateProduct(ctx, db, params)
	if !database.IsDuplicate(err) {
		t.Errorf("Expected duplicate error, got: %v", err)
	}
}

func TestVariantsPersistRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	created := seedProduct(t, db, "Shirt", 10, shirtVariants(5, 5, 4, 6))

	loaded, err := store.GetProduct(ctx, db, created.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}

	if len(loaded.Variants) != 2 {
		t.Fatalf("Expected 2 variant axes, got %d", len(loaded.Variants))
	}
	if got := loaded.FindVariantOption("Color", "red"); got == nil || got.Stocks != 5 {
		t.Errorf("Red option not persisted: %+v", got)
	}
	if got := loaded.FindVariantOption("Size", "M"); got == nil || got.Stocks != 6 {
		t.Errorf("M option not persisted: %+v", got)
	}
	if loaded.TotalVariantStock() != 20 {
		t.Errorf("Expected total option stock 20, got %d", loaded.TotalVariantStock())
	}
}

func TestFindLowStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	// min_stock is 2 for seeded products.
	low := seedProduct(t, db, "Nearly Out", 2, nil)
	seedProduct(t, db, "Healthy", 50, nil)
	empty := seedProduct(t, db, "Empty", 1, nil)

	// Sell the last unit so it is out of stock, not low.
	if _, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{posItem(empty, 1, nil)},
	}); err != nil {
		t.Fatalf("Create order: %v", err)
	}

	products, err := store.FindLowStock(ctx, db)
	if err != nil {
		t.Fatalf("Find low stock: %v", err)
	}

	if len(products) != 1 {
		t.Fatalf("Expected exactly 1 low-stock product, got %d", len(products))
	}
	if products[0].ID != low.ID {
		t.Errorf("Expected %q in the low-stock list, got %q", low.Name, products[0].Name)
	}
}

func TestSalesStats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	product := seedProduct(t, db, "Product", 50, nil)

	for i := 0; i < 3; i++ {
		if _, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
			Items:         []store.OrderItemInput{posItem(product, 2, nil)},
			PaymentStatus: "paid",
		}); err != nil {
			t.Fatalf("Create order %d: %v", i, err)
		}
	}
	// Unpaid order should not count toward revenue.
	if _, err := store.CreateOrder(ctx, db, store.CreateOrderRequest{
		Items: []store.OrderItemInput{posItem(product, 1, nil)},
	}); err != nil {
		t.Fatalf("Create unpaid order: %v", err)
	}

	from := timeDaysAgo(1)
	to := timeDaysAgo(-1)
	stats, err := store.GetSalesStats(ctx, db, from, to)
	if err != nil {
		t.Fatalf("Get sales stats: %v", err)
	}

	if stats.TotalOrders != 3 {
		t.Errorf("Expected 3 paid orders, got %d", stats.TotalOrders)
	}
	expected := decimal.NewFromInt(600)
	if !stats.TotalSales.Equal(expected) {
		t.Errorf("Expected total sales %s, got %s", expected, stats.TotalSales)
	}
	if stats.ItemsSold != 6 {
		t.Errorf("Expected 6 items sold, got %d", stats.ItemsSold)
	}
}
