package integration

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jpcardenas/retail-backoffice/internal/models"
	"github.com/jpcardenas/retail-backoffice/internal/store"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := runMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func runMigrations(db *sql.DB) error {
	migrationDir := "../../migrations"
	files, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migration directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(file.Name(), ".up.sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		filePath := filepath.Join(migrationDir, filename)
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read migration file %s: %w", filename, err)
		}

		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", filename, err)
		}
	}

	return nil
}

func timeDaysAgo(days int) time.Time {
	return time.Now().AddDate(0, 0, -days)
}

func seedProduct(t *testing.T, db *sql.DB, name string, stock int, variants []models.VariantReference) *models.Product {
	t.Helper()

	product, err := store.CreateProduct(context.Background(), db, store.CreateProductParams{
		Name:              name,
		Category:          "test",
		BasePrice:         decimal.NewFromInt(100),
		SalePrice:         decimal.NewFromInt(100),
		Stock:             stock,
		MinStock:          2,
		Variants:          variants,
		IsActive:          true,
		IsActiveInCatalog: true,
	})
	if err != nil {
		t.Fatalf("Seed product %s: %v", name, err)
	}
	return product
}

// shirtVariants builds a two-axis product: Color (red/blue) and Size (S/M).
func shirtVariants(red, blue, small, medium int) []models.VariantReference {
	return []models.VariantReference{
		{Name: "Color", Options: []models.VariantOption{
			{Label: "Red", Value: "red", Stocks: red},
			{Label: "Blue", Value: "blue", Stocks: blue},
		}},
		{Name: "Size", Options: []models.VariantOption{
			{Label: "Small", Value: "S", Stocks: small},
			{Label: "Medium", Value: "M", Stocks: medium},
		}},
	}
}

func posItem(p *models.Product, qty int, selections map[string]string) store.OrderItemInput {
	item := store.OrderItemInput{
		ProductID: p.ID,
		Name:      p.Name,
		SKU:       p.SKU,
		Quantity:  qty,
		UnitPrice: p.SalePrice,
	}
	if selections != nil {
		item.SelectedVariant = &models.SelectedVariant{Selections: selections}
	}
	return item
}

func onlineItem(p *models.Product, qty int, selections map[string]string) store.OnlineItemInput {
	item := store.OnlineItemInput{
		ProductID: p.ID,
		Name:      p.Name,
		SKU:       p.SKU,
		Quantity:  qty,
		Price:     p.SalePrice,
	}
	if selections != nil {
		item.SelectedVariant = &models.SelectedVariant{Selections: selections}
	}
	return item
}

func placeOnlineOrder(t *testing.T, db *sql.DB, items ...store.OnlineItemInput) *models.OnlineOrder {
	t.Helper()

	order, err := store.CreateOnlineOrder(context.Background(), db, store.CreateOnlineOrderRequest{
		Customer: models.OnlineCustomer{
			Name:    "Web Customer",
			Email:   "web@example.com",
			Phone:   "3001234567",
			Address: "Calle 1 #2-3",
			City:    "Bogota",
		},
		Items: items,
	})
	if err != nil {
		t.Fatalf("Create online order: %v", err)
	}
	return order
}
