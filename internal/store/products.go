package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jpcardenas/retail-backoffice/internal/database"
	"github.com/jpcardenas/retail-backoffice/internal/models"
)

type CreateProductParams struct {
	SKU               string
	Name              string
	Description       string
	Category          string
	BasePrice         decimal.Decimal
	SalePrice         decimal.Decimal
	Stock             int
	MinStock          int
	Variants          []models.VariantReference
	IsActive          bool
	IsActiveInCatalog bool
}

// generateSKU mirrors the order-number scheme: a short prefix plus the
// last six digits of the current unix-millisecond clock.
func generateSKU() string {
	return fmt.Sprintf("PRD-%06d", time.Now().UnixMilli()%1000000)
}

func marshalVariants(variants []models.VariantReference) ([]byte, error) {
	if variants == nil {
		variants = []models.VariantReference{}
	}
	return json.Marshal(variants)
}

const productColumns = `id, sku, name, description, category, base_price, sale_price,
	stock, quantity, min_stock, quantities_sold, variants,
	is_active, is_active_in_catalog, created_at, updated_at, version`

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	product := &models.Product{}
	var variants []byte

	err := row.Scan(
		&product.ID,
		&product.SKU,
		&product.Name,
		&product.Description,
		&product.Category,
		&product.BasePrice,
		&product.SalePrice,
		&product.Stock,
		&product.Quantity,
		&product.MinStock,
		&product.QuantitiesSold,
		&variants,
		&product.IsActive,
		&product.IsActiveInCatalog,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, err
	}

	if len(variants) > 0 {
		if err := json.Unmarshal(variants, &product.Variants); err != nil {
			return nil, fmt.Errorf("decode variants: %w", err)
		}
	}

	return product, nil
}

func CreateProduct(ctx context.Context, db *sql.DB, params CreateProductParams) (*models.Product, error) {
	if params.SKU == "" {
		params.SKU = generateSKU()
	}

	variants, err := marshalVariants(params.Variants)
	if err != nil {
		return nil, fmt.Errorf("encode variants: %w", err)
	}

	query := `
		INSERT INTO products (sku, name, description, category, base_price, sale_price,
		                      stock, quantity, min_stock, quantities_sold, variants,
		                      is_active, is_active_in_catalog, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, 0, $9, $10, $11, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query,
		params.SKU, params.Name, params.Description, params.Category,
		params.BasePrice, params.SalePrice,
		params.Stock, params.MinStock, variants,
		params.IsActive, params.IsActiveInCatalog))
	if err != nil {
		if database.IsDuplicate(err) {
			return nil, fmt.Errorf("%w: sku %s", database.ErrDuplicate, params.SKU)
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// getProductForUpdate loads a product inside the reservation transaction,
// holding a row lock until commit.
func getProductForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 FOR UPDATE`

	product, err := scanProduct(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product %d: %w", id, err)
	}

	return product, nil
}

// saveProductStock writes the stock counters mutated in memory back to the
// row, within the same transaction that locked it. The variants column is
// only rewritten when an option counter changed.
func saveProductStock(ctx context.Context, tx *sql.Tx, product *models.Product, variantsChanged bool) error {
	if variantsChanged {
		variants, err := marshalVariants(product.Variants)
		if err != nil {
			return fmt.Errorf("encode variants: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE products
			 SET stock = $1, quantity = $1, quantities_sold = $2, variants = $3,
			     updated_at = NOW(), version = version + 1
			 WHERE id = $4`,
			product.Stock, product.QuantitiesSold, variants, product.ID)
		if err != nil {
			return fmt.Errorf("save product %d stock: %w", product.ID, err)
		}
		return nil
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = $1, quantity = $1, quantities_sold = $2,
		     updated_at = NOW(), version = version + 1
		 WHERE id = $3`,
		product.Stock, product.QuantitiesSold, product.ID)
	if err != nil {
		return fmt.Errorf("save product %d stock: %w", product.ID, err)
	}
	return nil
}

func ListProducts(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `SELECT ` + productColumns + `
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      products,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// FindLowStock lists active products at or below their low-stock
// threshold but not yet out of stock.
func FindLowStock(ctx context.Context, db *sql.DB) ([]models.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE stock <= min_stock AND stock > 0 AND is_active
		ORDER BY stock ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find low stock: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	return products, rows.Err()
}
