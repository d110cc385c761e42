package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jpcardenas/retail-backoffice/internal/database"
	"github.com/jpcardenas/retail-backoffice/internal/models"
)

// Reservation is one order line as the stock engine sees it: a product,
// a quantity, and optionally the variant options the buyer picked.
type Reservation struct {
	ProductID       int64
	Name            string
	Quantity        int
	SelectedVariant models.SelectedVariant
}

// VariantStockAvailable reports whether a purchase of qty units with the
// given option selections can be satisfied. Every declared axis the buyer
// selected on must have that option in stock, and the flat counter acts
// as an aggregate ceiling on top of the per-option counters. Selections
// for axes the product does not declare are ignored.
func VariantStockAvailable(product *models.Product, selections map[string]string, qty int) bool {
	for _, ref := range product.Variants {
		value, ok := selections[ref.Name]
		if !ok || value == "" {
			continue
		}
		opt := product.FindVariantOption(ref.Name, value)
		if opt == nil || opt.Stocks < qty {
			return false
		}
	}
	return product.Stock >= qty
}

// variantOptionsAvailable is the per-option half of the check, used when
// re-verifying inside the reduction step where the flat counter is
// decremented separately.
func variantOptionsAvailable(product *models.Product, selections map[string]string, qty int) bool {
	for _, ref := range product.Variants {
		value, ok := selections[ref.Name]
		if !ok || value == "" {
			continue
		}
		opt := product.FindVariantOption(ref.Name, value)
		if opt == nil || opt.Stocks < qty {
			return false
		}
	}
	return true
}

// ValidateAvailability checks every reservation against current stock
// without mutating anything. Run inside the same transaction as
// CommitReduction so the answer still holds at reduction time.
func ValidateAvailability(ctx context.Context, tx *sql.Tx, items []Reservation) error {
	for _, item := range items {
		product, err := getProductForUpdate(ctx, tx, item.ProductID)
		if err != nil {
			if errors.Is(err, database.ErrProductNotFound) {
				return fmt.Errorf("%w: %s", database.ErrProductNotFound, item.Name)
			}
			return err
		}

		if !product.IsActive {
			return fmt.Errorf("%w: %s", database.ErrProductInactive, product.Name)
		}

		if item.SelectedVariant.HasSelections() {
			if !VariantStockAvailable(product, item.SelectedVariant.Selections, item.Quantity) {
				return fmt.Errorf("%w for %s with the selected options: requested %d",
					database.ErrInsufficientStock, product.Name, item.Quantity)
			}
			continue
		}

		if product.Stock < item.Quantity {
			return fmt.Errorf("%w for %s: available %d, requested %d",
				database.ErrInsufficientStock, product.Name, product.Stock, item.Quantity)
		}
	}

	return nil
}

// CommitReduction applies the reservations to stock. For variant lines the
// reduction is all-or-nothing per item: either every selected option has
// enough units and all of them are decremented, or the item fails and the
// enclosing transaction rolls the whole order back. Counters floor at
// zero and the sold counter grows by the reserved quantity.
func CommitReduction(ctx context.Context, tx *sql.Tx, items []Reservation) error {
	for _, item := range items {
		product, err := getProductForUpdate(ctx, tx, item.ProductID)
		if err != nil {
			if errors.Is(err, database.ErrProductNotFound) {
				// Product deleted between validation and reduction: nothing
				// to decrement for this line.
				continue
			}
			return err
		}

		variantsChanged := false
		if item.SelectedVariant.HasSelections() {
			if !variantOptionsAvailable(product, item.SelectedVariant.Selections, item.Quantity) {
				return fmt.Errorf("%w for %s with the selected options: requested %d",
					database.ErrInsufficientStock, product.Name, item.Quantity)
			}
			for _, ref := range product.Variants {
				value, ok := item.SelectedVariant.Selections[ref.Name]
				if !ok || value == "" {
					continue
				}
				opt := product.FindVariantOption(ref.Name, value)
				opt.Stocks -= item.Quantity
				if opt.Stocks < 0 {
					opt.Stocks = 0
				}
				variantsChanged = true
			}
		}

		product.Stock -= item.Quantity
		if product.Stock < 0 {
			product.Stock = 0
		}
		product.Quantity = product.Stock
		product.QuantitiesSold += item.Quantity

		if err := saveProductStock(ctx, tx, product, variantsChanged); err != nil {
			return err
		}
	}

	return nil
}

// RestoreQuantity is the inverse of CommitReduction, used by cancellations
// and returns. Option counters and the flat counter both grow back by the
// reserved quantity, and the sold counter shrinks, floored at zero.
// Products that no longer exist are skipped.
func RestoreQuantity(ctx context.Context, tx *sql.Tx, items []Reservation) error {
	for _, item := range items {
		product, err := getProductForUpdate(ctx, tx, item.ProductID)
		if err != nil {
			if errors.Is(err, database.ErrProductNotFound) {
				continue
			}
			return err
		}

		variantsChanged := false
		if item.SelectedVariant.HasSelections() {
			for _, ref := range product.Variants {
				value, ok := item.SelectedVariant.Selections[ref.Name]
				if !ok || value == "" {
					continue
				}
				opt := product.FindVariantOption(ref.Name, value)
				if opt == nil {
					continue
				}
				opt.Stocks += item.Quantity
				variantsChanged = true
			}
		}

		product.Stock += item.Quantity
		product.Quantity = product.Stock
		product.QuantitiesSold -= item.Quantity
		if product.QuantitiesSold < 0 {
			product.QuantitiesSold = 0
		}

		if err := saveProductStock(ctx, tx, product, variantsChanged); err != nil {
			return err
		}
	}

	return nil
}
