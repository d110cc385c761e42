package store

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/jpcardenas/retail-backoffice/internal/models"
)

func shirt(flat, red, blue, small, medium int) *models.Product {
	return &models.Product{
		Name:  "Shirt",
		Stock: flat,
		Variants: []models.VariantReference{
			{Name: "Color", Options: []models.VariantOption{
				{Label: "Red", Value: "red", Stocks: red},
				{Label: "Blue", Value: "blue", Stocks: blue},
			}},
			{Name: "Size", Options: []models.VariantOption{
				{Label: "Small", Value: "S", Stocks: small},
				{Label: "Medium", Value: "M", Stocks: medium},
			}},
		},
	}
}

func TestVariantStockAvailable(t *testing.T) {
	cases := []struct {
		name       string
		product    *models.Product
		selections map[string]string
		qty        int
		want       bool
	}{
		{
			name:       "all axes in stock",
			product:    shirt(10, 5, 5, 4, 6),
			selections: map[string]string{"Color": "red", "Size": "M"},
			qty:        3,
			want:       true,
		},
		{
			name:       "one axis short fails the whole item",
			product:    shirt(10, 5, 5, 1, 9),
			selections: map[string]string{"Color": "red", "Size": "S"},
			qty:        3,
			want:       false,
		},
		{
			name:       "flat stock caps option stock",
			product:    shirt(1, 5, 5, 5, 5),
			selections: map[string]string{"Color": "red"},
			qty:        2,
			want:       false,
		},
		{
			name:       "single axis selection ignores the other axis",
			product:    shirt(10, 5, 5, 0, 0),
			selections: map[string]string{"Color": "blue"},
			qty:        4,
			want:       true,
		},
		{
			name:       "unknown option value",
			product:    shirt(10, 5, 5, 4, 6),
			selections: map[string]string{"Color": "green"},
			qty:        1,
			want:       false,
		},
		{
			name:       "selection on undeclared axis is ignored",
			product:    shirt(10, 5, 5, 4, 6),
			selections: map[string]string{"Material": "wool"},
			qty:        2,
			want:       true,
		},
		{
			name:       "exact boundary",
			product:    shirt(3, 3, 0, 0, 0),
			selections: map[string]string{"Color": "red"},
			qty:        3,
			want:       true,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := VariantStockAvailable(c.product, c.selections, c.qty); got != c.want {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestGenerateOrderNumber(t *testing.T) {
	n := generateOrderNumber("ORD")
	parts := strings.Split(n, "-")
	if len(parts) != 3 {
		t.Fatalf("expected three segments, got %q", n)
	}
	if parts[0] != "ORD" {
		t.Errorf("expected ORD prefix, got %s", parts[0])
	}
	if len(parts[1]) != 6 {
		t.Errorf("expected YYMMDD date segment, got %s", parts[1])
	}
	if len(parts[2]) != 6 {
		t.Errorf("expected six-digit suffix, got %s", parts[2])
	}

	web := generateOrderNumber("WEB")
	if !strings.HasPrefix(web, "WEB-") {
		t.Errorf("expected WEB prefix, got %s", web)
	}
}

func TestGenerateSKU(t *testing.T) {
	sku := generateSKU()
	if !strings.HasPrefix(sku, "PRD-") {
		t.Errorf("expected PRD prefix, got %s", sku)
	}
	if len(sku) != len("PRD-")+6 {
		t.Errorf("expected six-digit suffix, got %s", sku)
	}
}

func TestValidateProcessorID(t *testing.T) {
	if got := ValidateProcessorID("admin"); got != nil {
		t.Errorf("non-uuid should map to nil, got %v", got)
	}
	if got := ValidateProcessorID(""); got != nil {
		t.Errorf("empty should map to nil, got %v", got)
	}

	id := uuid.New()
	got := ValidateProcessorID(id.String())
	if got == nil || *got != id {
		t.Errorf("valid uuid should round-trip, got %v", got)
	}
}

func TestTotalPages(t *testing.T) {
	cases := []struct {
		total    int64
		pageSize int
		want     int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{5, 0, 0},
	}
	for _, c := range cases {
		if got := totalPages(c.total, c.pageSize); got != c.want {
			t.Errorf("totalPages(%d, %d) = %d, want %d", c.total, c.pageSize, got, c.want)
		}
	}
}
