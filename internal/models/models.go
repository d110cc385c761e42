package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// VariantOption is a single value on a variant axis (e.g. Color=Red) with
// its own stock counter, bounded by the product's flat stock.
type VariantOption struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Stocks int    `json:"stocks"`
}

// VariantReference is a named variant axis (e.g. "Color") and its options.
type VariantReference struct {
	Name    string          `json:"name"`
	Options []VariantOption `json:"options"`
}

type Product struct {
	ID                int64              `json:"id"`
	SKU               string             `json:"sku"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Category          string             `json:"category,omitempty"`
	BasePrice         decimal.Decimal    `json:"base_price"`
	SalePrice         decimal.Decimal    `json:"sale_price"`
	Stock             int                `json:"stock"`
	Quantity          int                `json:"quantity"`
	MinStock          int                `json:"min_stock"`
	QuantitiesSold    int                `json:"quantities_sold"`
	Variants          []VariantReference `json:"variants,omitempty"`
	IsActive          bool               `json:"is_active"`
	IsActiveInCatalog bool               `json:"is_active_in_catalog"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	Version           int                `json:"version"`
}

func (p *Product) IsLowStock() bool {
	return p.Stock <= p.MinStock && p.Stock > 0
}

func (p *Product) IsOutOfStock() bool {
	return p.Stock <= 0
}

// TotalVariantStock sums every option counter across all axes. Falls back
// to the flat stock for products without variants.
func (p *Product) TotalVariantStock() int {
	if len(p.Variants) == 0 {
		return p.Stock
	}
	total := 0
	for _, ref := range p.Variants {
		for _, opt := range ref.Options {
			total += opt.Stocks
		}
	}
	return total
}

// FindVariantOption returns a pointer into p.Variants so callers can
// mutate the option's stock counter in place.
func (p *Product) FindVariantOption(axis, value string) *VariantOption {
	for i := range p.Variants {
		if p.Variants[i].Name != axis {
			continue
		}
		for j := range p.Variants[i].Options {
			if p.Variants[i].Options[j].Value == value {
				return &p.Variants[i].Options[j]
			}
		}
	}
	return nil
}

// SelectedVariant records which option the buyer picked on each axis,
// e.g. {"Color": "red", "Size": "M"}. Axes are matched against the
// product's declared variants at the point of use.
type SelectedVariant struct {
	Selections map[string]string `json:"selections,omitempty"`
}

func (v *SelectedVariant) HasSelections() bool {
	return v != nil && len(v.Selections) > 0
}

type Address struct {
	Type         string `json:"type,omitempty"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zip_code,omitempty"`
	Country      string `json:"country"`
	Notes        string `json:"notes,omitempty"`
	IsPrimary    bool   `json:"is_primary"`
}

type Customer struct {
	ID             int64           `json:"id"`
	Identifier     string          `json:"identifier"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	DocumentType   string          `json:"document_type"`
	DocumentNumber string          `json:"document_number"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email"`
	Addresses      []Address       `json:"addresses,omitempty"`
	Status         string          `json:"status"`
	TotalOrders    int             `json:"total_orders"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	AverageOrder   decimal.Decimal `json:"average_order_value"`
	FirstOrderDate *time.Time      `json:"first_order_date,omitempty"`
	LastOrderDate  *time.Time      `json:"last_order_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Version        int             `json:"version"`
}

func (c *Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// PrimaryAddress returns the address flagged primary, or the first one.
func (c *Customer) PrimaryAddress() *Address {
	for i := range c.Addresses {
		if c.Addresses[i].IsPrimary {
			return &c.Addresses[i]
		}
	}
	if len(c.Addresses) > 0 {
		return &c.Addresses[0]
	}
	return nil
}

// CustomerSnapshot is the denormalized customer copy embedded in a POS
// order at creation time. Later customer edits never touch it.
type CustomerSnapshot struct {
	CustomerID     *int64          `json:"customer_id,omitempty"`
	Name           string          `json:"name"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	DocumentType   string          `json:"document_type,omitempty"`
	DocumentNumber string          `json:"document_number,omitempty"`
	Address        SnapshotAddress `json:"address"`
	Notes          string          `json:"notes,omitempty"`
}

type SnapshotAddress struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `json:"country,omitempty"`
}

type OrderItem struct {
	ID              int64            `json:"id"`
	OrderID         int64            `json:"order_id"`
	ProductID       int64            `json:"product_id"`
	Name            string           `json:"name"`
	SKU             string           `json:"sku,omitempty"`
	Quantity        int              `json:"quantity"`
	UnitPrice       decimal.Decimal  `json:"unit_price"`
	TotalPrice      decimal.Decimal  `json:"total_price"`
	SelectedVariant *SelectedVariant `json:"selected_variant,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// ReturnInfo is recorded when an order is returned. ProcessedBy is nil
// when the caller-supplied processor id is not a well-formed identifier.
type ReturnInfo struct {
	Reason            string          `json:"reason"`
	Notes             string          `json:"notes,omitempty"`
	RefundRequested   bool            `json:"refund_requested"`
	RefundProcessed   bool            `json:"refund_processed"`
	RefundAmount      decimal.Decimal `json:"refund_amount"`
	ExchangeProductID *int64          `json:"exchange_product_id,omitempty"`
	ProcessedBy       *uuid.UUID      `json:"processed_by,omitempty"`
	ProcessedAt       time.Time       `json:"processed_at"`
}

type Order struct {
	ID            int64            `json:"id"`
	OrderNumber   string           `json:"order_number"`
	CustomerID    *int64           `json:"customer_id,omitempty"`
	Customer      CustomerSnapshot `json:"customer"`
	Items         []OrderItem      `json:"items,omitempty"`
	Subtotal      decimal.Decimal  `json:"subtotal"`
	Tax           decimal.Decimal  `json:"tax"`
	Discount      decimal.Decimal  `json:"discount"`
	Shipping      decimal.Decimal  `json:"shipping"`
	Total         decimal.Decimal  `json:"total"`
	Status        string           `json:"status"`
	OrderType     string           `json:"order_type"`
	DeliveryType  string           `json:"delivery_type"`
	PaymentMethod string           `json:"payment_method"`
	PaymentStatus string           `json:"payment_status"`
	PaidAmount    decimal.Decimal  `json:"paid_amount"`
	Notes         string           `json:"notes,omitempty"`
	InternalNotes string           `json:"internal_notes,omitempty"`
	ReturnInfo    *ReturnInfo      `json:"return_info,omitempty"`
	CreatedBy     *uuid.UUID       `json:"created_by,omitempty"`
	UpdatedBy     *uuid.UUID       `json:"updated_by,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	Version       int              `json:"version"`
}

func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentPaid || o.PaidAmount.GreaterThanOrEqual(o.Total)
}

func (o *Order) IsCompleted() bool {
	switch o.Status {
	case OrderDelivered, OrderCancelled, OrderReturned, OrderRefunded:
		return true
	}
	return false
}

func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// OnlineCustomer is the lighter contact snapshot embedded in storefront
// orders; there is no live customer link.
type OnlineCustomer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	Notes   string `json:"notes,omitempty"`
}

type OnlineOrderItem struct {
	ID              int64            `json:"id"`
	OrderID         int64            `json:"order_id"`
	ProductID       int64            `json:"product_id"`
	Name            string           `json:"name"`
	SKU             string           `json:"sku,omitempty"`
	Quantity        int              `json:"quantity"`
	Price           decimal.Decimal  `json:"price"`
	SelectedVariant *SelectedVariant `json:"selected_variant,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

type StatusHistoryEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	UpdatedBy string    `json:"updated_by"`
	Notes     string    `json:"notes"`
}

type OnlineOrder struct {
	ID                    int64                `json:"id"`
	OrderNumber           string               `json:"order_number"`
	Customer              OnlineCustomer       `json:"customer"`
	Items                 []OnlineOrderItem    `json:"items,omitempty"`
	Subtotal              decimal.Decimal      `json:"subtotal"`
	DiscountAmount        decimal.Decimal      `json:"discount_amount"`
	ShippingCost          decimal.Decimal      `json:"shipping_cost"`
	Total                 decimal.Decimal      `json:"total"`
	Status                string               `json:"status"`
	DeliveryType          string               `json:"delivery_type"`
	PaymentMethod         string               `json:"payment_method"`
	PaymentStatus         string               `json:"payment_status"`
	Notes                 string               `json:"notes,omitempty"`
	InternalNotes         string               `json:"internal_notes,omitempty"`
	RejectionReason       string               `json:"rejection_reason,omitempty"`
	ReturnInfo            *ReturnInfo          `json:"return_info,omitempty"`
	EmailSent             bool                 `json:"email_sent"`
	ConfirmationEmailSent bool                 `json:"confirmation_email_sent"`
	StatusHistory         []StatusHistoryEntry `json:"status_history,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
	Version               int                  `json:"version"`
}

func (o *OnlineOrder) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}
