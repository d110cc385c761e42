package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jpcardenas/retail-backoffice/internal/database"
	"github.com/jpcardenas/retail-backoffice/internal/models"
)

// CustomerInput carries the contact details captured at the register. The
// identifier (usually the phone number) is the lookup key for repeat
// customers.
type CustomerInput struct {
	Identifier     string
	Name           string
	FirstName      string
	LastName       string
	DocumentType   string
	DocumentNumber string
	Phone          string
	Email          string
	Address        string
	City           string
	State          string
	ZipCode        string
	Notes          string
}

func (in *CustomerInput) splitName() (first, last string) {
	first, last = in.FirstName, in.LastName
	if first == "" && in.Name != "" {
		parts := strings.SplitN(strings.TrimSpace(in.Name), " ", 2)
		first = parts[0]
		if len(parts) > 1 {
			last = parts[1]
		}
	}
	return first, last
}

const customerColumns = `id, identifier, first_name, last_name, document_type, document_number,
	phone, email, addresses, status, total_orders, total_spent, average_order_value,
	first_order_date, last_order_date, created_at, updated_at, version`

func scanCustomer(row interface{ Scan(...any) error }) (*models.Customer, error) {
	customer := &models.Customer{}
	var addresses []byte

	err := row.Scan(
		&customer.ID,
		&customer.Identifier,
		&customer.FirstName,
		&customer.LastName,
		&customer.DocumentType,
		&customer.DocumentNumber,
		&customer.Phone,
		&customer.Email,
		&addresses,
		&customer.Status,
		&customer.TotalOrders,
		&customer.TotalSpent,
		&customer.AverageOrder,
		&customer.FirstOrderDate,
		&customer.LastOrderDate,
		&customer.CreatedAt,
		&customer.UpdatedAt,
		&customer.Version,
	)
	if err != nil {
		return nil, err
	}

	if len(addresses) > 0 {
		if err := json.Unmarshal(addresses, &customer.Addresses); err != nil {
			return nil, fmt.Errorf("decode addresses: %w", err)
		}
	}

	return customer, nil
}

func GetCustomer(ctx context.Context, db *sql.DB, id int64) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	customer, err := scanCustomer(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return customer, nil
}

func FindCustomerByIdentifier(ctx context.Context, db *sql.DB, identifier string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE identifier = $1`

	customer, err := scanCustomer(db.QueryRowContext(ctx, query, identifier))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("find customer: %w", err)
	}

	return customer, nil
}

// CreateOrUpdateCustomer upserts the directory entry for the identifier.
// Existing customers get their contact details refreshed and, when the
// input carries a street address not yet on file, the address appended.
// Stats counters are never touched here.
func CreateOrUpdateCustomer(ctx context.Context, db *sql.DB, in CustomerInput) (*models.Customer, error) {
	existing, err := FindCustomerByIdentifier(ctx, db, in.Identifier)
	if err != nil && !database.IsNotFound(err) {
		return nil, err
	}

	first, last := in.splitName()

	if existing == nil {
		var addresses []models.Address
		if in.Address != "" {
			addresses = append(addresses, models.Address{
				Type:      "home",
				Street:    in.Address,
				City:      in.City,
				State:     in.State,
				ZipCode:   in.ZipCode,
				Country:   "Colombia",
				Notes:     in.Notes,
				IsPrimary: true,
			})
		}
		encoded, err := json.Marshal(addresses)
		if err != nil {
			return nil, fmt.Errorf("encode addresses: %w", err)
		}
		if addresses == nil {
			encoded = []byte("[]")
		}

		query := `
			INSERT INTO customers (identifier, first_name, last_name, document_type, document_number,
			                       phone, email, addresses, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW(), 1)
			RETURNING ` + customerColumns

		documentType := in.DocumentType
		if documentType == "" {
			documentType = "CC"
		}
		phone := in.Phone
		if phone == "" {
			phone = in.Identifier
		}

		customer, err := scanCustomer(db.QueryRowContext(ctx, query,
			in.Identifier, first, last, documentType, in.DocumentNumber,
			phone, in.Email, encoded))
		if err != nil {
			if database.IsDuplicate(err) {
				// Concurrent insert of the same identifier: read the winner.
				return FindCustomerByIdentifier(ctx, db, in.Identifier)
			}
			return nil, fmt.Errorf("create customer: %w", err)
		}
		return customer, nil
	}

	if first != "" {
		existing.FirstName = first
	}
	if last != "" {
		existing.LastName = last
	}
	if in.Email != "" {
		existing.Email = in.Email
	}
	if in.Phone != "" {
		existing.Phone = in.Phone
	}
	if in.DocumentNumber != "" {
		existing.DocumentNumber = in.DocumentNumber
		if in.DocumentType != "" {
			existing.DocumentType = in.DocumentType
		}
	}
	if in.Address != "" && !hasStreet(existing.Addresses, in.Address) {
		existing.Addresses = append(existing.Addresses, models.Address{
			Type:      "home",
			Street:    in.Address,
			City:      in.City,
			State:     in.State,
			ZipCode:   in.ZipCode,
			Country:   "Colombia",
			Notes:     in.Notes,
			IsPrimary: len(existing.Addresses) == 0,
		})
	}

	encoded, err := json.Marshal(existing.Addresses)
	if err != nil {
		return nil, fmt.Errorf("encode addresses: %w", err)
	}

	query := `
		UPDATE customers
		SET first_name = $1, last_name = $2, document_type = $3, document_number = $4,
		    phone = $5, email = $6, addresses = $7, updated_at = NOW(), version = version + 1
		WHERE id = $8
		RETURNING ` + customerColumns

	customer, err := scanCustomer(db.QueryRowContext(ctx, query,
		existing.FirstName, existing.LastName, existing.DocumentType, existing.DocumentNumber,
		existing.Phone, existing.Email, encoded, existing.ID))
	if err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}

	return customer, nil
}

func hasStreet(addresses []models.Address, street string) bool {
	for _, a := range addresses {
		if strings.EqualFold(strings.TrimSpace(a.Street), strings.TrimSpace(street)) {
			return true
		}
	}
	return false
}

// UpdatePurchaseStats rolls one completed sale into the customer's
// counters. Runs after the order commit; a failure here never unwinds
// the order.
func UpdatePurchaseStats(ctx context.Context, db *sql.DB, customerID int64, orderTotal decimal.Decimal) error {
	result, err := db.ExecContext(ctx,
		`UPDATE customers
		 SET total_orders = total_orders + 1,
		     total_spent = total_spent + $1,
		     average_order_value = (total_spent + $1) / (total_orders + 1),
		     first_order_date = COALESCE(first_order_date, NOW()),
		     last_order_date = NOW(),
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2`,
		orderTotal, customerID)
	if err != nil {
		return fmt.Errorf("update purchase stats: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return database.ErrCustomerNotFound
	}

	return nil
}

func SearchCustomers(ctx context.Context, db *sql.DB, term string, limit int) ([]models.Customer, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + term + "%"

	query := `SELECT ` + customerColumns + `
		FROM customers
		WHERE identifier ILIKE $1
		   OR first_name ILIKE $1
		   OR last_name ILIKE $1
		   OR phone ILIKE $1
		   OR email ILIKE $1
		ORDER BY last_order_date DESC NULLS LAST
		LIMIT $2`

	rows, err := db.QueryContext(ctx, query, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, *customer)
	}

	return customers, rows.Err()
}

func ListCustomers(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count customers: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `SELECT ` + customerColumns + `
		FROM customers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []models.Customer
	for rows.Next() {
		customer, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, *customer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &OffsetPage{
		Items:      customers,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}
