package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, model, purchase_price_cents, selling_price_cents, shelf_stock, store_stock, min_stock_level, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Model, &p.PurchasePriceCents, &p.SellingPriceCents,
		&p.ShelfStock, &p.StoreStock, &p.MinStockLevel, &p.CreatedAt, &p.UpdatedAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY lower(name), id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id, false)
}

func getProduct(ctx context.Context, q queryer, id string, forUpdate bool) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.ShelfStock < 0 || product.StoreStock < 0 {
		return nil, store.ErrInvalidTransaction
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, product.ID, product.Name, product.Model, product.PurchasePriceCents, product.SellingPriceCents,
		product.ShelfStock, product.StoreStock, product.MinStockLevel, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, patch domain.ProductUpdateRequest, at time.Time) (*domain.Product, *domain.Product, error) {
	if id == "" {
		return nil, nil, store.ErrInvalidTransaction
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getProduct(ctx, tx, id, true)
	if err != nil {
		return nil, nil, err
	}
	updated := *existing
	if err := store.ApplyProductPatch(&updated, patch, at); err != nil {
		return nil, nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET name = $2, model = $3, purchase_price_cents = $4, selling_price_cents = $5,
			shelf_stock = $6, store_stock = $7, min_stock_level = $8, updated_at = $9
		WHERE id = $1
	`, updated.ID, updated.Name, updated.Model, updated.PurchasePriceCents, updated.SellingPriceCents,
		updated.ShelfStock, updated.StoreStock, updated.MinStockLevel, updated.UpdatedAt); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return existing, &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, `DELETE FROM products WHERE id = $1`, id)
}

const vendorColumns = `id, name, contact, address, created_at, updated_at`

func scanVendor(row rowScanner) (domain.Vendor, error) {
	var v domain.Vendor
	err := row.Scan(&v.ID, &v.Name, &v.Contact, &v.Address, &v.CreatedAt, &v.UpdatedAt)
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return v, err
}

func (s *Store) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+vendorColumns+` FROM vendors ORDER BY lower(name), id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	vendors := make([]domain.Vendor, 0, 32)
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return vendors, nil
}

func (s *Store) GetVendor(ctx context.Context, id string) (*domain.Vendor, error) {
	vendor, err := scanVendor(s.db.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &vendor, nil
}

func (s *Store) CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	if vendor.ID == "" || vendor.Name == "" {
		return nil, store.ErrInvalidTransaction
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vendors (`+vendorColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, vendor.ID, vendor.Name, vendor.Contact, vendor.Address, vendor.CreatedAt, vendor.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}
	created := vendor
	return &created, nil
}

func (s *Store) UpdateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	if vendor.ID == "" || vendor.Name == "" {
		return nil, store.ErrInvalidTransaction
	}

	updated, err := scanVendor(s.db.QueryRowContext(ctx, `
		UPDATE vendors
		SET name = $2, contact = $3, address = $4, updated_at = $5
		WHERE id = $1
		RETURNING `+vendorColumns,
		vendor.ID, vendor.Name, vendor.Contact, vendor.Address, vendor.UpdatedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteVendor(ctx context.Context, id string) error {
	return deleteByID(ctx, s.db, `DELETE FROM vendors WHERE id = $1`, id)
}

const customerColumns = `id, name, contact, address, total_debt_cents, created_at, updated_at`

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Contact, &c.Address, &c.TotalDebtCents, &c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, err
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY lower(name), id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, s.db, `WHERE id = $1`, id)
}

func (s *Store) FindCustomerByIdentity(ctx context.Context, name string, contact string) (*domain.Customer, error) {
	return getCustomer(ctx, s.db, `WHERE identity_key = $1`, store.IdentityKey(name, contact))
}

func getCustomer(ctx context.Context, q queryer, where string, arg any) (*domain.Customer, error) {
	customer, err := scanCustomer(q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomerProfile(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" || customer.Contact == "" {
		return nil, store.ErrInvalidTransaction
	}
	if customer.UpdatedAt.IsZero() {
		customer.UpdatedAt = time.Now().UTC()
	}

	updated, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET name = $2, contact = $3, address = $4, identity_key = $5, updated_at = $6
		WHERE id = $1
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Contact, customer.Address,
		store.IdentityKey(customer.Name, customer.Contact), customer.UpdatedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateCustomer
		}
		return nil, err
	}
	return &updated, nil
}

const saleColumns = `id, total_cents, payment_type, COALESCE(customer_id, ''), customer_name, customer_contact, customer_address, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var paymentType string
	err := row.Scan(&sale.ID, &sale.TotalCents, &paymentType, &sale.CustomerID,
		&sale.CustomerName, &sale.CustomerContact, &sale.CustomerAddress, &sale.CreatedAt)
	sale.PaymentType = domain.PaymentType(paymentType)
	sale.CreatedAt = sale.CreatedAt.UTC()
	return sale, err
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	where, args := windowClause(from, to)
	return s.querySales(ctx, `SELECT `+saleColumns+` FROM sales `+where+` ORDER BY created_at DESC, id DESC`, args...)
}

func (s *Store) ListSalesByCustomer(ctx context.Context, customerID string) ([]domain.Sale, error) {
	return s.querySales(ctx, `SELECT `+saleColumns+` FROM sales WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, customerID)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sales, err := s.querySales(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, store.ErrNotFound
	}
	return &sales[0], nil
}

func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 64)
	index := make(map[string]int)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sale.Items = []domain.SaleItem{}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		ids = append(ids, sale.ID)
	}
	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, name, qty, unit_price_cents, line_total_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := itemRows.Scan(&saleID, &item.ProductID, &item.Name, &item.Qty, &item.UnitPriceCents, &item.LineTotalCents); err != nil {
			return nil, err
		}
		if i, ok := index[saleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, newCustomer *domain.Customer) (*domain.Sale, *domain.Customer, error) {
	if sale.ID == "" || len(sale.Items) == 0 || !sale.PaymentType.Valid() {
		return nil, nil, store.ErrInvalidTransaction
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, store.SaleProductIDs(sale.Items))
	if err != nil {
		return nil, nil, err
	}
	touched := make(map[string]domain.Product, len(sale.Items))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			_ = rows.Close()
			return nil, nil, err
		}
		touched[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, nil, err
	}
	_ = rows.Close()

	if err := store.ApplySale(&sale, touched); err != nil {
		return nil, nil, err
	}

	var customerOut *domain.Customer
	if sale.PaymentType == domain.PaymentCredit {
		var customer domain.Customer
		if newCustomer != nil {
			if newCustomer.ID == "" || newCustomer.Name == "" || newCustomer.Contact == "" {
				return nil, nil, store.ErrInvalidTransaction
			}
			customer = *newCustomer
			customer.TotalDebtCents = sale.TotalCents
			if customer.CreatedAt.IsZero() {
				customer.CreatedAt = sale.CreatedAt
			}
			customer.UpdatedAt = sale.CreatedAt
			_, err := tx.ExecContext(ctx, `
				INSERT INTO customers (id, name, contact, address, identity_key, total_debt_cents, created_at, updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, customer.ID, customer.Name, customer.Contact, customer.Address,
				store.IdentityKey(customer.Name, customer.Contact), customer.TotalDebtCents, customer.CreatedAt, customer.UpdatedAt)
			if err != nil {
				if isUniqueViolation(err) {
					return nil, nil, store.ErrDuplicateCustomer
				}
				return nil, nil, err
			}
		} else {
			customer, err = scanCustomer(tx.QueryRowContext(ctx, `
				UPDATE customers
				SET total_debt_cents = total_debt_cents + $2, updated_at = $3
				WHERE id = $1
				RETURNING `+customerColumns,
				sale.CustomerID, sale.TotalCents, sale.CreatedAt))
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, nil, fmt.Errorf("customer %s: %w", sale.CustomerID, store.ErrNotFound)
				}
				return nil, nil, err
			}
		}
		sale.CustomerID = customer.ID
		sale.CustomerName = customer.Name
		sale.CustomerContact = customer.Contact
		sale.CustomerAddress = customer.Address
		customerOut = &customer
	} else {
		sale.CustomerID = ""
		sale.CustomerName = ""
		sale.CustomerContact = ""
		sale.CustomerAddress = ""
	}

	for _, product := range touched {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products
			SET shelf_stock = $2, store_stock = $3, updated_at = $4
			WHERE id = $1
		`, product.ID, product.ShelfStock, product.StoreStock, product.UpdatedAt); err != nil {
			return nil, nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, total_cents, payment_type, customer_id, customer_name, customer_contact, customer_address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, sale.ID, sale.TotalCents, string(sale.PaymentType), nullIfEmpty(sale.CustomerID),
		sale.CustomerName, sale.CustomerContact, sale.CustomerAddress, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrInvalidTransaction
		}
		return nil, nil, err
	}
	for i, item := range sale.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, name, qty, unit_price_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, sale.ID, i+1, item.ProductID, item.Name, item.Qty, item.UnitPriceCents, item.LineTotalCents); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &sale, customerOut, nil
}

const purchaseColumns = `id, vendor_id, vendor_name, product_id, product_name, qty, unit_price_cents, total_cents, location, created_at`

func (s *Store) ListPurchases(ctx context.Context, from time.Time, to time.Time) ([]domain.Purchase, error) {
	where, args := windowClause(from, to)
	rows, err := s.db.QueryContext(ctx, `SELECT `+purchaseColumns+` FROM purchases `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 64)
	for rows.Next() {
		var p domain.Purchase
		var location string
		if err := rows.Scan(&p.ID, &p.VendorID, &p.VendorName, &p.ProductID, &p.ProductName,
			&p.Qty, &p.UnitPriceCents, &p.TotalCents, &location, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Location = domain.Location(location)
		p.CreatedAt = p.CreatedAt.UTC()
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *Store) CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, *domain.Product, error) {
	if purchase.ID == "" || purchase.Qty < 1 || purchase.UnitPriceCents < 1 || !purchase.Location.Valid() {
		return nil, nil, store.ErrInvalidTransaction
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var vendorName string
	err = tx.QueryRowContext(ctx, `SELECT name FROM vendors WHERE id = $1`, purchase.VendorID).Scan(&vendorName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("vendor %s: %w", purchase.VendorID, store.ErrNotFound)
		}
		return nil, nil, err
	}
	product, err := getProduct(ctx, tx, purchase.ProductID, true)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("product %s: %w", purchase.ProductID, store.ErrNotFound)
		}
		return nil, nil, err
	}

	purchase.VendorName = vendorName
	purchase.ProductName = product.Name
	total, ok := store.LineTotal(purchase.Qty, purchase.UnitPriceCents)
	if !ok || product.StockAt(purchase.Location) > math.MaxInt32-purchase.Qty {
		return nil, nil, store.ErrInvalidTransaction
	}
	purchase.TotalCents = total

	if purchase.Location == domain.LocationShelf {
		product.ShelfStock += purchase.Qty
	} else {
		product.StoreStock += purchase.Qty
	}
	product.UpdatedAt = purchase.CreatedAt

	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET shelf_stock = $2, store_stock = $3, updated_at = $4
		WHERE id = $1
	`, product.ID, product.ShelfStock, product.StoreStock, product.UpdatedAt); err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, purchase.ID, purchase.VendorID, purchase.VendorName, purchase.ProductID, purchase.ProductName,
		purchase.Qty, purchase.UnitPriceCents, purchase.TotalCents, string(purchase.Location), purchase.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrInvalidTransaction
		}
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &purchase, product, nil
}

func (s *Store) TransferStock(ctx context.Context, productID string, from domain.Location, to domain.Location, qty int, at time.Time) (*domain.Product, error) {
	if productID == "" || !from.Valid() || !to.Valid() || from == to || qty < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product, err := getProduct(ctx, tx, productID, true)
	if err != nil {
		return nil, err
	}
	if product.StockAt(from) < qty {
		return nil, fmt.Errorf("%s has %d units, %d requested: %w", from, product.StockAt(from), qty, store.ErrInsufficientStock)
	}
	if from == domain.LocationShelf {
		product.ShelfStock -= qty
		product.StoreStock += qty
	} else {
		product.StoreStock -= qty
		product.ShelfStock += qty
	}
	product.UpdatedAt = at

	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET shelf_stock = $2, store_stock = $3, updated_at = $4
		WHERE id = $1
	`, product.ID, product.ShelfStock, product.StoreStock, product.UpdatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return product, nil
}

const paymentColumns = `id, customer_id, customer_name, amount_cents, COALESCE(sale_id, ''), note, created_at`

func (s *Store) ListPayments(ctx context.Context, from time.Time, to time.Time) ([]domain.Payment, error) {
	where, args := windowClause(from, to)
	return s.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments `+where+` ORDER BY created_at DESC, id DESC`, args...)
}

func (s *Store) ListPaymentsByCustomer(ctx context.Context, customerID string) ([]domain.Payment, error) {
	return s.queryPayments(ctx, `SELECT `+paymentColumns+` FROM payments WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, customerID)
}

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 64)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.CustomerID, &p.CustomerName, &p.AmountCents, &p.SaleID, &p.Note, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, *domain.Customer, error) {
	if payment.ID == "" || payment.CustomerID == "" || payment.AmountCents < 1 {
		return nil, nil, store.ErrInvalidTransaction
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	customer, err := getCustomer(ctx, tx, `WHERE id = $1 FOR UPDATE`, payment.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("customer %s: %w", payment.CustomerID, store.ErrNotFound)
		}
		return nil, nil, err
	}
	if payment.AmountCents > customer.TotalDebtCents {
		return nil, nil, store.ErrOverpayment
	}
	if payment.SaleID != "" {
		var matches bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM sales WHERE id = $1 AND customer_id = $2 AND payment_type = 'credit'
			)
		`, payment.SaleID, customer.ID).Scan(&matches)
		if err != nil {
			return nil, nil, err
		}
		if !matches {
			return nil, nil, store.ErrInvalidTransaction
		}
	}

	payment.CustomerName = customer.Name
	customer.TotalDebtCents -= payment.AmountCents
	customer.UpdatedAt = payment.CreatedAt

	if _, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET total_debt_cents = $2, updated_at = $3
		WHERE id = $1
	`, customer.ID, customer.TotalDebtCents, customer.UpdatedAt); err != nil {
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, customer_id, customer_name, amount_cents, sale_id, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, payment.ID, payment.CustomerID, payment.CustomerName, payment.AmountCents,
		nullIfEmpty(payment.SaleID), payment.Note, payment.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrInvalidTransaction
		}
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &payment, customer, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func deleteByID(ctx context.Context, q queryer, query string, id string) error {
	res, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// windowClause builds an inclusive created_at filter; zero bounds are open.
func windowClause(from time.Time, to time.Time) (string, []any) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if !from.IsZero() {
		args = append(args, from)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
