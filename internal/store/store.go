package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"tajautos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrOverpayment        = errors.New("payment exceeds outstanding debt")
	ErrDuplicateCustomer  = errors.New("customer with this name and contact already exists")
)

// Repository is the persistence boundary. The four composite writes
// (CreateSale, CreatePurchase, TransferStock, CreatePayment) either apply
// every change they describe or none of them.
//
// List methods taking from/to treat both bounds as inclusive; a zero bound
// is open.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// UpdateProduct applies patch to the current record of product id in
	// one atomic step and returns the record before and after the change.
	UpdateProduct(ctx context.Context, id string, patch domain.ProductUpdateRequest, at time.Time) (before *domain.Product, after *domain.Product, err error)
	DeleteProduct(ctx context.Context, id string) error

	ListVendors(ctx context.Context) ([]domain.Vendor, error)
	GetVendor(ctx context.Context, id string) (*domain.Vendor, error)
	CreateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error)
	UpdateVendor(ctx context.Context, vendor domain.Vendor) (*domain.Vendor, error)
	DeleteVendor(ctx context.Context, id string) error

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByIdentity(ctx context.Context, name string, contact string) (*domain.Customer, error)
	UpdateCustomerProfile(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	ListSalesByCustomer(ctx context.Context, customerID string) ([]domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	// CreateSale re-reads every product, deducts shelf stock first and store
	// stock for the remainder, then persists the sale. For credit sales it
	// either inserts newCustomer with the sale total as debt, or adds the
	// total to the debt of sale.CustomerID when newCustomer is nil.
	CreateSale(ctx context.Context, sale domain.Sale, newCustomer *domain.Customer) (*domain.Sale, *domain.Customer, error)

	ListPurchases(ctx context.Context, from time.Time, to time.Time) ([]domain.Purchase, error)
	CreatePurchase(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, *domain.Product, error)

	TransferStock(ctx context.Context, productID string, from domain.Location, to domain.Location, qty int, at time.Time) (*domain.Product, error)

	ListPayments(ctx context.Context, from time.Time, to time.Time) ([]domain.Payment, error)
	ListPaymentsByCustomer(ctx context.Context, customerID string) ([]domain.Payment, error)
	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, *domain.Customer, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// IdentityKey normalizes a customer's name and contact into the key used to
// detect duplicate customers.
func IdentityKey(name string, contact string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "\x1f" + strings.ToLower(strings.TrimSpace(contact))
}

// InWindow reports whether at falls inside the inclusive [from, to] window,
// where a zero bound is open.
func InWindow(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && at.After(to) {
		return false
	}
	return true
}

// DeductShelfFirst takes qty units from the shelf, then the remainder from
// the store. ok is false when the two counters together cannot cover qty.
func DeductShelfFirst(shelf int, storeQty int, qty int) (newShelf int, newStore int, ok bool) {
	if qty < 0 || qty > shelf+storeQty {
		return shelf, storeQty, false
	}
	fromShelf := min(qty, shelf)
	return shelf - fromShelf, storeQty - (qty - fromShelf), true
}

// ApplyProductPatch copies the fields set in patch onto p. Stock counters
// are left alone unless the patch names them.
func ApplyProductPatch(p *domain.Product, patch domain.ProductUpdateRequest, at time.Time) error {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Model != nil {
		p.Model = *patch.Model
	}
	if patch.PurchasePriceCents != nil {
		p.PurchasePriceCents = *patch.PurchasePriceCents
	}
	if patch.SellingPriceCents != nil {
		p.SellingPriceCents = *patch.SellingPriceCents
	}
	if patch.ShelfStock != nil {
		p.ShelfStock = *patch.ShelfStock
	}
	if patch.StoreStock != nil {
		p.StoreStock = *patch.StoreStock
	}
	if patch.MinStockLevel != nil {
		p.MinStockLevel = *patch.MinStockLevel
	}
	if p.Name == "" || p.ShelfStock < 0 || p.StoreStock < 0 || p.SellingPriceCents < 1 ||
		p.PurchasePriceCents < 0 || p.SellingPriceCents > domain.MaxPriceCents || p.PurchasePriceCents > domain.MaxPriceCents {
		return ErrInvalidTransaction
	}
	p.UpdatedAt = at
	return nil
}

// LineTotal returns qty * unitCents, with ok false when the product does not
// fit in an int64.
func LineTotal(qty int, unitCents int64) (int64, bool) {
	if qty < 0 || unitCents < 0 {
		return 0, false
	}
	if unitCents > 0 && int64(qty) > math.MaxInt64/unitCents {
		return 0, false
	}
	return int64(qty) * unitCents, true
}

// ApplySale prices every line of sale from the product records and deducts
// stock shelf-first. Lines naming the same product draw on what the earlier
// lines left. products must hold every product the sale references; it is
// updated in place and should only be persisted when ApplySale succeeds.
func ApplySale(sale *domain.Sale, products map[string]domain.Product) error {
	items := make([]domain.SaleItem, 0, len(sale.Items))
	total := int64(0)
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return ErrInvalidTransaction
		}
		product, exists := products[item.ProductID]
		if !exists {
			return fmt.Errorf("product %s: %w", item.ProductID, ErrNotFound)
		}
		shelf, storeQty, ok := DeductShelfFirst(product.ShelfStock, product.StoreStock, item.Qty)
		if !ok {
			return fmt.Errorf("product %s has %d units, %d requested: %w", product.ID, product.TotalStock(), item.Qty, ErrInsufficientStock)
		}
		product.ShelfStock = shelf
		product.StoreStock = storeQty
		product.UpdatedAt = sale.CreatedAt
		products[product.ID] = product

		lineTotal, ok := LineTotal(item.Qty, product.SellingPriceCents)
		if !ok {
			return fmt.Errorf("product %s line total overflows: %w", product.ID, ErrInvalidTransaction)
		}
		line := domain.SaleItem{
			ProductID:      product.ID,
			Name:           product.Name,
			Qty:            item.Qty,
			UnitPriceCents: product.SellingPriceCents,
			LineTotalCents: lineTotal,
		}
		if total > math.MaxInt64-line.LineTotalCents {
			return fmt.Errorf("sale total overflows: %w", ErrInvalidTransaction)
		}
		total += line.LineTotalCents
		items = append(items, line)
	}
	sale.Items = items
	sale.TotalCents = total
	return nil
}

// SaleProductIDs returns the distinct product ids of a sale in sorted order.
func SaleProductIDs(items []domain.SaleItem) []string {
	set := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		if _, seen := set[item.ProductID]; seen {
			continue
		}
		set[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	slices.Sort(ids)
	return ids
}
