package memory

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/logger"
	"tajautos/backend/internal/store"
	"tajautos/backend/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	products           map[string]domain.Product
	vendors            map[string]domain.Vendor
	customers          map[string]domain.Customer
	customerByIdentity map[string]string
	sales              []domain.Sale
	purchases          []domain.Purchase
	payments           []domain.Payment
	usersByUsername    map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:           make(map[string]domain.Product),
		vendors:            make(map[string]domain.Vendor),
		customers:          make(map[string]domain.Customer),
		customerByIdentity: make(map[string]string),
		sales:              make([]domain.Sale, 0, 64),
		purchases:          make([]domain.Purchase, 0, 64),
		payments:           make([]domain.Payment, 0, 64),
		usersByUsername:    make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD;
// dev defaults are used with a warning when they are unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logger.Logger.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"staff", staffPwd, domain.RoleStaff},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Logger.Fatal().Err(err).Str("username", u.username).Msg("failed to hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users, vendors and a small parts
// catalog for local development.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC().Truncate(time.Microsecond)
	catalog := []struct {
		name, model     string
		purchase, sell  int64
		shelf, storeQty int
		minStock        int
	}{
		{"Brake Pad Set (Front)", "Toyota Corolla 2014-2019", 380000, 520000, 6, 14, 10},
		{"Oil Filter", "Suzuki Mehran", 45000, 70000, 25, 40, 20},
		{"Air Filter", "Honda City 2009-2020", 90000, 135000, 4, 2, 8},
		{"Spark Plug (Iridium)", "Universal", 110000, 160000, 30, 60, 24},
		{"Clutch Plate", "Suzuki Cultus", 650000, 880000, 2, 3, 4},
		{"Headlight Bulb H4", "Universal", 35000, 60000, 0, 18, 12},
		{"Radiator Cap", "Toyota Corolla 2009-2013", 60000, 95000, 5, 0, 6},
		{"Wiper Blade 22in", "Universal", 50000, 85000, 12, 20, 10},
	}
	for _, item := range catalog {
		p := domain.Product{
			ID:                 xid.New(xid.PrefixProduct),
			Name:               item.name,
			Model:              item.model,
			PurchasePriceCents: item.purchase,
			SellingPriceCents:  item.sell,
			ShelfStock:         item.shelf,
			StoreStock:         item.storeQty,
			MinStockLevel:      item.minStock,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		s.products[p.ID] = p
	}

	for _, v := range []domain.Vendor{
		{Name: "Karachi Auto Traders", Contact: "021-32720000", Address: "Plaza Quarters, Karachi"},
		{Name: "Lahore Spare Parts Co.", Contact: "042-37320000", Address: "McLeod Road, Lahore"},
	} {
		v.ID = xid.New(xid.PrefixVendor)
		v.CreatedAt = now
		v.UpdatedAt = now
		s.vendors[v.ID] = v
	}

	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := cmpFold(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.ShelfStock < 0 || product.StoreStock < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, patch domain.ProductUpdateRequest, at time.Time) (*domain.Product, *domain.Product, error) {
	if id == "" {
		return nil, nil, store.ErrInvalidTransaction
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[id]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	updated := existing
	if err := store.ApplyProductPatch(&updated, patch, at); err != nil {
		return nil, nil, err
	}
	s.products[id] = updated
	return &existing, &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListVendors(_ context.Context) ([]domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendors := make([]domain.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		vendors = append(vendors, v)
	}
	slices.SortFunc(vendors, func(a, b domain.Vendor) int {
		if c := cmpFold(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return vendors, nil
}

func (s *Store) GetVendor(_ context.Context, id string) (*domain.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendor, exists := s.vendors[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &vendor, nil
}

func (s *Store) CreateVendor(_ context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	if vendor.ID == "" || vendor.Name == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vendors[vendor.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.vendors[vendor.ID] = vendor
	created := vendor
	return &created, nil
}

func (s *Store) UpdateVendor(_ context.Context, vendor domain.Vendor) (*domain.Vendor, error) {
	if vendor.ID == "" || vendor.Name == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.vendors[vendor.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	vendor.CreatedAt = existing.CreatedAt
	s.vendors[vendor.ID] = vendor
	updated := vendor
	return &updated, nil
}

func (s *Store) DeleteVendor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vendors[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.vendors, id)
	return nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if c := cmpFold(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) FindCustomerByIdentity(_ context.Context, name string, contact string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.customerByIdentity[store.IdentityKey(name, contact)]
	if !exists {
		return nil, store.ErrNotFound
	}
	customer := s.customers[id]
	return &customer, nil
}

// UpdateCustomerProfile changes name, contact and address only; the stored
// debt is kept as is.
func (s *Store) UpdateCustomerProfile(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" || customer.Contact == "" {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.customers[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	oldKey := store.IdentityKey(existing.Name, existing.Contact)
	newKey := store.IdentityKey(customer.Name, customer.Contact)
	if ownerID, taken := s.customerByIdentity[newKey]; taken && ownerID != customer.ID {
		return nil, store.ErrDuplicateCustomer
	}

	existing.Name = customer.Name
	existing.Contact = customer.Contact
	existing.Address = customer.Address
	if !customer.UpdatedAt.IsZero() {
		existing.UpdatedAt = customer.UpdatedAt
	}
	delete(s.customerByIdentity, oldKey)
	s.customerByIdentity[newKey] = existing.ID
	s.customers[existing.ID] = existing
	return &existing, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if store.InWindow(sale.CreatedAt, from, to) {
			result = append(result, cloneSale(sale))
		}
	}
	sortNewestFirst(result, func(sale domain.Sale) (time.Time, string) { return sale.CreatedAt, sale.ID })
	return result, nil
}

func (s *Store) ListSalesByCustomer(_ context.Context, customerID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 16)
	for _, sale := range s.sales {
		if sale.CustomerID == customerID {
			result = append(result, cloneSale(sale))
		}
	}
	sortNewestFirst(result, func(sale domain.Sale) (time.Time, string) { return sale.CreatedAt, sale.ID })
	return result, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.sales {
		if sale.ID == id {
			found := cloneSale(sale)
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, newCustomer *domain.Customer) (*domain.Sale, *domain.Customer, error) {
	if sale.ID == "" || len(sale.Items) == 0 || !sale.PaymentType.Valid() {
		return nil, nil, store.ErrInvalidTransaction
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sales {
		if existing.ID == sale.ID {
			return nil, nil, store.ErrInvalidTransaction
		}
	}

	// Work on copies so nothing is written until every line has passed.
	touched := make(map[string]domain.Product, len(sale.Items))
	for _, id := range store.SaleProductIDs(sale.Items) {
		if product, exists := s.products[id]; exists {
			touched[id] = product
		}
	}
	if err := store.ApplySale(&sale, touched); err != nil {
		return nil, nil, err
	}
	total := sale.TotalCents

	var (
		customer    domain.Customer
		identityKey string
	)
	if sale.PaymentType == domain.PaymentCredit {
		if newCustomer != nil {
			if newCustomer.ID == "" || newCustomer.Name == "" || newCustomer.Contact == "" {
				return nil, nil, store.ErrInvalidTransaction
			}
			identityKey = store.IdentityKey(newCustomer.Name, newCustomer.Contact)
			if existingID, dup := s.customerByIdentity[identityKey]; dup {
				return nil, nil, fmt.Errorf("customer %s: %w", existingID, store.ErrDuplicateCustomer)
			}
			if _, exists := s.customers[newCustomer.ID]; exists {
				return nil, nil, store.ErrInvalidTransaction
			}
			customer = *newCustomer
			customer.TotalDebtCents = total
			if customer.CreatedAt.IsZero() {
				customer.CreatedAt = sale.CreatedAt
			}
			customer.UpdatedAt = sale.CreatedAt
		} else {
			existing, exists := s.customers[sale.CustomerID]
			if !exists {
				return nil, nil, fmt.Errorf("customer %s: %w", sale.CustomerID, store.ErrNotFound)
			}
			customer = existing
			customer.TotalDebtCents += total
			customer.UpdatedAt = sale.CreatedAt
		}
		sale.CustomerID = customer.ID
		sale.CustomerName = customer.Name
		sale.CustomerContact = customer.Contact
		sale.CustomerAddress = customer.Address
	} else {
		sale.CustomerID = ""
		sale.CustomerName = ""
		sale.CustomerContact = ""
		sale.CustomerAddress = ""
	}

	for id, product := range touched {
		s.products[id] = product
	}
	var customerOut *domain.Customer
	if sale.PaymentType == domain.PaymentCredit {
		s.customers[customer.ID] = customer
		if identityKey != "" {
			s.customerByIdentity[identityKey] = customer.ID
		}
		c := customer
		customerOut = &c
	}
	s.sales = append(s.sales, cloneSale(sale))

	created := cloneSale(sale)
	return &created, customerOut, nil
}

func (s *Store) ListPurchases(_ context.Context, from time.Time, to time.Time) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Purchase, 0, len(s.purchases))
	for _, purchase := range s.purchases {
		if store.InWindow(purchase.CreatedAt, from, to) {
			result = append(result, purchase)
		}
	}
	sortNewestFirst(result, func(p domain.Purchase) (time.Time, string) { return p.CreatedAt, p.ID })
	return result, nil
}

func (s *Store) CreatePurchase(_ context.Context, purchase domain.Purchase) (*domain.Purchase, *domain.Product, error) {
	if purchase.ID == "" || purchase.Qty < 1 || purchase.UnitPriceCents < 1 || !purchase.Location.Valid() {
		return nil, nil, store.ErrInvalidTransaction
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vendor, exists := s.vendors[purchase.VendorID]
	if !exists {
		return nil, nil, fmt.Errorf("vendor %s: %w", purchase.VendorID, store.ErrNotFound)
	}
	product, exists := s.products[purchase.ProductID]
	if !exists {
		return nil, nil, fmt.Errorf("product %s: %w", purchase.ProductID, store.ErrNotFound)
	}

	purchase.VendorName = vendor.Name
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

	s.products[product.ID] = product
	s.purchases = append(s.purchases, purchase)

	created := purchase
	return &created, &product, nil
}

func (s *Store) TransferStock(_ context.Context, productID string, from domain.Location, to domain.Location, qty int, at time.Time) (*domain.Product, error) {
	if productID == "" || !from.Valid() || !to.Valid() || from == to || qty < 1 {
		return nil, store.ErrInvalidTransaction
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
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
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) ListPayments(_ context.Context, from time.Time, to time.Time) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Payment, 0, len(s.payments))
	for _, payment := range s.payments {
		if store.InWindow(payment.CreatedAt, from, to) {
			result = append(result, payment)
		}
	}
	sortNewestFirst(result, func(p domain.Payment) (time.Time, string) { return p.CreatedAt, p.ID })
	return result, nil
}

func (s *Store) ListPaymentsByCustomer(_ context.Context, customerID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Payment, 0, 16)
	for _, payment := range s.payments {
		if payment.CustomerID == customerID {
			result = append(result, payment)
		}
	}
	sortNewestFirst(result, func(p domain.Payment) (time.Time, string) { return p.CreatedAt, p.ID })
	return result, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, *domain.Customer, error) {
	if payment.ID == "" || payment.CustomerID == "" || payment.AmountCents < 1 {
		return nil, nil, store.ErrInvalidTransaction
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customers[payment.CustomerID]
	if !exists {
		return nil, nil, fmt.Errorf("customer %s: %w", payment.CustomerID, store.ErrNotFound)
	}
	if payment.AmountCents > customer.TotalDebtCents {
		return nil, nil, store.ErrOverpayment
	}
	if payment.SaleID != "" {
		matched := false
		for _, sale := range s.sales {
			if sale.ID == payment.SaleID {
				matched = sale.CustomerID == customer.ID && sale.PaymentType == domain.PaymentCredit
				break
			}
		}
		if !matched {
			return nil, nil, store.ErrInvalidTransaction
		}
	}

	payment.CustomerName = customer.Name
	customer.TotalDebtCents -= payment.AmountCents
	customer.UpdatedAt = payment.CreatedAt

	s.customers[customer.ID] = customer
	s.payments = append(s.payments, payment)

	created := payment
	return &created, &customer, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleStaff
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}

func sortNewestFirst[T any](items []T, key func(T) (time.Time, string)) {
	slices.SortStableFunc(items, func(a, b T) int {
		at, aID := key(a)
		bt, bID := key(b)
		if c := bt.Compare(at); c != 0 {
			return c
		}
		return cmp.Compare(bID, aID)
	})
}

func cmpFold(a string, b string) int {
	return cmp.Compare(strings.ToLower(a), strings.ToLower(b))
}
