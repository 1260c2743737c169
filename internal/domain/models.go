package domain

import "time"

type Location string

const (
	LocationShelf Location = "shelf"
	LocationStore Location = "store"
)

func (l Location) Valid() bool {
	return l == LocationShelf || l == LocationStore
}

type PaymentType string

const (
	PaymentCash   PaymentType = "cash"
	PaymentCredit PaymentType = "credit"
)

func (p PaymentType) Valid() bool {
	return p == PaymentCash || p == PaymentCredit
}

const DefaultMinStockLevel = 10

// MaxPriceCents caps any unit price at Rs 1 billion.
const MaxPriceCents int64 = 100_000_000_000

type Product struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Model              string    `json:"model"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	SellingPriceCents  int64     `json:"selling_price_cents"`
	ShelfStock         int       `json:"shelf_stock"`
	StoreStock         int       `json:"store_stock"`
	MinStockLevel      int       `json:"min_stock_level"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (p Product) TotalStock() int {
	return p.ShelfStock + p.StoreStock
}

// LowStock is derived on every read and never persisted.
func (p Product) LowStock() bool {
	return p.TotalStock() < p.MinStockLevel
}

func (p Product) StockAt(loc Location) int {
	if loc == LocationShelf {
		return p.ShelfStock
	}
	return p.StoreStock
}

type ProductView struct {
	Product
	TotalStock int  `json:"total_stock"`
	LowStock   bool `json:"low_stock"`
}

func NewProductView(p Product) ProductView {
	return ProductView{Product: p, TotalStock: p.TotalStock(), LowStock: p.LowStock()}
}

type ProductCreateRequest struct {
	Name               string `json:"name"`
	Model              string `json:"model"`
	PurchasePriceCents int64  `json:"purchase_price_cents"`
	SellingPriceCents  int64  `json:"selling_price_cents"`
	ShelfStock         int    `json:"shelf_stock"`
	StoreStock         int    `json:"store_stock"`
	MinStockLevel      *int   `json:"min_stock_level,omitempty"`
}

type ProductUpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	Model              *string `json:"model,omitempty"`
	PurchasePriceCents *int64  `json:"purchase_price_cents,omitempty"`
	SellingPriceCents  *int64  `json:"selling_price_cents,omitempty"`
	ShelfStock         *int    `json:"shelf_stock,omitempty"`
	StoreStock         *int    `json:"store_stock,omitempty"`
	MinStockLevel      *int    `json:"min_stock_level,omitempty"`
}

type TransferRequest struct {
	From Location `json:"from"`
	To   Location `json:"to"`
	Qty  int      `json:"qty"`
}

type SaleItem struct {
	ProductID      string `json:"product_id"`
	Name           string `json:"name"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Sale struct {
	ID              string      `json:"id"`
	Items           []SaleItem  `json:"items"`
	TotalCents      int64       `json:"total_cents"`
	PaymentType     PaymentType `json:"payment_type"`
	CustomerID      string      `json:"customer_id,omitempty"`
	CustomerName    string      `json:"customer_name,omitempty"`
	CustomerContact string      `json:"customer_contact,omitempty"`
	CustomerAddress string      `json:"customer_address,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

type SaleLineRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// CreditCustomer selects who a credit sale is charged to. Exactly one arm
// is used: CustomerID for a known customer, or Name/Contact/Address for a
// customer that does not exist yet.
type CreditCustomer struct {
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Contact    string `json:"contact,omitempty"`
	Address    string `json:"address,omitempty"`
}

func (c CreditCustomer) IsExisting() bool {
	return c.CustomerID != ""
}

type SaleRequest struct {
	Items       []SaleLineRequest `json:"items"`
	PaymentType PaymentType       `json:"payment_type"`
	Customer    *CreditCustomer   `json:"customer,omitempty"`
}

type SaleResponse struct {
	Sale            Sale      `json:"sale"`
	Customer        *Customer `json:"customer,omitempty"`
	CustomerCreated bool      `json:"customer_created"`
	Invoice         *Invoice  `json:"invoice,omitempty"`
}

type Invoice struct {
	Number       string `json:"number"`
	SaleID       string `json:"sale_id"`
	PreviewText  string `json:"preview_text"`
	EscposBase64 string `json:"escpos_base64"`
	FileName     string `json:"file_name"`
}

type Vendor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type VendorRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Address string `json:"address"`
}

type Purchase struct {
	ID             string    `json:"id"`
	VendorID       string    `json:"vendor_id"`
	VendorName     string    `json:"vendor_name"`
	ProductID      string    `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Qty            int       `json:"qty"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	TotalCents     int64     `json:"total_cents"`
	Location       Location  `json:"location"`
	CreatedAt      time.Time `json:"created_at"`
}

type PurchaseRequest struct {
	VendorID       string   `json:"vendor_id"`
	ProductID      string   `json:"product_id"`
	Qty            int      `json:"qty"`
	UnitPriceCents int64    `json:"unit_price_cents"`
	Location       Location `json:"location"`
}

type PurchaseResponse struct {
	Purchase Purchase `json:"purchase"`
	Product  Product  `json:"product"`
}

type Customer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Contact        string    `json:"contact"`
	Address        string    `json:"address"`
	TotalDebtCents int64     `json:"total_debt_cents"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Contact *string `json:"contact,omitempty"`
	Address *string `json:"address,omitempty"`
}

type Payment struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	AmountCents  int64     `json:"amount_cents"`
	SaleID       string    `json:"sale_id,omitempty"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type PaymentRequest struct {
	CustomerID  string `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
	SaleID      string `json:"sale_id,omitempty"`
	Note        string `json:"note,omitempty"`
}

type PaymentResponse struct {
	Payment  Payment  `json:"payment"`
	Customer Customer `json:"customer"`
}

type LedgerEntryKind string

const (
	LedgerDebit  LedgerEntryKind = "debit"
	LedgerCredit LedgerEntryKind = "credit"
)

type LedgerEntry struct {
	At           time.Time       `json:"at"`
	Kind         LedgerEntryKind `json:"kind"`
	Reference    string          `json:"reference"`
	Description  string          `json:"description"`
	DebitCents   int64           `json:"debit_cents"`
	CreditCents  int64           `json:"credit_cents"`
	BalanceCents int64           `json:"balance_cents"`
}

type CustomerStatement struct {
	Customer             Customer      `json:"customer"`
	Entries              []LedgerEntry `json:"entries"`
	TotalDebitCents      int64         `json:"total_debit_cents"`
	TotalCreditCents     int64         `json:"total_credit_cents"`
	ComputedBalanceCents int64         `json:"computed_balance_cents"`
	StoredBalanceCents   int64         `json:"stored_balance_cents"`
	Reconciled           bool          `json:"reconciled"`
}

type LedgerMismatch struct {
	CustomerID           string `json:"customer_id"`
	CustomerName         string `json:"customer_name"`
	ComputedBalanceCents int64  `json:"computed_balance_cents"`
	StoredBalanceCents   int64  `json:"stored_balance_cents"`
}

type LedgerAudit struct {
	CheckedCustomers int              `json:"checked_customers"`
	Mismatches       []LedgerMismatch `json:"mismatches"`
	CheckedAt        time.Time        `json:"checked_at"`
}

type Report struct {
	StartDate          string     `json:"start_date"`
	EndDate            string     `json:"end_date"`
	From               time.Time  `json:"from"`
	To                 time.Time  `json:"to"`
	SalesCount         int        `json:"sales_count"`
	RevenueCents       int64      `json:"revenue_cents"`
	CashRevenueCents   int64      `json:"cash_revenue_cents"`
	CreditRevenueCents int64      `json:"credit_revenue_cents"`
	PurchaseCount      int        `json:"purchase_count"`
	PurchaseCostCents  int64      `json:"purchase_cost_cents"`
	ProfitCents        int64      `json:"profit_cents"`
	ProfitBasis        string     `json:"profit_basis"`
	PaymentCount       int        `json:"payment_count"`
	CollectionsCents   int64      `json:"collections_cents"`
	Sales              []Sale     `json:"sales"`
	Purchases          []Purchase `json:"purchases"`
	Payments           []Payment  `json:"payments"`
}

// ProfitBasisRevenueMinusPurchases marks profit as period revenue minus
// period purchase spend, not matched cost of goods sold.
const ProfitBasisRevenueMinusPurchases = "revenue_minus_purchases"

type DashboardSummary struct {
	TotalProducts         int           `json:"total_products"`
	LowStockCount         int           `json:"low_stock_count"`
	LowStock              []ProductView `json:"low_stock"`
	TodaySalesCents       int64         `json:"today_sales_cents"`
	TodaySalesCount       int           `json:"today_sales_count"`
	TotalOutstandingCents int64         `json:"total_outstanding_cents"`
	CustomersOwing        int           `json:"customers_owing"`
	GeneratedAt           time.Time     `json:"generated_at"`
}

type RestockSuggestion struct {
	ProductID              string `json:"product_id"`
	Name                   string `json:"name"`
	Model                  string `json:"model"`
	ShelfStock             int    `json:"shelf_stock"`
	StoreStock             int    `json:"store_stock"`
	MinStockLevel          int    `json:"min_stock_level"`
	RecommendedQty         int    `json:"recommended_qty"`
	VendorID               string `json:"vendor_id,omitempty"`
	VendorName             string `json:"vendor_name,omitempty"`
	LastCostCents          int64  `json:"last_cost_cents"`
	EstimatedPurchaseCents int64  `json:"estimated_purchase_cents"`
}

type ShelfRefill struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	StoreStock int    `json:"store_stock"`
	RefillQty  int    `json:"refill_qty"`
}

type RestockReport struct {
	Suggestions       []RestockSuggestion `json:"suggestions"`
	ShelfRefills      []ShelfRefill       `json:"shelf_refills"`
	EstimatedTotal    int64               `json:"estimated_total_cents"`
	GeneratedAt       time.Time           `json:"generated_at"`
	ServedFromCache   bool                `json:"served_from_cache"`
	SnapshotSignature string              `json:"snapshot_signature"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
