package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/store"
	"tajautos/backend/internal/store/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

var testZone = time.FixedZone("PKT", 5*60*60)

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 10, 9, 0, 0, 0, testZone)}
	opts = append([]Option{WithClock(clock.Now), WithLocation(testZone)}, opts...)
	return New(memory.New(), nil, opts...), clock
}

func intPtr(v int) *int { return &v }

func mustCreateProduct(t *testing.T, svc *Service, name string, priceCents int64, shelf int, storeQty int, minStock int) domain.ProductView {
	t.Helper()
	product, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Name:               name,
		Model:              "Corolla",
		PurchasePriceCents: priceCents / 2,
		SellingPriceCents:  priceCents,
		ShelfStock:         shelf,
		StoreStock:         storeQty,
		MinStockLevel:      intPtr(minStock),
	})
	if err != nil {
		t.Fatalf("create product %s: %v", name, err)
	}
	return product
}

func mustCreateVendor(t *testing.T, svc *Service) domain.Vendor {
	t.Helper()
	vendor, err := svc.CreateVendor(context.Background(), domain.VendorRequest{
		Name: "Karachi Auto Traders", Contact: "021-32720000", Address: "Plaza Quarters",
	})
	if err != nil {
		t.Fatalf("create vendor: %v", err)
	}
	return vendor
}

func cashSale(productID string, qty int) domain.SaleRequest {
	return domain.SaleRequest{
		Items:       []domain.SaleLineRequest{{ProductID: productID, Qty: qty}},
		PaymentType: domain.PaymentCash,
	}
}

func creditSale(productID string, qty int, customer domain.CreditCustomer) domain.SaleRequest {
	return domain.SaleRequest{
		Items:       []domain.SaleLineRequest{{ProductID: productID, Qty: qty}},
		PaymentType: domain.PaymentCredit,
		Customer:    &customer,
	}
}

func TestCreateSaleDeductsShelfFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Brake Pad", 10000, 5, 3, 2)

	resp, err := svc.CreateSale(ctx, cashSale(product.ID, 7))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if resp.Sale.TotalCents != 70000 {
		t.Fatalf("expected total 70000, got %d", resp.Sale.TotalCents)
	}
	if resp.Sale.Items[0].Name != "Brake Pad" || resp.Sale.Items[0].UnitPriceCents != 10000 {
		t.Fatalf("expected name and price snapshot, got %+v", resp.Sale.Items[0])
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.ShelfStock != 0 || after.StoreStock != 1 {
		t.Fatalf("expected shelf=0 store=1, got shelf=%d store=%d", after.ShelfStock, after.StoreStock)
	}
}

func TestCreateSaleMergesRepeatedLines(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Oil Filter", 7000, 4, 0, 1)

	resp, err := svc.CreateSale(context.Background(), domain.SaleRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: product.ID, Qty: 1},
			{ProductID: product.ID, Qty: 2},
		},
		PaymentType: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if len(resp.Sale.Items) != 1 || resp.Sale.Items[0].Qty != 3 {
		t.Fatalf("expected one merged line of 3, got %+v", resp.Sale.Items)
	}
}

func TestCreateSaleRejectsInsufficientStockWithoutEffects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ok := mustCreateProduct(t, svc, "Spark Plug", 5000, 10, 0, 1)
	short := mustCreateProduct(t, svc, "Clutch Plate", 80000, 1, 1, 1)

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleLineRequest{
			{ProductID: ok.ID, Qty: 2},
			{ProductID: short.ID, Qty: 3},
		},
		PaymentType: domain.PaymentCredit,
		Customer:    &domain.CreditCustomer{Name: "Ali", Contact: "0300"},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %T", err)
	}

	after, _ := svc.GetProduct(ctx, ok.ID)
	if after.ShelfStock != 10 {
		t.Fatalf("expected untouched stock, got %d", after.ShelfStock)
	}
	customers, _ := svc.ListCustomers(ctx, "")
	if len(customers) != 0 {
		t.Fatalf("expected no customer to be created, got %d", len(customers))
	}
}

func TestCreateSaleValidatesRequest(t *testing.T) {
	svc, _ := newTestService(t)
	product := mustCreateProduct(t, svc, "Wiper", 8500, 10, 0, 1)
	ctx := context.Background()

	cases := []struct {
		name  string
		req   domain.SaleRequest
		field string
	}{
		{"no items", domain.SaleRequest{PaymentType: domain.PaymentCash}, "items"},
		{"zero qty", cashSale(product.ID, 0), "items[0].qty"},
		{"bad payment type", domain.SaleRequest{Items: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}}, PaymentType: "card"}, "payment_type"},
		{"cash with customer", domain.SaleRequest{Items: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}}, PaymentType: domain.PaymentCash, Customer: &domain.CreditCustomer{Name: "A", Contact: "1"}}, "customer"},
		{"credit without customer", domain.SaleRequest{Items: []domain.SaleLineRequest{{ProductID: product.ID, Qty: 1}}, PaymentType: domain.PaymentCredit}, "customer"},
		{"credit missing contact", creditSale(product.ID, 1, domain.CreditCustomer{Name: "Ali"}), "customer.contact"},
		{"credit missing name", creditSale(product.ID, 1, domain.CreditCustomer{Contact: "0300"}), "customer.name"},
		{"both arms", creditSale(product.ID, 1, domain.CreditCustomer{CustomerID: "cus-1", Name: "Ali"}), "customer"},
		{"unknown customer", creditSale(product.ID, 1, domain.CreditCustomer{CustomerID: "cus-missing"}), "customer.customer_id"},
	}
	for _, tc := range cases {
		_, err := svc.CreateSale(ctx, tc.req)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		if vErr.Field != tc.field {
			t.Fatalf("%s: expected field %q, got %q", tc.name, tc.field, vErr.Field)
		}
	}

	after, _ := svc.GetProduct(ctx, product.ID)
	if after.ShelfStock != 10 {
		t.Fatalf("expected rejected sales to leave stock alone, got %d", after.ShelfStock)
	}
}

func TestCreditSalesAccumulateDebt(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Radiator Cap", 9500, 10, 0, 1)

	first, err := svc.CreateSale(ctx, creditSale(product.ID, 2, domain.CreditCustomer{Name: "Bilal Ahmed", Contact: "0321-5550000", Address: "Saddar"}))
	if err != nil {
		t.Fatalf("first credit sale: %v", err)
	}
	if !first.CustomerCreated || first.Customer == nil || first.Customer.TotalDebtCents != 19000 {
		t.Fatalf("expected new customer with debt 19000, got %+v", first.Customer)
	}
	if first.Sale.CustomerName != "Bilal Ahmed" || first.Sale.CustomerAddress != "Saddar" {
		t.Fatalf("expected customer snapshot on sale, got %+v", first.Sale)
	}

	second, err := svc.CreateSale(ctx, creditSale(product.ID, 1, domain.CreditCustomer{CustomerID: first.Customer.ID}))
	if err != nil {
		t.Fatalf("second credit sale: %v", err)
	}
	if second.CustomerCreated || second.Customer.TotalDebtCents != 28500 {
		t.Fatalf("expected existing customer debt 28500, got %+v", second.Customer)
	}

	statement, err := svc.CustomerLedger(ctx, first.Customer.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if !statement.Reconciled || statement.ComputedBalanceCents != 28500 || len(statement.Entries) != 2 {
		t.Fatalf("unexpected statement: %+v", statement)
	}
}

func TestCreditSaleRejectsDuplicateNewCustomer(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Bulb H4", 6000, 10, 0, 1)

	first, err := svc.CreateSale(ctx, creditSale(product.ID, 1, domain.CreditCustomer{Name: "Sana", Contact: "0333-1234567"}))
	if err != nil {
		t.Fatalf("first credit sale: %v", err)
	}

	_, err = svc.CreateSale(ctx, creditSale(product.ID, 1, domain.CreditCustomer{Name: "  SANA ", Contact: "0333-1234567"}))
	if !errors.Is(err, store.ErrDuplicateCustomer) {
		t.Fatalf("expected duplicate customer, got %v", err)
	}
	if !strings.Contains(err.Error(), first.Customer.ID) {
		t.Fatalf("expected error to name existing customer %s, got %v", first.Customer.ID, err)
	}

	customer, _ := svc.GetCustomer(ctx, first.Customer.ID)
	if customer.TotalDebtCents != 6000 {
		t.Fatalf("expected debt to stay 6000, got %d", customer.TotalDebtCents)
	}
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Air Filter", 13500, 10, 0, 1)

	sale, err := svc.CreateSale(ctx, creditSale(product.ID, 1, domain.CreditCustomer{Name: "Usman", Contact: "0345"}))
	if err != nil {
		t.Fatalf("credit sale: %v", err)
	}
	customerID := sale.Customer.ID

	_, err = svc.RecordPayment(ctx, domain.PaymentRequest{CustomerID: customerID, AmountCents: 13501})
	if !errors.Is(err, store.ErrOverpayment) {
		t.Fatalf("expected overpayment, got %v", err)
	}
	if _, err := svc.RecordPayment(ctx, domain.PaymentRequest{CustomerID: customerID, AmountCents: 0}); !IsValidation(err) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
	customer, _ := svc.GetCustomer(ctx, customerID)
	if customer.TotalDebtCents != 13500 {
		t.Fatalf("expected debt unchanged, got %d", customer.TotalDebtCents)
	}

	paid, err := svc.RecordPayment(ctx, domain.PaymentRequest{CustomerID: customerID, AmountCents: 13500, SaleID: sale.Sale.ID, Note: "settled"})
	if err != nil {
		t.Fatalf("full payment: %v", err)
	}
	if paid.Customer.TotalDebtCents != 0 || paid.Payment.CustomerName != "Usman" {
		t.Fatalf("unexpected payment response: %+v", paid)
	}
}

func TestRecordPaymentRejectsCashSaleReference(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Fuse", 500, 10, 0, 1)

	cash, err := svc.CreateSale(ctx, cashSale(product.ID, 1))
	if err != nil {
		t.Fatalf("cash sale: %v", err)
	}
	credit, err := svc.CreateSale(ctx, creditSale(product.ID, 2, domain.CreditCustomer{Name: "Hamza", Contact: "1"}))
	if err != nil {
		t.Fatalf("credit sale: %v", err)
	}

	_, err = svc.RecordPayment(ctx, domain.PaymentRequest{CustomerID: credit.Customer.ID, AmountCents: 500, SaleID: cash.Sale.ID})
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "sale_id" {
		t.Fatalf("expected sale_id validation error, got %v", err)
	}
}

func TestTransferStockKeepsTotal(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Clutch Cable", 20000, 2, 6, 1)

	moved, err := svc.TransferStock(ctx, product.ID, domain.TransferRequest{From: domain.LocationStore, To: domain.LocationShelf, Qty: 4})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if moved.ShelfStock != 6 || moved.StoreStock != 2 || moved.TotalStock != 8 {
		t.Fatalf("unexpected stock after transfer: %+v", moved)
	}

	_, err = svc.TransferStock(ctx, product.ID, domain.TransferRequest{From: domain.LocationStore, To: domain.LocationShelf, Qty: 3})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	for _, req := range []domain.TransferRequest{
		{From: domain.LocationShelf, To: domain.LocationShelf, Qty: 1},
		{From: domain.LocationShelf, To: domain.LocationStore, Qty: 0},
		{From: "garage", To: domain.LocationStore, Qty: 1},
	} {
		if _, err := svc.TransferStock(ctx, product.ID, req); !IsValidation(err) {
			t.Fatalf("expected validation error for %+v, got %v", req, err)
		}
	}
}

func TestCreatePurchaseIncrementsOneLocation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Headlight", 60000, 1, 1, 1)
	vendor := mustCreateVendor(t, svc)

	resp, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{VendorID: vendor.ID, ProductID: product.ID, Qty: 5, UnitPriceCents: 35000})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if resp.Purchase.Location != domain.LocationStore || resp.Product.StoreStock != 6 || resp.Product.ShelfStock != 1 {
		t.Fatalf("expected default store location increment, got %+v", resp)
	}
	if resp.Purchase.TotalCents != 175000 || resp.Purchase.VendorName != vendor.Name || resp.Purchase.ProductName != "Headlight" {
		t.Fatalf("unexpected purchase snapshot: %+v", resp.Purchase)
	}

	shelf, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{VendorID: vendor.ID, ProductID: product.ID, Qty: 2, UnitPriceCents: 35000, Location: domain.LocationShelf})
	if err != nil {
		t.Fatalf("shelf purchase: %v", err)
	}
	if shelf.Product.ShelfStock != 3 || shelf.Product.StoreStock != 6 {
		t.Fatalf("expected shelf increment only, got %+v", shelf.Product)
	}

	_, err = svc.CreatePurchase(ctx, domain.PurchaseRequest{VendorID: "ven-missing", ProductID: product.ID, Qty: 1, UnitPriceCents: 1})
	if !IsValidation(err) || !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected validation error wrapping not found, got %v", err)
	}
	if _, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{VendorID: vendor.ID, ProductID: product.ID, Qty: 1, UnitPriceCents: 0}); !IsValidation(err) {
		t.Fatalf("expected validation error for zero price, got %v", err)
	}
}

func TestReportWindowIsInclusiveInShopZone(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	cheap := mustCreateProduct(t, svc, "Cheap Part", 10000, 10, 0, 1)
	dear := mustCreateProduct(t, svc, "Dear Part", 25000, 10, 0, 1)
	other := mustCreateProduct(t, svc, "Other Part", 5000, 10, 0, 1)

	clock.now = time.Date(2024, 3, 10, 0, 0, 0, 0, testZone)
	if _, err := svc.CreateSale(ctx, cashSale(cheap.ID, 1)); err != nil {
		t.Fatalf("sale at start of day: %v", err)
	}
	clock.now = time.Date(2024, 3, 10, 23, 59, 59, 0, testZone)
	if _, err := svc.CreateSale(ctx, creditSale(dear.ID, 1, domain.CreditCustomer{Name: "Late", Contact: "9"})); err != nil {
		t.Fatalf("sale at end of day: %v", err)
	}
	clock.now = time.Date(2024, 3, 11, 0, 0, 0, 0, testZone)
	if _, err := svc.CreateSale(ctx, cashSale(other.ID, 1)); err != nil {
		t.Fatalf("sale next day: %v", err)
	}

	report, err := svc.Report(ctx, "2024-03-10", "2024-03-10")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.RevenueCents != 35000 || report.SalesCount != 2 {
		t.Fatalf("expected revenue 35000 over 2 sales, got %d over %d", report.RevenueCents, report.SalesCount)
	}
	if report.CashRevenueCents != 10000 || report.CreditRevenueCents != 25000 {
		t.Fatalf("unexpected cash/credit split: %+v", report)
	}
	if report.ProfitBasis != domain.ProfitBasisRevenueMinusPurchases || report.ProfitCents != 35000 {
		t.Fatalf("unexpected profit: %d (%s)", report.ProfitCents, report.ProfitBasis)
	}

	if _, err := svc.Report(ctx, "2024-03-11", "2024-03-10"); !IsValidation(err) {
		t.Fatalf("expected validation error for end before start, got %v", err)
	}
	if _, err := svc.Report(ctx, "10/03/2024", ""); !IsValidation(err) {
		t.Fatalf("expected validation error for bad date, got %v", err)
	}
}

func TestReportSubtractsPurchasesAndCountsCollections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Shock Absorber", 100000, 5, 0, 1)
	vendor := mustCreateVendor(t, svc)

	sale, err := svc.CreateSale(ctx, creditSale(product.ID, 2, domain.CreditCustomer{Name: "Kamran", Contact: "7"}))
	if err != nil {
		t.Fatalf("credit sale: %v", err)
	}
	if _, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{VendorID: vendor.ID, ProductID: product.ID, Qty: 2, UnitPriceCents: 60000}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, domain.PaymentRequest{CustomerID: sale.Customer.ID, AmountCents: 50000}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	report, err := svc.Report(ctx, "", "")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.PurchaseCostCents != 120000 || report.ProfitCents != 80000 {
		t.Fatalf("expected cost 120000 and profit 80000, got %d and %d", report.PurchaseCostCents, report.ProfitCents)
	}
	if report.CollectionsCents != 50000 || report.PaymentCount != 1 {
		t.Fatalf("unexpected collections: %+v", report)
	}
}

func TestLedgerPutsDebitBeforeCreditAtSameInstant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Belt", 4000, 10, 0, 1)

	sale, err := svc.CreateSale(ctx, creditSale(product.ID, 1, domain.CreditCustomer{Name: "Tie", Contact: "0"}))
	if err != nil {
		t.Fatalf("credit sale: %v", err)
	}
	if _, err := svc.RecordPayment(ctx, domain.PaymentRequest{CustomerID: sale.Customer.ID, AmountCents: 4000}); err != nil {
		t.Fatalf("payment: %v", err)
	}

	statement, err := svc.CustomerLedger(ctx, sale.Customer.ID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if len(statement.Entries) != 2 || statement.Entries[0].Kind != domain.LedgerDebit {
		t.Fatalf("expected debit first, got %+v", statement.Entries)
	}
	if statement.Entries[0].BalanceCents != 4000 || statement.Entries[1].BalanceCents != 0 {
		t.Fatalf("unexpected running balance: %+v", statement.Entries)
	}

	if _, err := svc.CustomerLedger(ctx, "cus-missing"); !errors.Is(err, store.ErrNotFound) || IsValidation(err) {
		t.Fatalf("expected plain not found for unknown customer, got %v", err)
	}
}

func TestReadsReturnStoredRecordsUnchanged(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreateProduct(t, svc, "Gasket", 3000, 2, 1, 5)

	for i := 0; i < 2; i++ {
		products, err := svc.ListProducts(ctx, "", false)
		if err != nil {
			t.Fatalf("list products: %v", err)
		}
		if len(products) != 1 || products[0] != created {
			t.Fatalf("expected stored product unchanged, got %+v want %+v", products, created)
		}
	}
	if !created.LowStock || created.TotalStock != 3 {
		t.Fatalf("expected 2+1 against min 5 to be low stock, got %+v", created)
	}

	updated, err := svc.UpdateProduct(ctx, created.ID, domain.ProductUpdateRequest{MinStockLevel: intPtr(3)})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.LowStock {
		t.Fatalf("expected 2+1 against min 3 not to be low stock")
	}
	if _, err := svc.UpdateProduct(ctx, created.ID, domain.ProductUpdateRequest{ShelfStock: intPtr(-1)}); !IsValidation(err) {
		t.Fatalf("expected negative stock correction to be rejected, got %v", err)
	}
}

func TestListProductsFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustCreateProduct(t, svc, "Brake Disc", 30000, 1, 0, 5)
	mustCreateProduct(t, svc, "Brake Fluid", 9000, 20, 20, 5)
	mustCreateProduct(t, svc, "Mirror", 15000, 0, 0, 2)

	brakes, _ := svc.ListProducts(ctx, "BRAKE", false)
	if len(brakes) != 2 {
		t.Fatalf("expected 2 brake products, got %d", len(brakes))
	}
	low, _ := svc.ListProducts(ctx, "", true)
	if len(low) != 2 {
		t.Fatalf("expected 2 low stock products, got %d", len(low))
	}
	lowBrakes, _ := svc.ListProducts(ctx, "brake", true)
	if len(lowBrakes) != 1 || lowBrakes[0].Name != "Brake Disc" {
		t.Fatalf("expected only Brake Disc, got %+v", lowBrakes)
	}
}

type failingInvoicer struct{}

func (failingInvoicer) Render(domain.Sale) (domain.Invoice, error) {
	return domain.Invoice{}, errors.New("printer template missing")
}

type stubInvoicer struct{}

func (stubInvoicer) Render(sale domain.Sale) (domain.Invoice, error) {
	return domain.Invoice{Number: "INV-1", SaleID: sale.ID}, nil
}

func TestInvoiceFailureKeepsCommittedSale(t *testing.T) {
	svc, _ := newTestService(t, WithInvoicer(failingInvoicer{}))
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Horn", 25000, 3, 0, 1)

	resp, err := svc.CreateSale(ctx, cashSale(product.ID, 1))
	if err != nil {
		t.Fatalf("expected sale to succeed despite invoice failure: %v", err)
	}
	if resp.Invoice != nil {
		t.Fatalf("expected no invoice attached")
	}
	if _, err := svc.GetSale(ctx, resp.Sale.ID); err != nil {
		t.Fatalf("expected sale to be stored: %v", err)
	}
}

func TestInvoiceAttachedToSale(t *testing.T) {
	svc, _ := newTestService(t, WithInvoicer(stubInvoicer{}))
	product := mustCreateProduct(t, svc, "Horn", 25000, 3, 0, 1)

	resp, err := svc.CreateSale(context.Background(), cashSale(product.ID, 1))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if resp.Invoice == nil || resp.Invoice.SaleID != resp.Sale.ID {
		t.Fatalf("expected invoice for sale, got %+v", resp.Invoice)
	}
}

func TestDashboardSummarisesStockAndCredit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	low := mustCreateProduct(t, svc, "Low Part", 10000, 1, 0, 5)
	mustCreateProduct(t, svc, "Plenty Part", 10000, 50, 0, 5)

	if _, err := svc.CreateSale(ctx, creditSale(low.ID, 1, domain.CreditCustomer{Name: "Owes", Contact: "1"})); err != nil {
		t.Fatalf("credit sale: %v", err)
	}

	summary, err := svc.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if summary.TotalProducts != 2 || summary.LowStockCount != 1 || summary.LowStock[0].ID != low.ID {
		t.Fatalf("unexpected stock summary: %+v", summary)
	}
	if summary.TodaySalesCount != 1 || summary.TodaySalesCents != 10000 {
		t.Fatalf("unexpected sales summary: %+v", summary)
	}
	if summary.TotalOutstandingCents != 10000 || summary.CustomersOwing != 1 {
		t.Fatalf("unexpected credit summary: %+v", summary)
	}
}

func TestRestockSuggestionsUsesLatestPurchase(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Timing Belt", 50000, 1, 0, 4)
	vendor := mustCreateVendor(t, svc)

	if _, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{VendorID: vendor.ID, ProductID: product.ID, Qty: 1, UnitPriceCents: 30000}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	clock.Advance(time.Minute)

	report, err := svc.RestockSuggestions(ctx)
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if len(report.Suggestions) != 1 {
		t.Fatalf("expected one suggestion, got %+v", report.Suggestions)
	}
	got := report.Suggestions[0]
	if got.RecommendedQty != 6 || got.VendorID != vendor.ID || got.LastCostCents != 30000 {
		t.Fatalf("unexpected suggestion: %+v", got)
	}
}

func TestCustomerProfileEditKeepsDebt(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	product := mustCreateProduct(t, svc, "Mat", 2000, 10, 0, 1)

	sale, err := svc.CreateSale(ctx, creditSale(product.ID, 3, domain.CreditCustomer{Name: "Faisal", Contact: "0312"}))
	if err != nil {
		t.Fatalf("credit sale: %v", err)
	}
	name := "Faisal Mehmood"
	updated, err := svc.UpdateCustomer(ctx, sale.Customer.ID, domain.CustomerUpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("update customer: %v", err)
	}
	if updated.TotalDebtCents != 6000 || updated.Name != name {
		t.Fatalf("unexpected customer after edit: %+v", updated)
	}

	found, err := svc.ListCustomers(ctx, "mehmood")
	if err != nil || len(found) != 1 {
		t.Fatalf("expected search to find renamed customer, got %v %v", found, err)
	}
	empty := " "
	if _, err := svc.UpdateCustomer(ctx, sale.Customer.ID, domain.CustomerUpdateRequest{Contact: &empty}); !IsValidation(err) {
		t.Fatalf("expected empty contact to be rejected, got %v", err)
	}
}

// TestRandomOperationsKeepStockAndDebtConsistent drives a long random mix of
// sales, purchases, transfers and payments and checks that stock never goes
// negative and that stored debt always matches the ledger.
func TestRandomOperationsKeepStockAndDebtConsistent(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	products := []domain.ProductView{
		mustCreateProduct(t, svc, "Part A", 1000, 5, 5, 3),
		mustCreateProduct(t, svc, "Part B", 2500, 0, 8, 3),
		mustCreateProduct(t, svc, "Part C", 700, 3, 0, 3),
	}
	vendor := mustCreateVendor(t, svc)

	identities := []domain.CreditCustomer{
		{Name: "Ali", Contact: "1"},
		{Name: "Bilal", Contact: "2"},
		{Name: "Cyrus", Contact: "3"},
	}
	customerIDs := make(map[int]string)
	expectedDebt := make(map[string]int64)

	for step := 0; step < 400; step++ {
		clock.Advance(time.Duration(rng.Intn(5)) * time.Second)
		product := products[rng.Intn(len(products))]

		switch rng.Intn(5) {
		case 0:
			_, err := svc.CreateSale(ctx, cashSale(product.ID, 1+rng.Intn(6)))
			if err != nil && !errors.Is(err, store.ErrInsufficientStock) {
				t.Fatalf("step %d cash sale: %v", step, err)
			}
		case 1:
			who := rng.Intn(len(identities))
			choice := identities[who]
			if id, known := customerIDs[who]; known {
				choice = domain.CreditCustomer{CustomerID: id}
			}
			resp, err := svc.CreateSale(ctx, creditSale(product.ID, 1+rng.Intn(6), choice))
			if err != nil {
				if !errors.Is(err, store.ErrInsufficientStock) {
					t.Fatalf("step %d credit sale: %v", step, err)
				}
				continue
			}
			customerIDs[who] = resp.Customer.ID
			expectedDebt[resp.Customer.ID] += resp.Sale.TotalCents
			if resp.Customer.TotalDebtCents != expectedDebt[resp.Customer.ID] {
				t.Fatalf("step %d: stored debt %d, expected %d", step, resp.Customer.TotalDebtCents, expectedDebt[resp.Customer.ID])
			}
		case 2:
			loc := domain.LocationStore
			if rng.Intn(2) == 0 {
				loc = domain.LocationShelf
			}
			if _, err := svc.CreatePurchase(ctx, domain.PurchaseRequest{
				VendorID: vendor.ID, ProductID: product.ID, Qty: 1 + rng.Intn(4), UnitPriceCents: 500, Location: loc,
			}); err != nil {
				t.Fatalf("step %d purchase: %v", step, err)
			}
		case 3:
			before, _ := svc.GetProduct(ctx, product.ID)
			from, to := domain.LocationShelf, domain.LocationStore
			if rng.Intn(2) == 0 {
				from, to = to, from
			}
			after, err := svc.TransferStock(ctx, product.ID, domain.TransferRequest{From: from, To: to, Qty: 1 + rng.Intn(5)})
			if err != nil {
				if !errors.Is(err, store.ErrInsufficientStock) {
					t.Fatalf("step %d transfer: %v", step, err)
				}
				continue
			}
			if after.TotalStock != before.TotalStock {
				t.Fatalf("step %d: transfer changed total from %d to %d", step, before.TotalStock, after.TotalStock)
			}
		case 4:
			if len(customerIDs) == 0 {
				continue
			}
			id := customerIDs[rng.Intn(len(identities))]
			if id == "" {
				continue
			}
			amount := int64(1 + rng.Intn(4000))
			_, err := svc.RecordPayment(ctx, domain.PaymentRequest{CustomerID: id, AmountCents: amount})
			switch {
			case err == nil:
				expectedDebt[id] -= amount
			case errors.Is(err, store.ErrOverpayment):
				if amount <= expectedDebt[id] {
					t.Fatalf("step %d: payment %d rejected with debt %d", step, amount, expectedDebt[id])
				}
			default:
				t.Fatalf("step %d payment: %v", step, err)
			}
		}

		for _, p := range products {
			current, err := svc.GetProduct(ctx, p.ID)
			if err != nil {
				t.Fatalf("step %d get product: %v", step, err)
			}
			if current.ShelfStock < 0 || current.StoreStock < 0 {
				t.Fatalf("step %d: negative stock %+v", step, current)
			}
		}
	}

	for id, debt := range expectedDebt {
		customer, err := svc.GetCustomer(ctx, id)
		if err != nil {
			t.Fatalf("get customer: %v", err)
		}
		if customer.TotalDebtCents != debt || customer.TotalDebtCents < 0 {
			t.Fatalf("customer %s debt %d, expected %d", id, customer.TotalDebtCents, debt)
		}
		statement, err := svc.CustomerLedger(ctx, id)
		if err != nil {
			t.Fatalf("ledger: %v", err)
		}
		if !statement.Reconciled {
			t.Fatalf("customer %s ledger does not reconcile: %+v", id, statement)
		}
	}
	audit, err := svc.VerifyLedgers(ctx)
	if err != nil {
		t.Fatalf("verify ledgers: %v", err)
	}
	if len(audit.Mismatches) != 0 || audit.CheckedCustomers != len(expectedDebt) {
		t.Fatalf("unexpected audit: %+v", audit)
	}
}

func TestVendorLifecycle(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	vendor := mustCreateVendor(t, svc)

	if _, err := svc.CreateVendor(ctx, domain.VendorRequest{Name: "No Contact", Address: "Sadar"}); !IsValidation(err) {
		t.Fatalf("expected validation error for missing contact, got %v", err)
	}

	clock.Advance(time.Minute)
	updated, err := svc.UpdateVendor(ctx, vendor.ID, domain.VendorRequest{
		Name: "Karachi Auto Traders", Contact: "021-32729999", Address: "Plaza Quarters",
	})
	if err != nil {
		t.Fatalf("update vendor: %v", err)
	}
	if updated.Contact != "021-32729999" || !updated.UpdatedAt.After(vendor.UpdatedAt) {
		t.Fatalf("expected contact and timestamp to change, got %+v", updated)
	}

	if err := svc.DeleteVendor(ctx, vendor.ID); err != nil {
		t.Fatalf("delete vendor: %v", err)
	}
	if _, err := svc.GetVendor(ctx, vendor.ID); !errors.Is(err, store.ErrNotFound) || IsValidation(err) {
		t.Fatalf("expected plain not found after delete, got %v", err)
	}
	if err := svc.DeleteVendor(ctx, vendor.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
