package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/logger"
)

const dateLayout = "2006-01-02"

// Report aggregates sales, purchases and payments between two shop-local
// dates, both days included. Empty dates mean today.
func (s *Service) Report(ctx context.Context, start string, end string) (_ domain.Report, err error) {
	ctx, span := startSpan(ctx, "service.Report",
		attribute.String("report.start", start),
		attribute.String("report.end", end),
	)
	defer func() { endSpan(span, err) }()

	from, to, err := s.reportWindow(start, end)
	if err != nil {
		return domain.Report{}, err
	}

	sales, err := s.repo.ListSales(ctx, from.UTC(), to.UTC())
	if err != nil {
		return domain.Report{}, storageFailure(ctx, "list sales", err)
	}
	purchases, err := s.repo.ListPurchases(ctx, from.UTC(), to.UTC())
	if err != nil {
		return domain.Report{}, storageFailure(ctx, "list purchases", err)
	}
	payments, err := s.repo.ListPayments(ctx, from.UTC(), to.UTC())
	if err != nil {
		return domain.Report{}, storageFailure(ctx, "list payments", err)
	}

	report := domain.Report{
		StartDate:   from.Format(dateLayout),
		EndDate:     to.Format(dateLayout),
		From:        from,
		To:          to,
		SalesCount:  len(sales),
		ProfitBasis: domain.ProfitBasisRevenueMinusPurchases,
		Sales:       sales,
		Purchases:   purchases,
		Payments:    payments,
	}
	for _, sale := range sales {
		report.RevenueCents += sale.TotalCents
		if sale.PaymentType == domain.PaymentCredit {
			report.CreditRevenueCents += sale.TotalCents
		} else {
			report.CashRevenueCents += sale.TotalCents
		}
	}
	report.PurchaseCount = len(purchases)
	for _, purchase := range purchases {
		report.PurchaseCostCents += purchase.TotalCents
	}
	report.PaymentCount = len(payments)
	for _, payment := range payments {
		report.CollectionsCents += payment.AmountCents
	}
	report.ProfitCents = report.RevenueCents - report.PurchaseCostCents

	logger.Debug(ctx).
		Str("start", report.StartDate).
		Str("end", report.EndDate).
		Int("sales", report.SalesCount).
		Int64("revenue_cents", report.RevenueCents).
		Msg("report generated")
	return report, nil
}

func (s *Service) reportWindow(start string, end string) (time.Time, time.Time, error) {
	today := s.now().In(s.loc).Format(dateLayout)
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	if start == "" {
		start = today
	}
	if end == "" {
		end = today
	}

	startDay, err := time.ParseInLocation(dateLayout, start, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("start", "start must be a YYYY-MM-DD date")
	}
	endDay, err := time.ParseInLocation(dateLayout, end, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, invalid("end", "end must be a YYYY-MM-DD date")
	}
	if endDay.Before(startDay) {
		return time.Time{}, time.Time{}, invalid("end", "end date is before start date")
	}
	return startDay, endDay.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}

// Dashboard summarises stock health, today's takings and outstanding credit.
func (s *Service) Dashboard(ctx context.Context) (_ domain.DashboardSummary, err error) {
	ctx, span := startSpan(ctx, "service.Dashboard")
	defer func() { endSpan(span, err) }()

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.DashboardSummary{}, storageFailure(ctx, "list products", err)
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return domain.DashboardSummary{}, storageFailure(ctx, "list customers", err)
	}

	now := s.now()
	local := now.In(s.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	dayEnd := dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond)
	sales, err := s.repo.ListSales(ctx, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return domain.DashboardSummary{}, storageFailure(ctx, "list sales", err)
	}

	summary := domain.DashboardSummary{
		TotalProducts:   len(products),
		LowStock:        []domain.ProductView{},
		TodaySalesCount: len(sales),
		GeneratedAt:     now.UTC().Truncate(time.Microsecond),
	}

	low := make([]domain.Product, 0, 8)
	for _, product := range products {
		if product.LowStock() {
			low = append(low, product)
		}
	}
	sort.SliceStable(low, func(i, j int) bool {
		return low[i].TotalStock() < low[j].TotalStock()
	})
	summary.LowStockCount = len(low)
	for i := 0; i < len(low) && i < 5; i++ {
		summary.LowStock = append(summary.LowStock, domain.NewProductView(low[i]))
	}

	for _, sale := range sales {
		summary.TodaySalesCents += sale.TotalCents
	}
	for _, customer := range customers {
		if customer.TotalDebtCents > 0 {
			summary.TotalOutstandingCents += customer.TotalDebtCents
			summary.CustomersOwing++
		}
	}
	return summary, nil
}

// RestockSuggestions proposes purchase quantities for low-stock products and
// shelf refills from store stock.
func (s *Service) RestockSuggestions(ctx context.Context) (_ domain.RestockReport, err error) {
	ctx, span := startSpan(ctx, "service.RestockSuggestions")
	defer func() { endSpan(span, err) }()

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.RestockReport{}, storageFailure(ctx, "list products", err)
	}
	purchases, err := s.repo.ListPurchases(ctx, time.Time{}, time.Time{})
	if err != nil {
		return domain.RestockReport{}, storageFailure(ctx, "list purchases", err)
	}

	report := s.advisor.Advise(ctx, products, purchases, s.timestamp())
	span.SetAttributes(
		attribute.Int("restock.suggestions", len(report.Suggestions)),
		attribute.Bool("restock.cached", report.ServedFromCache),
	)
	return report, nil
}
