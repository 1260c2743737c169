package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/logger"
)

// CustomerLedger derives a customer's statement from their credit sales and
// payments. It never writes.
func (s *Service) CustomerLedger(ctx context.Context, customerID string) (_ domain.CustomerStatement, err error) {
	ctx, span := startSpan(ctx, "service.CustomerLedger", attribute.String("customer.id", customerID))
	defer func() { endSpan(span, err) }()

	customerID = strings.TrimSpace(customerID)
	customer, err := s.repo.GetCustomer(ctx, customerID)
	if err != nil {
		return domain.CustomerStatement{}, lookup(ctx, "get customer", "customer", customerID, err)
	}
	sales, err := s.repo.ListSalesByCustomer(ctx, customerID)
	if err != nil {
		return domain.CustomerStatement{}, storageFailure(ctx, "list customer sales", err)
	}
	payments, err := s.repo.ListPaymentsByCustomer(ctx, customerID)
	if err != nil {
		return domain.CustomerStatement{}, storageFailure(ctx, "list customer payments", err)
	}

	statement := buildStatement(*customer, sales, payments)
	span.SetAttributes(attribute.Bool("ledger.reconciled", statement.Reconciled))
	return statement, nil
}

// VerifyLedgers recomputes every customer's balance and reports those that
// disagree with the stored debt.
func (s *Service) VerifyLedgers(ctx context.Context) (_ domain.LedgerAudit, err error) {
	ctx, span := startSpan(ctx, "service.VerifyLedgers")
	defer func() { endSpan(span, err) }()

	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return domain.LedgerAudit{}, storageFailure(ctx, "list customers", err)
	}
	sales, err := s.repo.ListSales(ctx, time.Time{}, time.Time{})
	if err != nil {
		return domain.LedgerAudit{}, storageFailure(ctx, "list sales", err)
	}
	payments, err := s.repo.ListPayments(ctx, time.Time{}, time.Time{})
	if err != nil {
		return domain.LedgerAudit{}, storageFailure(ctx, "list payments", err)
	}

	salesByCustomer := make(map[string][]domain.Sale, len(customers))
	for _, sale := range sales {
		if sale.CustomerID != "" {
			salesByCustomer[sale.CustomerID] = append(salesByCustomer[sale.CustomerID], sale)
		}
	}
	paymentsByCustomer := make(map[string][]domain.Payment, len(customers))
	for _, payment := range payments {
		paymentsByCustomer[payment.CustomerID] = append(paymentsByCustomer[payment.CustomerID], payment)
	}

	audit := domain.LedgerAudit{
		CheckedCustomers: len(customers),
		Mismatches:       []domain.LedgerMismatch{},
		CheckedAt:        s.timestamp(),
	}
	for _, customer := range customers {
		statement := buildStatement(customer, salesByCustomer[customer.ID], paymentsByCustomer[customer.ID])
		if statement.Reconciled {
			continue
		}
		audit.Mismatches = append(audit.Mismatches, domain.LedgerMismatch{
			CustomerID:           customer.ID,
			CustomerName:         customer.Name,
			ComputedBalanceCents: statement.ComputedBalanceCents,
			StoredBalanceCents:   statement.StoredBalanceCents,
		})
	}

	if len(audit.Mismatches) > 0 {
		logger.Warn(ctx).Int("mismatches", len(audit.Mismatches)).Msg("ledger verification found balance mismatches")
	}
	span.SetAttributes(attribute.Int("ledger.mismatches", len(audit.Mismatches)))
	return audit, nil
}

func buildStatement(customer domain.Customer, sales []domain.Sale, payments []domain.Payment) domain.CustomerStatement {
	entries := make([]domain.LedgerEntry, 0, len(sales)+len(payments))
	for _, sale := range sales {
		if sale.PaymentType != domain.PaymentCredit || sale.CustomerID != customer.ID {
			continue
		}
		entries = append(entries, domain.LedgerEntry{
			At:          sale.CreatedAt,
			Kind:        domain.LedgerDebit,
			Reference:   sale.ID,
			Description: describeSale(sale),
			DebitCents:  sale.TotalCents,
		})
	}
	for _, payment := range payments {
		if payment.CustomerID != customer.ID {
			continue
		}
		description := "Payment received"
		if payment.SaleID != "" {
			description = "Payment against " + payment.SaleID
		}
		if payment.Note != "" {
			description += " (" + payment.Note + ")"
		}
		entries = append(entries, domain.LedgerEntry{
			At:          payment.CreatedAt,
			Kind:        domain.LedgerCredit,
			Reference:   payment.ID,
			Description: description,
			CreditCents: payment.AmountCents,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		left, right := entries[i], entries[j]
		if !left.At.Equal(right.At) {
			return left.At.Before(right.At)
		}
		if left.Kind != right.Kind {
			return left.Kind == domain.LedgerDebit
		}
		return left.Reference < right.Reference
	})

	statement := domain.CustomerStatement{
		Customer:           customer,
		Entries:            entries,
		StoredBalanceCents: customer.TotalDebtCents,
	}
	balance := int64(0)
	for i := range entries {
		balance += entries[i].DebitCents - entries[i].CreditCents
		entries[i].BalanceCents = balance
		statement.TotalDebitCents += entries[i].DebitCents
		statement.TotalCreditCents += entries[i].CreditCents
	}
	statement.ComputedBalanceCents = balance
	statement.Reconciled = balance == customer.TotalDebtCents
	return statement
}

func describeSale(sale domain.Sale) string {
	units := 0
	for _, item := range sale.Items {
		units += item.Qty
	}
	if len(sale.Items) == 1 {
		return fmt.Sprintf("Credit sale: %s x%d", sale.Items[0].Name, sale.Items[0].Qty)
	}
	return fmt.Sprintf("Credit sale: %d lines, %d units", len(sale.Items), units)
}
