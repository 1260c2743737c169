package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/logger"
	"tajautos/backend/internal/store"
	"tajautos/backend/internal/xid"
)

// RecordPayment settles part or all of a customer's debt. The amount is
// checked against the balance inside the commit.
func (s *Service) RecordPayment(ctx context.Context, req domain.PaymentRequest) (_ domain.PaymentResponse, err error) {
	ctx, span := startSpan(ctx, "service.RecordPayment",
		attribute.String("customer.id", req.CustomerID),
		attribute.Int64("payment.amount_cents", req.AmountCents),
	)
	defer func() { endSpan(span, err) }()

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.SaleID = strings.TrimSpace(req.SaleID)
	req.Note = strings.TrimSpace(req.Note)
	switch {
	case req.CustomerID == "":
		return domain.PaymentResponse{}, invalid("customer_id", "customer is required")
	case req.AmountCents < 1:
		return domain.PaymentResponse{}, invalid("amount_cents", "amount must be greater than 0")
	}

	payment, customer, err := s.repo.CreatePayment(ctx, domain.Payment{
		ID:          xid.New(xid.PrefixPayment),
		CustomerID:  req.CustomerID,
		AmountCents: req.AmountCents,
		SaleID:      req.SaleID,
		Note:        req.Note,
		CreatedAt:   s.timestamp(),
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransaction) && req.SaleID != "" {
			return domain.PaymentResponse{}, invalidWrap("sale_id", "sale is not a credit sale of this customer", store.ErrInvalidTransaction)
		}
		return domain.PaymentResponse{}, classify(ctx, "record payment", err)
	}

	logger.Info(ctx).
		Str("payment_id", payment.ID).
		Str("customer_id", customer.ID).
		Int64("amount_cents", payment.AmountCents).
		Int64("customer_debt_cents", customer.TotalDebtCents).
		Str("actor", actorName(ctx)).
		Msg("payment recorded")
	return domain.PaymentResponse{Payment: *payment, Customer: *customer}, nil
}

func (s *Service) ListPayments(ctx context.Context, from time.Time, to time.Time) ([]domain.Payment, error) {
	payments, err := s.repo.ListPayments(ctx, from, to)
	if err != nil {
		return nil, storageFailure(ctx, "list payments", err)
	}
	return payments, nil
}
