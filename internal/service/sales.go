package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/logger"
	"tajautos/backend/internal/store"
	"tajautos/backend/internal/xid"
)

// CreateSale validates the request, commits it through the repository and
// attaches a rendered invoice to the response.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (_ domain.SaleResponse, err error) {
	ctx, span := startSpan(ctx, "service.CreateSale", attribute.String("sale.payment_type", string(req.PaymentType)))
	defer func() { endSpan(span, err) }()

	items, err := mergeSaleLines(req.Items)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	if !req.PaymentType.Valid() {
		return domain.SaleResponse{}, invalid("payment_type", "payment type must be cash or credit")
	}

	sale := domain.Sale{
		ID:          xid.New(xid.PrefixSale),
		Items:       items,
		PaymentType: req.PaymentType,
		CreatedAt:   s.timestamp(),
	}

	var newCustomer *domain.Customer
	if req.PaymentType == domain.PaymentCash {
		if req.Customer != nil {
			return domain.SaleResponse{}, invalid("customer", "cash sales do not take a customer")
		}
	} else {
		newCustomer, err = s.resolveCreditCustomer(ctx, req.Customer, &sale, sale.CreatedAt)
		if err != nil {
			return domain.SaleResponse{}, err
		}
	}

	committed, customer, err := s.repo.CreateSale(ctx, sale, newCustomer)
	if err != nil {
		return domain.SaleResponse{}, classify(ctx, "create sale", err)
	}

	span.SetAttributes(
		attribute.String("sale.id", committed.ID),
		attribute.Int64("sale.total_cents", committed.TotalCents),
	)
	event := logger.Info(ctx).
		Str("sale_id", committed.ID).
		Str("payment_type", string(committed.PaymentType)).
		Int64("total_cents", committed.TotalCents).
		Int("lines", len(committed.Items)).
		Str("actor", actorName(ctx))
	if customer != nil {
		event = event.
			Str("customer_id", customer.ID).
			Int64("customer_debt_cents", customer.TotalDebtCents).
			Bool("customer_created", newCustomer != nil)
	}
	event.Msg("sale committed")

	resp := domain.SaleResponse{
		Sale:            *committed,
		Customer:        customer,
		CustomerCreated: newCustomer != nil,
	}
	if s.invoicer != nil {
		invoice, renderErr := s.invoicer.Render(*committed)
		if renderErr != nil {
			logger.Warn(ctx).Err(renderErr).Str("sale_id", committed.ID).Msg("invoice rendering failed")
		} else {
			resp.Invoice = &invoice
		}
	}
	return resp, nil
}

// resolveCreditCustomer validates the customer arm of a credit sale. For the
// existing arm it sets sale.CustomerID; for the new arm it returns the record
// to insert alongside the sale.
func (s *Service) resolveCreditCustomer(ctx context.Context, choice *domain.CreditCustomer, sale *domain.Sale, now time.Time) (*domain.Customer, error) {
	if choice == nil {
		return nil, invalid("customer", "credit sales require a customer")
	}

	if choice.IsExisting() {
		if strings.TrimSpace(choice.Name) != "" || strings.TrimSpace(choice.Contact) != "" || strings.TrimSpace(choice.Address) != "" {
			return nil, invalid("customer", "give either customer_id or new customer details, not both")
		}
		id := strings.TrimSpace(choice.CustomerID)
		if _, err := s.repo.GetCustomer(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, invalidWrap("customer.customer_id", fmt.Sprintf("customer %s not found", id), store.ErrNotFound)
			}
			return nil, storageFailure(ctx, "get customer", err)
		}
		sale.CustomerID = id
		return nil, nil
	}

	name := strings.TrimSpace(choice.Name)
	contact := strings.TrimSpace(choice.Contact)
	if name == "" {
		return nil, invalid("customer.name", "customer name is required for credit sales")
	}
	if contact == "" {
		return nil, invalid("customer.contact", "customer contact is required for credit sales")
	}

	existing, err := s.repo.FindCustomerByIdentity(ctx, name, contact)
	switch {
	case err == nil:
		return nil, invalidWrap("customer",
			fmt.Sprintf("customer %s already exists with this name and contact; use customer_id", existing.ID),
			store.ErrDuplicateCustomer)
	case !errors.Is(err, store.ErrNotFound):
		return nil, storageFailure(ctx, "find customer", err)
	}

	return &domain.Customer{
		ID:        xid.New(xid.PrefixCustomer),
		Name:      name,
		Contact:   contact,
		Address:   strings.TrimSpace(choice.Address),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// mergeSaleLines validates the requested lines and folds repeated products
// into one line, keeping first-seen order.
func mergeSaleLines(lines []domain.SaleLineRequest) ([]domain.SaleItem, error) {
	if len(lines) == 0 {
		return nil, invalid("items", "at least one item is required")
	}

	index := make(map[string]int, len(lines))
	items := make([]domain.SaleItem, 0, len(lines))
	for i, line := range lines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return nil, invalid(fmt.Sprintf("items[%d].product_id", i), "product is required")
		}
		if line.Qty < 1 {
			return nil, invalid(fmt.Sprintf("items[%d].qty", i), "quantity must be greater than 0")
		}
		if pos, seen := index[productID]; seen {
			items[pos].Qty += line.Qty
			continue
		}
		index[productID] = len(items)
		items = append(items, domain.SaleItem{ProductID: productID, Qty: line.Qty})
	}
	return items, nil
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	sales, err := s.repo.ListSales(ctx, from, to)
	if err != nil {
		return nil, storageFailure(ctx, "list sales", err)
	}
	return sales, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	id = strings.TrimSpace(id)
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, lookup(ctx, "get sale", "sale", id, err)
	}
	return *sale, nil
}

// SaleReceipt re-renders the receipt of a stored sale.
func (s *Service) SaleReceipt(ctx context.Context, id string) (domain.Invoice, error) {
	sale, err := s.GetSale(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	if s.invoicer == nil {
		return domain.Invoice{}, &StorageError{Op: "render receipt", Err: errors.New("no invoice renderer configured")}
	}
	invoice, err := s.invoicer.Render(sale)
	if err != nil {
		logger.Error(ctx).Err(err).Str("sale_id", sale.ID).Msg("invoice rendering failed")
		return domain.Invoice{}, &StorageError{Op: "render receipt", Err: err}
	}
	return invoice, nil
}
