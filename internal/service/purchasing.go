package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/logger"
	"tajautos/backend/internal/xid"
)

func (s *Service) CreatePurchase(ctx context.Context, req domain.PurchaseRequest) (_ domain.PurchaseResponse, err error) {
	ctx, span := startSpan(ctx, "service.CreatePurchase",
		attribute.String("product.id", req.ProductID),
		attribute.String("vendor.id", req.VendorID),
	)
	defer func() { endSpan(span, err) }()

	req.VendorID = strings.TrimSpace(req.VendorID)
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.Location == "" {
		req.Location = domain.LocationStore
	}
	switch {
	case req.VendorID == "":
		return domain.PurchaseResponse{}, invalid("vendor_id", "vendor is required")
	case req.ProductID == "":
		return domain.PurchaseResponse{}, invalid("product_id", "product is required")
	case req.Qty < 1:
		return domain.PurchaseResponse{}, invalid("qty", "quantity must be greater than 0")
	case req.UnitPriceCents < 1:
		return domain.PurchaseResponse{}, invalid("unit_price_cents", "unit price must be greater than 0")
	case req.UnitPriceCents > domain.MaxPriceCents:
		return domain.PurchaseResponse{}, invalid("unit_price_cents", "unit price is too large")
	case !req.Location.Valid():
		return domain.PurchaseResponse{}, invalid("location", "location must be shelf or store")
	}

	purchase, product, err := s.repo.CreatePurchase(ctx, domain.Purchase{
		ID:             xid.New(xid.PrefixPurchase),
		VendorID:       req.VendorID,
		ProductID:      req.ProductID,
		Qty:            req.Qty,
		UnitPriceCents: req.UnitPriceCents,
		Location:       req.Location,
		CreatedAt:      s.timestamp(),
	})
	if err != nil {
		return domain.PurchaseResponse{}, classify(ctx, "create purchase", err)
	}

	logger.Info(ctx).
		Str("purchase_id", purchase.ID).
		Str("vendor_id", purchase.VendorID).
		Str("product_id", purchase.ProductID).
		Int("qty", purchase.Qty).
		Str("location", string(purchase.Location)).
		Int64("total_cents", purchase.TotalCents).
		Str("actor", actorName(ctx)).
		Msg("purchase committed")
	return domain.PurchaseResponse{Purchase: *purchase, Product: *product}, nil
}

func (s *Service) ListPurchases(ctx context.Context, from time.Time, to time.Time) ([]domain.Purchase, error) {
	purchases, err := s.repo.ListPurchases(ctx, from, to)
	if err != nil {
		return nil, storageFailure(ctx, "list purchases", err)
	}
	return purchases, nil
}

// TransferStock moves units between the shelf and store counters of one
// product. The product total never changes.
func (s *Service) TransferStock(ctx context.Context, productID string, req domain.TransferRequest) (_ domain.ProductView, err error) {
	ctx, span := startSpan(ctx, "service.TransferStock",
		attribute.String("product.id", productID),
		attribute.Int("transfer.qty", req.Qty),
	)
	defer func() { endSpan(span, err) }()

	productID = strings.TrimSpace(productID)
	switch {
	case productID == "":
		return domain.ProductView{}, invalid("product_id", "product is required")
	case !req.From.Valid():
		return domain.ProductView{}, invalid("from", "from must be shelf or store")
	case !req.To.Valid():
		return domain.ProductView{}, invalid("to", "to must be shelf or store")
	case req.From == req.To:
		return domain.ProductView{}, invalid("to", "from and to must differ")
	case req.Qty < 1:
		return domain.ProductView{}, invalid("qty", "quantity must be greater than 0")
	}

	product, err := s.repo.TransferStock(ctx, productID, req.From, req.To, req.Qty, s.timestamp())
	if err != nil {
		return domain.ProductView{}, classify(ctx, "transfer stock", err)
	}

	logger.Info(ctx).
		Str("product_id", product.ID).
		Str("from", string(req.From)).
		Str("to", string(req.To)).
		Int("qty", req.Qty).
		Int("shelf_stock", product.ShelfStock).
		Int("store_stock", product.StoreStock).
		Str("actor", actorName(ctx)).
		Msg("stock transferred")
	return domain.NewProductView(*product), nil
}
