package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"tajautos/backend/internal/domain"
	"tajautos/backend/internal/logger"
	"tajautos/backend/internal/store"
	"tajautos/backend/internal/xid"
)

// ListProducts filters by a case-insensitive match on name, model or id and
// optionally keeps only low-stock products.
func (s *Service) ListProducts(ctx context.Context, query string, lowStockOnly bool) ([]domain.ProductView, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, storageFailure(ctx, "list products", err)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	views := make([]domain.ProductView, 0, len(products))
	for _, product := range products {
		if lowStockOnly && !product.LowStock() {
			continue
		}
		if !matchesQuery(query, product.Name, product.Model, product.ID) {
			continue
		}
		views = append(views, domain.NewProductView(product))
	}
	return views, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.ProductView, error) {
	id = strings.TrimSpace(id)
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.ProductView{}, lookup(ctx, "get product", "product", id, err)
	}
	return domain.NewProductView(*product), nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (_ domain.ProductView, err error) {
	ctx, span := startSpan(ctx, "service.CreateProduct")
	defer func() { endSpan(span, err) }()

	req.Name = strings.TrimSpace(req.Name)
	req.Model = strings.TrimSpace(req.Model)

	minStock := domain.DefaultMinStockLevel
	if req.MinStockLevel != nil {
		minStock = *req.MinStockLevel
	}
	switch {
	case req.Name == "":
		return domain.ProductView{}, invalid("name", "name is required")
	case req.SellingPriceCents < 1:
		return domain.ProductView{}, invalid("selling_price_cents", "selling price must be greater than 0")
	case req.SellingPriceCents > domain.MaxPriceCents:
		return domain.ProductView{}, invalid("selling_price_cents", "selling price is too large")
	case req.PurchasePriceCents < 0:
		return domain.ProductView{}, invalid("purchase_price_cents", "purchase price cannot be negative")
	case req.PurchasePriceCents > domain.MaxPriceCents:
		return domain.ProductView{}, invalid("purchase_price_cents", "purchase price is too large")
	case req.ShelfStock < 0:
		return domain.ProductView{}, invalid("shelf_stock", "shelf stock cannot be negative")
	case req.StoreStock < 0:
		return domain.ProductView{}, invalid("store_stock", "store stock cannot be negative")
	case minStock < 0:
		return domain.ProductView{}, invalid("min_stock_level", "minimum stock level cannot be negative")
	}

	now := s.timestamp()
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:                 xid.New(xid.PrefixProduct),
		Name:               req.Name,
		Model:              req.Model,
		PurchasePriceCents: req.PurchasePriceCents,
		SellingPriceCents:  req.SellingPriceCents,
		ShelfStock:         req.ShelfStock,
		StoreStock:         req.StoreStock,
		MinStockLevel:      minStock,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		return domain.ProductView{}, classify(ctx, "create product", err)
	}

	span.SetAttributes(attribute.String("product.id", created.ID))
	logger.Info(ctx).
		Str("product_id", created.ID).
		Str("name", created.Name).
		Int("shelf_stock", created.ShelfStock).
		Int("store_stock", created.StoreStock).
		Str("actor", actorName(ctx)).
		Msg("product created")
	return domain.NewProductView(*created), nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (_ domain.ProductView, err error) {
	ctx, span := startSpan(ctx, "service.UpdateProduct", attribute.String("product.id", id))
	defer func() { endSpan(span, err) }()

	id = strings.TrimSpace(id)
	patch := req
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.ProductView{}, invalid("name", "name is required")
		}
		patch.Name = &name
	}
	if req.Model != nil {
		model := strings.TrimSpace(*req.Model)
		patch.Model = &model
	}
	switch {
	case req.PurchasePriceCents != nil && *req.PurchasePriceCents < 0:
		return domain.ProductView{}, invalid("purchase_price_cents", "purchase price cannot be negative")
	case req.PurchasePriceCents != nil && *req.PurchasePriceCents > domain.MaxPriceCents:
		return domain.ProductView{}, invalid("purchase_price_cents", "purchase price is too large")
	case req.SellingPriceCents != nil && *req.SellingPriceCents < 1:
		return domain.ProductView{}, invalid("selling_price_cents", "selling price must be greater than 0")
	case req.SellingPriceCents != nil && *req.SellingPriceCents > domain.MaxPriceCents:
		return domain.ProductView{}, invalid("selling_price_cents", "selling price is too large")
	case req.ShelfStock != nil && *req.ShelfStock < 0:
		return domain.ProductView{}, invalid("shelf_stock", "shelf stock cannot be negative")
	case req.StoreStock != nil && *req.StoreStock < 0:
		return domain.ProductView{}, invalid("store_stock", "store stock cannot be negative")
	case req.MinStockLevel != nil && *req.MinStockLevel < 0:
		return domain.ProductView{}, invalid("min_stock_level", "minimum stock level cannot be negative")
	}

	before, saved, err := s.repo.UpdateProduct(ctx, id, patch, s.timestamp())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ProductView{}, lookup(ctx, "update product", "product", id, err)
		}
		return domain.ProductView{}, classify(ctx, "update product", err)
	}

	event := logger.Info(ctx).Str("product_id", saved.ID).Str("actor", actorName(ctx))
	if saved.ShelfStock != before.ShelfStock || saved.StoreStock != before.StoreStock {
		event = event.
			Int("shelf_stock_before", before.ShelfStock).
			Int("shelf_stock", saved.ShelfStock).
			Int("store_stock_before", before.StoreStock).
			Int("store_stock", saved.StoreStock)
	}
	event.Msg("product updated")
	return domain.NewProductView(*saved), nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "service.DeleteProduct", attribute.String("product.id", id))
	defer func() { endSpan(span, err) }()

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return lookup(ctx, "delete product", "product", id, err)
	}
	logger.Info(ctx).Str("product_id", id).Str("actor", actorName(ctx)).Msg("product deleted")
	return nil
}

func (s *Service) ListVendors(ctx context.Context) ([]domain.Vendor, error) {
	vendors, err := s.repo.ListVendors(ctx)
	if err != nil {
		return nil, storageFailure(ctx, "list vendors", err)
	}
	return vendors, nil
}

func (s *Service) GetVendor(ctx context.Context, id string) (domain.Vendor, error) {
	id = strings.TrimSpace(id)
	vendor, err := s.repo.GetVendor(ctx, id)
	if err != nil {
		return domain.Vendor{}, lookup(ctx, "get vendor", "vendor", id, err)
	}
	return *vendor, nil
}

func normalizeVendor(req domain.VendorRequest) (domain.VendorRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Contact = strings.TrimSpace(req.Contact)
	req.Address = strings.TrimSpace(req.Address)
	switch {
	case req.Name == "":
		return req, invalid("name", "name is required")
	case req.Contact == "":
		return req, invalid("contact", "contact is required")
	case req.Address == "":
		return req, invalid("address", "address is required")
	}
	return req, nil
}

func (s *Service) CreateVendor(ctx context.Context, req domain.VendorRequest) (_ domain.Vendor, err error) {
	ctx, span := startSpan(ctx, "service.CreateVendor")
	defer func() { endSpan(span, err) }()

	req, err = normalizeVendor(req)
	if err != nil {
		return domain.Vendor{}, err
	}

	now := s.timestamp()
	created, err := s.repo.CreateVendor(ctx, domain.Vendor{
		ID:        xid.New(xid.PrefixVendor),
		Name:      req.Name,
		Contact:   req.Contact,
		Address:   req.Address,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Vendor{}, classify(ctx, "create vendor", err)
	}

	logger.Info(ctx).Str("vendor_id", created.ID).Str("name", created.Name).Str("actor", actorName(ctx)).Msg("vendor created")
	return *created, nil
}

func (s *Service) UpdateVendor(ctx context.Context, id string, req domain.VendorRequest) (_ domain.Vendor, err error) {
	ctx, span := startSpan(ctx, "service.UpdateVendor", attribute.String("vendor.id", id))
	defer func() { endSpan(span, err) }()

	id = strings.TrimSpace(id)
	req, err = normalizeVendor(req)
	if err != nil {
		return domain.Vendor{}, err
	}
	existing, err := s.repo.GetVendor(ctx, id)
	if err != nil {
		return domain.Vendor{}, lookup(ctx, "get vendor", "vendor", id, err)
	}

	existing.Name = req.Name
	existing.Contact = req.Contact
	existing.Address = req.Address
	existing.UpdatedAt = s.timestamp()

	saved, err := s.repo.UpdateVendor(ctx, *existing)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Vendor{}, lookup(ctx, "update vendor", "vendor", id, err)
		}
		return domain.Vendor{}, classify(ctx, "update vendor", err)
	}
	logger.Info(ctx).Str("vendor_id", saved.ID).Str("actor", actorName(ctx)).Msg("vendor updated")
	return *saved, nil
}

func (s *Service) DeleteVendor(ctx context.Context, id string) (err error) {
	ctx, span := startSpan(ctx, "service.DeleteVendor", attribute.String("vendor.id", id))
	defer func() { endSpan(span, err) }()

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteVendor(ctx, id); err != nil {
		return lookup(ctx, "delete vendor", "vendor", id, err)
	}
	logger.Info(ctx).Str("vendor_id", id).Str("actor", actorName(ctx)).Msg("vendor deleted")
	return nil
}

// ListCustomers filters by a case-insensitive match on name or contact.
func (s *Service) ListCustomers(ctx context.Context, query string) ([]domain.Customer, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, storageFailure(ctx, "list customers", err)
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return customers, nil
	}
	matched := make([]domain.Customer, 0, len(customers))
	for _, customer := range customers {
		if matchesQuery(query, customer.Name, customer.Contact) {
			matched = append(matched, customer)
		}
	}
	return matched, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, lookup(ctx, "get customer", "customer", id, err)
	}
	return *customer, nil
}

// UpdateCustomer edits the profile fields only; the debt balance is owned by
// sales and payments.
func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (_ domain.Customer, err error) {
	ctx, span := startSpan(ctx, "service.UpdateCustomer", attribute.String("customer.id", id))
	defer func() { endSpan(span, err) }()

	id = strings.TrimSpace(id)
	existing, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, lookup(ctx, "get customer", "customer", id, err)
	}

	updated := *existing
	if req.Name != nil {
		updated.Name = strings.TrimSpace(*req.Name)
		if updated.Name == "" {
			return domain.Customer{}, invalid("name", "name is required")
		}
	}
	if req.Contact != nil {
		updated.Contact = strings.TrimSpace(*req.Contact)
		if updated.Contact == "" {
			return domain.Customer{}, invalid("contact", "contact is required")
		}
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	updated.UpdatedAt = s.timestamp()

	saved, err := s.repo.UpdateCustomerProfile(ctx, updated)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Customer{}, lookup(ctx, "update customer", "customer", id, err)
		}
		return domain.Customer{}, classify(ctx, "update customer", err)
	}
	logger.Info(ctx).Str("customer_id", saved.ID).Str("actor", actorName(ctx)).Msg("customer profile updated")
	return *saved, nil
}
