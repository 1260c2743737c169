package restock

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"tajautos/backend/internal/cache"
	"tajautos/backend/internal/domain"
)

const keyPrefix = "tajautos:restock:"

type Advisor struct {
	cache    cache.RestockCache
	cacheTTL time.Duration
}

func NewAdvisor(cacheStore cache.RestockCache, cacheTTL time.Duration) *Advisor {
	if cacheStore == nil {
		cacheStore = cache.NoopRestockCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Advisor{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Advise builds reorder and shelf refill hints for the given stock snapshot.
// purchases may be in any order; the most recent one per product supplies
// the vendor and unit cost.
func (a *Advisor) Advise(ctx context.Context, products []domain.Product, purchases []domain.Purchase, now time.Time) domain.RestockReport {
	latest := latestPurchases(purchases)
	signature := snapshotSignature(products, latest)
	cacheKey := keyPrefix + signature

	if cached, ok, err := a.cache.Get(ctx, cacheKey); err == nil && ok {
		cached.ServedFromCache = true
		return *cached
	}

	report := domain.RestockReport{
		Suggestions:       make([]domain.RestockSuggestion, 0, 16),
		ShelfRefills:      make([]domain.ShelfRefill, 0, 16),
		GeneratedAt:       now.UTC(),
		SnapshotSignature: signature,
	}

	for _, product := range products {
		if product.ShelfStock == 0 && product.StoreStock > 0 {
			report.ShelfRefills = append(report.ShelfRefills, domain.ShelfRefill{
				ProductID:  product.ID,
				Name:       product.Name,
				StoreStock: product.StoreStock,
				RefillQty:  min(product.StoreStock, max(product.MinStockLevel, 1)),
			})
		}

		if !product.LowStock() {
			continue
		}
		recommendedQty := product.MinStockLevel*2 - product.TotalStock()
		if recommendedQty < 1 {
			continue
		}

		suggestion := domain.RestockSuggestion{
			ProductID:      product.ID,
			Name:           product.Name,
			Model:          product.Model,
			ShelfStock:     product.ShelfStock,
			StoreStock:     product.StoreStock,
			MinStockLevel:  product.MinStockLevel,
			RecommendedQty: recommendedQty,
			LastCostCents:  product.PurchasePriceCents,
		}
		if last, ok := latest[product.ID]; ok {
			suggestion.VendorID = last.VendorID
			suggestion.VendorName = last.VendorName
			suggestion.LastCostCents = last.UnitPriceCents
		}
		suggestion.EstimatedPurchaseCents = int64(recommendedQty) * suggestion.LastCostCents
		report.EstimatedTotal += suggestion.EstimatedPurchaseCents
		report.Suggestions = append(report.Suggestions, suggestion)
	}

	sort.Slice(report.Suggestions, func(i, j int) bool {
		left, right := report.Suggestions[i], report.Suggestions[j]
		leftTotal, rightTotal := left.ShelfStock+left.StoreStock, right.ShelfStock+right.StoreStock
		if leftTotal != rightTotal {
			return leftTotal < rightTotal
		}
		if left.EstimatedPurchaseCents != right.EstimatedPurchaseCents {
			return left.EstimatedPurchaseCents > right.EstimatedPurchaseCents
		}
		return left.ProductID < right.ProductID
	})
	sort.Slice(report.ShelfRefills, func(i, j int) bool {
		return report.ShelfRefills[i].ProductID < report.ShelfRefills[j].ProductID
	})

	_ = a.cache.Set(ctx, cacheKey, &report, a.cacheTTL)
	return report
}

func latestPurchases(purchases []domain.Purchase) map[string]domain.Purchase {
	latest := make(map[string]domain.Purchase, len(purchases))
	for _, purchase := range purchases {
		current, exists := latest[purchase.ProductID]
		if !exists || purchase.CreatedAt.After(current.CreatedAt) ||
			(purchase.CreatedAt.Equal(current.CreatedAt) && purchase.ID > current.ID) {
			latest[purchase.ProductID] = purchase
		}
	}
	return latest
}

func snapshotSignature(products []domain.Product, latest map[string]domain.Purchase) string {
	parts := make([]string, 0, len(products))
	for _, product := range products {
		part := fmt.Sprintf("%s:%q:%q:%d:%d:%d:%d", product.ID, product.Name, product.Model,
			product.ShelfStock, product.StoreStock, product.MinStockLevel, product.PurchasePriceCents)
		if last, ok := latest[product.ID]; ok {
			part += ":" + last.ID
		}
		parts = append(parts, part)
	}
	sort.Strings(parts)

	hash := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(hash[:])
}
