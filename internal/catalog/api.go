package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/BTreeMap/ovnchat/internal/models"
)

// Source is the part of the backend client the API catalog reads from.
type Source interface {
	Products(ctx context.Context, limit int) models.ProductsResult
	ProductDetail(ctx context.Context, id int) models.ProductResult
	FlashSaleProducts(ctx context.Context) models.ProductsResult
	Categories(ctx context.Context) models.CategoriesResult
}

// Opts configures an APICatalog.
type Opts struct {
	TTL   time.Duration
	Limit int
	Now   func() time.Time
}

// Option mutates Opts.
type Option func(*Opts)

// WithTTL sets how long fetched lists are served from memory.
func WithTTL(d time.Duration) Option {
	return func(o *Opts) { o.TTL = d }
}

// WithLimit sets how many products a refresh requests.
func WithLimit(n int) Option {
	return func(o *Opts) { o.Limit = n }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

type cached[T any] struct {
	value     T
	fetchedAt time.Time
	ok        bool
}

// APICatalog serves the backend's product and category lists from a TTL cache. Concurrent
// misses share one backend request.
type APICatalog struct {
	src   Source
	ttl   time.Duration
	limit int
	now   func() time.Time

	group singleflight.Group

	mu         sync.RWMutex
	products   cached[[]models.Product]
	categories cached[[]models.Category]
}

// NewAPICatalog wraps src. Defaults: 5 minute TTL, 200 products per refresh.
func NewAPICatalog(src Source, opts ...Option) *APICatalog {
	o := Opts{TTL: 5 * time.Minute, Limit: 200, Now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &APICatalog{src: src, ttl: o.TTL, limit: o.Limit, now: o.Now}
}

func (c *APICatalog) fresh(fetchedAt time.Time) bool {
	return c.now().Sub(fetchedAt) < c.ttl
}

// Products returns the cached product list, refreshing it when stale. A failed refresh serves
// the stale list when there is one.
func (c *APICatalog) Products(ctx context.Context) ([]models.Product, error) {
	c.mu.RLock()
	entry := c.products
	c.mu.RUnlock()
	if entry.ok && c.fresh(entry.fetchedAt) {
		return entry.value, nil
	}

	v, err, _ := c.group.Do("products", func() (any, error) {
		res := c.src.Products(ctx, c.limit)
		if !res.Success {
			return nil, fmt.Errorf("catalog products: %s: %w", res.Error, models.ErrExternalService)
		}
		c.mu.Lock()
		c.products = cached[[]models.Product]{value: res.Products, fetchedAt: c.now(), ok: true}
		c.mu.Unlock()
		return res.Products, nil
	})
	if err != nil {
		if entry.ok {
			slog.Warn("APICatalog.Products: refresh failed, serving stale list", "error", err, "count", len(entry.value))
			return entry.value, nil
		}
		slog.Error("APICatalog.Products: refresh failed", "error", err)
		return nil, err
	}
	return v.([]models.Product), nil
}

// Product looks the id up in the cached list, then asks the backend.
func (c *APICatalog) Product(ctx context.Context, id int) (models.Product, error) {
	if products, err := c.Products(ctx); err == nil {
		if p, err := findProduct(products, id); err == nil {
			return p, nil
		}
	}
	res := c.src.ProductDetail(ctx, id)
	if !res.Success || res.Product == nil {
		slog.Debug("APICatalog.Product: not found", "product_id", id, "error", res.Error)
		return models.Product{}, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	return *res.Product, nil
}

// Featured filters the cached list for featured and flash-sale products, falling back to the
// backend's flash-sale endpoint when the list has none.
func (c *APICatalog) Featured(ctx context.Context, limit int) ([]models.Product, error) {
	products, err := c.Products(ctx)
	if err == nil {
		if out := featured(products, limit); len(out) > 0 {
			return out, nil
		}
	}
	res := c.src.FlashSaleProducts(ctx)
	if !res.Success {
		return nil, fmt.Errorf("catalog flash sale: %s: %w", res.Error, models.ErrExternalService)
	}
	out := res.Products
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Categories returns the cached category list, refreshing it when stale.
func (c *APICatalog) Categories(ctx context.Context) ([]models.Category, error) {
	c.mu.RLock()
	entry := c.categories
	c.mu.RUnlock()
	if entry.ok && c.fresh(entry.fetchedAt) {
		return entry.value, nil
	}

	v, err, _ := c.group.Do("categories", func() (any, error) {
		res := c.src.Categories(ctx)
		if !res.Success {
			return nil, fmt.Errorf("catalog categories: %s: %w", res.Error, models.ErrExternalService)
		}
		c.mu.Lock()
		c.categories = cached[[]models.Category]{value: res.Categories, fetchedAt: c.now(), ok: true}
		c.mu.Unlock()
		return res.Categories, nil
	})
	if err != nil {
		if entry.ok {
			slog.Warn("APICatalog.Categories: refresh failed, serving stale list", "error", err)
			return entry.value, nil
		}
		return nil, err
	}
	return v.([]models.Category), nil
}

// Invalidate drops the cached lists.
func (c *APICatalog) Invalidate() {
	c.mu.Lock()
	c.products = cached[[]models.Product]{}
	c.categories = cached[[]models.Category]{}
	c.mu.Unlock()
}
