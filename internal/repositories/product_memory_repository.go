package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"stockroom/internal/models"

	"github.com/google/uuid"
)

// MemoryProductRepository is an in-memory implementation of ProductRepository.
type MemoryProductRepository struct {
	products map[string]models.Product
	mu       sync.RWMutex
	now      func() time.Time
}

// NewMemoryProductRepository creates a new instance of MemoryProductRepository.
func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{
		products: make(map[string]models.Product),
		now:      time.Now,
	}
}

// Create adds a new product, rejecting a second record with the same name and lot.
func (r *MemoryProductRepository) Create(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.products {
		if p.Name == product.Name && p.Lot == product.Lot {
			return ErrDuplicateProduct
		}
	}

	now := r.now()
	product.ID = uuid.New().String()
	product.Version = 1
	product.ExpiresOn = models.DateOf(product.ExpiresOn)
	product.CreatedAt = now
	product.UpdatedAt = now
	r.products[product.ID] = *product
	return nil
}

// FindAll returns all products.
func (r *MemoryProductRepository) FindAll(_ context.Context) ([]models.Product, error) {
	return r.filter(func(models.Product) bool { return true }), nil
}

// FindByID returns a product by its ID.
func (r *MemoryProductRepository) FindByID(_ context.Context, id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &product, nil
}

func (r *MemoryProductRepository) FindByNameAndLot(_ context.Context, name, lot string) (*models.Product, error) {
	matches := r.filter(func(p models.Product) bool {
		return p.Name == name && p.Lot == lot
	})
	if len(matches) == 0 {
		return nil, ErrProductNotFound
	}
	return &matches[0], nil
}

func (r *MemoryProductRepository) FindExpiringOnOrBefore(_ context.Context, date time.Time) ([]models.Product, error) {
	date = models.DateOf(date)
	return r.filter(func(p models.Product) bool {
		return !p.ExpiresOn.After(date)
	}), nil
}

func (r *MemoryProductRepository) FindExpiringBetween(_ context.Context, from, to time.Time) ([]models.Product, error) {
	from, to = models.DateOf(from), models.DateOf(to)
	return r.filter(func(p models.Product) bool {
		return !p.ExpiresOn.Before(from) && !p.ExpiresOn.After(to)
	}), nil
}

func (r *MemoryProductRepository) FindAtOrBelowQuantity(_ context.Context, threshold int) ([]models.Product, error) {
	return r.filter(func(p models.Product) bool {
		return p.Quantity <= threshold
	}), nil
}

func (r *MemoryProductRepository) FindAtOrBelowOwnMinimum(_ context.Context) ([]models.Product, error) {
	return r.filter(models.Product.AtOrBelowReorderPoint), nil
}

// UpdateQuantity checks the version and writes the new quantity under a single lock.
func (r *MemoryProductRepository) UpdateQuantity(_ context.Context, id string, expectedVersion, quantity int) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	if product.Version != expectedVersion {
		return nil, ErrConflict
	}
	product.Quantity = quantity
	product.Version++
	product.UpdatedAt = r.now()
	r.products[id] = product
	return &product, nil
}

// filter returns copies of the matching products ordered by expiry date, then name and lot.
func (r *MemoryProductRepository) filter(match func(models.Product) bool) []models.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()

	productList := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if match(p) {
			productList = append(productList, p)
		}
	}
	sort.Slice(productList, func(i, j int) bool {
		a, b := productList[i], productList[j]
		if !a.ExpiresOn.Equal(b.ExpiresOn) {
			return a.ExpiresOn.Before(b.ExpiresOn)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Lot < b.Lot
	})
	return productList
}
