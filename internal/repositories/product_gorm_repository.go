package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockroom/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{
		db: db,
	}
}

// Create inserts a new product. The database enforces the (name, lot) unique index.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	product.ID = uuid.New().String()
	product.Version = 1
	product.ExpiresOn = models.DateOf(product.ExpiresOn)
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateProduct
		}
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// FindAll retrieves all products from the database.
func (r *GORMProductRepository) FindAll(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Order("name, lot").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to get all products: %w", err)
	}
	return products, nil
}

// FindByID retrieves a single product by its ID.
func (r *GORMProductRepository) FindByID(ctx context.Context, id string) (*models.Product, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByNameAndLot retrieves the product identified by its natural key.
func (r *GORMProductRepository) FindByNameAndLot(ctx context.Context, name, lot string) (*models.Product, error) {
	return r.first(ctx, "name = ? AND lot = ?", name, lot)
}

func (r *GORMProductRepository) FindExpiringOnOrBefore(ctx context.Context, date time.Time) ([]models.Product, error) {
	return r.find(ctx, "expires_on <= ?", models.DateOf(date))
}

func (r *GORMProductRepository) FindExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Product, error) {
	return r.find(ctx, "expires_on >= ? AND expires_on <= ?", models.DateOf(from), models.DateOf(to))
}

func (r *GORMProductRepository) FindAtOrBelowQuantity(ctx context.Context, threshold int) ([]models.Product, error) {
	return r.find(ctx, "quantity <= ?", threshold)
}

func (r *GORMProductRepository) FindAtOrBelowOwnMinimum(ctx context.Context) ([]models.Product, error) {
	return r.find(ctx, "quantity <= min_quantity")
}

// UpdateQuantity performs a conditional update guarded by the row version.
func (r *GORMProductRepository) UpdateQuantity(ctx context.Context, id string, expectedVersion, quantity int) (*models.Product, error) {
	var updated *models.Product
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Product{}).
			Where("id = ? AND version = ?", id, expectedVersion).
			Updates(map[string]interface{}{
				"quantity":   quantity,
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update quantity of product %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			// Either the row is gone or another writer bumped the version.
			var count int64
			if err := tx.Model(&models.Product{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check product %s: %w", id, err)
			}
			if count == 0 {
				return ErrProductNotFound
			}
			return ErrConflict
		}

		var product models.Product
		if err := tx.First(&product, "id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to reload product %s: %w", id, err)
		}
		updated = &product
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *GORMProductRepository) first(ctx context.Context, query string, args ...interface{}) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where(query, args...).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

func (r *GORMProductRepository) find(ctx context.Context, query string, args ...interface{}) ([]models.Product, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Where(query, args...).Order("expires_on, name").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	return products, nil
}
