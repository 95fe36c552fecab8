package repositories

import (
	"context"
	"errors"
	"time"

	"stockroom/internal/models"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrDuplicateProduct = errors.New("product with this name and lot already exists")
	ErrConflict         = errors.New("product was modified concurrently")
)

// ProductRepository defines the interface for product data access.
type ProductRepository interface {
	// Create stores a new product, assigning its ID and initial version.
	Create(ctx context.Context, product *models.Product) error
	FindAll(ctx context.Context) ([]models.Product, error)
	FindByID(ctx context.Context, id string) (*models.Product, error)
	FindByNameAndLot(ctx context.Context, name, lot string) (*models.Product, error)
	// FindExpiringOnOrBefore returns products whose expiry date is at or before date.
	FindExpiringOnOrBefore(ctx context.Context, date time.Time) ([]models.Product, error)
	// FindExpiringBetween returns products expiring within [from, to], both inclusive.
	FindExpiringBetween(ctx context.Context, from, to time.Time) ([]models.Product, error)
	FindAtOrBelowQuantity(ctx context.Context, threshold int) ([]models.Product, error)
	// FindAtOrBelowOwnMinimum returns products whose quantity is at or below their MinQuantity.
	FindAtOrBelowOwnMinimum(ctx context.Context) ([]models.Product, error)
	// UpdateQuantity sets the quantity only if the stored version still equals
	// expectedVersion, otherwise it returns ErrConflict.
	UpdateQuantity(ctx context.Context, id string, expectedVersion, quantity int) (*models.Product, error)
}
