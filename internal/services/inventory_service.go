package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"stockroom/internal/models"
	"stockroom/internal/repositories"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultWithdrawAttempts = 3
	DefaultExpiryWindow     = 7
)

const tracerName = "stockroom/internal/services"

// InventoryService holds the stock business rules.
type InventoryService struct {
	repo             repositories.ProductRepository
	publisher        EventPublisher
	logger           zerolog.Logger
	tracer           trace.Tracer
	now              func() time.Time
	withdrawAttempts int
	expiryWindow     int
}

// Option configures an InventoryService.
type Option func(*InventoryService)

// WithClock replaces the wall clock used to determine "today".
func WithClock(now func() time.Time) Option {
	return func(s *InventoryService) { s.now = now }
}

// WithPublisher enables domain event publication.
func WithPublisher(p EventPublisher) Option {
	return func(s *InventoryService) { s.publisher = p }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *InventoryService) { s.logger = l }
}

// WithTracerProvider records spans on tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *InventoryService) { s.tracer = tp.Tracer(tracerName) }
}

// WithWithdrawAttempts bounds how many times a withdrawal is retried after a
// concurrent modification. Values below 1 are ignored.
func WithWithdrawAttempts(n int) Option {
	return func(s *InventoryService) {
		if n >= 1 {
			s.withdrawAttempts = n
		}
	}
}

// WithExpiryWindow sets how many days ahead ListExpiringSoon looks. Values below 1 are ignored.
func WithExpiryWindow(days int) Option {
	return func(s *InventoryService) {
		if days >= 1 {
			s.expiryWindow = days
		}
	}
}

// NewInventoryService creates a new InventoryService.
func NewInventoryService(repo repositories.ProductRepository, opts ...Option) *InventoryService {
	s := &InventoryService{
		repo:             repo,
		logger:           zerolog.Nop(),
		tracer:           otel.Tracer(tracerName),
		now:              time.Now,
		withdrawAttempts: DefaultWithdrawAttempts,
		expiryWindow:     DefaultExpiryWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar date according to the service clock.
func (s *InventoryService) Today() time.Time {
	return models.DateOf(s.now())
}

// AddProduct validates candidate and stores it. Any ID on the candidate is ignored.
func (s *InventoryService) AddProduct(ctx context.Context, candidate models.Product) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.add_product")
	defer span.End()

	product := candidate
	product.ID = ""
	product.Name = strings.TrimSpace(product.Name)
	product.Lot = strings.TrimSpace(product.Lot)
	span.SetAttributes(
		attribute.String("product.name", product.Name),
		attribute.String("product.lot", product.Lot),
	)

	if verr := s.validateCandidate(product); verr != nil {
		return nil, s.fail(span, verr)
	}

	if _, err := s.repo.FindByNameAndLot(ctx, product.Name, product.Lot); err == nil {
		return nil, s.fail(span, duplicateError(product))
	} else if !errors.Is(err, repositories.ErrProductNotFound) {
		return nil, s.fail(span, newInternalError("look up product", err))
	}

	if err := s.repo.Create(ctx, &product); err != nil {
		if errors.Is(err, repositories.ErrDuplicateProduct) {
			return nil, s.fail(span, duplicateError(product))
		}
		return nil, s.fail(span, newInternalError("create product", err))
	}

	span.SetAttributes(attribute.String("product.id", product.ID))
	span.SetStatus(codes.Ok, "product added")
	s.logger.Debug().Str("product_id", product.ID).Str("name", product.Name).Str("lot", product.Lot).
		Int("quantity", product.Quantity).Msg("product added")

	s.publish(ctx, EventProductAdded, ProductAddedEvent{
		ProductID: product.ID,
		Name:      product.Name,
		Lot:       product.Lot,
		Quantity:  product.Quantity,
		ExpiresOn: product.ExpiresOn.Format(models.DateLayout),
	})
	return &product, nil
}

func (s *InventoryService) validateCandidate(p models.Product) *Error {
	switch {
	case p.Name == "":
		return newValidationError("product name is required")
	case p.Lot == "":
		return newValidationError("product lot is required")
	case p.Quantity < 0:
		return newValidationError("quantity cannot be negative (got %d)", p.Quantity)
	case p.MinQuantity < 0:
		return newValidationError("minimum quantity cannot be negative (got %d)", p.MinQuantity)
	case p.MaxQuantity < 0:
		return newValidationError("maximum quantity cannot be negative (got %d)", p.MaxQuantity)
	case p.MinQuantity > p.MaxQuantity:
		return newValidationError("minimum quantity (%d) cannot be greater than maximum quantity (%d)", p.MinQuantity, p.MaxQuantity)
	case p.ExpiresOn.IsZero():
		return newValidationError("expiration date is required")
	}
	today := s.Today()
	if models.DateOf(p.ExpiresOn).Before(today) {
		return newValidationError("expiration date (%s) cannot be in the past (today is %s)",
			p.ExpiresOn.Format(models.DateLayout), today.Format(models.DateLayout))
	}
	return nil
}

func duplicateError(p models.Product) *Error {
	return newValidationError("product '%s' lot '%s' already exists", p.Name, p.Lot)
}

// WithdrawStock removes quantity units from the product identified by name and lot.
// The lookup, sufficiency check and write are retried as a unit when the store
// reports a concurrent modification.
func (s *InventoryService) WithdrawStock(ctx context.Context, name string, quantity int, lot string) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.withdraw_stock")
	defer span.End()

	name = strings.TrimSpace(name)
	lot = strings.TrimSpace(lot)
	span.SetAttributes(
		attribute.String("product.name", name),
		attribute.String("product.lot", lot),
		attribute.Int("withdraw.quantity", quantity),
	)

	if name == "" || lot == "" {
		return nil, s.fail(span, newValidationError("product name, lot and quantity are required"))
	}
	if quantity <= 0 {
		return nil, s.fail(span, newValidationError("withdrawal quantity must be positive (got %d)", quantity))
	}

	var lastConflict error
	for attempt := 1; attempt <= s.withdrawAttempts; attempt++ {
		product, err := s.repo.FindByNameAndLot(ctx, name, lot)
		if err != nil {
			if errors.Is(err, repositories.ErrProductNotFound) {
				return nil, s.fail(span, newNotFoundError(name, lot))
			}
			return nil, s.fail(span, newInternalError("look up product", err))
		}

		if quantity > product.Quantity {
			return nil, s.fail(span, newInsufficientStockError(name, lot, product.Quantity, quantity))
		}

		updated, err := s.repo.UpdateQuantity(ctx, product.ID, product.Version, product.Quantity-quantity)
		switch {
		case err == nil:
			span.SetAttributes(attribute.Int("withdraw.attempts", attempt), attribute.Int("product.remaining", updated.Quantity))
			span.SetStatus(codes.Ok, "stock withdrawn")
			s.logger.Debug().Str("product_id", updated.ID).Int("withdrawn", quantity).
				Int("remaining", updated.Quantity).Int("attempt", attempt).Msg("stock withdrawn")
			s.afterWithdrawal(ctx, *product, *updated, quantity)
			return updated, nil
		case errors.Is(err, repositories.ErrConflict):
			lastConflict = err
			s.logger.Debug().Str("product_id", product.ID).Int("attempt", attempt).Msg("concurrent modification, retrying withdrawal")
		case errors.Is(err, repositories.ErrProductNotFound):
			return nil, s.fail(span, newNotFoundError(name, lot))
		default:
			return nil, s.fail(span, newInternalError("update product quantity", err))
		}
	}
	return nil, s.fail(span, newConflictError(name, lot, s.withdrawAttempts, lastConflict))
}

func (s *InventoryService) afterWithdrawal(ctx context.Context, before, after models.Product, quantity int) {
	s.publish(ctx, EventStockWithdrawn, StockWithdrawnEvent{
		ProductID: after.ID,
		Name:      after.Name,
		Lot:       after.Lot,
		Withdrawn: quantity,
		Remaining: after.Quantity,
	})
	if !before.AtOrBelowReorderPoint() && after.AtOrBelowReorderPoint() {
		s.publish(ctx, EventReorderPointReached, ReorderPointReachedEvent{
			ProductID:   after.ID,
			Name:        after.Name,
			Lot:         after.Lot,
			Quantity:    after.Quantity,
			MinQuantity: after.MinQuantity,
		})
	}
}

// ListAll returns every stored product.
func (s *InventoryService) ListAll(ctx context.Context) ([]models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.list_all")
	defer span.End()

	products, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, s.fail(span, newInternalError("list products", err))
	}
	span.SetAttributes(attribute.Int("products.count", len(products)))
	span.SetStatus(codes.Ok, "")
	return products, nil
}

// GetProduct returns the product with the given ID.
func (s *InventoryService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.get_product", trace.WithAttributes(
		attribute.String("product.id", id),
	))
	defer span.End()

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return nil, s.fail(span, &Error{Kind: KindNotFound, Message: "product with ID " + id + " not found"})
		}
		return nil, s.fail(span, newInternalError("get product", err))
	}
	span.SetStatus(codes.Ok, "")
	return product, nil
}

// ListExpiringSoon returns products that have expired (expiry on or before today)
// or expire within the configured window after today. Each product appears once.
func (s *InventoryService) ListExpiringSoon(ctx context.Context) ([]models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.list_expiring_soon")
	defer span.End()

	today := s.Today()
	expired, err := s.repo.FindExpiringOnOrBefore(ctx, today)
	if err != nil {
		return nil, s.fail(span, newInternalError("list expired products", err))
	}
	upcoming, err := s.repo.FindExpiringBetween(ctx, today.AddDate(0, 0, 1), today.AddDate(0, 0, s.expiryWindow))
	if err != nil {
		return nil, s.fail(span, newInternalError("list products expiring soon", err))
	}

	seen := make(map[string]struct{}, len(expired)+len(upcoming))
	result := make([]models.Product, 0, len(expired)+len(upcoming))
	for _, group := range [][]models.Product{expired, upcoming} {
		for _, p := range group {
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			result = append(result, p)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].ExpiresOn.Equal(result[j].ExpiresOn) {
			return result[i].ExpiresOn.Before(result[j].ExpiresOn)
		}
		return result[i].Name < result[j].Name
	})

	span.SetAttributes(attribute.Int("products.count", len(result)))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ListBelowReorderPoint returns products whose quantity is at or below their own MinQuantity.
func (s *InventoryService) ListBelowReorderPoint(ctx context.Context) ([]models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.list_below_reorder_point")
	defer span.End()

	products, err := s.repo.FindAtOrBelowOwnMinimum(ctx)
	if err != nil {
		return nil, s.fail(span, newInternalError("list products below reorder point", err))
	}
	span.SetAttributes(attribute.Int("products.count", len(products)))
	span.SetStatus(codes.Ok, "")
	return products, nil
}

// ListAtOrBelowQuantity returns products whose quantity is at or below an explicit threshold.
func (s *InventoryService) ListAtOrBelowQuantity(ctx context.Context, threshold int) ([]models.Product, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.list_at_or_below_quantity", trace.WithAttributes(
		attribute.Int("threshold", threshold),
	))
	defer span.End()

	if threshold < 0 {
		return nil, s.fail(span, newValidationError("threshold cannot be negative (got %d)", threshold))
	}
	products, err := s.repo.FindAtOrBelowQuantity(ctx, threshold)
	if err != nil {
		return nil, s.fail(span, newInternalError("list products at or below threshold", err))
	}
	span.SetAttributes(attribute.Int("products.count", len(products)))
	span.SetStatus(codes.Ok, "")
	return products, nil
}

// DaysRemaining returns the whole days from today until the product expires;
// negative for expired products.
func DaysRemaining(p models.Product, today time.Time) int {
	return models.DaysUntil(today, p.ExpiresOn)
}

func (s *InventoryService) fail(span trace.Span, err *Error) error {
	span.SetAttributes(attribute.String("error.kind", err.Kind.String()))
	span.SetStatus(codes.Error, err.Error())
	if err.Kind == KindInternal {
		span.RecordError(err)
	}
	return err
}

func (s *InventoryService) publish(ctx context.Context, routingKey string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, routingKey, payload); err != nil {
		s.logger.Warn().Err(err).Str("routing_key", routingKey).Msg("failed to publish event")
	}
}
