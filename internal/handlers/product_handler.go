package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"stockroom/internal/models"
	"stockroom/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// ProductHandler handles HTTP requests for products.
type ProductHandler struct {
	service  *services.InventoryService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.InventoryService, logger zerolog.Logger) *ProductHandler {
	return &ProductHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With().Str("component", "product_handler").Logger(),
	}
}

// RegisterRoutes registers the product routes with the Fiber app.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	productRoutes := router.Group("/products")
	productRoutes.Get("/", h.HandleListProducts)
	productRoutes.Post("/", h.HandleAddProduct)
	productRoutes.Post("/withdrawals", h.HandleWithdrawStock)
	productRoutes.Get("/expiring", h.HandleListExpiring)
	productRoutes.Get("/reorder", h.HandleListReorder)
	productRoutes.Get("/:id", h.HandleGetProduct)
}

// AddProductRequest is the body of POST /products. Business rules are checked by
// the service; tags here only cover the shape of the payload.
type AddProductRequest struct {
	Name        string `json:"name" validate:"max=200"`
	Lot         string `json:"lot" validate:"max=100"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"min_quantity"`
	MaxQuantity int    `json:"max_quantity"`
	ExpiresOn   string `json:"expires_on" validate:"omitempty,datetime=2006-01-02"`
}

// WithdrawStockRequest is the body of POST /products/withdrawals.
type WithdrawStockRequest struct {
	Name     string `json:"name" validate:"max=200"`
	Lot      string `json:"lot" validate:"max=100"`
	Quantity int    `json:"quantity"`
}

// ProductResponse is the JSON representation of a product.
type ProductResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Lot         string `json:"lot"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"min_quantity"`
	MaxQuantity int    `json:"max_quantity"`
	ExpiresOn   string `json:"expires_on"`
}

// ExpiringProductResponse adds the days left until expiry; negative once expired.
type ExpiringProductResponse struct {
	ProductResponse
	DaysRemaining int `json:"days_remaining"`
}

func toResponse(p models.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Lot:         p.Lot,
		Quantity:    p.Quantity,
		MinQuantity: p.MinQuantity,
		MaxQuantity: p.MaxQuantity,
		ExpiresOn:   p.ExpiresOn.Format(models.DateLayout),
	}
}

func toResponses(products []models.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toResponse(p))
	}
	return out
}

// HandleListProducts retrieves all products.
func (h *ProductHandler) HandleListProducts(c *fiber.Ctx) error {
	products, err := h.service.ListAll(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(toResponses(products))
}

// HandleGetProduct retrieves a single product by its ID.
func (h *ProductHandler) HandleGetProduct(c *fiber.Ctx) error {
	product, err := h.service.GetProduct(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(toResponse(*product))
}

// HandleAddProduct creates a new product.
func (h *ProductHandler) HandleAddProduct(c *fiber.Ctx) error {
	var req AddProductRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body", err)
	}
	if failure := h.validationFailure(req); failure != nil {
		return c.Status(fiber.StatusBadRequest).JSON(failure)
	}

	candidate := models.Product{
		Name:        req.Name,
		Lot:         req.Lot,
		Quantity:    req.Quantity,
		MinQuantity: req.MinQuantity,
		MaxQuantity: req.MaxQuantity,
	}
	if req.ExpiresOn != "" {
		expiresOn, err := time.Parse(models.DateLayout, req.ExpiresOn)
		if err != nil {
			return badRequest(c, "expires_on must be a date in YYYY-MM-DD format", err)
		}
		candidate.ExpiresOn = expiresOn
	}

	created, err := h.service.AddProduct(c.UserContext(), candidate)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toResponse(*created))
}

// HandleWithdrawStock records a stock withdrawal for a product lot.
func (h *ProductHandler) HandleWithdrawStock(c *fiber.Ctx) error {
	var req WithdrawStockRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "name, lot and a whole-number quantity are required", err)
	}
	if failure := h.validationFailure(req); failure != nil {
		return c.Status(fiber.StatusBadRequest).JSON(failure)
	}

	updated, err := h.service.WithdrawStock(c.UserContext(), req.Name, req.Quantity, req.Lot)
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(toResponse(*updated))
}

// HandleListExpiring lists expired products and those expiring within the window.
func (h *ProductHandler) HandleListExpiring(c *fiber.Ctx) error {
	products, err := h.service.ListExpiringSoon(c.UserContext())
	if err != nil {
		return h.respondError(c, err)
	}

	today := h.service.Today()
	out := make([]ExpiringProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, ExpiringProductResponse{
			ProductResponse: toResponse(p),
			DaysRemaining:   services.DaysRemaining(p, today),
		})
	}
	return c.JSON(out)
}

// HandleListReorder lists products at or below their reorder point. An explicit
// ?threshold=N compares every product against N instead.
func (h *ProductHandler) HandleListReorder(c *fiber.Ctx) error {
	var (
		products []models.Product
		err      error
	)
	if c.Query("threshold") != "" {
		threshold, convErr := strconv.Atoi(c.Query("threshold"))
		if convErr != nil {
			return badRequest(c, "threshold must be a whole number", convErr)
		}
		products, err = h.service.ListAtOrBelowQuantity(c.UserContext(), threshold)
	} else {
		products, err = h.service.ListBelowReorderPoint(c.UserContext())
	}
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(toResponses(products))
}

// validationFailure returns the response body describing why req is malformed,
// or nil when it passes validation.
func (h *ProductHandler) validationFailure(req interface{}) fiber.Map {
	err := h.validate.Struct(req)
	if err == nil {
		return nil
	}
	errorMessages := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
		}
	}
	return fiber.Map{
		"message": "Validation failed",
		"kind":    services.KindValidation.String(),
		"errors":  errorMessages,
	}
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": message,
		"kind":    services.KindValidation.String(),
		"error":   err.Error(),
	})
}

// StatusFor maps a service error kind to an HTTP status code.
func StatusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindInsufficientStock:
		return fiber.StatusUnprocessableEntity
	case services.KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *ProductHandler) respondError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	status := StatusFor(kind)

	if kind == services.KindInternal {
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("internal error")
		return c.Status(status).JSON(fiber.Map{
			"message": "An unexpected error occurred. Please try again later.",
			"kind":    kind.String(),
		})
	}

	body := fiber.Map{
		"message": err.Error(),
		"kind":    kind.String(),
	}
	var svcErr *services.Error
	if kind == services.KindInsufficientStock && errors.As(err, &svcErr) {
		body["available"] = svcErr.Available
		body["requested"] = svcErr.Requested
	}
	return c.Status(status).JSON(body)
}
