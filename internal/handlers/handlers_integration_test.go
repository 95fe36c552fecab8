package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stockroom/internal/handlers"
	"stockroom/internal/models"
	"stockroom/internal/repositories"
	"stockroom/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var today = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

// setupApp sets up a Fiber app for testing with in-memory SQLite. The returned
// clock setter moves "today" for the service.
func setupApp(t *testing.T) (*fiber.App, func(time.Time)) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}))

	clock := today
	productRepo := repositories.NewGORMProductRepository(db)
	inventoryService := services.NewInventoryService(productRepo,
		services.WithClock(func() time.Time { return clock }))
	productHandler := handlers.NewProductHandler(inventoryService, zerolog.Nop())

	app := fiber.New()
	productHandler.RegisterRoutes(app.Group("/api/v1"))

	return app, func(t time.Time) { clock = t }
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewReader([]byte(b))
		default:
			jsonBody, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(jsonBody)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func product(name, lot string, quantity, minQuantity int, expiresOn time.Time) map[string]interface{} {
	return map[string]interface{}{
		"name":         name,
		"lot":          lot,
		"quantity":     quantity,
		"min_quantity": minQuantity,
		"max_quantity": minQuantity + 100,
		"expires_on":   expiresOn.Format(models.DateLayout),
	}
}

func TestAddProduct(t *testing.T) {
	app, _ := setupApp(t)

	resp, data := doJSON(t, app, http.MethodPost, "/api/v1/products", product("Milk", "L-1", 12, 4, today.AddDate(0, 0, 20)))
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	var created handlers.ProductResponse
	require.NoError(t, json.Unmarshal(data, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Milk", created.Name)
	assert.Equal(t, 12, created.Quantity)
	assert.Equal(t, "2026-03-30", created.ExpiresOn)

	resp, data = doJSON(t, app, http.MethodGet, "/api/v1/products/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"lot":"L-1"`)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/products/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAddProductValidation(t *testing.T) {
	app, _ := setupApp(t)

	tests := []struct {
		name    string
		body    interface{}
		message string
	}{
		{"past expiry", product("Milk", "L-1", 1, 0, today.AddDate(0, 0, -1)), "cannot be in the past"},
		{"min above max", map[string]interface{}{"name": "Milk", "lot": "L-1", "min_quantity": 5, "max_quantity": 1, "expires_on": "2026-04-01"}, "cannot be greater than maximum"},
		{"missing expiry", map[string]interface{}{"name": "Milk", "lot": "L-1"}, "expiration date is required"},
		{"bad date format", map[string]interface{}{"name": "Milk", "lot": "L-1", "expires_on": "01/04/2026"}, "Validation failed"},
		{"malformed json", `{"name": "Milk",`, "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := doJSON(t, app, http.MethodPost, "/api/v1/products", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, string(data), tt.message)
			assert.Contains(t, string(data), `"kind":"validation"`)
		})
	}
}

func TestAddProductDuplicateNaturalKey(t *testing.T) {
	app, _ := setupApp(t)
	body := product("Milk", "L-1", 1, 0, today)

	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/products", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := doJSON(t, app, http.MethodPost, "/api/v1/products", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(data), "already exists")
}

func TestWithdrawStock(t *testing.T) {
	app, _ := setupApp(t)
	resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/products", product("Milk", "L-1", 10, 2, today.AddDate(0, 0, 5)))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, data := doJSON(t, app, http.MethodPost, "/api/v1/products/withdrawals", map[string]interface{}{"name": "Milk", "lot": "L-1", "quantity": 4})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var updated handlers.ProductResponse
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Equal(t, 6, updated.Quantity)

	resp, data = doJSON(t, app, http.MethodPost, "/api/v1/products/withdrawals", map[string]interface{}{"name": "Milk", "lot": "L-1", "quantity": 7})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "insufficient_stock", body["kind"])
	assert.EqualValues(t, 6, body["available"])
	assert.EqualValues(t, 7, body["requested"])

	resp, data = doJSON(t, app, http.MethodPost, "/api/v1/products/withdrawals", map[string]interface{}{"name": "Milk", "lot": "L-9", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(data), "product 'Milk' lot 'L-9' not found")

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/products/withdrawals", map[string]interface{}{"name": "Milk", "lot": "L-1", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/products/withdrawals", map[string]interface{}{"name": "Milk", "lot": "L-1", "quantity": 1.5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, data = doJSON(t, app, http.MethodPost, "/api/v1/products/withdrawals", map[string]interface{}{"name": "Milk", "lot": "L-1", "quantity": 6})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), `"quantity":0`)
}

func TestListExpiring(t *testing.T) {
	app, setClock := setupApp(t)

	setClock(today.AddDate(0, 0, -10))
	for name, offset := range map[string]int{"expired": -1, "today": 0, "soon": 3, "later": 8} {
		resp, data := doJSON(t, app, http.MethodPost, "/api/v1/products", product(name, "L-1", 1, 0, today.AddDate(0, 0, offset)))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	}
	setClock(today)

	resp, data := doJSON(t, app, http.MethodGet, "/api/v1/products/expiring", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var products []handlers.ExpiringProductResponse
	require.NoError(t, json.Unmarshal(data, &products))
	days := make(map[string]int)
	for _, p := range products {
		days[p.Name] = p.DaysRemaining
	}
	assert.Equal(t, map[string]int{"expired": -1, "today": 0, "soon": 3}, days)
}

func TestListReorder(t *testing.T) {
	app, _ := setupApp(t)
	for _, p := range []map[string]interface{}{
		product("low", "L-1", 5, 10, today),
		product("high", "L-1", 10, 5, today),
		product("plenty", "L-1", 40, 5, today),
	} {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/v1/products", p)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, data := doJSON(t, app, http.MethodGet, "/api/v1/products/reorder", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var products []handlers.ProductResponse
	require.NoError(t, json.Unmarshal(data, &products))
	require.Len(t, products, 1)
	assert.Equal(t, "low", products[0].Name)

	resp, data = doJSON(t, app, http.MethodGet, "/api/v1/products/reorder?threshold=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &products))
	assert.Len(t, products, 2)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/products/reorder?threshold=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = doJSON(t, app, http.MethodGet, "/api/v1/products/reorder?threshold=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListProducts(t *testing.T) {
	app, _ := setupApp(t)

	resp, data := doJSON(t, app, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(data))

	resp, _ = doJSON(t, app, http.MethodPost, "/api/v1/products", product("Milk", "L-1", 1, 0, today))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, data = doJSON(t, app, http.MethodGet, "/api/v1/products", nil)
	var products []handlers.ProductResponse
	require.NoError(t, json.Unmarshal(data, &products))
	assert.Len(t, products, 1)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, handlers.StatusFor(services.KindValidation))
	assert.Equal(t, http.StatusNotFound, handlers.StatusFor(services.KindNotFound))
	assert.Equal(t, http.StatusUnprocessableEntity, handlers.StatusFor(services.KindInsufficientStock))
	assert.Equal(t, http.StatusConflict, handlers.StatusFor(services.KindConflict))
	assert.Equal(t, http.StatusInternalServerError, handlers.StatusFor(services.KindInternal))
}
