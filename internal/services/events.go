package services

import "context"

// Routing keys of the events published by InventoryService.
const (
	EventProductAdded        = "product.added"
	EventStockWithdrawn      = "stock.withdrawn"
	EventReorderPointReached = "stock.reorder_point_reached"
)

// EventPublisher delivers domain events to interested consumers.
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey string, payload interface{}) error
}

type ProductAddedEvent struct {
	ProductID string `json:"id"`
	Name      string `json:"name"`
	Lot       string `json:"lot"`
	Quantity  int    `json:"quantity"`
	ExpiresOn string `json:"expires_on"`
}

type StockWithdrawnEvent struct {
	ProductID string `json:"id"`
	Name      string `json:"name"`
	Lot       string `json:"lot"`
	Withdrawn int    `json:"withdrawn"`
	Remaining int    `json:"remaining"`
}

// ReorderPointReachedEvent is published once, when a withdrawal takes a product
// from above its minimum quantity to at or below it.
type ReorderPointReachedEvent struct {
	ProductID   string `json:"id"`
	Name        string `json:"name"`
	Lot         string `json:"lot"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"min_quantity"`
}
