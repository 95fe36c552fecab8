package models

import (
	"time"

	"gorm.io/gorm"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Product is a batch (lot) of an item held in stock.
type Product struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string    `json:"name" gorm:"not null;uniqueIndex:idx_products_name_lot"`
	Lot         string    `json:"lot" gorm:"not null;uniqueIndex:idx_products_name_lot"`
	Quantity    int       `json:"quantity" gorm:"not null"`
	MinQuantity int       `json:"min_quantity" gorm:"not null"`
	MaxQuantity int       `json:"max_quantity" gorm:"not null"`
	ExpiresOn   time.Time `json:"expires_on" gorm:"not null;index"`
	Version     int       `json:"version" gorm:"not null;default:1"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AfterFind puts ExpiresOn back in UTC. Some drivers scan timestamptz columns in
// the server's local zone, which moves midnight UTC onto the previous day.
func (p *Product) AfterFind(_ *gorm.DB) error {
	p.ExpiresOn = p.ExpiresOn.UTC()
	return nil
}

// AtOrBelowReorderPoint reports whether the on-hand quantity has reached the product's own minimum.
func (p Product) AtOrBelowReorderPoint() bool {
	return p.Quantity <= p.MinQuantity
}

// DateOf truncates t to its calendar date at midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the number of whole days from one date to another. The result is
// negative when to is before from.
func DaysUntil(from, to time.Time) int {
	return int(DateOf(to).Sub(DateOf(from)).Hours() / 24)
}
