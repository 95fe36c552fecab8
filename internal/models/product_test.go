package models_test

import (
	"testing"
	"time"

	"stockroom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_AfterFindRestoresUTCDate(t *testing.T) {
	stored := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	saoPaulo := time.FixedZone("UTC-3", -3*60*60)

	p := models.Product{ExpiresOn: stored.In(saoPaulo)}
	require.Equal(t, "2026-03-09", models.DateOf(p.ExpiresOn).Format(models.DateLayout))

	require.NoError(t, p.AfterFind(nil))
	assert.Equal(t, time.UTC, p.ExpiresOn.Location())
	assert.Equal(t, "2026-03-10", p.ExpiresOn.Format(models.DateLayout))
	assert.Equal(t, 0, models.DaysUntil(stored, p.ExpiresOn))
}

func TestDaysUntil(t *testing.T) {
	from := time.Date(2026, time.March, 10, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, models.DaysUntil(from, time.Date(2026, time.March, 13, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, -1, models.DaysUntil(from, time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)))
}

func TestProduct_AtOrBelowReorderPoint(t *testing.T) {
	assert.True(t, models.Product{Quantity: 5, MinQuantity: 5}.AtOrBelowReorderPoint())
	assert.False(t, models.Product{Quantity: 6, MinQuantity: 5}.AtOrBelowReorderPoint())
}
