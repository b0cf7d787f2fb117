package product

import (
	"testing"
	"time"

	"marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	d, err := ParsePrice("19.90")
	require.NoError(t, err)
	require.Equal(t, "19.9", d.String())

	for _, bad := range []string{"", "abc", "0", "-5", "1.999"} {
		_, err := ParsePrice(bad)
		require.ErrorIs(t, err, ErrInvalidPrice, bad)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-01")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2025-06-01T10:00:00+02:00")
	require.NoError(t, err)
	require.Equal(t, 8, d.Hour())

	_, err = ParseDate("01/06/2025")
	require.ErrorIs(t, err, ErrInvalidDate)
}

func TestNewDetails(t *testing.T) {
	p := models.Product{
		ID:             uuid.New(),
		Name:           "Lamp",
		Category:       "Home",
		Price:          decimal.RequireFromString("12.5"),
		PurchasingDate: time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
	}

	d := NewDetails(p, models.Seller{ID: "s", Name: "Ann"})
	require.Equal(t, "2024-02-03", d.Date)
	require.NotNil(t, d.Images)
	require.Equal(t, "Ann", d.Seller.Name)
}
