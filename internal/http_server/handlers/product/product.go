// Package product holds the JSON views and form parsing shared by the
// product handlers.
package product

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice = errors.New("invalid price")
	ErrInvalidDate  = errors.New("invalid purchasing date")
)

type Listing struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Thumbnail string          `json:"thumbnail,omitempty"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
}

type Details struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Thumbnail   string          `json:"thumbnail,omitempty"`
	Category    string          `json:"category"`
	Date        string          `json:"date"`
	Price       decimal.Decimal `json:"price"`
	Images      []models.Image  `json:"images"`
	Seller      models.Seller   `json:"seller"`
}

func NewListing(p models.Product) Listing {
	return Listing{
		ID:        p.ID.String(),
		Name:      p.Name,
		Thumbnail: p.Thumbnail,
		Category:  p.Category,
		Price:     p.Price,
	}
}

func NewListings(products []models.Product) []Listing {
	out := make([]Listing, 0, len(products))
	for _, p := range products {
		out = append(out, NewListing(p))
	}

	return out
}

func NewDetails(p models.Product, seller models.Seller) Details {
	imgs := p.Images
	if imgs == nil {
		imgs = []models.Image{}
	}

	return Details{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Thumbnail:   p.Thumbnail,
		Category:    p.Category,
		Date:        p.PurchasingDate.Format(time.DateOnly),
		Price:       p.Price,
		Images:      imgs,
		Seller:      seller,
	}
}

// Form is the text part of a product multipart body.
type Form struct {
	Name           string `validate:"required,max=128"`
	Description    string `validate:"required,max=4096"`
	Category       string `validate:"required,category"`
	Price          string `validate:"required"`
	PurchasingDate string `validate:"required"`
	Thumbnail      string
}

func ReadForm(r *http.Request) Form {
	return Form{
		Name:           strings.TrimSpace(r.FormValue("name")),
		Description:    strings.TrimSpace(r.FormValue("description")),
		Category:       r.FormValue("category"),
		Price:          strings.TrimSpace(r.FormValue("price")),
		PurchasingDate: strings.TrimSpace(r.FormValue("purchasingDate")),
		Thumbnail:      strings.TrimSpace(r.FormValue("thumbnail")),
	}
}

// ParsePrice accepts a positive decimal with at most two fractional digits.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() || !d.Equal(d.Round(2)) {
		return decimal.Decimal{}, ErrInvalidPrice
	}

	return d.Round(2), nil
}

// ParseDate accepts either a plain date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, ErrInvalidDate
}

// PageParams reads page and pageSize, malformed values count as absent.
func PageParams(r *http.Request) (page, pageSize int) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	pageSize, _ = strconv.Atoi(q.Get("pageSize"))

	return page, pageSize
}
