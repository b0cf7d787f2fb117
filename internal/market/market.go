// Package market implements product listings: create, edit, delete and browse.
package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"marketplace/internal/images"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/models"
	"marketplace/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNotFound         = errors.New("product not found")
	ErrImageNotFound    = errors.New("image not found")
	ErrInvalidCategory  = errors.New("invalid category")
	ErrTooManyImages    = errors.New("image files cannot be more than 5")
	ErrInvalidThumbnail = errors.New("thumbnail must be one of the product images")
)

const (
	MaxImages       = 5
	LatestLimit     = 10
	DefaultPageSize = 10
	MaxPageSize     = 50
)

type ProductStorage interface {
	SaveProduct(ctx context.Context, p models.Product) error
	ModifyProduct(ctx context.Context, id, ownerID uuid.UUID, modify func(p *models.Product) error) (models.Product, error)
	Product(ctx context.Context, id uuid.UUID) (models.Product, error)
	ProductWithSeller(ctx context.Context, id uuid.UUID) (models.Product, models.Seller, error)
	DeleteProduct(ctx context.Context, id, ownerID uuid.UUID) (models.Product, error)
	RemoveProductImage(ctx context.Context, id, ownerID uuid.UUID, imageID string) (models.Product, error)
	ProductsByCategory(ctx context.Context, category string, limit, offset int) ([]models.Product, error)
	ProductsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Product, error)
	LatestProducts(ctx context.Context, limit int) ([]models.Product, error)
}

type ImageStorage interface {
	Upload(ctx context.Context, folder string, data []byte) (models.Image, error)
	Delete(ctx context.Context, id string) error
}

type ProductInput struct {
	Name           string
	Description    string
	Category       string
	Price          decimal.Decimal
	PurchasingDate time.Time
}

// ProductPatch holds the fields to change. Zero values keep the current value.
type ProductPatch struct {
	Name           string
	Description    string
	Category       string
	Price          *decimal.Decimal
	PurchasingDate *time.Time
	Thumbnail      string
}

type Market struct {
	log      *slog.Logger
	products ProductStorage
	images   ImageStorage
}

func New(log *slog.Logger, products ProductStorage, imgs ImageStorage) *Market {
	return &Market{
		log:      log,
		products: products,
		images:   imgs,
	}
}

func (m *Market) ListProduct(ctx context.Context, ownerID uuid.UUID, in ProductInput, files [][]byte) (models.Product, error) {
	const op = "market.ListProduct"

	log := m.log.With(slog.String("op", op), slog.String("uid", ownerID.String()))

	if !IsCategory(in.Category) {
		return models.Product{}, ErrInvalidCategory
	}
	if len(files) > MaxImages {
		return models.Product{}, ErrTooManyImages
	}

	uploaded, err := m.uploadAll(ctx, files)
	if err != nil {
		log.Error("failed to upload images", sl.Err(err))
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	p := models.Product{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Name:           strings.TrimSpace(in.Name),
		Description:    strings.TrimSpace(in.Description),
		Category:       in.Category,
		Price:          in.Price,
		PurchasingDate: in.PurchasingDate,
		Images:         uploaded,
	}
	if len(uploaded) > 0 {
		p.Thumbnail = uploaded[0].URL
	}

	if err := m.products.SaveProduct(ctx, p); err != nil {
		log.Error("failed to save product", sl.Err(err))
		m.deleteImages(ctx, uploaded)
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("product listed", slog.String("product_id", p.ID.String()))

	return p, nil
}

// UpdateProduct merges patch into the owner's product and appends new images.
// The merge runs against the locked row, so a concurrent edit or image removal
// is never overwritten.
func (m *Market) UpdateProduct(
	ctx context.Context,
	ownerID, id uuid.UUID,
	patch ProductPatch,
	files [][]byte,
) (models.Product, error) {
	const op = "market.UpdateProduct"

	log := m.log.With(slog.String("op", op), slog.String("product_id", id.String()))

	if patch.Category != "" && !IsCategory(patch.Category) {
		return models.Product{}, ErrInvalidCategory
	}

	current, err := m.products.Product(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return models.Product{}, ErrNotFound
		}
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}
	if current.OwnerID != ownerID {
		return models.Product{}, ErrNotFound
	}
	if len(current.Images)+len(files) > MaxImages {
		return models.Product{}, ErrTooManyImages
	}

	uploaded, err := m.uploadAll(ctx, files)
	if err != nil {
		log.Error("failed to upload images", sl.Err(err))
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	p, err := m.products.ModifyProduct(ctx, id, ownerID, func(p *models.Product) error {
		if len(p.Images)+len(uploaded) > MaxImages {
			return ErrTooManyImages
		}

		applyPatch(p, patch)
		p.Images = append(p.Images, uploaded...)

		if patch.Thumbnail != "" {
			if !slices.ContainsFunc(p.Images, func(img models.Image) bool { return img.URL == patch.Thumbnail }) {
				return ErrInvalidThumbnail
			}
			p.Thumbnail = patch.Thumbnail
		}
		if p.Thumbnail == "" && len(p.Images) > 0 {
			p.Thumbnail = p.Images[0].URL
		}

		return nil
	})
	if err != nil {
		m.deleteImages(ctx, uploaded)

		switch {
		case errors.Is(err, storage.ErrProductNotFound):
			return models.Product{}, ErrNotFound
		case errors.Is(err, ErrTooManyImages), errors.Is(err, ErrInvalidThumbnail):
			return models.Product{}, err
		}

		log.Error("failed to update product", sl.Err(err))
		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("product updated")

	return p, nil
}

// DeleteProduct removes the product and then its stored images.
func (m *Market) DeleteProduct(ctx context.Context, ownerID, id uuid.UUID) error {
	const op = "market.DeleteProduct"

	p, err := m.products.DeleteProduct(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	m.deleteImages(ctx, p.Images)

	return nil
}

func (m *Market) DeleteImage(ctx context.Context, ownerID, id uuid.UUID, imageID string) error {
	const op = "market.DeleteImage"

	if _, err := m.products.RemoveProductImage(ctx, id, ownerID, imageID); err != nil {
		switch {
		case errors.Is(err, storage.ErrProductNotFound):
			return ErrNotFound
		case errors.Is(err, storage.ErrImageNotFound):
			return ErrImageNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := m.images.Delete(ctx, imageID); err != nil {
		m.log.Error("failed to delete image object", slog.String("op", op), sl.Err(err))
	}

	return nil
}

func (m *Market) Details(ctx context.Context, id uuid.UUID) (models.Product, models.Seller, error) {
	const op = "market.Details"

	p, seller, err := m.products.ProductWithSeller(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) {
			return models.Product{}, models.Seller{}, ErrNotFound
		}
		return models.Product{}, models.Seller{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, seller, nil
}

func (m *Market) ByCategory(ctx context.Context, category string, page, pageSize int) ([]models.Product, error) {
	const op = "market.ByCategory"

	if !IsCategory(category) {
		return nil, ErrInvalidCategory
	}

	limit, offset := Paginate(page, pageSize)

	products, err := m.products.ProductsByCategory(ctx, category, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return products, nil
}

func (m *Market) Latest(ctx context.Context) ([]models.Product, error) {
	const op = "market.Latest"

	products, err := m.products.LatestProducts(ctx, LatestLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return products, nil
}

func (m *Market) Listings(ctx context.Context, ownerID uuid.UUID, page, pageSize int) ([]models.Product, error) {
	const op = "market.Listings"

	limit, offset := Paginate(page, pageSize)

	products, err := m.products.ProductsByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return products, nil
}

// Paginate turns a 1-based page into limit and offset.
func Paginate(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}

	return pageSize, (page - 1) * pageSize
}

// uploadAll stores files concurrently, keeping their order. On failure the
// files already stored are removed again.
func (m *Market) uploadAll(ctx context.Context, files [][]byte) ([]models.Image, error) {
	if len(files) == 0 {
		return nil, nil
	}

	for _, f := range files {
		if _, err := images.Detect(f); err != nil {
			return nil, err
		}
	}

	out := make([]models.Image, len(files))
	done := make([]bool, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			img, err := m.images.Upload(gctx, images.FolderProducts, f)
			if err != nil {
				return err
			}
			out[i] = img
			done[i] = true
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var stored []models.Image
		for i := range out {
			if done[i] {
				stored = append(stored, out[i])
			}
		}
		m.deleteImages(ctx, stored)
		return nil, err
	}

	return out, nil
}

func (m *Market) deleteImages(ctx context.Context, imgs []models.Image) {
	for _, img := range imgs {
		if err := m.images.Delete(ctx, img.ID); err != nil {
			m.log.Error("failed to delete image object", slog.String("image_id", img.ID), sl.Err(err))
		}
	}
}

func applyPatch(p *models.Product, patch ProductPatch) {
	if s := strings.TrimSpace(patch.Name); s != "" {
		p.Name = s
	}
	if s := strings.TrimSpace(patch.Description); s != "" {
		p.Description = s
	}
	if patch.Category != "" {
		p.Category = patch.Category
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.PurchasingDate != nil {
		p.PurchasingDate = *patch.PurchasingDate
	}
}
