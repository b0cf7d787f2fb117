package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"marketplace/internal/models"
	"marketplace/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const productColumns = `p.id, p.owner_id, p.name, p.description, p.category, p.price::text,
	p.purchasing_date, p.images, p.thumbnail, p.created_at, p.updated_at`

func (r *PostgresRepo) SaveProduct(ctx context.Context, p models.Product) error {
	const op = "storage.postgres.SaveProduct"

	images, err := json.Marshal(nonNilImages(p.Images))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `
		INSERT INTO products (id, owner_id, name, description, category, price,
			purchasing_date, images, thumbnail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, ($6::text)::numeric, $7, $8, $9, $10, $10)
	`

	_, err = r.pool.Exec(ctx, query,
		p.ID, p.OwnerID, p.Name, p.Description, p.Category, p.Price.String(),
		p.PurchasingDate, string(images), p.Thumbnail, r.now(),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ModifyProduct locks the owner's product row, lets modify change it and
// writes the result in the same transaction. An error from modify rolls back
// and is returned as is.
func (r *PostgresRepo) ModifyProduct(
	ctx context.Context,
	id, ownerID uuid.UUID,
	modify func(p *models.Product) error,
) (models.Product, error) {
	const op = "storage.postgres.ModifyProduct"

	var (
		p         models.Product
		modifyErr error
	)

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1 AND p.owner_id = $2 FOR UPDATE`

		var err error
		p, err = scanProduct(tx.QueryRow(ctx, query, id, ownerID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return storage.ErrProductNotFound
			}
			return err
		}

		if modifyErr = modify(&p); modifyErr != nil {
			return modifyErr
		}

		images, err := json.Marshal(nonNilImages(p.Images))
		if err != nil {
			return err
		}

		p.UpdatedAt = r.now()

		_, err = tx.Exec(ctx, `
			UPDATE products
			SET name = $2, description = $3, category = $4, price = ($5::text)::numeric,
				purchasing_date = $6, images = $7, thumbnail = $8, updated_at = $9
			WHERE id = $1`,
			p.ID, p.Name, p.Description, p.Category, p.Price.String(),
			p.PurchasingDate, string(images), p.Thumbnail, p.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) || (modifyErr != nil && errors.Is(err, modifyErr)) {
			return models.Product{}, err
		}

		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (r *PostgresRepo) Product(ctx context.Context, id uuid.UUID) (models.Product, error) {
	const op = "storage.postgres.Product"

	query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Product{}, storage.ErrProductNotFound
		}

		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (r *PostgresRepo) ProductWithSeller(ctx context.Context, id uuid.UUID) (models.Product, models.Seller, error) {
	const op = "storage.postgres.ProductWithSeller"

	query := `
		SELECT ` + productColumns + `, u.id, u.name, u.avatar_url
		FROM products p
		JOIN users u ON u.id = p.owner_id
		WHERE p.id = $1
	`

	var (
		p         models.Product
		seller    models.Seller
		sellerID  uuid.UUID
		avatarURL *string
		price     string
		images    []byte
	)

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Category, &price,
		&p.PurchasingDate, &images, &p.Thumbnail, &p.CreatedAt, &p.UpdatedAt,
		&sellerID, &seller.Name, &avatarURL,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Product{}, models.Seller{}, storage.ErrProductNotFound
		}

		return models.Product{}, models.Seller{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := decodeProduct(&p, price, images); err != nil {
		return models.Product{}, models.Seller{}, fmt.Errorf("%s: %w", op, err)
	}

	seller.ID = sellerID.String()
	if avatarURL != nil {
		seller.Avatar = *avatarURL
	}

	return p, seller, nil
}

// DeleteProduct removes the product and returns it so stored images can be cleaned up.
func (r *PostgresRepo) DeleteProduct(ctx context.Context, id, ownerID uuid.UUID) (models.Product, error) {
	const op = "storage.postgres.DeleteProduct"

	query := `
		DELETE FROM products p
		WHERE p.id = $1 AND p.owner_id = $2
		RETURNING ` + productColumns

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Product{}, storage.ErrProductNotFound
		}

		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

// RemoveProductImage pulls one image from the product and repoints the
// thumbnail when it referenced the removed image.
func (r *PostgresRepo) RemoveProductImage(ctx context.Context, id, ownerID uuid.UUID, imageID string) (models.Product, error) {
	const op = "storage.postgres.RemoveProductImage"

	var p models.Product

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + productColumns + ` FROM products p WHERE p.id = $1 AND p.owner_id = $2 FOR UPDATE`

		var err error
		p, err = scanProduct(tx.QueryRow(ctx, query, id, ownerID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return storage.ErrProductNotFound
			}
			return err
		}

		kept := make([]models.Image, 0, len(p.Images))
		var removed *models.Image
		for _, img := range p.Images {
			if img.ID == imageID {
				removed = &img
				continue
			}
			kept = append(kept, img)
		}
		if removed == nil {
			return storage.ErrImageNotFound
		}

		p.Images = kept
		if p.Thumbnail == removed.URL {
			p.Thumbnail = ""
			if len(kept) > 0 {
				p.Thumbnail = kept[0].URL
			}
		}

		images, err := json.Marshal(kept)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE products SET images = $2, thumbnail = $3, updated_at = $4 WHERE id = $1`,
			p.ID, string(images), p.Thumbnail, r.now(),
		)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrProductNotFound) || errors.Is(err, storage.ErrImageNotFound) {
			return models.Product{}, err
		}

		return models.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

func (r *PostgresRepo) ProductsByCategory(ctx context.Context, category string, limit, offset int) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + ` FROM products p
		WHERE p.category = $1
		ORDER BY p.created_at DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryProducts(ctx, "storage.postgres.ProductsByCategory", query, category, limit, offset)
}

func (r *PostgresRepo) ProductsByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + ` FROM products p
		WHERE p.owner_id = $1
		ORDER BY p.created_at DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryProducts(ctx, "storage.postgres.ProductsByOwner", query, ownerID, limit, offset)
}

func (r *PostgresRepo) LatestProducts(ctx context.Context, limit int) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + ` FROM products p
		ORDER BY p.created_at DESC
		LIMIT $1
	`

	return r.queryProducts(ctx, "storage.postgres.LatestProducts", query, limit)
}

func (r *PostgresRepo) queryProducts(ctx context.Context, op, query string, args ...any) ([]models.Product, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	products := make([]models.Product, 0)

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return products, nil
}

func scanProduct(row pgx.Row) (models.Product, error) {
	var (
		p      models.Product
		price  string
		images []byte
	)

	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Description, &p.Category, &price,
		&p.PurchasingDate, &images, &p.Thumbnail, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return models.Product{}, err
	}

	if err := decodeProduct(&p, price, images); err != nil {
		return models.Product{}, err
	}

	return p, nil
}

func decodeProduct(p *models.Product, price string, images []byte) error {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("parse price: %w", err)
	}
	p.Price = d

	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return fmt.Errorf("decode images: %w", err)
		}
	}

	return nil
}

func nonNilImages(images []models.Image) []models.Image {
	if images == nil {
		return []models.Image{}
	}
	return images
}
