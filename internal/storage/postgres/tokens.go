package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UpsertToken replaces any live token of the same owner and purpose.
func (r *PostgresRepo) UpsertToken(ctx context.Context, t models.OneTimeToken) error {
	const op = "storage.postgres.UpsertToken"

	query := `
		INSERT INTO one_time_tokens (owner_id, purpose, token_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id, purpose)
		DO UPDATE SET token_hash = EXCLUDED.token_hash, created_at = EXCLUDED.created_at
	`

	_, err := r.pool.Exec(ctx, query, t.OwnerID, string(t.Purpose), t.TokenHash, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Token returns the token created after notBefore; older rows count as expired.
func (r *PostgresRepo) Token(
	ctx context.Context,
	ownerID uuid.UUID,
	purpose models.Purpose,
	notBefore time.Time,
) (models.OneTimeToken, error) {
	const op = "storage.postgres.Token"

	query := `
		SELECT owner_id, purpose, token_hash, created_at
		FROM one_time_tokens
		WHERE owner_id = $1 AND purpose = $2 AND created_at > $3
	`

	var (
		t    models.OneTimeToken
		purp string
	)

	err := r.pool.QueryRow(ctx, query, ownerID, string(purpose), notBefore).
		Scan(&t.OwnerID, &purp, &t.TokenHash, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.OneTimeToken{}, storage.ErrTokenNotFound
		}

		return models.OneTimeToken{}, fmt.Errorf("%s: %w", op, err)
	}

	t.Purpose = models.Purpose(purp)

	return t, nil
}

// DeleteToken removes the token only while it still carries tokenHash, so a
// row replaced by a newer token is left alone.
func (r *PostgresRepo) DeleteToken(ctx context.Context, ownerID uuid.UUID, purpose models.Purpose, tokenHash []byte) error {
	const op = "storage.postgres.DeleteToken"

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM one_time_tokens WHERE owner_id = $1 AND purpose = $2 AND token_hash = $3`,
		ownerID, string(purpose), tokenHash,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrTokenNotFound
	}

	return nil
}

func (r *PostgresRepo) PurgeTokens(ctx context.Context, purpose models.Purpose, before time.Time) (int64, error) {
	const op = "storage.postgres.PurgeTokens"

	tag, err := r.pool.Exec(ctx,
		`DELETE FROM one_time_tokens WHERE purpose = $1 AND created_at <= $2`,
		string(purpose), before,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}
