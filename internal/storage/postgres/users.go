package postgres

import (
	"context"
	"errors"
	"fmt"

	"marketplace/internal/models"
	"marketplace/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, name, email, password_hash, verified, avatar_url, avatar_id, tokens, created_at`

func (r *PostgresRepo) SaveUser(ctx context.Context, user models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (id, name, email, password_hash)
		VALUES ($1, $2, $3, $4);
	`

	_, err := r.pool.Exec(ctx, query, user.ID, user.Name, user.Email, user.PassHash)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrUserExists
		}

		return fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) User(ctx context.Context, email string) (models.User, error) {
	const op = "storage.postgres.User"

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1;`

	u, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) UserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1;`

	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (r *PostgresRepo) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	return r.execUser(ctx, "storage.postgres.SetEmailVerified",
		`UPDATE users SET verified = TRUE WHERE id = $1`, id)
}

func (r *PostgresRepo) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	return r.execUser(ctx, "storage.postgres.UpdateName",
		`UPDATE users SET name = $2 WHERE id = $1`, id, name)
}

func (r *PostgresRepo) UpdateAvatar(ctx context.Context, id uuid.UUID, avatar models.Image) error {
	return r.execUser(ctx, "storage.postgres.UpdateAvatar",
		`UPDATE users SET avatar_url = $2, avatar_id = $3 WHERE id = $1`, id, avatar.URL, avatar.ID)
}

// UpdatePassword stores a new hash and revokes every session of the user.
func (r *PostgresRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passHash []byte) error {
	return r.execUser(ctx, "storage.postgres.UpdatePassword",
		`UPDATE users SET password_hash = $2, tokens = '{}' WHERE id = $1`, id, passHash)
}

func (r *PostgresRepo) AddRefreshToken(ctx context.Context, id uuid.UUID, digest string) error {
	return r.execUser(ctx, "storage.postgres.AddRefreshToken",
		`UPDATE users SET tokens = array_append(tokens, $2) WHERE id = $1`, id, digest)
}

// RotateRefreshToken swaps oldDigest for newDigest in one statement. It only
// matches while oldDigest is still in the list, so two concurrent rotations of
// the same token cannot both succeed.
func (r *PostgresRepo) RotateRefreshToken(ctx context.Context, id uuid.UUID, oldDigest, newDigest string) error {
	const op = "storage.postgres.RotateRefreshToken"

	query := `
		UPDATE users
		SET tokens = array_append(array_remove(tokens, $2), $3)
		WHERE id = $1 AND $2 = ANY(tokens)
	`

	tag, err := r.pool.Exec(ctx, query, id, oldDigest, newDigest)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrRefreshTokenAbsent
	}

	return nil
}

func (r *PostgresRepo) RemoveRefreshToken(ctx context.Context, id uuid.UUID, digest string) error {
	const op = "storage.postgres.RemoveRefreshToken"

	query := `
		UPDATE users
		SET tokens = array_remove(tokens, $2)
		WHERE id = $1 AND $2 = ANY(tokens)
	`

	tag, err := r.pool.Exec(ctx, query, id, digest)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrRefreshTokenAbsent
	}

	return nil
}

func (r *PostgresRepo) ClearRefreshTokens(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.ClearRefreshTokens"

	if _, err := r.pool.Exec(ctx, `UPDATE users SET tokens = '{}' WHERE id = $1`, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *PostgresRepo) execUser(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		u         models.User
		avatarURL *string
		avatarID  *string
	)

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PassHash,
		&u.Verified,
		&avatarURL,
		&avatarID,
		&u.Tokens,
		&u.CreatedAt,
	)
	if err != nil {
		return models.User{}, err
	}

	if avatarURL != nil && avatarID != nil {
		u.Avatar = &models.Image{URL: *avatarURL, ID: *avatarID}
	}

	return u, nil
}
