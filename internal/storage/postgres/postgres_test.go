package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepo, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewWithDB(mock), mock
}

func TestSaveUser_Duplicate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	u := models.User{ID: uuid.New(), Name: "A", Email: "a@x.com", PassHash: []byte("h")}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(u.ID, u.Name, u.Email, u.PassHash).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.SaveUser(context.Background(), u)
	require.ErrorIs(t, err, storage.ErrUserExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUser_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT .* FROM users WHERE email = \$1`).
		WithArgs("ghost@x.com").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.User(context.Background(), "ghost@x.com")
	require.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestRotateRefreshToken_Swapped(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectExec(`SET tokens = array_append\(array_remove\(tokens, \$2\), \$3\)\s+WHERE id = \$1 AND \$2 = ANY\(tokens\)`).
		WithArgs(id, "old", "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.RotateRefreshToken(context.Background(), id, "old", "new"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRotateRefreshToken_Absent(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectExec(`array_remove`).
		WithArgs(id, "stale", "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.RotateRefreshToken(context.Background(), id, "stale", "new")
	require.ErrorIs(t, err, storage.ErrRefreshTokenAbsent)
}

func TestRemoveRefreshToken_Absent(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectExec(`SET tokens = array_remove\(tokens, \$2\)`).
		WithArgs(id, "d").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.RemoveRefreshToken(context.Background(), id, "d")
	require.ErrorIs(t, err, storage.ErrRefreshTokenAbsent)
}

func TestExecUser_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE users SET verified = TRUE`).
		WithArgs(id).
		WillReturnError(errors.New("db down"))

	err := repo.SetEmailVerified(context.Background(), id)
	require.ErrorContains(t, err, "storage.postgres.SetEmailVerified: db down")
}

func TestUpsertToken(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	tok := models.OneTimeToken{
		OwnerID:   uuid.New(),
		Purpose:   models.PurposePasswordReset,
		TokenHash: []byte("hash"),
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(`ON CONFLICT \(owner_id, purpose\)\s+DO UPDATE`).
		WithArgs(tok.OwnerID, "password_reset", tok.TokenHash, tok.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertToken(context.Background(), tok))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestToken_Found(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	owner := uuid.New()
	created := time.Now().Add(-time.Hour)
	notBefore := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(`FROM one_time_tokens`).
		WithArgs(owner, "email_verification", notBefore).
		WillReturnRows(pgxmock.NewRows([]string{"owner_id", "purpose", "token_hash", "created_at"}).
			AddRow(owner, "email_verification", []byte("hash"), created))

	got, err := repo.Token(context.Background(), owner, models.PurposeEmailVerification, notBefore)
	require.NoError(t, err)
	require.Equal(t, owner, got.OwnerID)
	require.Equal(t, models.PurposeEmailVerification, got.Purpose)
	require.Equal(t, []byte("hash"), got.TokenHash)
}

func TestDeleteToken_AlreadyConsumed(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	owner := uuid.New()

	mock.ExpectExec(`DELETE FROM one_time_tokens WHERE owner_id = \$1 AND purpose = \$2 AND token_hash = \$3`).
		WithArgs(owner, "email_verification", []byte("old-hash")).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.DeleteToken(context.Background(), owner, models.PurposeEmailVerification, []byte("old-hash"))
	require.ErrorIs(t, err, storage.ErrTokenNotFound)
}

func TestPurgeTokens(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	before := time.Now()

	mock.ExpectExec(`DELETE FROM one_time_tokens WHERE purpose = \$1 AND created_at <= \$2`).
		WithArgs("password_reset", before).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := repo.PurgeTokens(context.Background(), models.PurposePasswordReset, before)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestRemoveProductImage_RepointsThumbnail(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return now }

	id, owner := uuid.New(), uuid.New()
	images := `[{"url":"https://cdn/a","id":"a"},{"url":"https://cdn/b","id":"b"}]`

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(id, owner).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "owner_id", "name", "description", "category", "price",
			"purchasing_date", "images", "thumbnail", "created_at", "updated_at",
		}).AddRow(id, owner, "Phone", "Used", "Electronics", "10.50",
			now, []byte(images), "https://cdn/a", now, now))
	mock.ExpectExec(`UPDATE products SET images = \$2, thumbnail = \$3`).
		WithArgs(id, `[{"url":"https://cdn/b","id":"b"}]`, "https://cdn/b", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	p, err := repo.RemoveProductImage(context.Background(), id, owner, "a")
	require.NoError(t, err)
	require.Equal(t, "https://cdn/b", p.Thumbnail)
	require.Len(t, p.Images, 1)
	require.Equal(t, "10.5", p.Price.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveProductImage_UnknownImageRollsBack(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	id, owner := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(id, owner).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "owner_id", "name", "description", "category", "price",
			"purchasing_date", "images", "thumbnail", "created_at", "updated_at",
		}).AddRow(id, owner, "Phone", "Used", "Electronics", "10.00",
			now, []byte(`[]`), "", now, now))
	mock.ExpectRollback()

	_, err := repo.RemoveProductImage(context.Background(), id, owner, "missing")
	require.ErrorIs(t, err, storage.ErrImageNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func productRow(id, owner uuid.UUID, images string, now time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "owner_id", "name", "description", "category", "price",
		"purchasing_date", "images", "thumbnail", "created_at", "updated_at",
	}).AddRow(id, owner, "Phone", "Used", "Electronics", "10.00",
		now, []byte(images), "https://cdn/a", now, now)
}

func TestModifyProduct_MergesUnderRowLock(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo.now = func() time.Time { return now }
	id, owner := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE p.id = \$1 AND p.owner_id = \$2 FOR UPDATE`).
		WithArgs(id, owner).
		WillReturnRows(productRow(id, owner, `[{"url":"https://cdn/a","id":"a"}]`, now))
	mock.ExpectExec(`UPDATE products\s+SET name = \$2`).
		WithArgs(id, "Phone 2", "Used", "Electronics", "10", now,
			`[{"url":"https://cdn/a","id":"a"},{"url":"https://cdn/c","id":"c"}]`, "https://cdn/a", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	p, err := repo.ModifyProduct(context.Background(), id, owner, func(p *models.Product) error {
		p.Name = "Phone 2"
		p.Images = append(p.Images, models.Image{URL: "https://cdn/c", ID: "c"})
		return nil
	})
	require.NoError(t, err)
	require.Len(t, p.Images, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestModifyProduct_RejectedChangeRollsBack(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	id, owner := uuid.New(), uuid.New()
	errFull := errors.New("full")

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(id, owner).
		WillReturnRows(productRow(id, owner, `[]`, now))
	mock.ExpectRollback()

	_, err := repo.ModifyProduct(context.Background(), id, owner, func(*models.Product) error {
		return errFull
	})
	require.ErrorIs(t, err, errFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestModifyProduct_NotOwned(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	id, owner := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(id, owner).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.ModifyProduct(context.Background(), id, owner, func(*models.Product) error {
		t.Fatal("modify must not run")
		return nil
	})
	require.ErrorIs(t, err, storage.ErrProductNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
