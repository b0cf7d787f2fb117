// Package onetime keeps hashed single-use tokens, one live token per owner
// and purpose. Email verification and password reset are two Stores over the
// same table with different TTLs.
package onetime

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound = errors.New("token not found or expired")
	ErrMismatch = errors.New("token mismatch")
)

const tokenBytes = 36

type Repo interface {
	UpsertToken(ctx context.Context, t models.OneTimeToken) error
	Token(ctx context.Context, ownerID uuid.UUID, purpose models.Purpose, notBefore time.Time) (models.OneTimeToken, error)
	DeleteToken(ctx context.Context, ownerID uuid.UUID, purpose models.Purpose, tokenHash []byte) error
	PurgeTokens(ctx context.Context, purpose models.Purpose, before time.Time) (int64, error)
}

type Store struct {
	purpose models.Purpose
	ttl     time.Duration
	repo    Repo
	now     func() time.Time
}

func New(purpose models.Purpose, ttl time.Duration, repo Repo) *Store {
	return &Store{
		purpose: purpose,
		ttl:     ttl,
		repo:    repo,
		now:     time.Now,
	}
}

func (s *Store) Purpose() models.Purpose {
	return s.purpose
}

// Create replaces any live token of owner and returns the plain value.
// Only the bcrypt digest is persisted.
func (s *Store) Create(ctx context.Context, ownerID uuid.UUID) (string, error) {
	const op = "onetime.Create"

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	plain := hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	err = s.repo.UpsertToken(ctx, models.OneTimeToken{
		OwnerID:   ownerID,
		Purpose:   s.purpose,
		TokenHash: hash,
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return plain, nil
}

func (s *Store) Verify(ctx context.Context, ownerID uuid.UUID, presented string) error {
	const op = "onetime.Verify"

	t, err := s.repo.Token(ctx, ownerID, s.purpose, s.now().Add(-s.ttl))
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(t.TokenHash, []byte(presented)); err != nil {
		return ErrMismatch
	}

	return nil
}

// Consume checks presented and deletes exactly the row it matched. If a
// newer token replaced that row meanwhile, or another caller consumed it
// first, Consume reports ErrNotFound and the newer token stays live.
func (s *Store) Consume(ctx context.Context, ownerID uuid.UUID, presented string) error {
	const op = "onetime.Consume"

	t, err := s.repo.Token(ctx, ownerID, s.purpose, s.now().Add(-s.ttl))
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(t.TokenHash, []byte(presented)); err != nil {
		return ErrMismatch
	}

	if err := s.repo.DeleteToken(ctx, ownerID, s.purpose, t.TokenHash); err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return ErrNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Purge removes rows older than the TTL.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	const op = "onetime.Purge"

	n, err := s.repo.PurgeTokens(ctx, s.purpose, s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}
