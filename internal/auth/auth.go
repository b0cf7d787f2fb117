package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/images"
	"marketplace/internal/lib/jwt"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/lib/metrics"
	"marketplace/internal/lib/verification"
	"marketplace/internal/models"
	"marketplace/internal/onetime"
	"marketplace/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized request")
	ErrInvalidToken       = errors.New("invalid token")
	ErrSessionExpired     = errors.New("session expired")
	ErrSamePassword       = errors.New("new password must be different")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrTooManyRequests    = errors.New("too many requests")
)

const mailWindow = time.Hour

type UserSaver interface {
	SaveUser(ctx context.Context, user models.User) error
	SetEmailVerified(ctx context.Context, id uuid.UUID) error
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	UpdateAvatar(ctx context.Context, id uuid.UUID, avatar models.Image) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passHash []byte) error
}

type UserProvider interface {
	User(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

// SessionStorage keeps the per-user list of refresh token digests.
type SessionStorage interface {
	AddRefreshToken(ctx context.Context, id uuid.UUID, digest string) error
	RotateRefreshToken(ctx context.Context, id uuid.UUID, oldDigest, newDigest string) error
	RemoveRefreshToken(ctx context.Context, id uuid.UUID, digest string) error
	ClearRefreshTokens(ctx context.Context, id uuid.UUID) error
}

type TokenStore interface {
	Create(ctx context.Context, ownerID uuid.UUID) (string, error)
	Verify(ctx context.Context, ownerID uuid.UUID, presented string) error
	Consume(ctx context.Context, ownerID uuid.UUID, presented string) error
}

type MailLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type ImageStorage interface {
	Upload(ctx context.Context, folder string, data []byte) (models.Image, error)
	Delete(ctx context.Context, id string) error
}

type Deps struct {
	UserSaver    UserSaver
	UserProvider UserProvider
	Sessions     SessionStorage
	Issuer       *jwt.Issuer
	VerifyTokens TokenStore
	ResetTokens  TokenStore
	Publisher    verification.Publisher
	Limiter      MailLimiter
	Images       ImageStorage
}

type Auth struct {
	log          *slog.Logger
	usrSaver     UserSaver
	usrProvider  UserProvider
	sessions     SessionStorage
	issuer       *jwt.Issuer
	verifyTokens TokenStore
	resetTokens  TokenStore
	pub          verification.Publisher
	limiter      MailLimiter
	images       ImageStorage
	links        config.Links
	mailPerHour  int
}

func New(log *slog.Logger, deps Deps, links config.Links, mailPerHour int) *Auth {
	return &Auth{
		log:          log,
		usrSaver:     deps.UserSaver,
		usrProvider:  deps.UserProvider,
		sessions:     deps.Sessions,
		issuer:       deps.Issuer,
		verifyTokens: deps.VerifyTokens,
		resetTokens:  deps.ResetTokens,
		pub:          deps.Publisher,
		limiter:      deps.Limiter,
		images:       deps.Images,
		links:        links,
		mailPerHour:  mailPerHour,
	}
}

// Register creates an unverified user and mails a verification link.
func (a *Auth) Register(ctx context.Context, name, email, pass string) (uuid.UUID, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	log.Info("registering new user")

	passHash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		ID:       uuid.New(),
		Name:     strings.TrimSpace(name),
		Email:    normalizeEmail(email),
		PassHash: passHash,
	}

	if err := a.usrSaver.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrUserExists)
		}

		log.Error("failed to save user", sl.Err(err))
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.sendOneTimeLink(ctx, a.verifyTokens, models.PurposeEmailVerification, a.links.Verification, user); err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("uid", user.ID.String()))

	return user.ID, nil
}

// VerifyEmail marks the user verified and consumes the verification token.
func (a *Auth) VerifyEmail(ctx context.Context, userID uuid.UUID, token string) (models.Profile, error) {
	const op = "auth.VerifyEmail"

	log := a.log.With(slog.String("op", op), slog.String("uid", userID.String()))

	if err := a.useToken(ctx, a.verifyTokens, userID, token); err != nil {
		if !errors.Is(err, ErrUnauthorized) {
			log.Error("failed to use verification token", sl.Err(err))
		}
		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.SetEmailVerified(ctx, userID); err != nil {
		log.Error("failed to set email verified", sl.Err(err))
		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified")

	return user.Profile(), nil
}

// ResendVerification replaces the pending verification token with a new one.
func (a *Auth) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	const op = "auth.ResendVerification"

	log := a.log.With(slog.String("op", op), slog.String("uid", userID.String()))

	user, err := a.userByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.Verified {
		return fmt.Errorf("%s: %w", op, ErrAlreadyVerified)
	}

	if err := a.allowMail(ctx, user.Email); err != nil {
		log.Warn("mail limit reached", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.sendOneTimeLink(ctx, a.verifyTokens, models.PurposeEmailVerification, a.links.Verification, user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Login checks credentials and opens a new session next to existing ones.
func (a *Auth) Login(ctx context.Context, email, password string) (models.Profile, models.TokenPair, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.User(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return models.Profile{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		log.Error("failed to get user", sl.Err(err))
		return models.Profile{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials")
		return models.Profile{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	access, refresh, err := a.issuer.Pair(user.ID)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return models.Profile{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.sessions.AddRefreshToken(ctx, user.ID, digest(refresh)); err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return models.Profile{}, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("uid", user.ID.String()))

	return user.Profile(), models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh rotates the presented refresh token. A token that is no longer in
// the user's list is treated as reuse and revokes every session of the user.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	const op = "auth.Refresh"

	log := a.log.With(slog.String("op", op))

	userID, err := a.issuer.Parse(refreshToken, jwt.KindRefresh)
	if err != nil {
		log.Warn("bad refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, tokenError(err))
	}

	access, refresh, err := a.issuer.Pair(userID)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	err = a.sessions.RotateRefreshToken(ctx, userID, digest(refreshToken), digest(refresh))
	if err != nil {
		if errors.Is(err, storage.ErrRefreshTokenAbsent) {
			metrics.RefreshReuse.Inc()
			log.Warn("refresh token reuse detected, revoking all sessions", slog.String("uid", userID.String()))

			if err := a.sessions.ClearRefreshTokens(ctx, userID); err != nil {
				log.Error("failed to revoke sessions", sl.Err(err))
			}

			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}

		log.Error("failed to rotate refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("refresh successful", slog.String("uid", userID.String()))

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Logout removes exactly the presented refresh token from the user's list.
func (a *Auth) Logout(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op), slog.String("uid", userID.String()))

	if err := a.sessions.RemoveRefreshToken(ctx, userID, digest(refreshToken)); err != nil {
		if errors.Is(err, storage.ErrRefreshTokenAbsent) {
			log.Warn("refresh token not found")
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		log.Error("failed to remove refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("logout successful")

	return nil
}

// Authenticate resolves an access token to its user.
func (a *Auth) Authenticate(ctx context.Context, accessToken string) (models.User, error) {
	const op = "auth.Authenticate"

	userID, err := a.issuer.Parse(accessToken, jwt.KindAccess)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, tokenError(err))
	}

	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// ForgotPassword mails a password reset link to a registered address.
func (a *Auth) ForgotPassword(ctx context.Context, email string) error {
	const op = "auth.ForgotPassword"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.User(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.allowMail(ctx, user.Email); err != nil {
		log.Warn("mail limit reached", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.sendOneTimeLink(ctx, a.resetTokens, models.PurposePasswordReset, a.links.PasswordReset, user); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// VerifyResetToken checks a reset token without consuming it.
func (a *Auth) VerifyResetToken(ctx context.Context, userID uuid.UUID, token string) error {
	const op = "auth.VerifyResetToken"

	if err := a.resetTokens.Verify(ctx, userID, token); err != nil {
		return fmt.Errorf("%s: %w", op, foldTokenError(err))
	}

	return nil
}

// ResetPassword consumes the reset token, stores the new password and
// revokes all sessions of the user.
func (a *Auth) ResetPassword(ctx context.Context, userID uuid.UUID, token, password string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op), slog.String("uid", userID.String()))

	if err := a.resetTokens.Verify(ctx, userID, token); err != nil {
		return fmt.Errorf("%s: %w", op, foldTokenError(err))
	}

	user, err := a.userByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)) == nil {
		return fmt.Errorf("%s: %w", op, ErrSamePassword)
	}

	if err := a.resetTokens.Consume(ctx, userID, token); err != nil {
		return fmt.Errorf("%s: %w", op, foldTokenError(err))
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.UpdatePassword(ctx, userID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := models.Message{Email: user.Email, Purpose: models.PurposePasswordUpdated}
	if err := a.pub.SendMessage(ctx, msg); err != nil {
		log.Error("failed to publish password updated mail", sl.Err(err))
	}

	log.Info("password reset")

	return nil
}

func (a *Auth) Profile(ctx context.Context, userID uuid.UUID) (models.Profile, error) {
	const op = "auth.Profile"

	user, err := a.userByID(ctx, userID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	return user.Profile(), nil
}

func (a *Auth) PublicProfile(ctx context.Context, userID uuid.UUID) (models.PublicProfile, error) {
	const op = "auth.PublicProfile"

	user, err := a.userByID(ctx, userID)
	if err != nil {
		return models.PublicProfile{}, fmt.Errorf("%s: %w", op, err)
	}

	p := models.PublicProfile{ID: user.ID.String(), Name: user.Name}
	if user.Avatar != nil {
		p.Avatar = user.Avatar.URL
	}

	return p, nil
}

func (a *Auth) UpdateName(ctx context.Context, userID uuid.UUID, name string) (models.Profile, error) {
	const op = "auth.UpdateName"

	if err := a.usrSaver.UpdateName(ctx, userID, strings.TrimSpace(name)); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.Profile{}, fmt.Errorf("%s: %w", op, ErrNotFound)
		}

		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	return a.Profile(ctx, userID)
}

// UpdateAvatar uploads the new picture and removes the previous object.
func (a *Auth) UpdateAvatar(ctx context.Context, userID uuid.UUID, data []byte) (models.Profile, error) {
	const op = "auth.UpdateAvatar"

	log := a.log.With(slog.String("op", op), slog.String("uid", userID.String()))

	user, err := a.userByID(ctx, userID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	img, err := a.images.Upload(ctx, images.FolderAvatars, data)
	if err != nil {
		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.UpdateAvatar(ctx, userID, img); err != nil {
		log.Error("failed to save avatar", sl.Err(err))
		if derr := a.images.Delete(ctx, img.ID); derr != nil {
			log.Error("failed to delete orphan avatar", sl.Err(derr))
		}
		return models.Profile{}, fmt.Errorf("%s: %w", op, err)
	}

	if user.Avatar != nil {
		if err := a.images.Delete(ctx, user.Avatar.ID); err != nil {
			log.Error("failed to delete previous avatar", sl.Err(err))
		}
	}

	user.Avatar = &img

	return user.Profile(), nil
}

func (a *Auth) userByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}

	return user, nil
}

// useToken consumes a single-use token. Losing a concurrent Consume or
// replace race counts as a failed verification.
func (a *Auth) useToken(ctx context.Context, store TokenStore, userID uuid.UUID, token string) error {
	if err := store.Consume(ctx, userID, token); err != nil {
		return foldTokenError(err)
	}

	return nil
}

func (a *Auth) sendOneTimeLink(
	ctx context.Context,
	store TokenStore,
	purpose models.Purpose,
	base string,
	user models.User,
) error {
	token, err := store.Create(ctx, user.ID)
	if err != nil {
		a.log.Error("failed to create one-time token", slog.String("purpose", string(purpose)), sl.Err(err))
		return err
	}

	if err := verification.SendLink(ctx, a.pub, purpose, base, user.ID, token, user.Email); err != nil {
		a.log.Error("failed to publish mail", slog.String("purpose", string(purpose)), sl.Err(err))
	}

	return nil
}

func (a *Auth) allowMail(ctx context.Context, email string) error {
	if a.limiter == nil || a.mailPerHour <= 0 {
		return nil
	}

	ok, retryAfter, err := a.limiter.Allow(ctx, "mail:"+email, a.mailPerHour, mailWindow)
	if err != nil {
		a.log.Error("mail limiter unavailable", sl.Err(err))
		return nil
	}

	if !ok {
		return fmt.Errorf("%w: retry after %s", ErrTooManyRequests, retryAfter.Round(time.Second))
	}

	return nil
}

func foldTokenError(err error) error {
	if errors.Is(err, onetime.ErrNotFound) || errors.Is(err, onetime.ErrMismatch) {
		return ErrUnauthorized
	}

	return err
}

func tokenError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrSessionExpired
	}

	return ErrInvalidToken
}

func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
