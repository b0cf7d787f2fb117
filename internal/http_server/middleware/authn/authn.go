package authn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"marketplace/internal/auth"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type ctxKey struct{}

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (models.User, error)
}

// New rejects requests without a valid Bearer access token and stores the
// resolved user in the request context.
func New(log *slog.Logger, authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Unauthorized request"))
				return
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				render.Status(r, http.StatusForbidden)

				switch {
				case errors.Is(err, auth.ErrSessionExpired):
					render.JSON(w, r, resp.Error("Session expired"))
				case errors.Is(err, auth.ErrInvalidToken):
					render.JSON(w, r, resp.Error("Invalid token"))
				case errors.Is(err, auth.ErrUnauthorized):
					render.JSON(w, r, resp.Error("Unauthorized request, user doesn't exist"))
				default:
					log.Error("failed to authenticate", sl.Err(err))
					render.Status(r, http.StatusInternalServerError)
					render.JSON(w, r, resp.Error("Internal error"))
				}

				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(models.User)
	return user, ok
}

func bearer(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return "", false
	}

	token = strings.TrimSpace(token)

	return token, token != ""
}
