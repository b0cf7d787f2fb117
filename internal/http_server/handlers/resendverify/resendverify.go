package resendverify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/http_server/middleware/authn"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type VerificationResender interface {
	ResendVerification(ctx context.Context, userID uuid.UUID) error
}

func New(log *slog.Logger, resender VerificationResender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resendverify.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user, _ := authn.UserFromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := resender.ResendVerification(ctx, user.ID); err != nil {
			switch {
			case errors.Is(err, auth.ErrAlreadyVerified):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("Email is already verified"))
			case errors.Is(err, auth.ErrTooManyRequests):
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, resp.Error("Too many requests, try again later"))
			default:
				log.Error("failed to resend verification", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		render.JSON(w, r, resp.Message("Please check your inbox"))
	}
}
