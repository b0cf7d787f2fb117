package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/auth"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type Response struct {
	resp.Response
	Tokens models.TokenPair `json:"tokens"`
}

type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

func New(log *slog.Logger, validate *validator.Validate, refresher TokenRefresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			var validateErr validator.ValidationErrors
			errors.As(err, &validateErr)

			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, resp.Error("Unauthorized access"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		tokens, err := refresher.Refresh(ctx, req.RefreshToken)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrSessionExpired):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Invalid token"))
			case errors.Is(err, auth.ErrUnauthorized):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Unauthorized access"))
			default:
				log.Error("failed to refresh tokens", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("tokens refreshed")

		ResponseOK(w, r, tokens)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, tokens models.TokenPair) {
	render.JSON(w, r, Response{
		Response: resp.OK(),
		Tokens:   tokens,
	})
}
