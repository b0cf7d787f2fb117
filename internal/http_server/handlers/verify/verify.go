package verify

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
	"github.com/google/uuid"
)

type Request struct {
	ID    string `json:"id" validate:"required,uuid"`
	Token string `json:"token" validate:"required"`
}

type Response struct {
	resp.Response
	Profile models.Profile `json:"profile"`
}

type EmailVerifier interface {
	VerifyEmail(ctx context.Context, userID uuid.UUID, token string) (models.Profile, error)
}

func New(log *slog.Logger, validate *validator.Validate, verifier EmailVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verify.New"

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

			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		profile, err := verifier.VerifyEmail(ctx, uuid.MustParse(req.ID), req.Token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Unauthorized access, invalid token"))

				return
			}

			log.Error("failed to verify email", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("email verified")

		render.JSON(w, r, Response{
			Response: resp.Message("Thanks for joining us, your email is verified"),
			Profile:  profile,
		})
	}
}
