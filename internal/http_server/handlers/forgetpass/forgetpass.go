package forgetpass

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/auth"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/logger/sl"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordForgetter interface {
	ForgotPassword(ctx context.Context, email string) error
}

func New(log *slog.Logger, validate *validator.Validate, forgetter PasswordForgetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.forgetpass.New"

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

		if err := forgetter.ForgotPassword(ctx, req.Email); err != nil {
			switch {
			case errors.Is(err, auth.ErrNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Account not found"))
			case errors.Is(err, auth.ErrTooManyRequests):
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, resp.Error("Too many requests, try again later"))
			default:
				log.Error("failed to start password reset", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		render.JSON(w, r, resp.Message("Please check your email for password reset link"))
	}
}
