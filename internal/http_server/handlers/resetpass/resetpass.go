package resetpass

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
	"github.com/google/uuid"
)

type Request struct {
	ID       string `json:"id" validate:"required,uuid"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,password"`
}

type PasswordResetter interface {
	ResetPassword(ctx context.Context, userID uuid.UUID, token, password string) error
}

func New(log *slog.Logger, validate *validator.Validate, resetter PasswordResetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resetpass.New"

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

		if err := resetter.ResetPassword(ctx, uuid.MustParse(req.ID), req.Token, req.Password); err != nil {
			switch {
			case errors.Is(err, auth.ErrUnauthorized):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Unauthorized request, invalid token"))
			case errors.Is(err, auth.ErrNotFound):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Unauthorized request, user not found"))
			case errors.Is(err, auth.ErrSamePassword):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("New password cannot be the same as the old password"))
			default:
				log.Error("failed to reset password", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Failed to update password, please try again later"))
			}

			return
		}

		render.JSON(w, r, resp.Message("Password reset successfully"))
	}
}
