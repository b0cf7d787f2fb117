package updateprofile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/http_server/middleware/authn"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Request struct {
	Name string `json:"name" validate:"required,min=3,max=64"`
}

type Response struct {
	resp.Response
	Profile models.Profile `json:"profile"`
}

type NameUpdater interface {
	UpdateName(ctx context.Context, userID uuid.UUID, name string) (models.Profile, error)
}

func New(log *slog.Logger, validate *validator.Validate, updater NameUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.updateprofile.New"

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

		if err := validate.Struct(Request{Name: strings.TrimSpace(req.Name)}); err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.Error("Invalid name"))

			return
		}

		user, _ := authn.UserFromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		profile, err := updater.UpdateName(ctx, user.ID, req.Name)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to update name", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{Response: resp.OK(), Profile: profile})
	}
}
