package profile

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
	"marketplace/internal/models"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type Response struct {
	resp.Response
	Profile models.Profile `json:"profile"`
}

type PublicResponse struct {
	resp.Response
	Profile models.PublicProfile `json:"profile"`
}

type PublicProfileProvider interface {
	PublicProfile(ctx context.Context, userID uuid.UUID) (models.PublicProfile, error)
}

// Own returns the profile of the authenticated user.
func Own() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := authn.UserFromContext(r.Context())

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Profile:  user.Profile(),
		})
	}
}

func Public(log *slog.Logger, provider PublicProfileProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.profile.Public"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.Error("Invalid profile id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		p, err := provider.PublicProfile(ctx, id)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Profile not found"))

				return
			}

			log.Error("failed to load profile", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, PublicResponse{
			Response: resp.OK(),
			Profile:  p,
		})
	}
}
