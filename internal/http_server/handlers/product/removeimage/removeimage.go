package removeimage

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/http_server/middleware/authn"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/market"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type ImageDeleter interface {
	DeleteImage(ctx context.Context, ownerID, id uuid.UUID, imageID string) error
}

// New expects the route /image/{productId}/*, image ids are object keys and
// contain slashes.
func New(log *slog.Logger, deleter ImageDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.product.removeimage.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, err := uuid.Parse(chi.URLParam(r, "productId"))
		if err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.Error("Invalid product id"))

			return
		}

		imageID := chi.URLParam(r, "*")
		if imageID == "" {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.Error("Invalid image id"))

			return
		}

		user, _ := authn.UserFromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		if err := deleter.DeleteImage(ctx, user.ID, id, imageID); err != nil {
			switch {
			case errors.Is(err, market.ErrNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product not found"))
			case errors.Is(err, market.ErrImageNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Image not found"))
			default:
				log.Error("failed to delete image", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		render.JSON(w, r, resp.Message("Image removed successfully"))
	}
}
