package remove

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

type ProductDeleter interface {
	DeleteProduct(ctx context.Context, ownerID, id uuid.UUID) error
}

func New(log *slog.Logger, deleter ProductDeleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.product.remove.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.Error("Product id not valid"))

			return
		}

		user, _ := authn.UserFromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()

		if err := deleter.DeleteProduct(ctx, user.ID, id); err != nil {
			if errors.Is(err, market.ErrNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product not found"))

				return
			}

			log.Error("failed to delete product", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, resp.Message("Product removed successfully"))
	}
}
