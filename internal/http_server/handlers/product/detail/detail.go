package detail

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/http_server/handlers/product"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/market"
	"marketplace/internal/models"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type Response struct {
	resp.Response
	Product product.Details `json:"product"`
}

type DetailsProvider interface {
	Details(ctx context.Context, id uuid.UUID) (models.Product, models.Seller, error)
}

func New(log *slog.Logger, provider DetailsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.product.detail.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.Error("Invalid product id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		p, seller, err := provider.Details(ctx, id)
		if err != nil {
			if errors.Is(err, market.ErrNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product not found"))

				return
			}

			log.Error("failed to load product", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Product:  product.NewDetails(p, seller),
		})
	}
}
