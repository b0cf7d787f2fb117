package latest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/http_server/handlers/product"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Products []product.Listing `json:"products"`
}

type LatestProvider interface {
	Latest(ctx context.Context) ([]models.Product, error)
}

func New(log *slog.Logger, provider LatestProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.product.latest.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		products, err := provider.Latest(ctx)
		if err != nil {
			log.Error("failed to load products", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Products: product.NewListings(products),
		})
	}
}
