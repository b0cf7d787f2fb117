package bycategory

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
)

type Response struct {
	resp.Response
	Products []product.Listing `json:"products"`
}

type CategoryBrowser interface {
	ByCategory(ctx context.Context, category string, page, pageSize int) ([]models.Product, error)
}

func New(log *slog.Logger, browser CategoryBrowser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.product.bycategory.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		page, pageSize := product.PageParams(r)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		products, err := browser.ByCategory(ctx, chi.URLParam(r, "category"), page, pageSize)
		if err != nil {
			if errors.Is(err, market.ErrInvalidCategory) {
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Invalid category"))

				return
			}

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
