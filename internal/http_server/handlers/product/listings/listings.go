package listings

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/http_server/handlers/product"
	"marketplace/internal/http_server/middleware/authn"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type Response struct {
	resp.Response
	Products []product.Details `json:"products"`
}

type ListingsProvider interface {
	Listings(ctx context.Context, ownerID uuid.UUID, page, pageSize int) ([]models.Product, error)
}

// New lists the caller's own products with full details.
func New(log *slog.Logger, provider ListingsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.product.listings.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user, _ := authn.UserFromContext(r.Context())
		page, pageSize := product.PageParams(r)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		products, err := provider.Listings(ctx, user.ID, page, pageSize)
		if err != nil {
			log.Error("failed to load listings", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		profile := user.Profile()
		seller := models.Seller{ID: profile.ID, Name: profile.Name, Avatar: profile.Avatar}

		out := make([]product.Details, 0, len(products))
		for _, p := range products {
			out = append(out, product.NewDetails(p, seller))
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Products: out,
		})
	}
}
