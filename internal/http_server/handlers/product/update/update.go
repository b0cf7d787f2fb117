package update

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"marketplace/internal/http_server/handlers/product"
	"marketplace/internal/http_server/middleware/authn"
	"marketplace/internal/images"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/api/upload"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/market"
	"marketplace/internal/models"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type ProductUpdater interface {
	UpdateProduct(
		ctx context.Context,
		ownerID, id uuid.UUID,
		patch market.ProductPatch,
		files [][]byte,
	) (models.Product, error)
}

func New(log *slog.Logger, maxUploadSize int64, updater ProductUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.product.update.New"

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

		if err := upload.ParseForm(w, r, maxUploadSize); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, upload.ErrTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}

			render.Status(r, status)
			render.JSON(w, r, resp.Error("Failed to read upload"))

			return
		}

		patch, err := readPatch(product.ReadForm(r))
		if err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			if errors.Is(err, product.ErrInvalidPrice) {
				render.JSON(w, r, resp.Error("Invalid price"))
			} else {
				render.JSON(w, r, resp.Error("Invalid purchasing date"))
			}

			return
		}

		files, err := upload.Files(r, "images", market.MaxImages)
		if err != nil {
			if errors.Is(err, upload.ErrTooManyFiles) {
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Image files cannot be more than 5"))

				return
			}

			log.Error("failed to read images", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to read upload"))

			return
		}

		user, _ := authn.UserFromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		if _, err := updater.UpdateProduct(ctx, user.ID, id, patch, files); err != nil {
			switch {
			case errors.Is(err, market.ErrNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("Product not found"))
			case errors.Is(err, images.ErrNotImage):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Invalid file type, files must be image type"))
			case errors.Is(err, market.ErrInvalidCategory):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Invalid category"))
			case errors.Is(err, market.ErrTooManyImages):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Image files cannot be more than 5"))
			case errors.Is(err, market.ErrInvalidThumbnail):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Thumbnail must be one of the product images"))
			default:
				log.Error("failed to update product", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		render.JSON(w, r, resp.Message("Product updated successfully"))
	}
}

// readPatch keeps empty form fields unset.
func readPatch(form product.Form) (market.ProductPatch, error) {
	patch := market.ProductPatch{
		Name:        form.Name,
		Description: form.Description,
		Category:    strings.TrimSpace(form.Category),
		Thumbnail:   form.Thumbnail,
	}

	if form.Price != "" {
		price, err := product.ParsePrice(form.Price)
		if err != nil {
			return market.ProductPatch{}, err
		}
		patch.Price = &price
	}

	if form.PurchasingDate != "" {
		date, err := product.ParseDate(form.PurchasingDate)
		if err != nil {
			return market.ProductPatch{}, err
		}
		patch.PurchasingDate = &date
	}

	return patch, nil
}
