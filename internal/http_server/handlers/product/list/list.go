package list

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/http_server/handlers/product"
	"marketplace/internal/http_server/middleware/authn"
	"marketplace/internal/images"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/api/upload"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/market"
	"marketplace/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Response struct {
	resp.Response
	ID string `json:"id"`
}

type ProductLister interface {
	ListProduct(ctx context.Context, ownerID uuid.UUID, in market.ProductInput, files [][]byte) (models.Product, error)
}

func New(log *slog.Logger, validate *validator.Validate, maxUploadSize int64, lister ProductLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.product.list.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if err := upload.ParseForm(w, r, maxUploadSize); err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, upload.ErrTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}

			render.Status(r, status)
			render.JSON(w, r, resp.Error("Failed to read upload"))

			return
		}

		form := product.ReadForm(r)
		if err := validate.Struct(form); err != nil {
			var validateErr validator.ValidationErrors
			errors.As(err, &validateErr)

			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		price, err := product.ParsePrice(form.Price)
		if err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.Error("Invalid price"))

			return
		}

		date, err := product.ParseDate(form.PurchasingDate)
		if err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.Error("Invalid purchasing date"))

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

		p, err := lister.ListProduct(ctx, user.ID, market.ProductInput{
			Name:           form.Name,
			Description:    form.Description,
			Category:       form.Category,
			Price:          price,
			PurchasingDate: date,
		}, files)
		if err != nil {
			switch {
			case errors.Is(err, images.ErrNotImage):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Invalid file type, files must be image type"))
			case errors.Is(err, market.ErrInvalidCategory):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Invalid category"))
			case errors.Is(err, market.ErrTooManyImages):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Image files cannot be more than 5"))
			default:
				log.Error("failed to list product", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response: resp.Message("Added new product!"),
			ID:       p.ID.String(),
		})
	}
}
