package updateavatar

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/http_server/middleware/authn"
	"marketplace/internal/images"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/lib/api/upload"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
)

type Response struct {
	resp.Response
	Profile models.Profile `json:"profile"`
}

type AvatarUpdater interface {
	UpdateAvatar(ctx context.Context, userID uuid.UUID, data []byte) (models.Profile, error)
}

func New(log *slog.Logger, maxUploadSize int64, updater AvatarUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.updateavatar.New"

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

		data, err := upload.File(r, "avatar")
		if err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			if errors.Is(err, upload.ErrMultipleFiles) {
				render.JSON(w, r, resp.Error("Multiple files are not allowed"))
			} else {
				render.JSON(w, r, resp.Error("Avatar file is missing"))
			}

			return
		}

		user, _ := authn.UserFromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		profile, err := updater.UpdateAvatar(ctx, user.ID, data)
		if err != nil {
			switch {
			case errors.Is(err, images.ErrNotImage):
				render.Status(r, http.StatusUnprocessableEntity)
				render.JSON(w, r, resp.Error("Invalid image file"))
			case errors.Is(err, auth.ErrNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))
			default:
				log.Error("failed to update avatar", sl.Err(err))
				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		render.JSON(w, r, Response{Response: resp.OK(), Profile: profile})
	}
}
