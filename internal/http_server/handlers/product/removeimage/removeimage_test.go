package removeimage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace/internal/market"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type deleterFunc func(ctx context.Context, owner, id uuid.UUID, imageID string) error

func (f deleterFunc) DeleteImage(ctx context.Context, owner, id uuid.UUID, imageID string) error {
	return f(ctx, owner, id, imageID)
}

func TestRemoveImageReadsSlashedID(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	productID := uuid.New()

	var gotImage string
	r := chi.NewRouter()
	r.Delete("/product/image/{productId}/*", New(log, deleterFunc(func(_ context.Context, _, id uuid.UUID, imageID string) error {
		require.Equal(t, productID, id)
		gotImage = imageID
		if imageID == "products/2026/01/missing.png" {
			return market.ErrImageNotFound
		}
		return nil
	})))

	do := func(path string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
		return rec.Code
	}

	require.Equal(t, http.StatusOK, do("/product/image/"+productID.String()+"/products/2026/01/a.png"))
	require.Equal(t, "products/2026/01/a.png", gotImage)

	require.Equal(t, http.StatusNotFound, do("/product/image/"+productID.String()+"/products/2026/01/missing.png"))
	require.Equal(t, http.StatusUnprocessableEntity, do("/product/image/not-a-uuid/products/x.png"))
}
