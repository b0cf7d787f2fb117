package list

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace/internal/http_server/middleware/authn"
	"marketplace/internal/lib/api/validate"
	"marketplace/internal/market"
	"marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type listerFunc func(ctx context.Context, owner uuid.UUID, in market.ProductInput, files [][]byte) (models.Product, error)

func (f listerFunc) ListProduct(ctx context.Context, owner uuid.UUID, in market.ProductInput, files [][]byte) (models.Product, error) {
	return f(ctx, owner, in, files)
}

func multipartBody(t *testing.T, fields map[string]string, images int) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for i := 0; i < images; i++ {
		fw, err := mw.CreateFormFile("images", "photo.png")
		require.NoError(t, err)
		_, err = fw.Write([]byte("png bytes"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func validFields() map[string]string {
	return map[string]string{
		"name":           "Bike",
		"description":    "Red road bike",
		"category":       "Sports",
		"price":          "250.00",
		"purchasingDate": "2024-05-01",
	}
}

func TestList(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := validate.New(market.Categories)
	owner := models.User{ID: uuid.New()}

	var got market.ProductInput
	var gotFiles int
	h := New(log, v, 1<<20, listerFunc(func(_ context.Context, o uuid.UUID, in market.ProductInput, files [][]byte) (models.Product, error) {
		require.Equal(t, owner.ID, o)
		got = in
		gotFiles = len(files)
		return models.Product{ID: uuid.New()}, nil
	}))

	send := func(fields map[string]string, images int) int {
		body, ct := multipartBody(t, fields, images)
		req := httptest.NewRequest(http.MethodPost, "/product/list", body)
		req.Header.Set("Content-Type", ct)
		req = req.WithContext(authn.WithUser(req.Context(), owner))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusCreated, send(validFields(), 2))
	require.Equal(t, "Bike", got.Name)
	require.Equal(t, "250", got.Price.String())
	require.Equal(t, 2024, got.PurchasingDate.Year())
	require.Equal(t, 2, gotFiles)

	require.Equal(t, http.StatusUnprocessableEntity, send(validFields(), market.MaxImages+1))

	bad := validFields()
	bad["category"] = "Spaceships"
	require.Equal(t, http.StatusUnprocessableEntity, send(bad, 0))

	bad = validFields()
	bad["price"] = "free"
	require.Equal(t, http.StatusUnprocessableEntity, send(bad, 0))

	bad = validFields()
	delete(bad, "name")
	require.Equal(t, http.StatusUnprocessableEntity, send(bad, 0))
}
