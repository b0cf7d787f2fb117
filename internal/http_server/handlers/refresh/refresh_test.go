package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"marketplace/internal/auth"
	"marketplace/internal/lib/api/validate"
	"marketplace/internal/models"

	"github.com/stretchr/testify/require"
)

type refresherFunc func(ctx context.Context, token string) (models.TokenPair, error)

func (f refresherFunc) Refresh(ctx context.Context, token string) (models.TokenPair, error) {
	return f(ctx, token)
}

func TestRefresh(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := validate.New(nil)

	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{name: "ok", body: `{"refresh_token":"r1"}`, status: http.StatusOK},
		{name: "missing token", body: `{}`, status: http.StatusForbidden},
		{name: "invalid", body: `{"refresh_token":"r1"}`, err: auth.ErrInvalidToken, status: http.StatusForbidden},
		{name: "expired", body: `{"refresh_token":"r1"}`, err: auth.ErrSessionExpired, status: http.StatusForbidden},
		{name: "reused", body: `{"refresh_token":"r1"}`, err: auth.ErrUnauthorized, status: http.StatusUnauthorized},
		{name: "storage down", body: `{"refresh_token":"r1"}`, err: errors.New("db"), status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := New(log, v, refresherFunc(func(_ context.Context, token string) (models.TokenPair, error) {
				require.Equal(t, "r1", token)
				return models.TokenPair{Access: "a2", Refresh: "r2"}, tc.err
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/refresh-token", strings.NewReader(tc.body)))
			require.Equal(t, tc.status, rec.Code)

			if tc.status == http.StatusOK {
				var body Response
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				require.Equal(t, models.TokenPair{Access: "a2", Refresh: "r2"}, body.Tokens)
			}
		})
	}
}
