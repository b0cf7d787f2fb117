package authn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace/internal/auth"
	resp "marketplace/internal/lib/api/response"
	"marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator map[string]error

var alice = models.User{ID: uuid.New(), Name: "Alice", Email: "a@x.com"}

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (models.User, error) {
	if err, ok := f[token]; ok {
		return models.User{}, err
	}
	return alice, nil
}

func serve(t *testing.T, header string) (*httptest.ResponseRecorder, *models.User) {
	t.Helper()

	var seen *models.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := UserFromContext(r.Context())
		require.True(t, ok)
		seen = &u
		w.WriteHeader(http.StatusOK)
	})

	authenticator := fakeAuthenticator{
		"expired": fmt.Errorf("auth.Authenticate: %w", auth.ErrSessionExpired),
		"forged":  fmt.Errorf("auth.Authenticate: %w", auth.ErrInvalidToken),
		"ghost":   fmt.Errorf("auth.Authenticate: %w", auth.ErrUnauthorized),
		"db":      errors.New("db down"),
	}
	log := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()

	New(log, authenticator)(next).ServeHTTP(rec, req)

	return rec, seen
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body resp.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestAuthenticated(t *testing.T) {
	rec, user := serve(t, "Bearer good")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, user)
	require.Equal(t, alice.ID, user.ID)
}

func TestRejected(t *testing.T) {
	cases := []struct {
		header string
		code   int
		msg    string
	}{
		{"", http.StatusForbidden, "Unauthorized request"},
		{"Basic abc", http.StatusForbidden, "Unauthorized request"},
		{"Bearer ", http.StatusForbidden, "Unauthorized request"},
		{"Bearer expired", http.StatusForbidden, "Session expired"},
		{"Bearer forged", http.StatusForbidden, "Invalid token"},
		{"Bearer ghost", http.StatusForbidden, "Unauthorized request, user doesn't exist"},
		{"Bearer db", http.StatusInternalServerError, "Internal error"},
	}

	for _, tc := range cases {
		t.Run(tc.header, func(t *testing.T) {
			rec, user := serve(t, tc.header)
			require.Equal(t, tc.code, rec.Code)
			require.Nil(t, user)
			require.Equal(t, tc.msg, errorOf(t, rec))
		})
	}
}
