package ratelimit

import (
	"net/http"
	"time"

	httprate "github.com/go-chi/httprate"
)

func SignIn() func(http.Handler) http.Handler {
	return limitByIP(10, 5*time.Minute)
}

func SignUp() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func Refresh() func(http.Handler) http.Handler {
	return limitByIP(30, 10*time.Minute)
}

func SignOut() func(http.Handler) http.Handler {
	return limitByIP(20, 10*time.Minute)
}

func Verify() func(http.Handler) http.Handler {
	return limitByIP(10, 10*time.Minute)
}

func Mail() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func Upload() func(http.Handler) http.Handler {
	return limitByIP(30, time.Hour)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"status":"error","error":"Too many requests"}`))
		}),
	)
}
