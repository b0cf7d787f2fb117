package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/auth"
	"marketplace/internal/config"
	"marketplace/internal/http_server/handlers/forgetpass"
	"marketplace/internal/http_server/handlers/product/bycategory"
	"marketplace/internal/http_server/handlers/product/detail"
	"marketplace/internal/http_server/handlers/product/latest"
	"marketplace/internal/http_server/handlers/product/list"
	"marketplace/internal/http_server/handlers/product/listings"
	"marketplace/internal/http_server/handlers/product/remove"
	"marketplace/internal/http_server/handlers/product/removeimage"
	"marketplace/internal/http_server/handlers/product/update"
	"marketplace/internal/http_server/handlers/profile"
	"marketplace/internal/http_server/handlers/refresh"
	"marketplace/internal/http_server/handlers/resendverify"
	"marketplace/internal/http_server/handlers/resetpass"
	"marketplace/internal/http_server/handlers/signin"
	"marketplace/internal/http_server/handlers/signout"
	"marketplace/internal/http_server/handlers/signup"
	"marketplace/internal/http_server/handlers/updateavatar"
	"marketplace/internal/http_server/handlers/updateprofile"
	"marketplace/internal/http_server/handlers/verify"
	"marketplace/internal/http_server/handlers/verifyreset"
	"marketplace/internal/http_server/middleware/authn"
	"marketplace/internal/http_server/middleware/ratelimit"
	"marketplace/internal/images"
	"marketplace/internal/lib/api/validate"
	"marketplace/internal/lib/jwt"
	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/lib/metrics"
	"marketplace/internal/market"
	"marketplace/internal/models"
	"marketplace/internal/onetime"
	"marketplace/internal/rabbitmq"
	"marketplace/internal/storage/postgres"
	"marketplace/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting marketplace", slog.String("env", cfg.Env))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", sl.Err(err))
		os.Exit(1)
	}
	defer storage.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	imageStorage, err := images.New(ctx, cfg.S3)
	if err != nil {
		log.Error("failed to init image storage", sl.Err(err))
		os.Exit(1)
	}

	limiter, closeLimiter, err := setupMailLimiter(ctx, log, cfg.Redis)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer closeLimiter()

	verifyTokens := onetime.New(models.PurposeEmailVerification, cfg.Tokens.VerificationTokenTTL, storage)
	resetTokens := onetime.New(models.PurposePasswordReset, cfg.Tokens.ResetTokenTTL, storage)

	authService := auth.New(log, auth.Deps{
		UserSaver:    storage,
		UserProvider: storage,
		Sessions:     storage,
		Issuer:       jwt.NewIssuer(cfg.Tokens.Secret, cfg.Tokens.AccessTokenTTL),
		VerifyTokens: verifyTokens,
		ResetTokens:  resetTokens,
		Publisher:    msgBroker,
		Limiter:      limiter,
		Images:       imageStorage,
	}, cfg.Links, cfg.RateLimit.MailPerHour)

	marketService := market.New(log, storage, imageStorage)

	go onetime.RunJanitor(ctx, log, cfg.Tokens.PurgeInterval, verifyTokens, resetTokens)

	router := setupRouter(log, cfg, authService, marketService)

	srv := &http.Server{
		Addr:              cfg.HTTPServer.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTPServer.Timeout,
		ReadTimeout:       cfg.HTTPServer.ReadTimeout,
		WriteTimeout:      cfg.HTTPServer.WriteTimeout,
		IdleTimeout:       cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", sl.Err(err))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", sl.Err(err))
	} else {
		log.Info("server stopped gracefully")
	}

	log.Info("marketplace stopped")
}

// setupMailLimiter keeps per-email counters in redis, or in memory when no
// address is configured.
func setupMailLimiter(ctx context.Context, log *slog.Logger, cfg config.Redis) (auth.MailLimiter, func(), error) {
	if cfg.Addr == "" {
		log.Warn("redis address is empty, mail limits are kept in memory")
		return ratelimit.NewMemory(), func() {}, nil
	}

	repo, err := redis.New(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, err
	}

	return repo, repo.Close, nil
}

func setupRouter(log *slog.Logger, cfg *config.Config, authService *auth.Auth, marketService *market.Market) *chi.Mux {
	v := validate.New(market.Categories)
	maxUpload := cfg.HTTPServer.MaxUploadSize

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Heartbeat("/ping"))

	r.Handle("/metrics", metrics.Handler(metrics.NewRegistry()))

	requireUser := authn.New(log, authService)

	r.Route("/auth", func(r chi.Router) {
		authRoutes(r, log, v, maxUpload, authService, requireUser)
	})

	r.Route("/product", func(r chi.Router) {
		r.Get("/detail/{id}", detail.New(log, marketService))
		r.Get("/by-category/{category}", bycategory.New(log, marketService))
		r.Get("/latest", latest.New(log, marketService))

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.With(ratelimit.Upload()).Post("/list", list.New(log, v, maxUpload, marketService))
			r.With(ratelimit.Upload()).Patch("/{id}", update.New(log, maxUpload, marketService))
			r.Delete("/{id}", remove.New(log, marketService))
			r.Delete("/image/{productId}/*", removeimage.New(log, marketService))
			r.Get("/listings", listings.New(log, marketService))
		})
	})

	return r
}

func authRoutes(
	r chi.Router,
	log *slog.Logger,
	v *validator.Validate,
	maxUpload int64,
	authService *auth.Auth,
	requireUser func(http.Handler) http.Handler,
) {
	r.With(ratelimit.SignUp()).Post("/sign-up", signup.New(log, v, authService))
	r.With(ratelimit.Verify()).Post("/verify", verify.New(log, v, authService))
	r.With(ratelimit.SignIn()).Post("/sign-in", signin.New(log, v, authService))
	r.With(ratelimit.Refresh()).Post("/refresh-token", refresh.New(log, v, authService))
	r.With(ratelimit.Mail()).Post("/forget-pass", forgetpass.New(log, v, authService))
	r.With(ratelimit.Verify()).Post("/verify-pass-reset-token", verifyreset.New(log, v, authService))
	r.With(ratelimit.Verify()).Post("/reset-pass", resetpass.New(log, v, authService))
	r.Get("/profile/{id}", profile.Public(log, authService))

	r.Group(func(r chi.Router) {
		r.Use(requireUser)

		r.With(ratelimit.Mail()).Get("/verify-token", resendverify.New(log, authService))
		r.With(ratelimit.SignOut()).Post("/sign-out", signout.New(log, v, authService))
		r.Get("/profile", profile.Own())
		r.Patch("/update-profile", updateprofile.New(log, v, authService))
		r.With(ratelimit.Upload()).Patch("/update-avatar", updateavatar.New(log, maxUpload, authService))
	})
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
