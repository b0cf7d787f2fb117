package onetime

import (
	"context"
	"log/slog"
	"time"

	"marketplace/internal/lib/logger/sl"
	"marketplace/internal/lib/metrics"
)

// RunJanitor purges expired tokens of every store each interval until ctx is done.
func RunJanitor(ctx context.Context, log *slog.Logger, interval time.Duration, stores ...*Store) {
	log = log.With(slog.String("op", "onetime.RunJanitor"))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeAll(ctx, log, stores)
		}
	}
}

func purgeAll(ctx context.Context, log *slog.Logger, stores []*Store) {
	for _, s := range stores {
		n, err := s.Purge(ctx)
		if err != nil {
			log.Error("failed to purge tokens", slog.String("purpose", string(s.Purpose())), sl.Err(err))
			continue
		}
		if n == 0 {
			continue
		}

		metrics.OneTimeTokensPurged.WithLabelValues(string(s.Purpose())).Add(float64(n))
		log.Debug("expired tokens purged", slog.String("purpose", string(s.Purpose())), slog.Int64("count", n))
	}
}
