package onetime

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"marketplace/internal/lib/metrics"
	"marketplace/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPurgeAllCountsRemovedTokens(t *testing.T) {
	repo := newMemStore()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	verify := New(models.PurposeEmailVerification, time.Hour, repo)
	reset := New(models.PurposePasswordReset, time.Hour, repo)

	_, err := verify.Create(ctx, uuid.New())
	require.NoError(t, err)
	_, err = reset.Create(ctx, uuid.New())
	require.NoError(t, err)

	counter := metrics.OneTimeTokensPurged.WithLabelValues(string(models.PurposeEmailVerification))
	before := testutil.ToFloat64(counter)

	later := time.Now().Add(2 * time.Hour)
	verify.now = func() time.Time { return later }

	purgeAll(ctx, log, []*Store{verify, reset})

	require.Len(t, repo.tokens, 1)
	require.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestRunJanitorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		RunJanitor(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Millisecond,
			New(models.PurposePasswordReset, time.Hour, newMemStore()))
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
