package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
	"github.com/ecobalance/dashboard/internal/dashboard/telemetry"
	"github.com/ecobalance/dashboard/pkg/slogx"
)

// FeedSource is where readings come from; *telemetry.Client in production.
type FeedSource interface {
	Feed(ctx context.Context, q telemetry.Query) ([]domain.Reading, error)
}

// PersistResult tallies one Persist call.
type PersistResult struct {
	Inserted int
	Existing int
	Failed   int
}

// IngestService pulls readings from the provider and records them. It is
// best effort throughout: nothing here returns an error to the caller.
type IngestService struct {
	Source FeedSource
	Store  store.Store
}

// Fetch returns the provider's readings for [start, end], or the most
// recent ones when either bound is nil. Failures yield an empty slice.
func (s *IngestService) Fetch(ctx context.Context, start, end *time.Time) []domain.Reading {
	readings, err := s.Source.Feed(ctx, telemetry.Query{Start: start, End: end})
	if err != nil {
		slogx.FromContext(ctx).Error("telemetry fetch failed", slog.Any("error", err))
		return []domain.Reading{}
	}
	return readings
}

// Persist upserts each reading by entry id. A failing row is logged and
// counted, and the loop carries on.
func (s *IngestService) Persist(ctx context.Context, readings []domain.Reading) PersistResult {
	l := slogx.FromContext(ctx)

	var res PersistResult
	for _, rd := range readings {
		outcome, err := s.Store.Readings().UpsertReading(ctx, rd)
		if err != nil {
			res.Failed++
			l.Error("failed to persist reading", slog.Int64("entry_id", rd.EntryID), slog.Any("error", err))
			continue
		}

		switch outcome {
		case domain.UpsertInserted:
			res.Inserted++
		default:
			res.Existing++
		}
	}

	if res.Inserted > 0 || res.Failed > 0 {
		l.Info("readings persisted",
			slog.Int("inserted", res.Inserted),
			slog.Int("existing", res.Existing),
			slog.Int("failed", res.Failed),
		)
	}
	return res
}

// Refresh fetches then persists. The fetched readings are returned whatever
// happened to persistence.
func (s *IngestService) Refresh(ctx context.Context, start, end *time.Time) []domain.Reading {
	readings := s.Fetch(ctx, start, end)
	if len(readings) > 0 {
		s.Persist(ctx, readings)
	}
	return readings
}
