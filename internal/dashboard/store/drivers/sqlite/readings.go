package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
)

type readingsRepo struct {
	q querier
}

// UpsertReading relies on revision starting at 1 on insert and being bumped
// on every conflict, so the returned revision tells the two cases apart.
func (r *readingsRepo) UpsertReading(ctx context.Context, rd domain.Reading) (domain.UpsertOutcome, error) {
	payload := string(rd.Payload)
	if payload == "" {
		payload = "{}"
	}
	now := toMillis(time.Now())

	var revision int64
	err := r.q.QueryRowContext(ctx,
		`INSERT INTO sensor_readings (entry_id, created_at, field1, field2, payload, revision, first_seen_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT (entry_id) DO UPDATE SET
		     created_at = excluded.created_at,
		     field1     = excluded.field1,
		     field2     = excluded.field2,
		     payload    = excluded.payload,
		     revision   = sensor_readings.revision + 1,
		     updated_at = excluded.updated_at
		 RETURNING revision`,
		rd.EntryID, toMillis(rd.CreatedAt),
		mapOptionalFloat(rd.Field1), mapOptionalFloat(rd.Field2),
		payload, now, now,
	).Scan(&revision)
	if err != nil {
		return 0, fmt.Errorf("upsert reading %d: %w", rd.EntryID, err)
	}

	if revision == 1 {
		return domain.UpsertInserted, nil
	}
	return domain.UpsertUpdated, nil
}

func (r *readingsRepo) GetReading(ctx context.Context, entryID int64) (domain.Reading, error) {
	var (
		rd             domain.Reading
		createdAt      int64
		field1, field2 sql.NullFloat64
		payload        string
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT entry_id, created_at, field1, field2, payload FROM sensor_readings WHERE entry_id = ?`,
		entryID,
	).Scan(&rd.EntryID, &createdAt, &field1, &field2, &payload)
	if err != nil {
		return domain.Reading{}, mapNotFound(err)
	}

	rd.CreatedAt = fromMillis(createdAt)
	rd.Field1 = mapNullFloat(field1)
	rd.Field2 = mapNullFloat(field2)
	rd.Payload = []byte(payload)
	return rd, nil
}

func (r *readingsRepo) CountReadings(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_readings`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
