package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
)

type readingsRepo struct {
	q querier
}

func (r *readingsRepo) UpsertReading(ctx context.Context, rd domain.Reading) (domain.UpsertOutcome, error) {
	payload := string(rd.Payload)
	if payload == "" {
		payload = "{}"
	}

	var revision int64
	err := r.q.QueryRowContext(ctx,
		`INSERT INTO sensor_readings (entry_id, created_at, field1, field2, payload)
		 VALUES ($1, $2, $3, $4, $5::jsonb)
		 ON CONFLICT (entry_id) DO UPDATE SET
		     created_at = EXCLUDED.created_at,
		     field1     = EXCLUDED.field1,
		     field2     = EXCLUDED.field2,
		     payload    = EXCLUDED.payload,
		     revision   = sensor_readings.revision + 1,
		     updated_at = now()
		 RETURNING revision`,
		rd.EntryID, rd.CreatedAt.UTC(),
		mapOptionalFloat(rd.Field1), mapOptionalFloat(rd.Field2),
		payload,
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
		field1, field2 sql.NullFloat64
		payload        string
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT entry_id, created_at, field1, field2, payload::text FROM sensor_readings WHERE entry_id = $1`,
		entryID,
	).Scan(&rd.EntryID, &rd.CreatedAt, &field1, &field2, &payload)
	if err != nil {
		return domain.Reading{}, mapNotFound(err)
	}

	rd.CreatedAt = rd.CreatedAt.UTC()
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
