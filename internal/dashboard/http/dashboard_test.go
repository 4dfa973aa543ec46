package http

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
)

func ptr(v float64) *float64 { return &v }

func TestBuildReadingsResponse(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	now := time.Date(2024, 3, 1, 15, 0, 5, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		resp := BuildReadingsResponse(nil, loc, now)
		require.Equal(t, "empty", resp.Status)
		require.Equal(t, "Waiting for data...", resp.Title)
		require.Equal(t, "--", resp.Organic.KPI)
		require.Equal(t, "--", resp.Recyclable.KPI)
		require.NotNil(t, resp.Organic.Points)
		require.Equal(t, "2024-03-01T12:00:05-03:00", resp.GeneratedAt)
	})

	t.Run("series in display zone", func(t *testing.T) {
		readings := []domain.Reading{
			{EntryID: 1, CreatedAt: time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC), Field1: ptr(12.34), Field2: nil},
			{EntryID: 2, CreatedAt: time.Date(2024, 3, 1, 15, 0, 15, 0, time.UTC), Field1: nil, Field2: ptr(87.66)},
		}

		resp := BuildReadingsResponse(readings, loc, now)
		require.Equal(t, "ok", resp.Status)
		require.Empty(t, resp.Title)
		require.Equal(t, "America/Sao_Paulo", resp.Timezone)

		require.Len(t, resp.Organic.Points, 2)
		require.Equal(t, "2024-03-01T12:00:00-03:00", resp.Organic.Points[0].T)
		require.InDelta(t, 12.34, *resp.Organic.Points[0].Y, 1e-9)
		require.Nil(t, resp.Organic.Points[1].Y)
		require.Nil(t, resp.Recyclable.Points[0].Y)

		// KPIs follow the most recent reading only.
		require.Equal(t, "-", resp.Organic.KPI)
		require.Equal(t, "87.7", resp.Recyclable.KPI)
	})
}

func TestFormatKPI(t *testing.T) {
	require.Equal(t, "-", formatKPI(nil))
	require.Equal(t, "0.0", formatKPI(ptr(0)))
	require.Equal(t, "42.5", formatKPI(ptr(42.5)))
	require.Equal(t, "100.0", formatKPI(ptr(99.96)))
}

func TestParseRange(t *testing.T) {
	loc := time.UTC

	tests := []struct {
		name      string
		query     string
		wantRange bool
		wantErr   bool
	}{
		{name: "none", query: ""},
		{name: "start only", query: "start=2024-03-01"},
		{name: "end only", query: "end=2024-03-01"},
		{name: "both", query: "start=2024-03-01&end=2024-03-02", wantRange: true},
		{name: "same day", query: "start=2024-03-01&end=2024-03-01", wantRange: true},
		{name: "reversed", query: "start=2024-03-02&end=2024-03-01", wantErr: true},
		{name: "malformed", query: "start=2024/03/01&end=2024-03-02", wantErr: true},
		{name: "malformed lone date", query: "start=yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/dashboard/api/readings?"+tt.query, nil)
			start, end, err := parseRange(r, loc)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantRange, start != nil && end != nil)
			if !tt.wantRange {
				require.Nil(t, start)
				require.Nil(t, end)
			}
		})
	}
}
