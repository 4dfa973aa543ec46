package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/service"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
	"github.com/ecobalance/dashboard/pkg/httpx"
	"github.com/ecobalance/dashboard/pkg/slogx"
)

const (
	dateLayout = "2006-01-02"

	emptyTitle   = "Waiting for data..."
	kpiNoData    = "--"
	kpiNoValue   = "-"
	readingsPath = "/dashboard/api/readings"
)

// ReadingsResponse is what the dashboard page polls.
type ReadingsResponse struct {
	Status      string      `json:"status" example:"ok" enums:"ok,empty"`
	Title       string      `json:"title,omitempty" example:"Waiting for data..."`
	Mode        string      `json:"mode" example:"live" enums:"live,range"`
	Start       string      `json:"start,omitempty" example:"2024-03-01"`
	End         string      `json:"end,omitempty" example:"2024-03-02"`
	Timezone    string      `json:"timezone" example:"America/Sao_Paulo"`
	Organic     ChartSeries `json:"organic"`
	Recyclable  ChartSeries `json:"recyclable"`
	GeneratedAt string      `json:"generated_at" example:"2024-03-01T12:00:05-03:00"`
}

// ChartSeries is one line chart plus its KPI card.
type ChartSeries struct {
	Label  string       `json:"label" example:"Organic level"`
	KPI    string       `json:"kpi" example:"42.5"`
	Points []ChartPoint `json:"points"`
}

// StoredReading is one persisted row as the dashboard recorded it.
type StoredReading struct {
	EntryID    int64           `json:"entry_id" example:"1042"`
	CreatedAt  string          `json:"created_at" example:"2024-03-01T12:00:00-03:00"`
	Organic    *float64        `json:"organic" example:"42.5"`
	Recyclable *float64        `json:"recyclable" example:"61"`
	Payload    json.RawMessage `json:"payload" swaggertype:"object"`
}

// ChartPoint is a single sample; Y is null where the device sent nothing usable.
type ChartPoint struct {
	T string   `json:"t" example:"2024-03-01T12:00:00-03:00"`
	Y *float64 `json:"y"`
}

// BuildReadingsResponse turns fetched readings into chart series in loc.
func BuildReadingsResponse(readings []domain.Reading, loc *time.Location, now time.Time) ReadingsResponse {
	resp := ReadingsResponse{
		Status:      "ok",
		Mode:        "live",
		Timezone:    loc.String(),
		Organic:     ChartSeries{Label: "Organic level", KPI: kpiNoData, Points: []ChartPoint{}},
		Recyclable:  ChartSeries{Label: "Recyclable level", KPI: kpiNoData, Points: []ChartPoint{}},
		GeneratedAt: now.In(loc).Format(time.RFC3339),
	}

	if len(readings) == 0 {
		resp.Status = "empty"
		resp.Title = emptyTitle
		return resp
	}

	for _, rd := range readings {
		ts := rd.CreatedAt.In(loc).Format(time.RFC3339)
		resp.Organic.Points = append(resp.Organic.Points, ChartPoint{T: ts, Y: rd.Field1})
		resp.Recyclable.Points = append(resp.Recyclable.Points, ChartPoint{T: ts, Y: rd.Field2})
	}

	last := readings[len(readings)-1]
	resp.Organic.KPI = formatKPI(last.Field1)
	resp.Recyclable.KPI = formatKPI(last.Field2)
	return resp
}

func formatKPI(v *float64) string {
	if v == nil {
		return kpiNoValue
	}
	return fmt.Sprintf("%.1f", *v)
}

// DashboardHandler serves the protected dashboard page and its data endpoint.
type DashboardHandler struct {
	Ingest          *service.IngestService
	Readings        store.Readings
	Location        *time.Location
	RefreshInterval time.Duration

	Now func() time.Time
}

func (h *DashboardHandler) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func (h *DashboardHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *DashboardHandler) HandlePage(w http.ResponseWriter, r *http.Request) {
	username, _ := httpx.UsernameFromContext(r.Context())

	interval := h.RefreshInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	render(w, r, http.StatusOK, "dashboard.html", pageData{
		Title:       "EcoBalance",
		Username:    username,
		RefreshMS:   interval.Milliseconds(),
		DisplayZone: h.location().String(),
		APIPath:     readingsPath,
	})
}

// parseRange reads the optional start/end query parameters. Both must be
// present for a ranged query; a lone date falls back to live mode.
func parseRange(r *http.Request, loc *time.Location) (start, end *time.Time, err error) {
	q := r.URL.Query()
	rawStart, rawEnd := q.Get("start"), q.Get("end")

	parse := func(name, raw string) (*time.Time, error) {
		if raw == "" {
			return nil, nil
		}
		t, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			return nil, fmt.Errorf("%s must be YYYY-MM-DD", name)
		}
		return &t, nil
	}

	if start, err = parse("start", rawStart); err != nil {
		return nil, nil, err
	}
	if end, err = parse("end", rawEnd); err != nil {
		return nil, nil, err
	}

	if start == nil || end == nil {
		return nil, nil, nil
	}
	if start.After(*end) {
		return nil, nil, fmt.Errorf("start must not be after end")
	}
	return start, end, nil
}

// HandleReadings godoc
//
//	@Summary		Chart data for the dashboard
//	@Description	Fetches readings from the telemetry provider, records them, and returns both chart series with their KPI values.
//	@Description	With both start and end the provider is queried for whole days in that range; otherwise the most recent readings are returned (live mode).
//	@Description	Requires an authenticated session cookie (password and MFA). Unauthenticated requests are redirected to /login.
//	@Tags			Dashboard
//	@Produce		json
//	@Param			start	query		string				false	"First day, YYYY-MM-DD"	example(2024-03-01)
//	@Param			end		query		string				false	"Last day, YYYY-MM-DD"	example(2024-03-02)
//	@Success		200		{object}	ReadingsResponse	"chart series and KPIs"
//	@Failure		400		{object}	map[string]string	"malformed date or start after end"
//	@Failure		302		{string}	string				"redirect to /login"
//	@Router			/dashboard/api/readings [get]
func (h *DashboardHandler) HandleReadings(w http.ResponseWriter, r *http.Request) {
	loc := h.location()

	start, end, err := parseRange(r, loc)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	readings := h.Ingest.Refresh(r.Context(), start, end)

	resp := BuildReadingsResponse(readings, loc, h.now())
	if start != nil {
		resp.Mode = "range"
		resp.Start = start.Format(dateLayout)
		resp.End = end.Format(dateLayout)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleStoredReading godoc
//
//	@Summary		Stored reading by entry id
//	@Description	Returns the reading as last persisted, including the raw provider payload. Useful to check what a chart point was built from.
//	@Description	Requires an authenticated session cookie (password and MFA).
//	@Tags			Dashboard
//	@Produce		json
//	@Param			entry_id	path		int					true	"Provider entry id"
//	@Success		200			{object}	StoredReading		"the stored reading"
//	@Failure		400			{object}	map[string]string	"entry id is not a positive integer"
//	@Failure		404			{object}	map[string]string	"no reading with that entry id"
//	@Router			/dashboard/api/readings/{entry_id} [get]
func (h *DashboardHandler) HandleStoredReading(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(r.PathValue("entry_id"), 10, 64)
	if err != nil || entryID <= 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "entry_id must be a positive integer")
		return
	}

	rd, err := h.Readings.GetReading(r.Context(), entryID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "no reading with that entry id")
		return
	default:
		slogx.FromContext(r.Context()).Error("failed to load reading", slog.Int64("entry_id", entryID), slog.Any("error", err))
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "failed to load reading")
		return
	}

	payload := json.RawMessage(rd.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage(`{}`)
	}

	httpx.WriteJSON(w, http.StatusOK, StoredReading{
		EntryID:    rd.EntryID,
		CreatedAt:  rd.CreatedAt.In(h.location()).Format(time.RFC3339),
		Organic:    rd.Field1,
		Recyclable: rd.Field2,
		Payload:    payload,
	})
}
