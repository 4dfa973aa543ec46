// Package telemetry reads sensor feeds from a ThingSpeak-compatible API.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
)

const (
	DefaultBaseURL = "https://api.thingspeak.com"
	DefaultResults = 100

	dateLayout = "2006-01-02"

	// Appended to the formatted date. The digits in "23:59:59" are layout
	// tokens, so the clock part can never go through Format.
	dayStartClock = " 00:00:00"
	dayEndClock   = " 23:59:59"

	maxBodyBytes = 8 << 20
)

var (
	ErrStatus    = errors.New("telemetry: unexpected status")
	ErrMalformed = errors.New("telemetry: malformed response")
)

type Config struct {
	BaseURL    string
	ChannelID  string
	ReadAPIKey string

	// Timezone is forwarded as the provider's timezone parameter on range
	// queries, so day boundaries are local to the installation.
	Timezone string

	// Results bounds the live (unfiltered) query.
	Results int
	Timeout time.Duration
}

// Query selects a feed window. Only the calendar date of Start and End is
// used. When either is nil the most recent readings are requested instead.
type Query struct {
	Start *time.Time
	End   *time.Time
}

func (q Query) Ranged() bool { return q.Start != nil && q.End != nil }

type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a client. A nil hc gets a default client bounded by
// cfg.Timeout.
func NewClient(cfg Config, hc *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Results <= 0 {
		cfg.Results = DefaultResults
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc}
}

// FeedURL renders the request URL for q.
func (c *Client) FeedURL(q Query) string {
	params := url.Values{}
	if c.cfg.ReadAPIKey != "" {
		params.Set("api_key", c.cfg.ReadAPIKey)
	}
	if q.Ranged() {
		params.Set("start", q.Start.Format(dateLayout)+dayStartClock)
		params.Set("end", q.End.Format(dateLayout)+dayEndClock)
		if c.cfg.Timezone != "" {
			params.Set("timezone", c.cfg.Timezone)
		}
	} else {
		params.Set("results", strconv.Itoa(c.cfg.Results))
	}

	base := strings.TrimRight(c.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/channels/%s/feeds.json?%s", base, url.PathEscape(c.cfg.ChannelID), params.Encode())
}

// Feed fetches the readings selected by q in provider order (oldest first).
func (c *Client) Feed(ctx context.Context, q Query) ([]domain.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FeedURL(q), nil)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telemetry: request feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("telemetry: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	return decodeFeed(body)
}

type feedEnvelope struct {
	Feeds []json.RawMessage `json:"feeds"`
}

type feedEntry struct {
	EntryID   int64           `json:"entry_id"`
	CreatedAt time.Time       `json:"created_at"`
	Field1    json.RawMessage `json:"field1"`
	Field2    json.RawMessage `json:"field2"`
}

// decodeFeed accepts a missing feeds array as "no data". Entries without a
// usable entry_id or created_at are skipped: they cannot be keyed or plotted.
func decodeFeed(body []byte) ([]domain.Reading, error) {
	var env feedEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	out := make([]domain.Reading, 0, len(env.Feeds))
	for _, raw := range env.Feeds {
		var e feedEntry
		if err := json.Unmarshal(raw, &e); err != nil || e.EntryID <= 0 || e.CreatedAt.IsZero() {
			continue
		}

		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			continue
		}

		out = append(out, domain.Reading{
			EntryID:   e.EntryID,
			CreatedAt: e.CreatedAt,
			Field1:    parseField(e.Field1),
			Field2:    parseField(e.Field2),
			Payload:   compact.Bytes(),
		})
	}
	return out, nil
}

// parseField reads a provider field value. Values arrive as strings (or,
// from some proxies, bare numbers); null, blanks and anything non-numeric
// come back as nil.
func parseField(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
