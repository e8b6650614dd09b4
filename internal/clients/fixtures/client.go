// Package fixtures wraps the upstream fixtures feed: upcoming matches, live
// status and recent team form. It is the only component that knows the
// feed's wire shapes; everything downstream works with domain statuses.
package fixtures

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/khchop/kickscore/internal/domain"
	"github.com/khchop/kickscore/internal/platform/envutil"
	"github.com/khchop/kickscore/internal/platform/logger"
)

type Fixture struct {
	ExternalID    string    `json:"id"`
	HomeTeam      string    `json:"home_team"`
	AwayTeam      string    `json:"away_team"`
	CompetitionID string    `json:"competition_id"`
	KickoffAt     time.Time `json:"kickoff_at"`
	Status        string    `json:"status"`
	HomeScore     *int      `json:"home_score,omitempty"`
	AwayScore     *int      `json:"away_score,omitempty"`
}

// FormEntry is one recent result for a team, oldest first.
type FormEntry struct {
	Opponent     string `json:"opponent"`
	GoalsFor     int    `json:"goals_for"`
	GoalsAgainst int    `json:"goals_against"`
	Home         bool   `json:"home"`
}

type Client interface {
	ListUpcoming(ctx context.Context, horizon time.Duration) ([]Fixture, error)
	GetFixture(ctx context.Context, externalID string) (*Fixture, error)
	TeamForm(ctx context.Context, team string, last int) ([]FormEntry, error)
}

type httpClient struct {
	log    *logger.Logger
	base   string
	apiKey string
	httpc  *http.Client
}

func NewClient(log *logger.Logger) Client {
	return &httpClient{
		log:    log.With("client", "Fixtures"),
		base:   envutil.String("FIXTURES_BASE_URL", "https://api.football-feed.example/v1"),
		apiKey: envutil.String("FIXTURES_API_KEY", ""),
		httpc:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *httpClient) ListUpcoming(ctx context.Context, horizon time.Duration) ([]Fixture, error) {
	until := time.Now().Add(horizon).UTC().Format(time.RFC3339)
	var out struct {
		Fixtures []Fixture `json:"fixtures"`
	}
	if err := c.get(ctx, "/fixtures?until="+url.QueryEscape(until), &out); err != nil {
		return nil, err
	}
	for i := range out.Fixtures {
		out.Fixtures[i].Status = normalizeStatus(out.Fixtures[i].Status)
	}
	return out.Fixtures, nil
}

func (c *httpClient) GetFixture(ctx context.Context, externalID string) (*Fixture, error) {
	var f Fixture
	if err := c.get(ctx, "/fixtures/"+url.PathEscape(externalID), &f); err != nil {
		return nil, err
	}
	f.Status = normalizeStatus(f.Status)
	return &f, nil
}

func (c *httpClient) TeamForm(ctx context.Context, team string, last int) ([]FormEntry, error) {
	var out struct {
		Results []FormEntry `json:"results"`
	}
	path := fmt.Sprintf("/teams/%s/form?last=%d", url.PathEscape(team), last)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *httpClient) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("fixtures feed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("fixtures feed read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fixtures feed status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("fixtures feed decode: %w", err)
	}
	return nil
}

// normalizeStatus maps feed statuses onto the domain set. Unknown statuses
// stay schedulable rather than silently dropping a match from the pipeline.
func normalizeStatus(s string) string {
	switch s {
	case "scheduled", "not_started", "ns":
		return domain.MatchStatusScheduled
	case "live", "in_play", "1h", "2h", "ht":
		return domain.MatchStatusLive
	case "finished", "ft", "aet", "pen":
		return domain.MatchStatusFinished
	case "postponed":
		return domain.MatchStatusPostponed
	case "cancelled", "canceled", "abandoned":
		return domain.MatchStatusCancelled
	default:
		return domain.MatchStatusScheduled
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
