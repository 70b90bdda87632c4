// Package history loads finalized runs from the experiment API and feeds them
// through the same store and chart binder the live view uses.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iafilius/Chip8Dashboard/src/httpapi"
	"github.com/iafilius/Chip8Dashboard/src/jsonobj"
	"github.com/iafilius/Chip8Dashboard/src/metrics"
	"github.com/iafilius/Chip8Dashboard/src/telemetry"
)

// ExperimentRef identifies a finalized run. It is opaque to the dashboard.
type ExperimentRef string

// RequestError is returned for failed or non-2xx history requests.
type RequestError = httpapi.RequestError

// Client talks to the experiment API.
type Client struct {
	BaseURL   string
	HTTP      *http.Client
	Telemetry *telemetry.Collector
}

// NewClient builds a client. A zero timeout leaves requests unbounded except
// by the caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// ListRuns returns the identifiers of all finalized runs, newest first as
// ordered by the server.
func (c *Client) ListRuns(ctx context.Context) ([]ExperimentRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/experiments", nil)
	if err != nil {
		return nil, err
	}
	body, err := httpapi.Do(ctx, c.HTTP, req, "list_runs", c.Telemetry)
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("decode run list: %w", err)
	}
	refs := make([]ExperimentRef, len(ids))
	for i, id := range ids {
		refs[i] = ExperimentRef(id)
	}
	return refs, nil
}

// LoadMetrics fetches the complete series mapping of one run into a new store.
// Series names keep the order of the response object.
func (c *Client) LoadMetrics(ctx context.Context, ref ExperimentRef) (*metrics.Store, error) {
	u := c.BaseURL + "/api/experiments/" + url.PathEscape(string(ref)) + "/metrics"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	body, err := httpapi.Do(ctx, c.HTTP, req, "load_metrics", c.Telemetry)
	if err != nil {
		return nil, err
	}
	store, err := DecodeSeries(body)
	if err != nil {
		return nil, fmt.Errorf("decode metrics of %s: %w", ref, err)
	}
	return store, nil
}

// DecodeSeries parses {name: [[step, value], ...]} into a store. Names with an
// empty list are declared without samples.
func DecodeSeries(body []byte) (*metrics.Store, error) {
	members, err := jsonobj.Members(body)
	if err != nil {
		return nil, err
	}
	store := metrics.NewStore()
	for _, m := range members {
		var pairs [][]float64
		if !jsonobj.IsNull(m.Value) {
			if err := json.Unmarshal(m.Value, &pairs); err != nil {
				return nil, fmt.Errorf("series %q: %w", m.Key, err)
			}
		}
		if len(pairs) == 0 {
			store.Declare(m.Key)
			continue
		}
		for i, p := range pairs {
			if len(p) != 2 {
				return nil, fmt.Errorf("series %q point %d: want [step, value], got %d elements", m.Key, i, len(p))
			}
			if p[0] != math.Trunc(p[0]) || math.Abs(p[0]) > 1<<53 {
				return nil, fmt.Errorf("series %q point %d: step %v is not an integer", m.Key, i, p[0])
			}
			store.Record(m.Key, int64(p[0]), p[1])
		}
	}
	return store, nil
}
