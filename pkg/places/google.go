package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/resortgenius/concierge-engine/pkg/retry"
)

// GoogleConfig configures the Nearby Search client.
type GoogleConfig struct {
	APIKey  string
	BaseURL string
	// QPS caps outbound requests across all tenants; 0 means unlimited.
	QPS        float64
	HTTPClient *http.Client
}

// GoogleClient searches with the Google Places Nearby Search API.
type GoogleClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   *retry.Config
	logger  *zap.Logger
}

var _ Searcher = (*GoogleClient)(nil)

// StatusError is a non-OK answer from the provider.
type StatusError struct {
	HTTPStatus int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.HTTPStatus != 0 && e.HTTPStatus != http.StatusOK {
		return fmt.Sprintf("places: HTTP %d", e.HTTPStatus)
	}
	if e.Message != "" {
		return fmt.Sprintf("places: status %s: %s", e.Status, e.Message)
	}
	return "places: status " + e.Status
}

// IsRetryable reports whether another attempt could succeed.
func (e *StatusError) IsRetryable() bool {
	return e.HTTPStatus >= 500 || e.HTTPStatus == http.StatusTooManyRequests ||
		e.Status == "UNKNOWN_ERROR" || e.Status == "OVER_QUERY_LIMIT"
}

// NewGoogleClient creates a Nearby Search client.
func NewGoogleClient(cfg GoogleConfig, logger *zap.Logger) (*GoogleClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("places api key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("places base url is required")
	}

	limit := rate.Inf
	burst := 1
	if cfg.QPS > 0 {
		limit = rate.Limit(cfg.QPS)
		burst = max(1, int(cfg.QPS))
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &GoogleClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		retry: &retry.Config{
			MaxRetries:   1,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
			JitterFactor: 0.1,
		},
		logger: logger.Named("places"),
	}, nil
}

type nearbyResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name     string `json:"name"`
		Vicinity string `json:"vicinity"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		Rating       *float64 `json:"rating"`
		OpeningHours *struct {
			OpenNow *bool `json:"open_now"`
		} `json:"opening_hours"`
	} `json:"results"`
}

// Search implements Searcher. Results are sorted by distance from the origin
// and truncated to q.MaxResults.
func (c *GoogleClient) Search(ctx context.Context, q Query) ([]Place, error) {
	if q.PlaceType == "" {
		return nil, fmt.Errorf("place type is required")
	}

	var body nearbyResponse
	err := retry.DoIfRetryable(ctx, c.retry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		body, err = c.fetch(ctx, q)
		return err
	})
	if err != nil {
		return nil, err
	}

	results := make([]Place, 0, len(body.Results))
	for _, r := range body.Results {
		loc := LatLng{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
		p := Place{
			Name:       r.Name,
			Address:    r.Vicinity,
			Location:   loc,
			DistanceKm: Haversine(q.Origin, loc),
			Rating:     r.Rating,
		}
		if r.OpeningHours != nil {
			p.OpenNow = r.OpeningHours.OpenNow
		}
		results = append(results, p)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].DistanceKm < results[j].DistanceKm
	})
	if q.MaxResults > 0 && len(results) > q.MaxResults {
		results = results[:q.MaxResults]
	}

	c.logger.Debug("Nearby search completed",
		zap.String("type", q.PlaceType),
		zap.Int("results", len(results)))
	return results, nil
}

func (c *GoogleClient) fetch(ctx context.Context, q Query) (nearbyResponse, error) {
	params := url.Values{}
	params.Set("location", strconv.FormatFloat(q.Origin.Lat, 'f', -1, 64)+","+strconv.FormatFloat(q.Origin.Lng, 'f', -1, 64))
	params.Set("radius", strconv.Itoa(q.RadiusMeters))
	params.Set("type", q.PlaceType)
	params.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nearbyResponse{}, fmt.Errorf("failed to build places request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nearbyResponse{}, fmt.Errorf("places request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nearbyResponse{}, &StatusError{HTTPStatus: resp.StatusCode}
	}

	var body nearbyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nearbyResponse{}, fmt.Errorf("failed to decode places response: %w", err)
	}

	switch body.Status {
	case "OK":
		return body, nil
	case "ZERO_RESULTS":
		body.Results = nil
		return body, nil
	default:
		return nearbyResponse{}, &StatusError{HTTPStatus: resp.StatusCode, Status: body.Status, Message: body.ErrorMessage}
	}
}
