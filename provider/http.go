package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/ncobase/placesearch/config"
	"github.com/sony/gobreaker"
)

const maxBodySize = 4 << 20

// HTTPClient calls the geo-search HTTP API behind a circuit breaker.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

type searchParams struct {
	Mode     string   `url:"mode"`
	Text     string   `url:"q,omitempty"`
	Keyword  string   `url:"keyword,omitempty"`
	Landmark string   `url:"landmark,omitempty"`
	Lat      *float64 `url:"lat,omitempty"`
	Lng      *float64 `url:"lng,omitempty"`
	Radius   int      `url:"radius,omitempty"`
	Language string   `url:"language,omitempty"`
	Region   string   `url:"region,omitempty"`
	Filters
}

// NewHTTPClient creates a client from configuration.
func NewHTTPClient(cfg *config.Provider) (*HTTPClient, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("provider: base url is empty")
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "geo-provider",
		MaxRequests: cfg.BreakerRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var pe *Error
			return errors.As(err, &pe) && pe.Status >= 400 && pe.Status < 500 && pe.Status != http.StatusTooManyRequests
		},
	})

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		cb:      cb,
	}, nil
}

// State returns the breaker state.
func (c *HTTPClient) State() gobreaker.State {
	return c.cb.State()
}

// Search implements Provider.
func (c *HTTPClient) Search(ctx context.Context, q Query) (*Result, error) {
	out, err := c.cb.Execute(func() (any, error) {
		return c.do(ctx, q)
	})
	if err != nil {
		return nil, Classify(err)
	}
	return out.(*Result), nil
}

func (c *HTTPClient) do(ctx context.Context, q Query) (*Result, error) {
	p := searchParams{
		Mode:     string(q.Mode),
		Text:     q.Text,
		Keyword:  q.Keyword,
		Landmark: q.Landmark,
		Radius:   q.RadiusMeters,
		Language: q.Language,
		Region:   q.Region,
		Filters:  q.Filters,
	}
	if q.Location != nil {
		p.Lat, p.Lng = &q.Location.Lat, &q.Location.Lng
	}
	values, err := query.Values(p)
	if err != nil {
		return nil, fmt.Errorf("encode provider query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/search?"+values.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, &Error{
			Kind:   KindUpstream,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status after %s: %s", time.Since(start).Round(time.Millisecond), http.StatusText(resp.StatusCode)),
		}
	}

	var res Result
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &Error{Kind: KindUpstream, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if res.Places == nil {
		res.Places = []Place{}
	}
	return &res, nil
}
