// File: internal/datasource/nasa.go

// Package datasource fetches external datasets by topic from a NASA-style
// REST API, with an in-memory TTL cache and a client-side rate limit.
package datasource

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/owizdom/swarm-mindv2/api/schemas"
	"github.com/owizdom/swarm-mindv2/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// topicPaths maps canonical topics onto API paths. Unknown topics fail
// fast without a network round trip.
var topicPaths = map[string]string{
	"exoplanets":         "/planetary/apod",
	"mars_weather":       "/insight_weather/",
	"near_earth_objects": "/neo/rest/v1/feed/today",
	"solar_flares":       "/DONKI/FLR",
	"earth_imagery":      "/EPIC/api/natural",
}

type cacheEntry struct {
	dataset   *schemas.Dataset
	fetchedAt time.Time
}

// Client is the dataset fetcher. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	cacheTTL   time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	rng   *rand.Rand
}

// New creates a dataset client from configuration.
func New(cfg config.DataSourceConfig, rng *rand.Rand, logger *zap.Logger) *Client {
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 1.0
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		cacheTTL:   cfg.CacheTTL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.Named("datasource"),
		cache:      make(map[string]cacheEntry),
		rng:        rng,
	}
}

// Topics lists the canonical topics this source serves.
func (c *Client) Topics() []string {
	topics := make([]string, 0, len(topicPaths))
	for t := range topicPaths {
		topics = append(topics, t)
	}
	return topics
}

// FetchDataset returns the dataset for a topic, serving from cache while
// the TTL holds.
func (c *Client) FetchDataset(ctx context.Context, topic string) (*schemas.Dataset, error) {
	path, ok := topicPaths[topic]
	if !ok {
		return nil, fmt.Errorf("unknown dataset topic: %q", topic)
	}

	c.mu.Lock()
	if entry, hit := c.cache[topic]; hit && time.Since(entry.fetchedAt) < c.cacheTTL {
		c.mu.Unlock()
		return entry.dataset, nil
	}
	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	raw, err := c.fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	ds := c.buildDataset(topic, raw)
	c.mu.Lock()
	c.cache[topic] = cacheEntry{dataset: ds, fetchedAt: time.Now()}
	c.mu.Unlock()

	c.logger.Debug("Dataset fetched", zap.String("topic", topic), zap.Int("highlights", len(ds.Highlights)))
	return ds, nil
}

// Cached returns every dataset currently in the cache, expired or not.
// The decision engine only needs to know what material exists locally.
func (c *Client) Cached() []*schemas.Dataset {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*schemas.Dataset, 0, len(c.cache))
	for _, entry := range c.cache {
		out = append(out, entry.dataset)
	}
	return out
}

// RandomHighlight picks one highlight from a dataset for the light-step
// content string, falling back to the summary.
func (c *Client) RandomHighlight(ds *schemas.Dataset) string {
	if ds == nil {
		return ""
	}
	if len(ds.Highlights) == 0 {
		return ds.Summary
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return ds.Highlights[c.rng.Intn(len(ds.Highlights))]
}

func (c *Client) fetch(ctx context.Context, path string) (map[string]any, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, fmt.Errorf("bad datasource URL: %w", err)
	}
	q := u.Query()
	if c.apiKey != "" {
		q.Set("api_key", c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("datasource request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("datasource API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read datasource response: %w", err)
	}

	// Responses differ per endpoint; decode into a generic document and
	// let buildDataset pull what it recognizes. An array response is
	// wrapped under "items".
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		var list []any
		if listErr := json.Unmarshal(body, &list); listErr != nil {
			return nil, fmt.Errorf("failed to decode datasource response: %w", err)
		}
		doc = map[string]any{"items": list}
	}
	return doc, nil
}

// buildDataset flattens a raw API document into the Dataset value object:
// scalar string fields become highlights, recognizable title/summary keys
// are promoted.
func (c *Client) buildDataset(topic string, raw map[string]any) *schemas.Dataset {
	ds := &schemas.Dataset{
		Topic:     topic,
		Title:     topic,
		Source:    c.baseURL,
		FetchedAt: time.Now().UTC(),
	}

	if title, ok := raw["title"].(string); ok && title != "" {
		ds.Title = title
	}
	for _, key := range []string{"explanation", "summary", "description"} {
		if s, ok := raw[key].(string); ok && s != "" {
			ds.Summary = s
			break
		}
	}

	for key, val := range raw {
		switch v := val.(type) {
		case string:
			if len(v) > 20 && len(ds.Highlights) < 8 {
				ds.Highlights = append(ds.Highlights, fmt.Sprintf("%s: %s", key, truncate(v, 200)))
			}
		case float64:
			if len(ds.Highlights) < 8 {
				ds.Highlights = append(ds.Highlights, fmt.Sprintf("%s: %g", key, v))
			}
		case []any:
			if len(v) > 0 && len(ds.Highlights) < 8 {
				if item, err := json.MarshalToString(v[0]); err == nil {
					ds.Highlights = append(ds.Highlights, fmt.Sprintf("%s[0]: %s", key, truncate(item, 200)))
				}
			}
		}
	}

	if ds.Summary == "" && len(ds.Highlights) > 0 {
		ds.Summary = ds.Highlights[0]
	}
	return ds
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
