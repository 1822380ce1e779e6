// Package pco fetches calendar event instances from the Planning Center
// Online API. Fetched windows are cached per minute-truncated time window so
// back-to-back sync cycles and rate-limit fallbacks can be served without a
// live request.
package pco

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrRateLimited is returned when the API answers 429 and no cached window is
// available to fall back to.
var ErrRateLimited = errors.New("pco: rate limited")

const (
	defaultPerPage  = 100
	defaultMaxPages = 10
	minTimeout      = 15 * time.Second
	cacheSize       = 32
)

// Event is one booked room slot. Multi-room instances are expanded into one
// Event per room; the expanded events share the instance id.
type Event struct {
	ID          string
	Name        string
	Room        string
	Building    string
	LocationRaw string
	StartAt     time.Time
	EndAt       time.Time
}

// Config carries the connection and caching settings for the client.
type Config struct {
	BaseURL          string
	AppID            string
	Secret           string
	AccessToken      string
	Timeout          time.Duration
	CacheTTL         time.Duration
	MinFetchInterval time.Duration
	MaxPages         int
	PerPage          int
}

// Stats counts client activity since process start. Timestamps are nil until
// the corresponding path has been taken once.
type Stats struct {
	CacheHitReturns         uint64
	MinIntervalCacheReturns uint64
	LiveWindowFetches       uint64
	EventInstanceRequests   uint64
	ResourceBookingRequests uint64
	RateLimitFallbacks      uint64
	LastLiveFetchAt         *time.Time
	LastCacheHitAt          *time.Time
	LastRateLimitFallbackAt *time.Time
}

type cachedWindow struct {
	events    []Event
	fetchedAt time.Time
}

// Client talks to the calendar API.
type Client struct {
	http   *resty.Client
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	cache *lru.Cache[string, cachedWindow]

	mu    sync.Mutex
	stats Stats
}

// NewClient builds a Client from cfg. Either the AppID/Secret basic-auth pair
// or an AccessToken must be set.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("pco: base URL is required")
	}
	hasBasic := cfg.AppID != "" && cfg.Secret != ""
	if !hasBasic && cfg.AccessToken == "" {
		return nil, fmt.Errorf("pco: credentials are required (app id/secret or access token)")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout < minTimeout {
		cfg.Timeout = minTimeout
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = defaultPerPage
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	httpClient.AddRetryCondition(retryCondition)

	if hasBasic {
		httpClient.SetBasicAuth(cfg.AppID, cfg.Secret)
	} else {
		httpClient.SetAuthToken(cfg.AccessToken)
	}

	cache, err := lru.New[string, cachedWindow](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("pco: build cache: %w", err)
	}

	return &Client{
		http:   httpClient,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		cache:  cache,
	}, nil
}

// retryCondition retries network errors and server errors. 429 is never
// retried: the caller falls back to the cache instead of hammering the API.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}
	return r.StatusCode() >= 500
}

// FetchWindow returns the expanded events whose start falls inside
// [from, to]. Cached results are served while fresh; a rate-limited live
// fetch falls back to the cached window of any age.
func (c *Client) FetchWindow(ctx context.Context, from, to time.Time) ([]Event, error) {
	key := cacheKey(from, to)
	now := c.now()

	if entry, ok := c.cache.Get(key); ok {
		age := now.Sub(entry.fetchedAt)
		if age < c.cfg.CacheTTL {
			c.recordCacheHit(now)
			return cloneEvents(entry.events), nil
		}
		if age < c.cfg.MinFetchInterval {
			c.recordMinIntervalReturn()
			return cloneEvents(entry.events), nil
		}
	}

	events, err := c.fetchWindowLive(ctx, from, to)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			if entry, ok := c.cache.Get(key); ok {
				c.recordRateLimitFallback(now)
				c.logger.Warn("calendar API rate limited, serving cached window",
					"cache_age", now.Sub(entry.fetchedAt).String())
				return cloneEvents(entry.events), nil
			}
		}
		return nil, err
	}

	c.cache.Add(key, cachedWindow{events: events, fetchedAt: now})
	c.recordLiveFetch(now)
	return cloneEvents(events), nil
}

// CheckConnectivity probes the API with a one-item page. A throttled answer
// still proves the API is reachable.
func (c *Client) CheckConnectivity(ctx context.Context) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("per_page", "1").
		Get("/calendar/v2/event_instances")
	if err != nil {
		return fmt.Errorf("pco: connectivity probe: %w", err)
	}
	if resp.IsSuccess() || resp.StatusCode() == http.StatusTooManyRequests {
		return nil
	}
	return fmt.Errorf("pco: connectivity probe: status %d", resp.StatusCode())
}

// Stats returns a copy of the request counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.LastLiveFetchAt = cloneTime(c.stats.LastLiveFetchAt)
	out.LastCacheHitAt = cloneTime(c.stats.LastCacheHitAt)
	out.LastRateLimitFallbackAt = cloneTime(c.stats.LastRateLimitFallbackAt)
	return out
}

func (c *Client) fetchWindowLive(ctx context.Context, from, to time.Time) ([]Event, error) {
	var events []Event

	offset := 0
	for page := 0; ; page++ {
		if page >= c.cfg.MaxPages {
			c.logger.Warn("calendar pagination cap reached, returning truncated window",
				"max_pages", c.cfg.MaxPages, "events", len(events))
			break
		}

		envelope, err := c.fetchInstancesPage(ctx, from, to, offset)
		if err != nil {
			return nil, err
		}

		names := envelope.eventNames()
		for _, instance := range envelope.Data {
			expanded, err := c.expandInstance(ctx, instance, names)
			if err != nil {
				return nil, err
			}
			events = append(events, expanded...)
		}

		if envelope.Links.Next == "" || len(envelope.Data) < c.cfg.PerPage {
			break
		}
		offset += c.cfg.PerPage
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].StartAt.Equal(events[j].StartAt) {
			return events[i].ID < events[j].ID
		}
		return events[i].StartAt.Before(events[j].StartAt)
	})

	return events, nil
}

func (c *Client) fetchInstancesPage(ctx context.Context, from, to time.Time, offset int) (*instancesEnvelope, error) {
	c.countInstanceRequest()

	var envelope instancesEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"per_page":              fmt.Sprintf("%d", c.cfg.PerPage),
			"offset":                fmt.Sprintf("%d", offset),
			"order":                 "starts_at",
			"where[starts_at][gte]": from.UTC().Format(time.RFC3339),
			"where[starts_at][lte]": to.UTC().Format(time.RFC3339),
			"include":               "event",
		}).
		SetResult(&envelope).
		Get("/calendar/v2/event_instances")
	if err != nil {
		return nil, fmt.Errorf("pco: list event instances: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pco: list event instances: status %d: %s", resp.StatusCode(), truncateBody(resp.String()))
	}

	return &envelope, nil
}

// expandInstance turns one calendar instance into one Event per booked room.
// Instances without resource bookings fall back to the location string as the
// room. Instances with unparseable times are dropped.
func (c *Client) expandInstance(ctx context.Context, instance instanceResource, names map[string]string) ([]Event, error) {
	startAt, err := time.Parse(time.RFC3339, instance.Attributes.StartsAt)
	if err != nil {
		c.logger.Debug("dropping instance with unparseable start", "instance_id", instance.ID, "starts_at", instance.Attributes.StartsAt)
		return nil, nil
	}
	endAt, err := time.Parse(time.RFC3339, instance.Attributes.EndsAt)
	if err != nil {
		c.logger.Debug("dropping instance with unparseable end", "instance_id", instance.ID, "ends_at", instance.Attributes.EndsAt)
		return nil, nil
	}
	if !startAt.Before(endAt) {
		c.logger.Debug("dropping instance with inverted times", "instance_id", instance.ID)
		return nil, nil
	}

	name := ""
	if ref := instance.Relationships.Event.Data; ref != nil {
		name = strings.TrimSpace(names[ref.ID])
	}
	if name == "" {
		c.logger.Debug("dropping instance without event name", "instance_id", instance.ID)
		return nil, nil
	}

	location := strings.TrimSpace(instance.Attributes.Location)

	rooms, err := c.fetchInstanceRooms(ctx, instance.ID)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		// Recoverable per instance: fall back to the location string.
		c.logger.Warn("resource bookings lookup failed, falling back to location",
			"instance_id", instance.ID, "error", err)
		rooms = nil
	}
	if len(rooms) == 0 {
		rooms = []string{location}
	}

	events := make([]Event, 0, len(rooms))
	for _, room := range rooms {
		events = append(events, Event{
			ID:          instance.ID,
			Name:        name,
			Room:        room,
			Building:    buildingFromLocation(location),
			LocationRaw: location,
			StartAt:     startAt.UTC(),
			EndAt:       endAt.UTC(),
		})
	}
	return events, nil
}

func (c *Client) fetchInstanceRooms(ctx context.Context, instanceID string) ([]string, error) {
	c.countResourceBookingRequest()

	var envelope bookingsEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("include", "resource").
		SetResult(&envelope).
		Get(fmt.Sprintf("/calendar/v2/event_instances/%s/resource_bookings", instanceID))
	if err != nil {
		return nil, fmt.Errorf("pco: list resource bookings: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.IsError() {
		return nil, fmt.Errorf("pco: list resource bookings: status %d: %s", resp.StatusCode(), truncateBody(resp.String()))
	}

	return envelope.roomNames(), nil
}

func (c *Client) recordCacheHit(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.CacheHitReturns++
	c.stats.LastCacheHitAt = &now
}

func (c *Client) recordMinIntervalReturn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.MinIntervalCacheReturns++
}

func (c *Client) recordLiveFetch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.LiveWindowFetches++
	c.stats.LastLiveFetchAt = &now
}

func (c *Client) recordRateLimitFallback(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.RateLimitFallbacks++
	c.stats.LastRateLimitFallbackAt = &now
}

func (c *Client) countInstanceRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.EventInstanceRequests++
}

func (c *Client) countResourceBookingRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.ResourceBookingRequests++
}

func cacheKey(from, to time.Time) string {
	return fmt.Sprintf("%d|%d", from.UTC().Truncate(time.Minute).Unix(), to.UTC().Truncate(time.Minute).Unix())
}

func cloneEvents(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

func truncateBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		return body[:200] + "..."
	}
	return body
}
