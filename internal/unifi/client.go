// Package unifi talks to the UniFi Access controller's developer API:
// unlock schedules, access policies, and door discovery. Controllers ship
// self-signed certificates, so TLS verification is optional.
package unifi

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/doorsync/internal/interval"
)

// ErrNotFound is returned when the controller reports the requested object
// does not exist.
var ErrNotFound = errors.New("unifi: not found")

const (
	basePath   = "/api/v1/developer"
	minTimeout = 15 * time.Second

	// The controller paginates policies; one large page covers any
	// realistic installation.
	policyPageSize = 200
)

// Schedule is a weekly unlock schedule on the controller.
type Schedule struct {
	ID   string
	Name string
	Week interval.Weekly
}

// Policy is an access policy binding a schedule to door resources.
type Policy struct {
	ID         string
	Name       string
	ScheduleID string
	DoorIDs    []string
}

// Door is one controllable door known to the controller.
type Door struct {
	ID       string
	Name     string
	FullName string
}

// Config carries the connection settings for the client.
type Config struct {
	BaseURL   string
	APIToken  string
	Timeout   time.Duration
	VerifyTLS bool
}

// Client talks to one controller.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("unifi: base URL is required")
	}
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("unifi: API token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout < minTimeout {
		cfg.Timeout = minTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIToken).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second)
	httpClient.AddRetryCondition(func(r *resty.Response, err error) bool {
		if err != nil {
			return true
		}
		if r == nil {
			return false
		}
		return r.StatusCode() >= 500
	})
	if !cfg.VerifyTLS {
		httpClient.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	return &Client{http: httpClient, logger: logger}, nil
}

// envelope is the controller's uniform response wrapper.
type envelope struct {
	Code json.RawMessage `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (e envelope) ok() bool {
	code := strings.Trim(strings.TrimSpace(string(e.Code)), `"`)
	switch code {
	case "", "null", "0", "SUCCESS":
		return true
	default:
		return false
	}
}

func (e envelope) code() string {
	return strings.Trim(strings.TrimSpace(string(e.Code)), `"`)
}

// do runs one request and unwraps the controller envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("unifi: %s %s: %w", method, path, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("unifi: %s %s: %w", method, path, ErrNotFound)
	}
	if resp.IsError() {
		return fmt.Errorf("unifi: %s %s: status %d: %s", method, path, resp.StatusCode(), truncateBody(resp.String()))
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("unifi: %s %s: decode envelope: %w", method, path, err)
	}
	if !env.ok() {
		return fmt.Errorf("unifi: %s %s: controller error %s: %s", method, path, env.code(), env.Msg)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("unifi: %s %s: decode data: %w", method, path, err)
		}
	}

	return nil
}

type wireSchedule struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	WeekSchedule wireWeek `json:"week_schedule"`
}

// ListSchedules returns every unlock schedule with its week normalized for
// comparison.
func (c *Client) ListSchedules(ctx context.Context) ([]Schedule, error) {
	var raw []wireSchedule
	if err := c.do(ctx, http.MethodGet, basePath+"/access_policies/schedules", nil, &raw); err != nil {
		return nil, err
	}

	schedules := make([]Schedule, 0, len(raw))
	for _, ws := range raw {
		schedules = append(schedules, Schedule{
			ID:   ws.ID,
			Name: ws.Name,
			Week: weekFromWire(ws.WeekSchedule),
		})
	}
	return schedules, nil
}

// GetSchedule returns one schedule by id.
func (c *Client) GetSchedule(ctx context.Context, id string) (Schedule, error) {
	var raw wireSchedule
	if err := c.do(ctx, http.MethodGet, basePath+"/access_policies/schedules/"+id, nil, &raw); err != nil {
		return Schedule{}, err
	}
	return Schedule{ID: raw.ID, Name: raw.Name, Week: weekFromWire(raw.WeekSchedule)}, nil
}

// UpdateScheduleWeek replaces a schedule's weekly ranges. The schedule is
// re-read first and written back as a whole so fields this client does not
// model (holiday group, holiday schedule) survive the update.
func (c *Client) UpdateScheduleWeek(ctx context.Context, id string, week interval.Weekly) error {
	var raw map[string]json.RawMessage
	if err := c.do(ctx, http.MethodGet, basePath+"/access_policies/schedules/"+id, nil, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("unifi: schedule %s: %w", id, ErrNotFound)
	}

	weekJSON, err := json.Marshal(weekToWire(week))
	if err != nil {
		return fmt.Errorf("unifi: encode week: %w", err)
	}
	raw["week_schedule"] = weekJSON

	return c.do(ctx, http.MethodPut, basePath+"/access_policies/schedules/"+id, raw, nil)
}

type wireResource struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type wirePolicy struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	ScheduleID string         `json:"schedule_id"`
	Resources  []wireResource `json:"resources"`
}

func policyFromWire(wp wirePolicy) Policy {
	policy := Policy{ID: wp.ID, Name: wp.Name, ScheduleID: wp.ScheduleID}
	for _, res := range wp.Resources {
		if res.Type != "door" {
			continue
		}
		policy.DoorIDs = append(policy.DoorIDs, res.ID)
	}
	return policy
}

// ListPolicies returns the controller's access policies.
func (c *Client) ListPolicies(ctx context.Context) ([]Policy, error) {
	var raw []wirePolicy
	path := fmt.Sprintf("%s/access_policies?page_num=1&page_size=%d", basePath, policyPageSize)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	policies := make([]Policy, 0, len(raw))
	for _, wp := range raw {
		policies = append(policies, policyFromWire(wp))
	}
	return policies, nil
}

// CreatePolicy creates an access policy binding scheduleID to the given
// doors. The create payload names its resource list "resource" while reads
// return "resources"; that asymmetry is the controller's, not ours.
func (c *Client) CreatePolicy(ctx context.Context, name, scheduleID string, doorIDs []string) (Policy, error) {
	resources := make([]wireResource, 0, len(doorIDs))
	for _, id := range doorIDs {
		resources = append(resources, wireResource{ID: id, Type: "door"})
	}

	payload := struct {
		Name       string         `json:"name"`
		ScheduleID string         `json:"schedule_id"`
		Resource   []wireResource `json:"resource"`
	}{Name: name, ScheduleID: scheduleID, Resource: resources}

	var raw wirePolicy
	if err := c.do(ctx, http.MethodPost, basePath+"/access_policies", payload, &raw); err != nil {
		return Policy{}, err
	}

	created := policyFromWire(raw)
	if created.ID == "" {
		// Some controller firmwares return an empty body on create; the
		// next cycle's policy listing sees the result either way.
		created = Policy{Name: name, ScheduleID: scheduleID, DoorIDs: doorIDs}
	}
	return created, nil
}

// DeletePolicy removes an access policy.
func (c *Client) DeletePolicy(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, basePath+"/access_policies/"+id, nil, nil)
}

type wireDoor struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
}

// ListDoors returns the controller's doors for mapping construction.
func (c *Client) ListDoors(ctx context.Context) ([]Door, error) {
	var raw []wireDoor
	if err := c.do(ctx, http.MethodGet, basePath+"/doors", nil, &raw); err != nil {
		return nil, err
	}

	doors := make([]Door, 0, len(raw))
	for _, wd := range raw {
		doors = append(doors, Door{ID: wd.ID, Name: wd.Name, FullName: wd.FullName})
	}
	return doors, nil
}

// CheckConnectivity probes the controller with a door listing.
func (c *Client) CheckConnectivity(ctx context.Context) error {
	if _, err := c.ListDoors(ctx); err != nil {
		return fmt.Errorf("unifi: connectivity probe: %w", err)
	}
	return nil
}

func truncateBody(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 200 {
		return body[:200] + "..."
	}
	return body
}
