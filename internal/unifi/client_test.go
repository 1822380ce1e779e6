package unifi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/doorsync/internal/interval"
)

func newTestClient(t *testing.T, handler http.Handler, cfg Config) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL
	if cfg.APIToken == "" {
		cfg.APIToken = "test-token"
	}

	client, err := NewClient(cfg, nil)
	require.NoError(t, err)
	return client
}

func writeEnvelope(w http.ResponseWriter, code string, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code": code,
		"msg":  "",
		"data": data,
	})
}

func TestClient_ListSchedulesNormalizesWeeks(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		writeEnvelope(w, "SUCCESS", []map[string]any{
			{
				"id":   "sched-1",
				"name": "PCO Sync gym_front",
				"week_schedule": map[string]any{
					"sunday": []map[string]string{
						{"start_time": "00:00:00", "end_time": "23:59:59"},
					},
					"monday": []map[string]string{
						{"start_time": "07:00:00", "end_time": "09:00:00"},
						{"start_time": "08:30:00", "end_time": "10:00:00"},
					},
					"tuesday":   []map[string]string{},
					"wednesday": []map[string]string{},
					"thursday":  []map[string]string{},
					"friday":    []map[string]string{},
					"saturday": []map[string]string{
						{"start_time": "06:00:00", "end_time": "24:00:00"},
						{"start_time": "bogus", "end_time": "07:00:00"},
					},
				},
			},
		})
	}), Config{})

	schedules, err := client.ListSchedules(context.Background())
	require.NoError(t, err)

	require.Equal(t, "/api/v1/developer/access_policies/schedules", gotPath)
	require.Equal(t, "Bearer test-token", gotAuth)
	require.Len(t, schedules, 1)

	week := schedules[0].Week
	require.Equal(t, []interval.MinuteRange{{Start: 0, End: 1440}}, week.Days[time.Sunday])
	require.Equal(t, []interval.MinuteRange{{Start: 7 * 60, End: 10 * 60}}, week.Days[time.Monday])
	require.Empty(t, week.Days[time.Tuesday])
	require.Equal(t, []interval.MinuteRange{{Start: 6 * 60, End: 1440}}, week.Days[time.Saturday])
}

func TestClient_UpdateScheduleWeekPreservesHolidayFields(t *testing.T) {
	t.Parallel()

	var putBody []byte
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeEnvelope(w, "SUCCESS", map[string]any{
				"id":               "sched-1",
				"name":             "PCO Sync gym_front",
				"holiday_group_id": "hg-9",
				"holiday_schedule": []map[string]string{
					{"start_time": "00:00:00", "end_time": "00:00:00"},
				},
				"week_schedule": map[string]any{
					"sunday": []map[string]string{
						{"start_time": "09:00:00", "end_time": "12:00:00"},
					},
				},
			})
		case http.MethodPut:
			var err error
			putBody, err = json.Marshal(json.RawMessage(mustReadAll(t, r)))
			require.NoError(t, err)
			writeEnvelope(w, "SUCCESS", nil)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}), Config{})

	var week interval.Weekly
	week.Days[time.Tuesday] = []interval.MinuteRange{{Start: 17*60 + 45, End: 21*60 + 15}}

	err := client.UpdateScheduleWeek(context.Background(), "sched-1", week)
	require.NoError(t, err)
	require.NotEmpty(t, putBody)

	var sent map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(putBody, &sent))

	require.JSONEq(t, `"hg-9"`, string(sent["holiday_group_id"]))
	require.Contains(t, sent, "holiday_schedule")

	var sentWeek wireWeek
	require.NoError(t, json.Unmarshal(sent["week_schedule"], &sentWeek))
	require.Empty(t, sentWeek.Sunday)
	require.Equal(t, []wireTimeRange{{StartTime: "17:45:00", EndTime: "21:15:00"}}, sentWeek.Tuesday)
	require.NotNil(t, sentWeek.Friday, "empty days must be present as empty arrays")
}

func TestClient_CreatePolicyUsesResourceKey(t *testing.T) {
	t.Parallel()

	var postBody map[string]json.RawMessage
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.Unmarshal(mustReadAll(t, r), &postBody))
		writeEnvelope(w, "SUCCESS", map[string]any{
			"id":          "pol-1",
			"name":        "PCO Sync Policy gym_front",
			"schedule_id": "sched-1",
			"resources": []map[string]string{
				{"id": "door-1", "type": "door"},
			},
		})
	}), Config{})

	created, err := client.CreatePolicy(context.Background(), "PCO Sync Policy gym_front", "sched-1", []string{"door-1"})
	require.NoError(t, err)

	require.Contains(t, postBody, "resource")
	require.NotContains(t, postBody, "resources")
	require.JSONEq(t, `[{"id":"door-1","type":"door"}]`, string(postBody["resource"]))
	require.JSONEq(t, `"sched-1"`, string(postBody["schedule_id"]))

	require.Equal(t, "pol-1", created.ID)
	require.Equal(t, []string{"door-1"}, created.DoorIDs)
}

func TestClient_ListPoliciesFiltersDoorResources(t *testing.T) {
	t.Parallel()

	var gotQuery string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeEnvelope(w, "SUCCESS", []map[string]any{
			{
				"id":          "pol-1",
				"name":        "PCO Sync Policy gym_front",
				"schedule_id": "sched-1",
				"resources": []map[string]string{
					{"id": "door-1", "type": "door"},
					{"id": "reader-1", "type": "device"},
					{"id": "door-2", "type": "door"},
				},
			},
		})
	}), Config{})

	policies, err := client.ListPolicies(context.Background())
	require.NoError(t, err)

	require.Contains(t, gotQuery, "page_num=1")
	require.Contains(t, gotQuery, "page_size=200")
	require.Len(t, policies, 1)
	require.Equal(t, []string{"door-1", "door-2"}, policies[0].DoorIDs)
}

func TestClient_NotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), Config{})

	_, err := client.GetSchedule(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClient_ControllerErrorCode(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"CODE_PARAMS_INVALID","msg":"schedule name taken","data":null}`))
	}), Config{})

	err := client.DeletePolicy(context.Background(), "pol-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "CODE_PARAMS_INVALID")
	require.Contains(t, err.Error(), "schedule name taken")
}

func TestClient_CheckConnectivity(t *testing.T) {
	t.Parallel()

	t.Run("reachable controller", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v1/developer/doors", r.URL.Path)
			writeEnvelope(w, "SUCCESS", []map[string]string{
				{"id": "door-1", "name": "Front", "full_name": "Gym - Front"},
			})
		}), Config{})

		require.NoError(t, client.CheckConnectivity(context.Background()))
	})

	t.Run("rejected token", func(t *testing.T) {
		t.Parallel()

		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}), Config{})

		require.Error(t, client.CheckConnectivity(context.Background()))
	})
}

func TestClient_ListDoors(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, "SUCCESS", []map[string]string{
			{"id": "door-1", "name": "Front", "full_name": "Gym - Front"},
			{"id": "door-2", "name": "Side", "full_name": "Gym - Side"},
		})
	}), Config{})

	doors, err := client.ListDoors(context.Background())
	require.NoError(t, err)
	require.Len(t, doors, 2)
	require.Equal(t, Door{ID: "door-1", Name: "Front", FullName: "Gym - Front"}, doors[0])
}

func TestNewClient_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{APIToken: "tok"}, nil)
	require.Error(t, err)

	_, err = NewClient(Config{BaseURL: "https://controller.local"}, nil)
	require.Error(t, err)

	client, err := NewClient(Config{BaseURL: "https://controller.local", APIToken: "tok", Timeout: time.Second}, nil)
	require.NoError(t, err)
	require.Equal(t, minTimeout, client.http.GetClient().Timeout)
}

func TestEnvelopeOK(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		raw  string
		want bool
	}{
		"string success":  {raw: `{"code":"SUCCESS"}`, want: true},
		"numeric zero":    {raw: `{"code":0}`, want: true},
		"null code":       {raw: `{"code":null}`, want: true},
		"absent code":     {raw: `{}`, want: true},
		"string error":    {raw: `{"code":"CODE_SYSTEM_ERROR"}`, want: false},
		"numeric nonzero": {raw: `{"code":401}`, want: false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var env envelope
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &env))
			require.Equal(t, tc.want, env.ok())
		})
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		raw    string
		want   int
		wantOK bool
	}{
		"morning":            {raw: "07:00:00", want: 7 * 60, wantOK: true},
		"without seconds":    {raw: "17:45", want: 17*60 + 45, wantOK: true},
		"end of day":         {raw: "24:00:00", want: 1440, wantOK: true},
		"last second of day": {raw: "23:59:59", want: 1440, wantOK: true},
		"seconds truncated":  {raw: "09:15:30", want: 9*60 + 15, wantOK: true},
		"hour out of range":  {raw: "25:00:00", wantOK: false},
		"not a clock":        {raw: "bogus", wantOK: false},
		"empty":              {raw: "", wantOK: false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, ok := parseClock(tc.raw)
			if ok != tc.wantOK {
				t.Fatalf("parseClock(%q) ok = %v, want %v", tc.raw, ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Fatalf("parseClock(%q) = %d, want %d", tc.raw, got, tc.want)
			}
		})
	}
}

func TestFormatMinute(t *testing.T) {
	t.Parallel()

	if got := formatMinute(0); got != "00:00:00" {
		t.Fatalf("formatMinute(0) = %q", got)
	}
	if got := formatMinute(17*60 + 45); got != "17:45:00" {
		t.Fatalf("formatMinute(1065) = %q", got)
	}
	if got := formatMinute(1440); got != "24:00:00" {
		t.Fatalf("formatMinute(1440) = %q", got)
	}
}

func mustReadAll(t *testing.T, r *http.Request) []byte {
	t.Helper()

	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	return body
}
