// ABOUTME: Tests for the Google Calendar adapter against a fake Calendar API
// ABOUTME: Covers listing, creation, validation, and upstream failure mapping

package calendar

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/2389/skybridge/internal/tools"
)

type staticCredential struct {
	token string
}

func (c staticCredential) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.token, TokenType: "Bearer"}))
}

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newTestAdapter(srv *httptest.Server) *Adapter {
	return New(WithBaseURL(srv.URL), WithClock(func() time.Time { return fixedNow }))
}

func TestDefinitions(t *testing.T) {
	defs := New().Definitions()
	require.Len(t, defs, 2)
	for _, d := range defs {
		assert.True(t, json.Valid(d.InputSchema), "schema for %s must be valid JSON", d.Name)
	}
	assert.Equal(t, ToolListEvents, defs[0].Name)
	assert.Equal(t, ToolCreateEvent, defs[1].Name)
}

func TestListEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/calendars/primary/events", r.URL.Path)
		assert.Equal(t, "Bearer ya29.user", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "10", q.Get("maxResults"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "2026-05-04T09:30:00Z", q.Get("timeMin"))

		_, _ = io.WriteString(w, `{"items":[
			{"id":"e1","summary":"Standup","start":{"dateTime":"2026-05-04T10:00:00Z"},"end":{"dateTime":"2026-05-04T10:15:00Z"},"location":"Room 1"},
			{"id":"e2","start":{"date":"2026-05-05"},"end":{"date":"2026-05-06"}}
		]}`)
	}))
	defer srv.Close()

	out, err := newTestAdapter(srv).Invoke(context.Background(), ToolListEvents, json.RawMessage(`{}`), staticCredential{token: "ya29.user"})
	require.NoError(t, err)

	list, ok := out.(*EventList)
	require.True(t, ok)
	assert.Equal(t, "primary", list.CalendarID)
	assert.Equal(t, 2, list.EventCount)
	assert.Equal(t, Event{ID: "e1", Summary: "Standup", Start: "2026-05-04T10:00:00Z", End: "2026-05-04T10:15:00Z", Location: "Room 1"}, list.Events[0])
	assert.Equal(t, "No title", list.Events[1].Summary)
	assert.Equal(t, "2026-05-05", list.Events[1].Start)
}

func TestListEvents_EscapesCalendarID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/calendars/team@group.calendar.google.com/events", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("maxResults"))
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	out, err := newTestAdapter(srv).Invoke(context.Background(), ToolListEvents,
		json.RawMessage(`{"calendar_id":"team@group.calendar.google.com","max_results":3}`), staticCredential{token: "t"})
	require.NoError(t, err)
	assert.Equal(t, 0, out.(*EventList).EventCount)
	assert.NotNil(t, out.(*EventList).Events)
}

func TestCreateEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Lunch", body["summary"])
		assert.Equal(t, map[string]any{"dateTime": "2026-05-04T12:00:00Z", "timeZone": "UTC"}, body["start"])
		assert.Equal(t, map[string]any{"dateTime": "2026-05-04T13:00:00Z", "timeZone": "UTC"}, body["end"])
		assert.Equal(t, "Cafe", body["location"])
		assert.NotContains(t, body, "description")

		_, _ = io.WriteString(w, `{"id":"new1","summary":"Lunch","start":{"dateTime":"2026-05-04T12:00:00Z"},"end":{"dateTime":"2026-05-04T13:00:00Z"},"htmlLink":"https://calendar.example/e/new1"}`)
	}))
	defer srv.Close()

	out, err := newTestAdapter(srv).Invoke(context.Background(), ToolCreateEvent, json.RawMessage(`{
		"summary":"Lunch",
		"start_iso":"2026-05-04T14:00:00+02:00",
		"end_iso":"2026-05-04T13:00:00Z",
		"location":"Cafe"
	}`), staticCredential{token: "t"})
	require.NoError(t, err)
	assert.Equal(t, &CreatedEvent{
		Success:  true,
		EventID:  "new1",
		Summary:  "Lunch",
		Start:    "2026-05-04T12:00:00Z",
		End:      "2026-05-04T13:00:00Z",
		HTMLLink: "https://calendar.example/e/new1",
	}, out)
}

func TestCreateEvent_Timestamps(t *testing.T) {
	tests := []struct {
		name      string
		start     string
		end       string
		wantStart string
		wantEnd   string
	}{
		{name: "utc", start: "2025-10-01T14:00:00Z", end: "2025-10-01T15:00:00Z", wantStart: "2025-10-01T14:00:00Z", wantEnd: "2025-10-01T15:00:00Z"},
		{name: "offset", start: "2025-10-01T16:00:00+02:00", end: "2025-10-01T17:00:00+02:00", wantStart: "2025-10-01T14:00:00Z", wantEnd: "2025-10-01T15:00:00Z"},
		{name: "no offset is utc", start: "2025-10-01T14:00:00", end: "2025-10-01T15:00:00", wantStart: "2025-10-01T14:00:00Z", wantEnd: "2025-10-01T15:00:00Z"},
		{name: "mixed", start: "2025-10-01T14:00:00", end: "2025-10-01T17:30:00+02:00", wantStart: "2025-10-01T14:00:00Z", wantEnd: "2025-10-01T15:30:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body struct {
					Start struct {
						DateTime string `json:"dateTime"`
						TimeZone string `json:"timeZone"`
					} `json:"start"`
					End struct {
						DateTime string `json:"dateTime"`
					} `json:"end"`
				}
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, tt.wantStart, body.Start.DateTime)
				assert.Equal(t, "UTC", body.Start.TimeZone)
				assert.Equal(t, tt.wantEnd, body.End.DateTime)
				_, _ = io.WriteString(w, `{"id":"e1"}`)
			}))
			defer srv.Close()

			args := `{"summary":"Standup","start_iso":"` + tt.start + `","end_iso":"` + tt.end + `"}`
			out, err := newTestAdapter(srv).Invoke(context.Background(), ToolCreateEvent, json.RawMessage(args), staticCredential{token: "t"})
			require.NoError(t, err)
			assert.Equal(t, "e1", out.(*CreatedEvent).EventID)
		})
	}
}

func TestCreateEvent_Validation(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		args    string
		wantMsg string
	}{
		{name: "missing summary", args: `{"start_iso":"2026-05-04T12:00:00Z","end_iso":"2026-05-04T13:00:00Z"}`, wantMsg: "summary"},
		{name: "missing end", args: `{"summary":"x","start_iso":"2026-05-04T12:00:00Z"}`, wantMsg: "end_iso"},
		{name: "bad start", args: `{"summary":"x","start_iso":"tomorrow","end_iso":"2026-05-04T13:00:00Z"}`, wantMsg: "start_iso"},
		{name: "end before start", args: `{"summary":"x","start_iso":"2026-05-04T13:00:00Z","end_iso":"2026-05-04T12:00:00Z"}`, wantMsg: "must be after"},
		{name: "end equals start", args: `{"summary":"x","start_iso":"2026-05-04T13:00:00Z","end_iso":"2026-05-04T13:00:00Z"}`, wantMsg: "must be after"},
		{name: "naive end before naive start", args: `{"summary":"x","start_iso":"2026-05-04T13:00:00","end_iso":"2026-05-04T12:00:00"}`, wantMsg: "must be after"},
		{name: "date only", args: `{"summary":"x","start_iso":"2026-05-04","end_iso":"2026-05-05"}`, wantMsg: "start_iso"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestAdapter(srv).Invoke(context.Background(), ToolCreateEvent, json.RawMessage(tt.args), staticCredential{token: "t"})
			require.Error(t, err)
			te := tools.AsToolError(err)
			assert.Equal(t, tools.KindInvalidParams, te.Kind)
			assert.Contains(t, te.Message, tt.wantMsg)
		})
	}
	assert.Equal(t, int32(0), calls.Load(), "invalid calls must not reach the provider")
}

func TestUpstreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   tools.Kind
	}{
		{name: "forbidden", status: http.StatusForbidden, want: tools.KindUpstreamRejected},
		{name: "not found", status: http.StatusNotFound, want: tools.KindUpstreamRejected},
		{name: "server error", status: http.StatusBadGateway, want: tools.KindUpstreamUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"code":1,"message":"nope"}}`)
			}))
			defer srv.Close()

			_, err := newTestAdapter(srv).Invoke(context.Background(), ToolCreateEvent,
				json.RawMessage(`{"summary":"x","start_iso":"2026-05-04T12:00:00Z","end_iso":"2026-05-04T13:00:00Z"}`),
				staticCredential{token: "t"})
			require.Error(t, err)
			assert.Equal(t, tt.want, tools.AsToolError(err).Kind)
		})
	}
}

func TestInvoke_RequiresCredential(t *testing.T) {
	_, err := New().Invoke(context.Background(), ToolListEvents, nil, nil)
	require.Error(t, err)
	assert.Equal(t, tools.KindUpstreamRejected, tools.AsToolError(err).Kind)
}

func TestInvoke_UnknownTool(t *testing.T) {
	_, err := New().Invoke(context.Background(), "calendar_delete_everything", nil, nil)
	assert.ErrorIs(t, err, tools.ErrUnknownTool)
}
