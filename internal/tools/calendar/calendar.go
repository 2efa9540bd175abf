// ABOUTME: Google Calendar tool adapter acting with the session's delegated credential
// ABOUTME: Exposes calendar_list_events and calendar_create_event

package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/skybridge/internal/tools"
)

// DefaultBaseURL is the Google Calendar v3 API root.
const DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

// Scopes are the OAuth scopes the adapter needs on the user's account.
var Scopes = []string{
	"https://www.googleapis.com/auth/calendar.events",
	"https://www.googleapis.com/auth/calendar.readonly",
}

// Tool names
const (
	ToolListEvents  = "calendar_list_events"
	ToolCreateEvent = "calendar_create_event"
)

const listEventsSchema = `{
  "type": "object",
  "properties": {
    "calendar_id": {"type": "string", "description": "Calendar ID (default: primary)", "default": "primary"},
    "max_results": {"type": "integer", "description": "Maximum number of events to return", "default": 10, "minimum": 1, "maximum": 250}
  }
}`

const createEventSchema = `{
  "type": "object",
  "properties": {
    "summary": {"type": "string", "description": "Event title/summary"},
    "start_iso": {"type": "string", "description": "Start time in ISO format (e.g., 2025-10-01T14:00:00Z); without an offset it is read as UTC"},
    "end_iso": {"type": "string", "description": "End time in ISO format (e.g., 2025-10-01T15:00:00Z); without an offset it is read as UTC"},
    "calendar_id": {"type": "string", "description": "Calendar ID (default: primary)", "default": "primary"},
    "description": {"type": "string", "description": "Event description"},
    "location": {"type": "string", "description": "Event location"}
  },
  "required": ["summary", "start_iso", "end_iso"]
}`

type listEventsArgs struct {
	CalendarID string `json:"calendar_id" validate:"required"`
	MaxResults int    `json:"max_results" validate:"min=1,max=250"`
}

type createEventArgs struct {
	Summary     string `json:"summary" validate:"required"`
	StartISO    string `json:"start_iso" validate:"required"`
	EndISO      string `json:"end_iso" validate:"required"`
	CalendarID  string `json:"calendar_id" validate:"required"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// Event is one calendar entry as returned to the client.
type Event struct {
	ID          string `json:"id"`
	Summary     string `json:"summary"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// EventList is the calendar_list_events result.
type EventList struct {
	CalendarID string  `json:"calendar_id"`
	EventCount int     `json:"event_count"`
	Events     []Event `json:"events"`
}

// CreatedEvent is the calendar_create_event result.
type CreatedEvent struct {
	Success  bool   `json:"success"`
	EventID  string `json:"event_id"`
	Summary  string `json:"summary"`
	Start    string `json:"start"`
	End      string `json:"end"`
	HTMLLink string `json:"html_link,omitempty"`
}

// Adapter serves calendar tools against the Google Calendar API.
type Adapter struct {
	baseURL  string
	upstream *tools.Upstream
	now      func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at a different API root.
func WithBaseURL(base string) Option {
	return func(a *Adapter) {
		a.baseURL = strings.TrimRight(base, "/")
	}
}

// WithUpstream replaces the request plumbing.
func WithUpstream(u *tools.Upstream) Option {
	return func(a *Adapter) {
		a.upstream = u
	}
}

// WithClock overrides the time used as the lower bound for listed events.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// New creates a calendar adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		baseURL:  DefaultBaseURL,
		upstream: tools.NewUpstream("calendar"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return "calendar" }

func (a *Adapter) Definitions() []tools.Definition {
	return []tools.Definition{
		{
			Name:        ToolListEvents,
			Description: "List upcoming events from Google Calendar",
			InputSchema: json.RawMessage(listEventsSchema),
		},
		{
			Name:        ToolCreateEvent,
			Description: "Create a new event in Google Calendar",
			InputSchema: json.RawMessage(createEventSchema),
		},
	}
}

func (a *Adapter) Invoke(ctx context.Context, name string, args json.RawMessage, cred tools.Credential) (any, error) {
	switch name {
	case ToolListEvents:
		in := listEventsArgs{CalendarID: "primary", MaxResults: 10}
		if err := tools.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		client, err := authorizedClient(ctx, cred)
		if err != nil {
			return nil, err
		}
		return a.listEvents(ctx, client, in)
	case ToolCreateEvent:
		in := createEventArgs{CalendarID: "primary"}
		if err := tools.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		start, end, err := parseWindow(in.StartISO, in.EndISO)
		if err != nil {
			return nil, err
		}
		client, err := authorizedClient(ctx, cred)
		if err != nil {
			return nil, err
		}
		return a.createEvent(ctx, client, in, start, end)
	default:
		return nil, fmt.Errorf("%w: %s", tools.ErrUnknownTool, name)
	}
}

func authorizedClient(ctx context.Context, cred tools.Credential) (*http.Client, error) {
	if cred == nil {
		return nil, tools.Rejected("calendar tools require a signed-in Google account", nil)
	}
	return cred.Client(ctx), nil
}

// naiveISO is an ISO 8601 date-time without an offset, read as UTC.
const naiveISO = "2006-01-02T15:04:05"

func parseISO(value string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(naiveISO, value, time.UTC); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func parseWindow(startISO, endISO string) (time.Time, time.Time, error) {
	start, ok := parseISO(startISO)
	if !ok {
		return time.Time{}, time.Time{}, tools.InvalidParams("argument 'start_iso' must be an ISO 8601 date-time")
	}
	end, ok := parseISO(endISO)
	if !ok {
		return time.Time{}, time.Time{}, tools.InvalidParams("argument 'end_iso' must be an ISO 8601 date-time")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, tools.InvalidParams("argument 'end_iso' must be after 'start_iso'")
	}
	return start, end, nil
}

func (a *Adapter) eventsURL(calendarID string) string {
	return a.baseURL + "/calendars/" + url.PathEscape(calendarID) + "/events"
}

func (a *Adapter) listEvents(ctx context.Context, client *http.Client, in listEventsArgs) (*EventList, error) {
	query := url.Values{
		"maxResults":   {strconv.Itoa(in.MaxResults)},
		"orderBy":      {"startTime"},
		"singleEvents": {"true"},
		"timeMin":      {a.now().UTC().Format(time.RFC3339)},
	}
	body, err := a.upstream.Get(ctx, client, a.eventsURL(in.CalendarID), query)
	if err != nil {
		return nil, err
	}

	out := &EventList{CalendarID: in.CalendarID, Events: []Event{}}
	gjson.GetBytes(body, "items").ForEach(func(_, item gjson.Result) bool {
		ev := Event{
			ID:          item.Get("id").String(),
			Summary:     item.Get("summary").String(),
			Start:       firstOf(item, "start.dateTime", "start.date"),
			End:         firstOf(item, "end.dateTime", "end.date"),
			Location:    item.Get("location").String(),
			Description: item.Get("description").String(),
		}
		if ev.Summary == "" {
			ev.Summary = "No title"
		}
		out.Events = append(out.Events, ev)
		return true
	})
	out.EventCount = len(out.Events)
	return out, nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type eventBody struct {
	Summary     string    `json:"summary"`
	Start       eventTime `json:"start"`
	End         eventTime `json:"end"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
}

func (a *Adapter) createEvent(ctx context.Context, client *http.Client, in createEventArgs, start, end time.Time) (*CreatedEvent, error) {
	payload := eventBody{
		Summary:     in.Summary,
		Start:       eventTime{DateTime: start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         eventTime{DateTime: end.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		Description: in.Description,
		Location:    in.Location,
	}
	body, err := a.upstream.Post(ctx, client, a.eventsURL(in.CalendarID), nil, payload)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	return &CreatedEvent{
		Success:  true,
		EventID:  res.Get("id").String(),
		Summary:  res.Get("summary").String(),
		Start:    res.Get("start.dateTime").String(),
		End:      res.Get("end.dateTime").String(),
		HTMLLink: res.Get("htmlLink").String(),
	}, nil
}

func firstOf(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
