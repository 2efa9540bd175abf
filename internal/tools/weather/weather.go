// ABOUTME: OpenWeatherMap tool adapter using a server-held API key
// ABOUTME: Exposes weather_current and weather_forecast

package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/2389/skybridge/internal/tools"
)

// DefaultBaseURL is the OpenWeatherMap 2.5 API root.
const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Tool names
const (
	ToolCurrent  = "weather_current"
	ToolForecast = "weather_forecast"
)

// ErrMissingAPIKey indicates the adapter was built without an API key.
var ErrMissingAPIKey = errors.New("weather API key not configured")

// slotsPerDay is the number of 3-hour forecast intervals in a day.
const slotsPerDay = 8

// maxForecastSlots is the free-tier forecast horizon.
const maxForecastSlots = 40

const currentSchema = `{
  "type": "object",
  "properties": {
    "city": {"type": "string", "description": "City name (e.g., 'London', 'New York')"},
    "units": {"type": "string", "description": "Units: metric, imperial, or kelvin", "default": "metric", "enum": ["metric", "imperial", "kelvin"]}
  },
  "required": ["city"]
}`

const forecastSchema = `{
  "type": "object",
  "properties": {
    "city": {"type": "string", "description": "City name"},
    "days": {"type": "integer", "description": "Number of days (1-5)", "default": 3, "minimum": 1, "maximum": 5},
    "units": {"type": "string", "description": "Units: metric, imperial, or kelvin", "default": "metric", "enum": ["metric", "imperial", "kelvin"]}
  },
  "required": ["city"]
}`

type currentArgs struct {
	City  string `json:"city" validate:"required"`
	Units string `json:"units" validate:"oneof=metric imperial kelvin"`
}

type forecastArgs struct {
	City  string `json:"city" validate:"required"`
	Days  int    `json:"days" validate:"min=1,max=5"`
	Units string `json:"units" validate:"oneof=metric imperial kelvin"`
}

// Current is the weather_current result.
type Current struct {
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int64   `json:"humidity"`
	Description string  `json:"description"`
	WindSpeed   float64 `json:"wind_speed"`
	Units       string  `json:"units"`
}

// Slot is one 3-hour forecast interval.
type Slot struct {
	DateTime    string  `json:"datetime"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	Description string  `json:"description"`
	Humidity    int64   `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
}

// Forecast is the weather_forecast result.
type Forecast struct {
	City          string `json:"city"`
	Country       string `json:"country"`
	ForecastCount int    `json:"forecast_count"`
	Forecasts     []Slot `json:"forecasts"`
	Units         string `json:"units"`
}

// Adapter serves weather tools against OpenWeatherMap.
type Adapter struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	upstream *tools.Upstream
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBaseURL points the adapter at a different API root.
func WithBaseURL(base string) Option {
	return func(a *Adapter) {
		if base != "" {
			a.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient sets the client used for provider requests.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) {
		a.client = c
	}
}

// WithUpstream replaces the request plumbing.
func WithUpstream(u *tools.Upstream) Option {
	return func(a *Adapter) {
		a.upstream = u
	}
}

// New creates a weather adapter authenticated with apiKey.
func New(apiKey string, opts ...Option) *Adapter {
	a := &Adapter{
		apiKey:   apiKey,
		baseURL:  DefaultBaseURL,
		client:   http.DefaultClient,
		upstream: tools.NewUpstream("weather"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return "weather" }

func (a *Adapter) Definitions() []tools.Definition {
	return []tools.Definition{
		{
			Name:        ToolCurrent,
			Description: "Get current weather for a city",
			InputSchema: json.RawMessage(currentSchema),
		},
		{
			Name:        ToolForecast,
			Description: "Get weather forecast for a city",
			InputSchema: json.RawMessage(forecastSchema),
		},
	}
}

// Invoke ignores cred; the provider is accessed with the server's API key.
func (a *Adapter) Invoke(ctx context.Context, name string, args json.RawMessage, _ tools.Credential) (any, error) {
	switch name {
	case ToolCurrent:
		in := currentArgs{Units: "metric"}
		if err := tools.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := a.ready(); err != nil {
			return nil, err
		}
		return a.current(ctx, in)
	case ToolForecast:
		in := forecastArgs{Days: 3, Units: "metric"}
		if err := tools.DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := a.ready(); err != nil {
			return nil, err
		}
		return a.forecast(ctx, in)
	default:
		return nil, fmt.Errorf("%w: %s", tools.ErrUnknownTool, name)
	}
}

func (a *Adapter) ready() error {
	if a.apiKey == "" {
		return tools.Unavailable("weather provider is not configured", ErrMissingAPIKey)
	}
	return nil
}

func (a *Adapter) query(city, units string) url.Values {
	return url.Values{
		"q":     {city},
		"appid": {a.apiKey},
		"units": {apiUnits(units)},
	}
}

// apiUnits maps the tool's unit names onto OpenWeatherMap's.
func apiUnits(units string) string {
	if units == "kelvin" {
		return "standard"
	}
	return units
}

func (a *Adapter) current(ctx context.Context, in currentArgs) (*Current, error) {
	body, err := a.upstream.Get(ctx, a.client, a.baseURL+"/weather", a.query(in.City, in.Units))
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	return &Current{
		City:        res.Get("name").String(),
		Country:     res.Get("sys.country").String(),
		Temperature: res.Get("main.temp").Float(),
		FeelsLike:   res.Get("main.feels_like").Float(),
		Humidity:    res.Get("main.humidity").Int(),
		Description: res.Get("weather.0.description").String(),
		WindSpeed:   res.Get("wind.speed").Float(),
		Units:       in.Units,
	}, nil
}

func (a *Adapter) forecast(ctx context.Context, in forecastArgs) (*Forecast, error) {
	slots := min(in.Days*slotsPerDay, maxForecastSlots)
	q := a.query(in.City, in.Units)
	q.Set("cnt", strconv.Itoa(slots))

	body, err := a.upstream.Get(ctx, a.client, a.baseURL+"/forecast", q)
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	out := &Forecast{
		City:      res.Get("city.name").String(),
		Country:   res.Get("city.country").String(),
		Forecasts: []Slot{},
		Units:     in.Units,
	}
	res.Get("list").ForEach(func(_, item gjson.Result) bool {
		if len(out.Forecasts) >= slots {
			return false
		}
		out.Forecasts = append(out.Forecasts, Slot{
			DateTime:    item.Get("dt_txt").String(),
			Temperature: item.Get("main.temp").Float(),
			FeelsLike:   item.Get("main.feels_like").Float(),
			Description: item.Get("weather.0.description").String(),
			Humidity:    item.Get("main.humidity").Int(),
			WindSpeed:   item.Get("wind.speed").Float(),
		})
		return true
	})
	out.ForecastCount = len(out.Forecasts)
	return out, nil
}
