// ABOUTME: Tests for the OpenWeatherMap adapter against a fake provider
// ABOUTME: Covers result shaping, unit mapping, forecast sizing, and validation

package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/skybridge/internal/tools"
)

const currentFixture = `{
  "name": "Oslo",
  "sys": {"country": "NO"},
  "main": {"temp": 4.5, "feels_like": 1.2, "humidity": 81},
  "weather": [{"description": "light rain"}],
  "wind": {"speed": 5.1}
}`

func forecastFixture(n int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"dt_txt":"slot-%d","main":{"temp":%d,"feels_like":%d,"humidity":50},"weather":[{"description":"clear"}],"wind":{"speed":1.5}}`, i, i, i)
	}
	return `{"city":{"name":"Oslo","country":"NO"},"list":[` + strings.Join(items, ",") + `]}`
}

func TestCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "Oslo", q.Get("q"))
		assert.Equal(t, "test-key", q.Get("appid"))
		assert.Equal(t, "metric", q.Get("units"))
		_, _ = io.WriteString(w, currentFixture)
	}))
	defer srv.Close()

	a := New("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	out, err := a.Invoke(context.Background(), ToolCurrent, json.RawMessage(`{"city":"Oslo"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, &Current{
		City:        "Oslo",
		Country:     "NO",
		Temperature: 4.5,
		FeelsLike:   1.2,
		Humidity:    81,
		Description: "light rain",
		WindSpeed:   5.1,
		Units:       "metric",
	}, out)
}

func TestCurrent_KelvinMapsToStandard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "standard", r.URL.Query().Get("units"))
		_, _ = io.WriteString(w, currentFixture)
	}))
	defer srv.Close()

	a := New("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	out, err := a.Invoke(context.Background(), ToolCurrent, json.RawMessage(`{"city":"Oslo","units":"kelvin"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "kelvin", out.(*Current).Units)
}

func TestForecast(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantCnt   string
		available int
		wantCount int
	}{
		{name: "default three days", args: `{"city":"Oslo"}`, wantCnt: "24", available: 40, wantCount: 24},
		{name: "one day", args: `{"city":"Oslo","days":1}`, wantCnt: "8", available: 40, wantCount: 8},
		{name: "five days capped at forty", args: `{"city":"Oslo","days":5}`, wantCnt: "40", available: 40, wantCount: 40},
		{name: "provider returns extra", args: `{"city":"Oslo","days":1}`, wantCnt: "8", available: 12, wantCount: 8},
		{name: "provider returns fewer", args: `{"city":"Oslo","days":2}`, wantCnt: "16", available: 5, wantCount: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/forecast", r.URL.Path)
				assert.Equal(t, tt.wantCnt, r.URL.Query().Get("cnt"))
				_, _ = io.WriteString(w, forecastFixture(tt.available))
			}))
			defer srv.Close()

			a := New("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
			out, err := a.Invoke(context.Background(), ToolForecast, json.RawMessage(tt.args), nil)
			require.NoError(t, err)

			f := out.(*Forecast)
			assert.Equal(t, "Oslo", f.City)
			assert.Equal(t, tt.wantCount, f.ForecastCount)
			assert.Len(t, f.Forecasts, tt.wantCount)
			assert.Equal(t, "slot-0", f.Forecasts[0].DateTime)
		})
	}
}

func TestValidation(t *testing.T) {
	a := New("test-key", WithBaseURL("http://127.0.0.1:1"))

	tests := []struct {
		name string
		tool string
		args string
	}{
		{name: "current missing city", tool: ToolCurrent, args: `{}`},
		{name: "current bad units", tool: ToolCurrent, args: `{"city":"Oslo","units":"rankine"}`},
		{name: "forecast zero days", tool: ToolForecast, args: `{"city":"Oslo","days":0}`},
		{name: "forecast six days", tool: ToolForecast, args: `{"city":"Oslo","days":6}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Invoke(context.Background(), tt.tool, json.RawMessage(tt.args), nil)
			require.Error(t, err)
			assert.Equal(t, tools.KindInvalidParams, tools.AsToolError(err).Kind)
		})
	}
}

func TestMissingAPIKey(t *testing.T) {
	_, err := New("").Invoke(context.Background(), ToolCurrent, json.RawMessage(`{"city":"Oslo"}`), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
	assert.Equal(t, tools.KindUpstreamUnavailable, tools.AsToolError(err).Kind)
}

func TestCityNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"cod":"404","message":"city not found"}`)
	}))
	defer srv.Close()

	a := New("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := a.Invoke(context.Background(), ToolCurrent, json.RawMessage(`{"city":"Atlantis"}`), nil)
	require.Error(t, err)
	te := tools.AsToolError(err)
	assert.Equal(t, tools.KindUpstreamRejected, te.Kind)
	assert.Equal(t, "weather provider rejected the request (HTTP 404)", te.Message)
	assert.ErrorContains(t, te.Err, "city not found")
}

func TestUnreachableProviderRedactsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	a := New("SECRETKEY123", WithBaseURL(base), WithUpstream(tools.NewUpstream("weather", tools.WithMaxTries(1))))
	_, err := a.Invoke(context.Background(), ToolCurrent, json.RawMessage(`{"city":"Paris"}`), nil)
	require.Error(t, err)
	assert.Equal(t, tools.KindUpstreamUnavailable, tools.AsToolError(err).Kind)
	assert.NotContains(t, err.Error(), "SECRETKEY123")
	assert.NotContains(t, fmt.Sprintf("%+v", err), "SECRETKEY123")
}
