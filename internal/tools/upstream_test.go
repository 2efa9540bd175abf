// ABOUTME: Tests for provider request plumbing and status classification
// ABOUTME: Uses httptest servers to verify retry and no-retry behavior

package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/skybridge/internal/auth"
)

func fastUpstream() *Upstream {
	return NewUpstream("provider", WithBackOff(func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}))
}

func TestUpstreamGet(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		body      string
		wantKind  Kind
		wantCalls int32
		wantOK    bool
	}{
		{name: "success", statuses: []int{200}, body: `{"ok":true}`, wantOK: true, wantCalls: 1},
		{name: "retries 503 then succeeds", statuses: []int{503, 200}, body: `{"ok":true}`, wantOK: true, wantCalls: 2},
		{name: "gives up after three 500s", statuses: []int{500, 500, 500, 500}, wantKind: KindUpstreamUnavailable, wantCalls: 3},
		{name: "429 is unavailable", statuses: []int{429, 429, 429}, wantKind: KindUpstreamUnavailable, wantCalls: 3},
		{name: "404 is rejected without retry", statuses: []int{404}, body: `{"cod":"404","message":"city not found"}`, wantKind: KindUpstreamRejected, wantCalls: 1},
		{name: "401 is rejected", statuses: []int{401}, wantKind: KindUpstreamRejected, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tt.statuses[len(tt.statuses)-1]
				if int(n) <= len(tt.statuses) {
					status = tt.statuses[n-1]
				}
				assert.Equal(t, "v", r.URL.Query().Get("k"))
				w.WriteHeader(status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			body, err := fastUpstream().Get(context.Background(), srv.Client(), srv.URL, url.Values{"k": {"v"}})
			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantOK {
				require.NoError(t, err)
				assert.JSONEq(t, tt.body, string(body))
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, AsToolError(err).Kind)
		})
	}
}

func TestUpstreamRejectedMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	}))
	defer srv.Close()

	_, err := fastUpstream().Get(context.Background(), srv.Client(), srv.URL, nil)
	require.Error(t, err)
	te := AsToolError(err)
	assert.Contains(t, te.Message, "rejected the request (HTTP 404)")
	assert.NotContains(t, te.Message, "city not found")
	assert.ErrorContains(t, te.Err, "city not found")
}

func TestUpstreamProviderTextStaysOutOfMessage(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{
			name:   "401 with provider hint",
			status: http.StatusUnauthorized,
			body:   `{"cod":401,"message":"Invalid API key. Please see https://openweathermap.org/faq#error401 for more info."}`,
			want:   "weather provider rejected the request (HTTP 401)",
		},
		{
			name:   "503 with provider hint",
			status: http.StatusServiceUnavailable,
			body:   `{"error":{"code":503,"message":"Backend Error"}}`,
			want:   "weather provider unavailable (HTTP 503)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			u := NewUpstream("weather", WithMaxTries(1))
			_, err := u.Get(context.Background(), srv.Client(), srv.URL, nil)
			require.Error(t, err)
			te := AsToolError(err)
			assert.Equal(t, tt.want, te.Message)
			assert.NotContains(t, te.Message, "openweathermap")
			assert.NotContains(t, te.Message, "Backend Error")
		})
	}
}

func TestUpstreamPostNeverRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := fastUpstream().Post(context.Background(), srv.Client(), srv.URL, nil, map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Equal(t, KindUpstreamUnavailable, AsToolError(err).Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpstreamTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL
	srv.Close()

	_, err := fastUpstream().Get(context.Background(), http.DefaultClient, target, url.Values{"appid": {"SECRETKEY123"}, "q": {"Paris"}})
	require.Error(t, err)
	te := AsToolError(err)
	assert.Equal(t, KindUpstreamUnavailable, te.Kind)
	assert.NotContains(t, te.Error(), "SECRETKEY123")
	assert.NotContains(t, te.Error(), "appid")
	assert.Contains(t, te.Error(), strings.TrimPrefix(target, "http://"))
}

func TestUpstreamCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := fastUpstream().Get(ctx, srv.Client(), srv.URL, nil)
	require.Error(t, err)
	assert.Equal(t, KindUpstreamUnavailable, AsToolError(err).Kind)
}

func TestUpstreamForwardsRequestID(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get(RequestIDHeader))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx := auth.WithCaller(context.Background(), &auth.Caller{SessionID: "s1", RequestID: "req-123"})
	_, err := fastUpstream().Get(ctx, srv.Client(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "req-123", got.Load())

	_, err = fastUpstream().Get(context.Background(), srv.Client(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "", got.Load())
}
