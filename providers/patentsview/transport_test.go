package patentsview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTimer merkt sich die angeforderten Wartezeiten und feuert sofort.
type fakeTimer struct {
	waits   []time.Duration
	c       chan time.Time
	onStart func()
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (f *fakeTimer) Start(d time.Duration) {
	f.waits = append(f.waits, d)
	if f.onStart != nil {
		f.onStart()
		return
	}
	f.c <- time.Now()
}

func (f *fakeTimer) Stop() {}

func (f *fakeTimer) C() <-chan time.Time { return f.c }

var _ backoff.Timer = (*fakeTimer)(nil)

func newTestClient(t *testing.T, gen Generation, handler http.HandlerFunc) (*Client, *fakeTimer) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	timer := newFakeTimer()
	return &Client{
		API:        mustAPI(t, gen, srv.URL),
		APIKey:     "geheim",
		UserAgent:  "patent-hand-test",
		RetryAfter: time.Second,
		HTTP:       srv.Client(),
		Timer:      timer,
		Logger:     zap.NewNop(),
	}, timer
}

func testRequest() Request {
	return Request{
		Filter:  Filter{Field: "patent_id", Value: []string{"1", "2"}},
		Fields:  []string{"patent_id"},
		Options: Options{Size: 100},
		Sort:    []map[string]string{{"patent_id": "desc"}},
	}
}

func TestSendSearchGenerationPostsJSON(t *testing.T) {
	client, _ := newTestClient(t, GenerationSearch, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/patent/", r.URL.Path)
		assert.Equal(t, "geheim", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "patent-hand-test", r.Header.Get("User-Agent"))

		var body map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `{"patent_id":["1","2"]}`, string(body["q"]))
		assert.JSONEq(t, `["patent_id"]`, string(body["f"]))
		assert.JSONEq(t, `{"size":100}`, string(body["o"]))
		assert.JSONEq(t, `[{"patent_id":"desc"}]`, string(body["s"]))

		_, _ = w.Write([]byte(`{"patents":[],"count":0,"total_hits":0}`))
	})

	body, err := client.Send(context.Background(), client.API.Patents, testRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{"patents":[],"count":0,"total_hits":0}`, string(body))
}

func TestSendLegacyGenerationUsesQueryParameters(t *testing.T) {
	client, _ := newTestClient(t, GenerationLegacy, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/patents/query", r.URL.Path)
		assert.Empty(t, r.Header.Get("X-Api-Key"))
		assert.Equal(t, "patent-hand-test", r.Header.Get("User-Agent"))

		q := r.URL.Query()
		assert.JSONEq(t, `{"_eq":{"assignee_organization":"Acme Corp"}}`, q.Get("q"))
		assert.NotContains(t, q.Get("q"), "\n")
		assert.JSONEq(t, `{"page":2,"per_page":50}`, q.Get("o"))
		assert.JSONEq(t, `[{"patent_number":"desc"}]`, q.Get("so"))

		_, _ = w.Write([]byte(`{"patents":[],"count":0,"total_patent_count":0}`))
	})

	req := Request{
		Filter:  Filter{Op: OpEq, Field: "assignee_organization", Value: "Acme Corp"},
		Fields:  client.API.Patents.Fields,
		Options: Options{Page: 2, PerPage: 50},
		Sort:    client.API.Patents.Sort(),
	}
	_, err := client.Send(context.Background(), client.API.Patents, req)
	require.NoError(t, err)
}

func TestSendRetriesOnceAfterThrottle(t *testing.T) {
	var calls atomic.Int32
	client, timer := newTestClient(t, GenerationSearch, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"patents":[{"patent_id":"1"}],"count":1,"total_hits":1}`))
	})

	body, err := client.Send(context.Background(), client.API.Patents, testRequest())
	require.NoError(t, err)
	assert.Contains(t, string(body), `"patent_id":"1"`)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second}, timer.waits)
}

func TestSendThrottledTwice(t *testing.T) {
	var calls atomic.Int32
	client, timer := newTestClient(t, GenerationSearch, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Send(context.Background(), client.API.Patents, testRequest())
	var throttled *ThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.Equal(t, 2, throttled.Attempts)
	assert.Equal(t, int32(2), calls.Load())
	// ohne Retry-After gilt der konfigurierte Standard
	assert.Equal(t, []time.Duration{time.Second}, timer.waits)
}

func TestSendAuthenticationError(t *testing.T) {
	var calls atomic.Int32
	client, timer := newTestClient(t, GenerationSearch, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"detail":"invalid key"}`))
	})

	_, err := client.Send(context.Background(), client.API.Patents, testRequest())
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusForbidden, authErr.StatusCode)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, timer.waits)
}

func TestSendAPIErrorCarriesReason(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, GenerationSearch, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("X-Status-Reason", "Invalid field: foo")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad"))
	})

	_, err := client.Send(context.Background(), client.API.Patents, testRequest())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid field: foo", apiErr.Reason)
	assert.Equal(t, "bad", apiErr.Body)
	assert.Contains(t, apiErr.Error(), "Invalid field: foo")

	var authErr *AuthenticationError
	assert.False(t, errors.As(err, &authErr))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendCancelledDuringThrottleWait(t *testing.T) {
	var calls atomic.Int32
	client, timer := newTestClient(t, GenerationSearch, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timer.onStart = cancel

	_, err := client.Send(ctx, client.API.Patents, testRequest())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []time.Duration{30 * time.Second}, timer.waits)
}

func TestParseRetryAfter(t *testing.T) {
	cases := map[string]time.Duration{
		"2":                             2 * time.Second,
		" 10 ":                          10 * time.Second,
		"0":                             0,
		"":                              time.Second,
		"-1":                            time.Second,
		"morgen":                        time.Second,
		"Wed, 21 Oct 2015 07:28:00 GMT": time.Second,
	}
	for value, want := range cases {
		assert.Equal(t, want, parseRetryAfter(value, time.Second), value)
	}
}
