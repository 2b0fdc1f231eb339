package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/storykeep/internal/cache"
	"github.com/pders01/storykeep/internal/offline"
	"github.com/pders01/storykeep/internal/syncer"
	"github.com/pders01/storykeep/internal/worker"
)

type originCache struct {
	origin http.Handler
}

func (c originCache) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	c.origin.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func (originCache) Install(ctx context.Context) (*cache.InstallReport, error) {
	return &cache.InstallReport{}, nil
}

func (originCache) Activate() ([]string, error) { return nil, nil }

type dispatcher struct{}

func (dispatcher) Trigger(reason string) <-chan syncer.Outcome {
	ch := make(chan syncer.Outcome, 1)
	ch <- syncer.Outcome{Reason: reason, Result: syncer.Result{Attempted: 2, Succeeded: 2}}
	return ch
}

type staticStatus struct{}

func (staticStatus) Status() (offline.Status, error) {
	return offline.Status{Online: true, Pending: 3, LoggedIn: true}, nil
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	origin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html>"+r.URL.Path+"</html>")
	})

	w := worker.New(originCache{origin: origin}, dispatcher{}, worker.Options{
		SkipWaiting: true,
		Network:     originCache{origin: origin},
	})
	_, err := w.Dispatch(context.Background(), worker.Install{})
	require.NoError(t, err)

	u, _ := url.Parse("http://localhost:8080")
	s := New("127.0.0.1:0", u, w, staticStatus{})
	return s, s
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestStatus(t *testing.T) {
	_, h := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_worker/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "activated", body["worker"])
	assert.Equal(t, float64(3), body["pending"])
	assert.Equal(t, true, body["online"])
}

func TestMessage(t *testing.T) {
	_, h := newTestServer(t)

	t.Run("sync scheduled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/_worker/message", strings.NewReader(`{"type":"SYNC_STORIES"}`)))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("sync awaited", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/_worker/message?wait=1", strings.NewReader(`{"type":"SYNC_STORIES"}`)))
		assert.Equal(t, http.StatusOK, rec.Code)
		sync := decode(t, rec)["sync"].(map[string]any)
		assert.Equal(t, float64(2), sync["succeeded"])
	})

	t.Run("unknown type", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/_worker/message", strings.NewReader(`{"type":"NOPE"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, true, decode(t, rec)["error"])
	})

	t.Run("bad json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/_worker/message", strings.NewReader(`{`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestPushAndClick(t *testing.T) {
	_, h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/_worker/push", strings.NewReader("plain words")))
	require.Equal(t, http.StatusOK, rec.Code)
	n := decode(t, rec)["notification"].(map[string]any)
	assert.Equal(t, "Story App", n["title"])
	assert.Equal(t, "plain words", n["body"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/_worker/notificationclick", strings.NewReader(`{"action":"view","url":"/#/stories/1"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/#/stories/1", decode(t, rec)["openWindow"])
}

func TestFetchProxiesThroughWorker(t *testing.T) {
	_, h := newTestServer(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/about?x=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>/about</html>", rec.Body.String())
	assert.Equal(t, "text/html", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stories", strings.NewReader("x")))
	assert.Equal(t, http.StatusOK, rec.Code, "non-worker POSTs are proxied too")
}

func TestGracefulShutdown(t *testing.T) {
	s, _ := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/_worker/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
