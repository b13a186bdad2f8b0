package reload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func performRequest(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTrigger_ReloadsBeforeRequest(t *testing.T) {
	r := NewRegistry()
	path := writeFile(t, t.TempDir(), "app.yaml", "routes: []")
	require.NoError(t, r.Watch(path, RouteElement{Verb: "GET", Signature: "/x"}))

	h := newFakeHost()
	c := newTestCoordinator(t, r, h)
	trigger := NewTrigger(c, zap.NewNop(), 0)

	var served bool
	handler := trigger.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		served = true
	}))

	touch(t, path, time.Second)
	rec := performRequest(t, handler)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, served)
	assert.Equal(t, []string{path}, h.loads, "the change reloads before the handler runs")
}

func TestTrigger_FailedReloadFailsTheRequest(t *testing.T) {
	r := NewRegistry()
	path := writeFile(t, t.TempDir(), "app.yaml", "routes: []")
	require.NoError(t, r.Watch(path, RouteElement{Verb: "GET", Signature: "/x"}))

	h := newFakeHost()
	h.loadFunc = func(ctx context.Context, p string) error { return errors.New("boom") }
	c := newTestCoordinator(t, r, h)
	trigger := NewTrigger(c, zap.NewNop(), 0)

	var served bool
	handler := trigger.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		served = true
	}))

	touch(t, path, time.Second)
	rec := performRequest(t, handler)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "reload failed")
	assert.False(t, served, "the broken application must not serve the request")

	// The application keeps running: the next request retries and, with
	// the file fixed, succeeds.
	h.mu.Lock()
	h.loadFunc = nil
	h.mu.Unlock()
	rec = performRequest(t, handler)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTrigger_CooldownSkipsDetection(t *testing.T) {
	r := NewRegistry()
	path := writeFile(t, t.TempDir(), "app.yaml", "routes: []")
	require.NoError(t, r.Watch(path, RouteElement{Verb: "GET", Signature: "/x"}))

	h := newFakeHost()
	c := newTestCoordinator(t, r, h)
	trigger := NewTrigger(c, zap.NewNop(), time.Hour)
	handler := trigger.Middleware(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))

	touch(t, path, time.Second)
	performRequest(t, handler)
	require.Len(t, h.loads, 1, "first request within the window runs the pass")

	touch(t, path, 2*time.Second)
	performRequest(t, handler)
	assert.Len(t, h.loads, 1, "a second request inside the cooldown skips detection")
}
