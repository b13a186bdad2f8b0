package host

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leslieo2/go-app-reload/internal/reload"
)

type watched struct {
	path string
	el   reload.Element
}

// recordingObserver captures registrations without touching the disk.
type recordingObserver struct {
	watched []watched
	ignored []string
}

func (o *recordingObserver) Watch(path string, el reload.Element) error {
	o.watched = append(o.watched, watched{path: path, el: el})
	return nil
}

func (o *recordingObserver) Ignore(path string) error {
	o.ignored = append(o.ignored, path)
	return nil
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func textHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}
}

func TestApp_RegisterReportsEveryElement(t *testing.T) {
	obs := &recordingObserver{}
	a := NewApp("test", zap.NewNop(), WithObserver(obs))
	src := Source{"/app/main.yaml"}

	require.NoError(t, a.RegisterRoute(src, "GET", "/hi", textHandler("hi")))
	require.NoError(t, a.RegisterBeforeFilter(src, "bf", func(w http.ResponseWriter, r *http.Request) bool { return true }))
	require.NoError(t, a.RegisterErrorHandler(src, 404, "main:404", func(w http.ResponseWriter, r *http.Request, code int) {}))
	require.NoError(t, a.RegisterInlineTemplates(src))

	require.Len(t, obs.watched, 4)
	assert.Equal(t, reload.RouteElement{Verb: "GET", Signature: "/hi"}, obs.watched[0].el)
	assert.Equal(t, "/app/main.yaml", obs.watched[0].path)
	assert.Equal(t, reload.InlineTemplatesElement{}, obs.watched[3].el)
}

func TestApp_RegisterUnderTwoPaths(t *testing.T) {
	obs := &recordingObserver{}
	a := NewApp("test", zap.NewNop(), WithObserver(obs))

	src := Source{"/lib/ext.yaml", "/app/main.yaml"}
	require.NoError(t, a.RegisterRoute(src, "GET", "/x", textHandler("x")))

	require.Len(t, obs.watched, 2)
	assert.Equal(t, "/lib/ext.yaml", obs.watched[0].path)
	assert.Equal(t, "/app/main.yaml", obs.watched[1].path)
	assert.Equal(t, obs.watched[0].el, obs.watched[1].el)
}

func TestApp_RegisterWithoutSourceFails(t *testing.T) {
	a := NewApp("test", zap.NewNop(), WithObserver(&recordingObserver{}))

	err := a.RegisterRoute(nil, "GET", "/hi", textHandler("hi"))
	assert.ErrorIs(t, err, reload.ErrUnresolvedSource)
}

func TestApp_NoObserverNeedsNoSource(t *testing.T) {
	a := NewApp("test", zap.NewNop())
	require.NoError(t, a.RegisterRoute(nil, "GET", "/hi", textHandler("hi")))
	assert.Equal(t, http.StatusOK, get(t, a.Handler(), "/hi").Code)
}

func TestApp_DispatchMatchesSignatures(t *testing.T) {
	a := NewApp("test", zap.NewNop())
	require.NoError(t, a.RegisterRoute(nil, "GET", "/users/:id", textHandler("user")))
	require.NoError(t, a.RegisterRoute(nil, "GET", "/exact", textHandler("exact")))

	assert.Equal(t, "user", get(t, a.Handler(), "/users/42").Body.String())
	assert.Equal(t, "exact", get(t, a.Handler(), "/exact").Body.String())
	assert.Equal(t, http.StatusNotFound, get(t, a.Handler(), "/users/42/extra").Code)
	assert.Equal(t, http.StatusNotFound, get(t, a.Handler(), "/other").Code)
}

func TestApp_BeforeFilterHalts(t *testing.T) {
	a := NewApp("test", zap.NewNop())
	require.NoError(t, a.RegisterRoute(nil, "GET", "/x", textHandler("served")))
	require.NoError(t, a.RegisterBeforeFilter(nil, "halt", func(w http.ResponseWriter, r *http.Request) bool {
		http.Error(w, "blocked", http.StatusForbidden)
		return false
	}))

	rec := get(t, a.Handler(), "/x")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "served")
}

func TestApp_ErrorHandlerRendersStatus(t *testing.T) {
	a := NewApp("test", zap.NewNop())
	require.NoError(t, a.RegisterErrorHandler(nil, 404, "id1", func(w http.ResponseWriter, r *http.Request, code int) {
		w.WriteHeader(code)
		io.WriteString(w, "custom not found")
	}))

	rec := get(t, a.Handler(), "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "custom not found", rec.Body.String())
}

func TestApp_MiddlewareChainApplied(t *testing.T) {
	a := NewApp("test", zap.NewNop())
	require.NoError(t, a.RegisterRoute(nil, "GET", "/x", textHandler("x")))
	require.NoError(t, a.RegisterMiddleware(nil, "server_header", []string{"custom"}, func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", "custom")
			next.ServeHTTP(w, r)
		})
	}))

	rec := get(t, a.Handler(), "/x")
	assert.Equal(t, "custom", rec.Header().Get("Server"))

	// Removal takes effect on the next request.
	a.RemoveMiddleware("server_header", []string{"custom"})
	rec = get(t, a.Handler(), "/x")
	assert.Empty(t, rec.Header().Get("Server"))
}

func TestApp_RemovalsAreIdempotent(t *testing.T) {
	a := NewApp("test", zap.NewNop())
	require.NoError(t, a.RegisterRoute(nil, "GET", "/x", textHandler("x")))
	require.NoError(t, a.RegisterBeforeFilter(nil, "bf", func(w http.ResponseWriter, r *http.Request) bool { return true }))
	require.NoError(t, a.RegisterAfterFilter(nil, "af", func(w http.ResponseWriter, r *http.Request) bool { return true }))

	a.RemoveRoute("GET", "/x")
	a.RemoveRoute("GET", "/x")
	a.RemoveRoute("POST", "/never")
	a.RemoveBeforeFilter("bf")
	a.RemoveBeforeFilter("bf")
	a.RemoveAfterFilter("af")
	a.RemoveAfterFilter("af")
	a.RemoveMiddleware("absent", nil)
	a.RemoveErrorHandler(500, "never")

	assert.Equal(t, http.StatusNotFound, get(t, a.Handler(), "/x").Code)
}

func TestApp_RemoveErrorHandlerOnlyWhenStillInstalled(t *testing.T) {
	a := NewApp("test", zap.NewNop())
	require.NoError(t, a.RegisterErrorHandler(nil, 404, "old", func(w http.ResponseWriter, r *http.Request, code int) {
		io.WriteString(w, "old")
	}))
	// A later registration replaces the handler for the code.
	require.NoError(t, a.RegisterErrorHandler(nil, 404, "new", func(w http.ResponseWriter, r *http.Request, code int) {
		io.WriteString(w, "new")
	}))

	// Deactivating the stale element must not clobber the newer handler.
	a.RemoveErrorHandler(404, "old")
	assert.Equal(t, "new", get(t, a.Handler(), "/missing").Body.String())

	a.RemoveErrorHandler(404, "new")
	assert.Equal(t, http.StatusText(http.StatusNotFound)+"\n", get(t, a.Handler(), "/missing").Body.String())
}

func TestMatchSignature(t *testing.T) {
	cases := []struct {
		signature, path string
		want            bool
	}{
		{"/a/b", "/a/b", true},
		{"/a/:x", "/a/anything", true},
		{"/a/:x/c", "/a/b/c", true},
		{"/a/:x", "/a/b/c", false},
		{"/a/b", "/a/c", false},
		{"/", "/", true},
	}
	for _, tc := range cases {
		if got := matchSignature(tc.signature, tc.path); got != tc.want {
			t.Errorf("matchSignature(%q, %q) = %v, want %v", tc.signature, tc.path, got, tc.want)
		}
	}
}
