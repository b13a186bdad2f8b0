package host

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/leslieo2/go-app-reload/internal/reload"
)

type fixture struct {
	app      *App
	registry *reload.Registry
	loader   *Loader
	runtime  Runtime
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := reload.NewRegistry()
	app := NewApp("test", zap.NewNop(), WithObserver(registry))
	templates := NewTemplateStore(time.Minute)
	loader := NewLoader(app, registry, templates, zap.NewNop())
	return &fixture{
		app:      app,
		registry: registry,
		loader:   loader,
		runtime:  Runtime{App: app, Loader: loader},
	}
}

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	cp, err := reload.CanonicalPath(path)
	require.NoError(t, err)
	return cp
}

// rewrite replaces a definition file and moves its mtime forward so a
// change is observable regardless of filesystem timestamp granularity.
func rewrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestLoader_LoadFileRegistersAndWatches(t *testing.T) {
	f := newFixture(t)
	path := writeDefinition(t, t.TempDir(), "app.yaml", `
middleware:
  - ref: server_header
    args: ["demo"]
filters:
  before:
    - id: stamp
      set_header:
        X-Stamp: "yes"
routes:
  - verb: GET
    path: /hello
    body: hello there
error_handlers:
  - code: 404
    body: nothing here
`)

	require.NoError(t, f.loader.LoadFile(context.Background(), path))
	assert.True(t, f.loader.Loaded(path))

	rec := get(t, f.app.Handler(), "/hello")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello there", rec.Body.String())
	assert.Equal(t, "demo", rec.Header().Get("Server"))
	assert.Equal(t, "yes", rec.Header().Get("X-Stamp"))

	rec = get(t, f.app.Handler(), "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "nothing here", rec.Body.String())

	watchers := f.registry.All()
	require.Len(t, watchers, 1)
	assert.Equal(t, path, watchers[0].Path())
	assert.Len(t, watchers[0].Elements(), 4)
}

func TestLoader_LoadFileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	path := writeDefinition(t, t.TempDir(), "app.yaml", `
routes:
  - verb: GET
    path: /hello
    body: hi
`)

	require.NoError(t, f.loader.LoadFile(context.Background(), path))
	require.NoError(t, f.loader.LoadFile(context.Background(), path))

	require.Len(t, f.registry.All(), 1)
	assert.Len(t, f.registry.All()[0].Elements(), 1)
}

func TestLoader_MarkUnloadedAllowsReplay(t *testing.T) {
	f := newFixture(t)
	path := writeDefinition(t, t.TempDir(), "app.yaml", `
routes:
  - verb: GET
    path: /hello
    body: hi
`)

	require.NoError(t, f.loader.LoadFile(context.Background(), path))
	f.loader.MarkUnloaded(path)
	assert.False(t, f.loader.Loaded(path))
	require.NoError(t, f.loader.LoadFile(context.Background(), path))
	assert.True(t, f.loader.Loaded(path))
}

func TestLoader_UnknownMiddlewareFails(t *testing.T) {
	f := newFixture(t)
	path := writeDefinition(t, t.TempDir(), "app.yaml", `
middleware:
  - ref: nonsense
`)

	err := f.loader.LoadFile(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonsense")
	assert.False(t, f.loader.Loaded(path))
}

func TestLoader_UseAttributesExtensionToBothFiles(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	extPath := writeDefinition(t, dir, "ext.yaml", `
routes:
  - verb: GET
    path: /from-ext
    body: extension route
`)
	appPath := writeDefinition(t, dir, "app.yaml", `
use:
  - ext.yaml
routes:
  - verb: GET
    path: /from-app
    body: app route
`)

	require.NoError(t, f.loader.LoadFile(context.Background(), appPath))

	assert.Equal(t, "extension route", get(t, f.app.Handler(), "/from-ext").Body.String())
	assert.Equal(t, "app route", get(t, f.app.Handler(), "/from-app").Body.String())

	// The extension's route is tracked under both defining files.
	byPath := make(map[string][]reload.Element)
	for _, w := range f.registry.All() {
		byPath[w.Path()] = w.Elements()
	}
	extRoute := reload.RouteElement{Verb: "GET", Signature: "/from-ext"}
	assert.Contains(t, byPath[extPath], reload.Element(extRoute))
	assert.Contains(t, byPath[appPath], reload.Element(extRoute))
}

func TestLoader_UseDiamondExecutesSharedFileOnce(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	common := writeDefinition(t, dir, "common.yaml", `
routes:
  - verb: GET
    path: /shared
    body: shared route
`)
	writeDefinition(t, dir, "ext1.yaml", "use: [common.yaml]\n")
	writeDefinition(t, dir, "ext2.yaml", "use: [common.yaml]\n")
	appPath := writeDefinition(t, dir, "app.yaml", `
use:
  - ext1.yaml
  - ext2.yaml
routes:
  - verb: GET
    path: /own
    body: own route
`)

	require.NoError(t, f.loader.LoadFile(context.Background(), appPath))
	assert.Equal(t, "shared route", get(t, f.app.Handler(), "/shared").Body.String())
	assert.Equal(t, "own route", get(t, f.app.Handler(), "/own").Body.String())

	commonW, err := f.registry.WatcherFor(common)
	require.NoError(t, err)
	assert.Len(t, commonW.Elements(), 1,
		"a file reachable through two includers executes once per load")

	// A single removal leaves nothing behind: the route was installed once.
	f.app.RemoveRoute("GET", "/shared")
	assert.Equal(t, http.StatusNotFound, get(t, f.app.Handler(), "/shared").Code)
}

func TestLoader_UseCycleTerminates(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	a := writeDefinition(t, dir, "a.yaml", `
use:
  - b.yaml
routes:
  - verb: GET
    path: /a
    body: from a
`)
	writeDefinition(t, dir, "b.yaml", `
use:
  - a.yaml
routes:
  - verb: GET
    path: /b
    body: from b
`)

	require.NoError(t, f.loader.LoadFile(context.Background(), a))
	assert.Equal(t, "from a", get(t, f.app.Handler(), "/a").Body.String())
	assert.Equal(t, "from b", get(t, f.app.Handler(), "/b").Body.String())

	// Each route installed exactly once: a carries its own route plus the
	// attribution of b's (b was pulled in on a's behalf); b carries only
	// its own.
	aW, err := f.registry.WatcherFor(a)
	require.NoError(t, err)
	assert.Len(t, aW.Elements(), 2)
	bW, err := f.registry.WatcherFor(filepath.Join(dir, "b.yaml"))
	require.NoError(t, err)
	assert.Len(t, bW.Elements(), 1)
}

func TestLoader_AlsoAndDontReloadPatterns(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	writeDefinition(t, dir, "helper.yaml", "routes: []\n")
	skipPath := writeDefinition(t, dir, "skip.yaml", "routes: []\n")
	appPath := writeDefinition(t, dir, "app.yaml", `
also_reload:
  - "*.yaml"
dont_reload:
  - skip.yaml
routes:
  - verb: GET
    path: /x
    body: x
`)

	require.NoError(t, f.loader.LoadFile(context.Background(), appPath))

	var skipIgnored bool
	for _, w := range f.registry.All() {
		if w.Path() == skipPath {
			skipIgnored = w.Ignored()
		}
	}
	assert.True(t, skipIgnored)
	// The glob covered all three files in the directory.
	assert.Len(t, f.registry.All(), 3)
}

func TestLoader_RefreshInlineTemplates(t *testing.T) {
	f := newFixture(t)
	path := writeDefinition(t, t.TempDir(), "app.yaml", `
templates:
  greeting: hello {{name}}
routes:
  - verb: GET
    path: /greet
    template: greeting
`)

	require.NoError(t, f.loader.LoadFile(context.Background(), path))
	assert.Equal(t, "hello world", get(t, f.app.Handler(), "/greet?name=world").Body.String())

	rewrite(t, path, `
templates:
  greeting: goodbye {{name}}
routes:
  - verb: GET
    path: /greet
    template: greeting
`)
	require.NoError(t, f.loader.RefreshInlineTemplates(context.Background(), path))
	assert.Equal(t, "goodbye world", get(t, f.app.Handler(), "/greet?name=world").Body.String())
}

// End to end: a changed definition file is torn down and replayed by the
// coordinator without duplicating anything.
func TestLoader_ReloadReplacesDefinitions(t *testing.T) {
	f := newFixture(t)
	path := writeDefinition(t, t.TempDir(), "app.yaml", `
routes:
  - verb: GET
    path: /old
    body: old body
error_handlers:
  - code: 404
    body: old missing
`)

	require.NoError(t, f.loader.LoadFile(context.Background(), path))
	coordinator := reload.NewCoordinator("test", f.registry, f.runtime, zap.NewNop())

	// Nothing changed yet: a pass is a no-op.
	require.NoError(t, coordinator.Perform(context.Background()))
	assert.Equal(t, "old body", get(t, f.app.Handler(), "/old").Body.String())

	rewrite(t, path, `
routes:
  - verb: GET
    path: /new
    body: new body
error_handlers:
  - code: 404
    body: new missing
`)
	require.NoError(t, coordinator.Perform(context.Background()))

	assert.Equal(t, "new body", get(t, f.app.Handler(), "/new").Body.String())
	rec := get(t, f.app.Handler(), "/old")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "new missing", rec.Body.String())

	// A second pass with no further change does nothing.
	require.NoError(t, coordinator.Perform(context.Background()))
	require.Len(t, f.registry.All(), 1)
	assert.Len(t, f.registry.All()[0].Elements(), 2)
}
