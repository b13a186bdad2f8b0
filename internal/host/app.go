package host

import (
	"net/http"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/leslieo2/go-app-reload/internal/reload"
)

// Source is the list of files an element is attributed to. Usually one
// path; two when a shared extension file defines the element on behalf of
// the application file that pulled it in.
type Source []string

// Middleware wraps a handler, exactly as net/http middleware does.
type Middleware func(http.Handler) http.Handler

// Filter runs around route handlers. A before filter returning false has
// written the response and halts the request; after filters' return value
// is ignored.
type Filter func(w http.ResponseWriter, r *http.Request) bool

// ErrorHandler renders the response for a status code no route produced
// a body for.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, code int)

type route struct {
	verb      string
	signature string
	handler   http.HandlerFunc
}

type middlewareEntry struct {
	ref  string
	args []string
	wrap Middleware
}

type filterEntry struct {
	id string
	fn Filter
}

type errorEntry struct {
	id string
	fn ErrorHandler
}

// App is the mutable application surface the reload engine manages:
// routes keyed by verb, an ordered middleware chain, before/after filter
// lists, and per-code error handlers. Registration methods take the
// defining Source and report each installed element to the observer; the
// removal methods implement the deactivation contract and are idempotent.
type App struct {
	name     string
	logger   *zap.Logger
	observer reload.Observer

	mu            sync.RWMutex
	routes        map[string][]route
	middleware    []middlewareEntry
	beforeFilters []filterEntry
	afterFilters  []filterEntry
	errorHandlers map[int]errorEntry
}

// AppOption configures an App.
type AppOption func(*App)

// WithObserver composes the app with the registry that tracks which file
// defined which element. Without one, registration is not instrumented
// and reloading cannot work for this app.
func WithObserver(o reload.Observer) AppOption {
	return func(a *App) { a.observer = o }
}

func NewApp(name string, logger *zap.Logger, opts ...AppOption) *App {
	a := &App{
		name:          name,
		logger:        logger,
		routes:        make(map[string][]route),
		errorHandlers: make(map[int]errorEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) Name() string { return a.name }

// observe reports el as defined by every path in src. Registering with no
// resolvable source is an error rather than a guess: attributing an
// element to the wrong file would deactivate unrelated elements later.
func (a *App) observe(src Source, el reload.Element) error {
	if a.observer == nil {
		return nil
	}
	if len(src) == 0 {
		return reload.ErrUnresolvedSource
	}
	for _, p := range src {
		if err := a.observer.Watch(p, el); err != nil {
			return err
		}
	}
	return nil
}

// RegisterRoute installs a handler for verb and signature.
func (a *App) RegisterRoute(src Source, verb, signature string, handler http.HandlerFunc) error {
	if err := a.observe(src, reload.RouteElement{Verb: verb, Signature: signature}); err != nil {
		return err
	}
	a.mu.Lock()
	a.routes[verb] = append(a.routes[verb], route{verb: verb, signature: signature, handler: handler})
	a.mu.Unlock()
	a.logger.Debug("route registered", zap.String("verb", verb), zap.String("signature", signature))
	return nil
}

// RegisterMiddleware appends an entry to the middleware chain.
func (a *App) RegisterMiddleware(src Source, ref string, args []string, wrap Middleware) error {
	if err := a.observe(src, reload.MiddlewareElement{Ref: ref, Args: args}); err != nil {
		return err
	}
	a.mu.Lock()
	a.middleware = append(a.middleware, middlewareEntry{ref: ref, args: args, wrap: wrap})
	a.mu.Unlock()
	return nil
}

// RegisterBeforeFilter appends a before filter.
func (a *App) RegisterBeforeFilter(src Source, id string, fn Filter) error {
	if err := a.observe(src, reload.BeforeFilterElement{ID: id}); err != nil {
		return err
	}
	a.mu.Lock()
	a.beforeFilters = append(a.beforeFilters, filterEntry{id: id, fn: fn})
	a.mu.Unlock()
	return nil
}

// RegisterAfterFilter appends an after filter.
func (a *App) RegisterAfterFilter(src Source, id string, fn Filter) error {
	if err := a.observe(src, reload.AfterFilterElement{ID: id}); err != nil {
		return err
	}
	a.mu.Lock()
	a.afterFilters = append(a.afterFilters, filterEntry{id: id, fn: fn})
	a.mu.Unlock()
	return nil
}

// RegisterErrorHandler installs the handler for a status code, replacing
// any previous one.
func (a *App) RegisterErrorHandler(src Source, code int, id string, fn ErrorHandler) error {
	if err := a.observe(src, reload.ErrorHandlerElement{Code: code, ID: id}); err != nil {
		return err
	}
	a.mu.Lock()
	a.errorHandlers[code] = errorEntry{id: id, fn: fn}
	a.mu.Unlock()
	return nil
}

// RegisterInlineTemplates records that every path in src carries inline
// templates. The template bodies themselves live in the template store.
func (a *App) RegisterInlineTemplates(src Source) error {
	return a.observe(src, reload.InlineTemplatesElement{})
}

// RemoveRoute removes the handler installed for (verb, signature).
// Removing a route that is not installed is a no-op.
func (a *App) RemoveRoute(verb, signature string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rs := a.routes[verb]
	for i, rt := range rs {
		if rt.signature == signature {
			a.routes[verb] = append(rs[:i], rs[i+1:]...)
			return
		}
	}
}

// RemoveMiddleware removes the chain entry matching ref and args.
func (a *App) RemoveMiddleware(ref string, args []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, m := range a.middleware {
		if m.ref == ref && slices.Equal(m.args, args) {
			a.middleware = append(a.middleware[:i], a.middleware[i+1:]...)
			return
		}
	}
}

// RemoveBeforeFilter removes the before filter with the given id.
func (a *App) RemoveBeforeFilter(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.beforeFilters = removeFilter(a.beforeFilters, id)
}

// RemoveAfterFilter removes the after filter with the given id.
func (a *App) RemoveAfterFilter(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.afterFilters = removeFilter(a.afterFilters, id)
}

func removeFilter(filters []filterEntry, id string) []filterEntry {
	for i, f := range filters {
		if f.id == id {
			return append(filters[:i], filters[i+1:]...)
		}
	}
	return filters
}

// RemoveErrorHandler removes the handler for code, but only while the
// installed handler is still the one identified by id. A handler a later
// registration installed for the same code is left alone.
func (a *App) RemoveErrorHandler(code int, id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if current, ok := a.errorHandlers[code]; ok && current.id == id {
		delete(a.errorHandlers, code)
	}
}

// Handler returns the app as an http.Handler. The middleware chain is
// applied per request because reloads rewrite it at runtime.
func (a *App) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.RLock()
		chain := make([]middlewareEntry, len(a.middleware))
		copy(chain, a.middleware)
		a.mu.RUnlock()

		var h http.Handler = http.HandlerFunc(a.dispatch)
		for i := len(chain) - 1; i >= 0; i-- {
			h = chain[i].wrap(h)
		}
		h.ServeHTTP(w, r)
	})
}

func (a *App) dispatch(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	before := make([]filterEntry, len(a.beforeFilters))
	copy(before, a.beforeFilters)
	after := make([]filterEntry, len(a.afterFilters))
	copy(after, a.afterFilters)
	var handler http.HandlerFunc
	for _, rt := range a.routes[r.Method] {
		if matchSignature(rt.signature, r.URL.Path) {
			handler = rt.handler
			break
		}
	}
	a.mu.RUnlock()

	for _, f := range before {
		if !f.fn(w, r) {
			return
		}
	}

	if handler == nil {
		a.Error(w, r, http.StatusNotFound)
		return
	}
	handler(w, r)

	for _, f := range after {
		f.fn(w, r)
	}
}

// Error renders the response for a status code through the registered
// error handler, falling back to a plain status response.
func (a *App) Error(w http.ResponseWriter, r *http.Request, code int) {
	a.mu.RLock()
	entry, ok := a.errorHandlers[code]
	a.mu.RUnlock()
	if ok {
		entry.fn(w, r, code)
		return
	}
	http.Error(w, http.StatusText(code), code)
}

// matchSignature matches a request path against a signature whose
// ":name" segments match any single path segment.
func matchSignature(signature, path string) bool {
	if signature == path {
		return true
	}
	sigParts := strings.Split(signature, "/")
	pathParts := strings.Split(path, "/")
	if len(sigParts) != len(pathParts) {
		return false
	}
	for i, sp := range sigParts {
		if strings.HasPrefix(sp, ":") {
			continue
		}
		if sp != pathParts[i] {
			return false
		}
	}
	return true
}
