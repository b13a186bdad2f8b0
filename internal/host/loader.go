package host

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/leslieo2/go-app-reload/internal/reload"
)

// Definition is one application definition file. A file whose top-level
// openapi field is set is parsed as an OpenAPI document instead.
type Definition struct {
	OpenAPI       string            `yaml:"openapi"`
	Use           []string          `yaml:"use"`
	Routes        []RouteDef        `yaml:"routes"`
	Middleware    []MiddlewareDef   `yaml:"middleware"`
	Filters       FiltersDef        `yaml:"filters"`
	ErrorHandlers []ErrorHandlerDef `yaml:"error_handlers"`
	Templates     map[string]string `yaml:"templates"`
	AlsoReload    []string          `yaml:"also_reload"`
	DontReload    []string          `yaml:"dont_reload"`
}

type RouteDef struct {
	Verb        string `yaml:"verb"`
	Path        string `yaml:"path"`
	Status      int    `yaml:"status"`
	Body        string `yaml:"body"`
	ContentType string `yaml:"content_type"`
	Template    string `yaml:"template"`
}

type MiddlewareDef struct {
	Ref  string   `yaml:"ref"`
	Args []string `yaml:"args"`
}

type FiltersDef struct {
	Before []FilterDef `yaml:"before"`
	After  []FilterDef `yaml:"after"`
}

type FilterDef struct {
	ID            string            `yaml:"id"`
	SetHeader     map[string]string `yaml:"set_header"`
	RequireHeader string            `yaml:"require_header"`
	Log           string            `yaml:"log"`
}

type ErrorHandlerDef struct {
	Code        int    `yaml:"code"`
	Body        string `yaml:"body"`
	ContentType string `yaml:"content_type"`
}

// Loader executes definition files against an App and keeps the
// loaded-file set the reload engine clears entries from. Loading an
// already-loaded file is a no-op; MarkUnloaded followed by LoadFile is
// the re-execution the coordinator drives.
type Loader struct {
	app       *App
	registry  *reload.Registry
	templates *TemplateStore
	logger    *zap.Logger

	mu     sync.Mutex
	loaded map[string]bool
}

func NewLoader(app *App, registry *reload.Registry, templates *TemplateStore, logger *zap.Logger) *Loader {
	return &Loader{
		app:       app,
		registry:  registry,
		templates: templates,
		logger:    logger,
		loaded:    make(map[string]bool),
	}
}

// Loaded reports whether path is in the loaded-file set.
func (l *Loader) Loaded(path string) bool {
	cp, err := reload.CanonicalPath(path)
	if err != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded[cp]
}

// MarkUnloaded clears path from the loaded-file set so the next LoadFile
// replays its definitions.
func (l *Loader) MarkUnloaded(path string) {
	cp, err := reload.CanonicalPath(path)
	if err != nil {
		cp = path
	}
	l.mu.Lock()
	delete(l.loaded, cp)
	l.mu.Unlock()
}

// LoadFile executes the definitions in path. Already-loaded files are
// skipped; failures leave the file out of the loaded set so it is
// retried.
func (l *Loader) LoadFile(ctx context.Context, path string) error {
	cp, err := reload.CanonicalPath(path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	already := l.loaded[cp]
	l.mu.Unlock()
	if already {
		return nil
	}

	if err := l.load(ctx, cp, Source{cp}, map[string]bool{}); err != nil {
		return err
	}

	l.mu.Lock()
	l.loaded[cp] = true
	l.mu.Unlock()
	l.logger.Info("loaded definition file", zap.String("path", cp))
	return nil
}

// RefreshInlineTemplates re-reads the templates block of path and
// replaces the store's set for it.
func (l *Loader) RefreshInlineTemplates(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	l.templates.SetAll(path, def.Templates)
	return nil
}

// load executes one definition file. visited spans a single top-level
// LoadFile call and caps every file at one execution within it, so a
// shared extension pulled in through two includers runs once and a
// use: cycle terminates instead of recursing.
func (l *Loader) load(ctx context.Context, path string, src Source, visited map[string]bool) error {
	if visited[path] {
		return nil
	}
	visited[path] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if def.OpenAPI != "" {
		return l.loadOpenAPI(ctx, path, data, src)
	}
	return l.apply(ctx, path, &def, src, visited)
}

func (l *Loader) apply(ctx context.Context, path string, def *Definition, src Source, visited map[string]bool) error {
	dir := filepath.Dir(path)

	// Extension files run first, as their definitions did in the original
	// file order. Their elements are attributed to the extension file AND
	// to every file on the inclusion chain, so reloading the includer
	// tears them down before replaying the inclusion.
	for _, use := range def.Use {
		extPath, err := reload.CanonicalPath(resolveRelative(dir, use))
		if err != nil {
			return err
		}
		if err := l.load(ctx, extPath, append(Source{extPath}, src...), visited); err != nil {
			return fmt.Errorf("use %s: %w", use, err)
		}
	}

	if len(def.Templates) > 0 {
		l.templates.SetAll(path, def.Templates)
		if err := l.app.RegisterInlineTemplates(src); err != nil {
			return err
		}
	}

	for _, mw := range def.Middleware {
		wrap, err := buildMiddleware(mw.Ref, mw.Args)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := l.app.RegisterMiddleware(src, mw.Ref, mw.Args, wrap); err != nil {
			return err
		}
	}

	for _, fd := range def.Filters.Before {
		if err := l.app.RegisterBeforeFilter(src, fd.ID, l.buildFilter(fd)); err != nil {
			return err
		}
	}
	for _, fd := range def.Filters.After {
		if err := l.app.RegisterAfterFilter(src, fd.ID, l.buildFilter(fd)); err != nil {
			return err
		}
	}

	for _, rd := range def.Routes {
		if rd.Verb == "" || rd.Path == "" {
			return fmt.Errorf("%s: route needs verb and path", path)
		}
		if err := l.app.RegisterRoute(src, rd.Verb, rd.Path, l.routeHandler(rd)); err != nil {
			return err
		}
	}

	for _, ed := range def.ErrorHandlers {
		id := path + ":" + strconv.Itoa(ed.Code)
		if err := l.app.RegisterErrorHandler(src, ed.Code, id, errorHandler(ed)); err != nil {
			return err
		}
	}

	if l.registry != nil {
		if err := l.registry.WatchPatterns(resolvePatterns(dir, def.AlsoReload)); err != nil {
			return err
		}
		if err := l.registry.IgnorePatterns(resolvePatterns(dir, def.DontReload)); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) routeHandler(def RouteDef) http.HandlerFunc {
	status := def.Status
	if status == 0 {
		status = http.StatusOK
	}
	contentType := def.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		body := def.Body
		if def.Template != "" {
			vars := make(map[string]string)
			for key := range r.URL.Query() {
				vars[key] = r.URL.Query().Get(key)
			}
			rendered, err := l.templates.Render(def.Template, vars)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			body = rendered
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func (l *Loader) buildFilter(def FilterDef) Filter {
	return func(w http.ResponseWriter, r *http.Request) bool {
		if def.RequireHeader != "" && r.Header.Get(def.RequireHeader) == "" {
			http.Error(w, "missing required header: "+def.RequireHeader, http.StatusBadRequest)
			return false
		}
		for name, value := range def.SetHeader {
			w.Header().Set(name, value)
		}
		if def.Log != "" {
			l.logger.Info(def.Log,
				zap.String("filter", def.ID),
				zap.String("path", r.URL.Path),
			)
		}
		return true
	}
}

func errorHandler(def ErrorHandlerDef) ErrorHandler {
	contentType := def.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	return func(w http.ResponseWriter, r *http.Request, code int) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(code)
		io.WriteString(w, def.Body)
	}
}

func buildMiddleware(ref string, args []string) (Middleware, error) {
	switch ref {
	case "server_header":
		value := "go-app-reload"
		if len(args) > 0 {
			value = args[0]
		}
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Server", value)
				next.ServeHTTP(w, r)
			})
		}, nil
	case "strip_prefix":
		if len(args) != 1 {
			return nil, fmt.Errorf("strip_prefix middleware takes exactly one arg")
		}
		prefix := args[0]
		return func(next http.Handler) http.Handler {
			return http.StripPrefix(prefix, next)
		}, nil
	case "no_cache":
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Cache-Control", "no-store")
				next.ServeHTTP(w, r)
			})
		}, nil
	default:
		return nil, fmt.Errorf("unknown middleware ref %q", ref)
	}
}

func resolveRelative(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func resolvePatterns(dir string, patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, resolveRelative(dir, p))
	}
	return out
}

// Runtime combines the application surface with its loader to satisfy the
// reload engine's host contract.
type Runtime struct {
	*App
	*Loader
}

var _ reload.Host = Runtime{}
