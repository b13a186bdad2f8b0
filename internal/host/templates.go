package host

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TemplateStore holds inline templates keyed by the file that defines
// them, with a TTL cache in front of rendering. A reload replaces a
// file's whole template set and drops every cached render, so stale
// output never outlives the file that produced it.
type TemplateStore struct {
	mu     sync.RWMutex
	byPath map[string]map[string]string
	order  []string

	cache *gocache.Cache
}

func NewTemplateStore(ttl time.Duration) *TemplateStore {
	return &TemplateStore{
		byPath: make(map[string]map[string]string),
		cache:  gocache.New(ttl, 2*ttl),
	}
}

// SetAll replaces the template set for path and invalidates cached
// renders. An empty or nil set removes the path's templates.
func (s *TemplateStore) SetAll(path string, templates map[string]string) {
	s.mu.Lock()
	if _, known := s.byPath[path]; !known && len(templates) > 0 {
		s.order = append(s.order, path)
	}
	if len(templates) == 0 {
		delete(s.byPath, path)
	} else {
		copied := make(map[string]string, len(templates))
		for k, v := range templates {
			copied[k] = v
		}
		s.byPath[path] = copied
	}
	s.mu.Unlock()

	s.cache.Flush()
}

// Lookup finds a template body by name. When two files define the same
// name, the later-registered file wins.
func (s *TemplateStore) Lookup(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if body, ok := s.byPath[s.order[i]][name]; ok {
			return body, true
		}
	}
	return "", false
}

// Render expands {{key}} placeholders in the named template with vars,
// serving repeated renders from the TTL cache.
func (s *TemplateStore) Render(name string, vars map[string]string) (string, error) {
	key := cacheKey(name, vars)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(string), nil
	}

	body, ok := s.Lookup(name)
	if !ok {
		return "", fmt.Errorf("template %q not defined", name)
	}

	out := body
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}

	s.cache.SetDefault(key, out)
	return out, nil
}

func cacheKey(name string, vars map[string]string) string {
	if len(vars) == 0 {
		return name
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(vars[k])
	}
	return b.String()
}
