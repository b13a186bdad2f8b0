package reload

import (
	"fmt"
	"path/filepath"
	"sync"
)

// CanonicalPath resolves path to its absolute, symlink-normalized form.
// Symlink resolution is best effort: a path that does not exist yet still
// canonicalizes to its absolute form so it can be watched before creation.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("canonicalize %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// Registry is one application's collection of watchers, keyed by canonical
// file path. Entries are created on first reference and enumerate in
// first-reference order. It implements Observer, so a host composed with
// it reports every element it installs.
type Registry struct {
	mu       sync.Mutex
	watchers map[string]*Watcher
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{watchers: make(map[string]*Watcher)}
}

var _ Observer = (*Registry)(nil)

// WatcherFor returns the watcher for path, creating and storing one on
// first reference. Repeated calls with paths that canonicalize the same
// return the same watcher.
func (r *Registry) WatcherFor(path string) (*Watcher, error) {
	cp, err := CanonicalPath(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watchers[cp]
	if !ok {
		w = newWatcher(cp)
		r.watchers[cp] = w
		r.order = append(r.order, cp)
	}
	return w, nil
}

// Watch records that path defines el.
func (r *Registry) Watch(path string, el Element) error {
	w, err := r.WatcherFor(path)
	if err != nil {
		return err
	}
	w.add(el)
	return nil
}

// WatchUnder records el under every given path. Used for elements defined
// by a shared extension file on behalf of an application file: watching
// under the registration call site as well means the element is torn down
// and cleanly re-added whenever the application file reloads, instead of
// duplicating.
func (r *Registry) WatchUnder(el Element, paths ...string) error {
	if len(paths) == 0 {
		return ErrUnresolvedSource
	}
	for _, p := range paths {
		if err := r.Watch(p, el); err != nil {
			return err
		}
	}
	return nil
}

// Ignore marks path so changes to it never trigger a reload.
func (r *Registry) Ignore(path string) error {
	w, err := r.WatcherFor(path)
	if err != nil {
		return err
	}
	w.Ignore()
	return nil
}

// All returns every watcher in first-reference order.
func (r *Registry) All() []*Watcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Watcher, 0, len(r.order))
	for _, cp := range r.order {
		out = append(out, r.watchers[cp])
	}
	return out
}

// Changed returns the watchers whose files changed on disk, evaluated
// fresh on every call.
func (r *Registry) Changed() []*Watcher {
	var out []*Watcher
	for _, w := range r.All() {
		if w.Updated() {
			out = append(out, w)
		}
	}
	return out
}

// WatchPatterns resolves glob patterns to concrete paths and creates a
// watcher for each match. This is how files that define no elements of
// their own are still watched for changes.
func (r *Registry) WatchPatterns(patterns []string) error {
	return r.expandPatterns(patterns, func(path string) error {
		_, err := r.WatcherFor(path)
		return err
	})
}

// IgnorePatterns resolves glob patterns to concrete paths and marks each
// match ignored.
func (r *Registry) IgnorePatterns(patterns []string) error {
	return r.expandPatterns(patterns, r.Ignore)
}

func (r *Registry) expandPatterns(patterns []string, apply func(string) error) error {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if err := apply(m); err != nil {
				return err
			}
		}
	}
	return nil
}
