package reload

import (
	"os"
	"sync"
	"time"
)

// Watcher tracks one watched file: the elements it currently defines, the
// modification time recorded at the last successful reload, and whether
// changes to it should be ignored. A Watcher is never removed from its
// registry, even if the file disappears from disk.
type Watcher struct {
	path string

	mu       sync.Mutex
	elements []Element
	mtime    time.Time
	ignored  bool
}

func newWatcher(path string) *Watcher {
	w := &Watcher{path: path}
	if info, err := os.Stat(path); err == nil {
		w.mtime = info.ModTime()
	}
	return w
}

// Path returns the canonical path this watcher tracks.
func (w *Watcher) Path() string {
	return w.path
}

// Updated reports whether the file changed on disk since the last Update.
// An ignored watcher never reports a change. A file that no longer exists
// is absent, not changed: editors routinely delete and recreate files on
// save, and erroring here would turn every such save into a crash.
func (w *Watcher) Updated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ignored {
		return false
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}
	return !info.ModTime().Equal(w.mtime)
}

// Update records the current on-disk modification time. Called after a
// successful reload so the same change does not trigger again. If the
// file is missing the recorded time is left as is.
func (w *Watcher) Update() {
	info, err := os.Stat(w.path)
	if err != nil {
		return
	}
	w.mu.Lock()
	w.mtime = info.ModTime()
	w.mu.Unlock()
}

// Ignore marks the watcher so Updated always reports false. There is no
// way to un-ignore a path short of a process restart.
func (w *Watcher) Ignore() {
	w.mu.Lock()
	w.ignored = true
	w.mu.Unlock()
}

// Ignored reports whether the watcher has been marked ignored.
func (w *Watcher) Ignored() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ignored
}

// HasInlineTemplates reports whether any owned element marks inline
// templates defined in this file.
func (w *Watcher) HasInlineTemplates() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, el := range w.elements {
		if el.Kind() == KindInlineTemplates {
			return true
		}
	}
	return false
}

// Elements returns a copy of the owned elements in registration order.
func (w *Watcher) Elements() []Element {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Element, len(w.elements))
	copy(out, w.elements)
	return out
}

func (w *Watcher) add(el Element) {
	w.mu.Lock()
	w.elements = append(w.elements, el)
	w.mu.Unlock()
}

// drain returns the owned elements in registration order and clears the
// list, so re-execution never appends fresh elements behind stale ones.
func (w *Watcher) drain() []Element {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.elements
	w.elements = nil
	return out
}
