package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Notifier is the push-mode trigger: filesystem events on the parent
// directories of watched files schedule a reload pass, debounced so an
// editor's burst of writes produces one pass. The mtime comparison inside
// each Watcher stays authoritative; an event only means "check now".
type Notifier struct {
	watcher     *fsnotify.Watcher
	coordinator *Coordinator
	logger      *zap.Logger
	debounce    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	dirs    map[string]bool
	running bool
}

func NewNotifier(coordinator *Coordinator, logger *zap.Logger, debounce time.Duration) (*Notifier, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		watcher:     fsWatcher,
		coordinator: coordinator,
		logger:      logger,
		debounce:    debounce,
		ctx:         ctx,
		cancel:      cancel,
		dirs:        make(map[string]bool),
	}, nil
}

// Add subscribes to events for the directory containing path. Watching
// the directory rather than the file survives delete-and-recreate saves.
func (n *Notifier) Add(path string) error {
	dir := filepath.Dir(path)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dirs[dir] {
		return nil
	}
	if err := n.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %s: %w", dir, err)
	}
	n.dirs[dir] = true
	n.logger.Debug("watching directory", zap.String("dir", dir))
	return nil
}

// Cover subscribes to the directories of every watcher in the registry.
func (n *Notifier) Cover(registry *Registry) error {
	for _, w := range registry.All() {
		if err := n.Add(w.Path()); err != nil {
			return err
		}
	}
	return nil
}

// Start begins translating filesystem events into reload passes.
func (n *Notifier) Start() {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return
	}
	n.running = true
	n.mu.Unlock()

	n.wg.Add(1)
	go n.loop()
	n.logger.Info("reload notifier started")
}

// Stop shuts the notifier down and waits for the event loop to exit.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	n.mu.Unlock()

	n.cancel()
	n.wg.Wait()
	if err := n.watcher.Close(); err != nil {
		n.logger.Error("close fsnotify watcher", zap.Error(err))
	}
	n.logger.Info("reload notifier stopped")
}

func (n *Notifier) loop() {
	defer n.wg.Done()

	var debounceTimer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-n.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if skipEvent(event.Name) || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			n.logger.Debug("filesystem event",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			if debounceTimer == nil {
				debounceTimer = time.NewTimer(n.debounce)
				timerC = debounceTimer.C
			} else {
				debounceTimer.Reset(n.debounce)
			}

		case <-timerC:
			debounceTimer = nil
			timerC = nil
			if err := n.coordinator.Perform(n.ctx); err != nil {
				// Surfaced here because there is no in-flight request to
				// attach the failure to; the file stays changed and the
				// next event or request retries it.
				n.logger.Error("reload failed", zap.Error(err))
			}

		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Error("fsnotify error", zap.Error(err))
		}
	}
}

// skipEvent filters editor droppings that never define elements: temp
// and swap files, dotfiles, and trailing-tilde backups (app.yaml~).
func skipEvent(path string) bool {
	base := filepath.Base(path)
	ext := filepath.Ext(path)
	return ext == ".tmp" || ext == ".swp" ||
		strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}
