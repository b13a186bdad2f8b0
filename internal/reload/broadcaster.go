package reload

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Event describes one successfully reloaded file.
type Event struct {
	Application string
	Path        string
	Elements    int
}

// Listener is a callback invoked after a file has been reloaded.
type Listener func(ctx context.Context, event Event) error

// Broadcaster fans reload events out to named listeners. This is the
// attachment point for livereload or editor integrations; listener
// failures are logged, never allowed to fail the reload itself.
type Broadcaster struct {
	logger    *zap.Logger
	mu        sync.RWMutex
	listeners map[string]Listener
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		logger:    logger,
		listeners: make(map[string]Listener),
	}
}

// AddListener registers a listener under a unique name.
func (b *Broadcaster) AddListener(name string, listener Listener) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.listeners[name]; exists {
		return fmt.Errorf("listener %s already exists", name)
	}
	b.listeners[name] = listener
	b.logger.Debug("added reload listener", zap.String("name", name))
	return nil
}

// RemoveListener removes a listener by name.
func (b *Broadcaster) RemoveListener(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, name)
}

// Broadcast delivers event to every listener.
func (b *Broadcaster) Broadcast(ctx context.Context, event Event) {
	b.mu.RLock()
	listeners := make(map[string]Listener, len(b.listeners))
	for name, l := range b.listeners {
		listeners[name] = l
	}
	b.mu.RUnlock()

	for name, listener := range listeners {
		if err := listener(ctx, event); err != nil {
			b.logger.Warn("reload listener failed",
				zap.String("name", name),
				zap.String("path", event.Path),
				zap.Error(err),
			)
		}
	}
}

// ListenerCount returns the number of registered listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
