package reload

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Trigger runs a reload pass on the request path: detection is pulled by
// inbound traffic, not pushed by a background poller. A failed reload
// becomes the response for the in-flight request rather than being
// swallowed; the application keeps running and retries on the next one.
type Trigger struct {
	coordinator *Coordinator
	logger      *zap.Logger
	limiter     *rate.Limiter
}

// NewTrigger builds a request trigger. A non-zero cooldown caps how often
// a detection pass actually runs, so a busy application is not paying a
// stat per watched file on every request; zero means every request checks.
func NewTrigger(coordinator *Coordinator, logger *zap.Logger, cooldown time.Duration) *Trigger {
	t := &Trigger{coordinator: coordinator, logger: logger}
	if cooldown > 0 {
		t.limiter = rate.NewLimiter(rate.Every(cooldown), 1)
	}
	return t
}

// Middleware wraps next so every request first attempts a reload pass.
func (t *Trigger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if t.limiter == nil || t.limiter.Allow() {
			if err := t.coordinator.Perform(r.Context()); err != nil {
				http.Error(w, fmt.Sprintf("reload failed: %v", err), http.StatusInternalServerError)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
