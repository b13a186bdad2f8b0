package reload

import "sync"

// Registries maps application names to their registries. Two applications
// watching the same path still get separate watchers. The store lives as
// long as whoever owns it chooses to keep it (typically process lifetime);
// it has no teardown because registries hold nothing that needs closing.
type Registries struct {
	mu   sync.Mutex
	apps map[string]*Registry
}

func NewRegistries() *Registries {
	return &Registries{apps: make(map[string]*Registry)}
}

// For returns the registry for the named application, creating one on
// first reference.
func (s *Registries) For(app string) *Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.apps[app]
	if !ok {
		r = NewRegistry()
		s.apps[app] = r
	}
	return r
}

// Apps returns the names of all applications with a registry.
func (s *Registries) Apps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.apps))
	for name := range s.apps {
		names = append(names, name)
	}
	return names
}
