package gateway

import (
	"maps"
	"sync"
)

// Settings holds the process-wide runtime knobs. The API key, default model,
// backend environment and thread count are write-once at startup; parallel is
// written by request handlers (through the parallelism path prefix) and read
// on every convergence tick, hence the reader-writer lock.
type Settings struct {
	apiKey       string
	defaultModel string
	env          map[string]string
	threads      int

	mu       sync.RWMutex
	parallel int
}

// NewSettings creates the runtime settings.
func NewSettings(apiKey, defaultModel string, env map[string]string, parallel, threads int) *Settings {
	return &Settings{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		env:          maps.Clone(env),
		threads:      threads,
		parallel:     parallel,
	}
}

// APIKey returns the gateway API key.
func (s *Settings) APIKey() string {
	return s.apiKey
}

// DefaultModel returns the alias served when a request names no model.
func (s *Settings) DefaultModel() string {
	return s.defaultModel
}

// Env returns the environment injected into the backend process.
func (s *Settings) Env() map[string]string {
	return maps.Clone(s.env)
}

// Threads returns the backend thread count.
func (s *Settings) Threads() int {
	return s.threads
}

// Parallel returns the number of backend-side parallel slots.
func (s *Settings) Parallel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parallel
}

// SetParallel updates the number of backend-side parallel slots. The change
// takes effect on the next convergence: the desired configuration then
// differs from the running one, forcing an orderly swap.
func (s *Settings) SetParallel(parallel int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parallel = parallel
}
