package middleware

import (
	"net/http"
	"sync"

	"github.com/maiserv/llamagate/pkg/logging"
	"github.com/maiserv/llamagate/pkg/metrics"
)

// Admission gates the number of concurrently serviced requests. Requests
// beyond the ceiling are rejected with 425 Too Early.
type Admission struct {
	log     logging.Logger
	metrics *metrics.Metrics
	ceiling int

	mu       sync.Mutex
	inflight int
}

// NewAdmission creates an admission gate with the given ceiling. A ceiling of
// zero or less disables the gate.
func NewAdmission(log logging.Logger, m *metrics.Metrics, ceiling int) *Admission {
	return &Admission{log: log, metrics: m, ceiling: ceiling}
}

// enter attempts to claim a request slot.
func (a *Admission) enter() bool {
	if a.ceiling <= 0 {
		return true
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inflight >= a.ceiling {
		return false
	}
	a.inflight++
	return true
}

// leave releases a previously claimed slot.
func (a *Admission) leave() {
	if a.ceiling <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight--
}

// Wrap applies the admission gate to next.
func (a *Admission) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.enter() {
			a.log.Warnf("rejecting %s %s: too many parallel requests", r.Method, r.URL.Path)
			if a.metrics != nil {
				a.metrics.AdmissionRejected.Inc()
			}
			http.Error(w, "too many parallel requests", http.StatusTooEarly)
			return
		}
		defer a.leave()
		if a.metrics != nil {
			a.metrics.Inflight.Inc()
			defer a.metrics.Inflight.Dec()
		}
		next.ServeHTTP(w, r)
	})
}
