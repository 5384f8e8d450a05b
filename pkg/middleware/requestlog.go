package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/maiserv/llamagate/pkg/logging"
	"github.com/maiserv/llamagate/pkg/metrics"
)

// statusRecorder captures the response status for logging while passing
// streaming writes (and flushes) straight through.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestLog returns middleware that assigns each request an ID, logs it on
// completion and feeds the request counters. When verbose is false only the
// metrics are updated.
func RequestLog(log logging.Logger, m *metrics.Metrics, verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", requestID)

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			if m != nil {
				m.Requests.WithLabelValues(r.URL.Path, strconv.Itoa(recorder.status)).Inc()
			}
			if verbose {
				log.WithField("request_id", requestID).
					Infof("%s %s -> %d (%s)", r.Method, r.URL.Path, recorder.status, time.Since(start).Round(time.Millisecond))
			}
		})
	}
}
