package interfaces

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"jpusap-cobranzas/internal/eventing"
	"jpusap-cobranzas/internal/observability/metrics"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// AccessLog logs every request and counts it by method and status. The X-Request-ID header,
// or a fresh id, becomes the correlation id of events published while serving the request.
func AccessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get(requestIDHeader)
			if requestID == "" {
				requestID = eventing.NewEventID()
			}
			w.Header().Set(requestIDHeader, requestID)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(eventing.WithCorrelationID(r.Context(), requestID)))
			metrics.IncHTTPRequest(r.Method, strconv.Itoa(rec.status))
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID))
		})
	}
}
