package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/possync/internal/audit"
)

type ctxKey struct{}

const RequestIDHeader = "X-Request-ID"

type Auditor interface {
	Log(e audit.Entry)
}

// RequestID reuses the caller's X-Request-ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// LogMiddleware logs every request and sends requests with one of methods to
// the audit pool.
func LogMiddleware(log logrus.FieldLogger, auditor Auditor, methods ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			reqID := RequestIDFrom(r.Context())
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"duration":   time.Since(start).String(),
				"request_id": reqID,
			}).Debug("request")

			if methodInList(r.Method, methods) {
				auditor.Log(audit.Entry{
					Timestamp: time.Now().UTC(),
					RequestID: reqID,
					Action:    "request",
					Endpoint:  r.Method + " " + r.URL.String(),
					Outcome:   audit.OutcomeReceived,
					Message:   http.StatusText(rec.status),
				})
			}
		})
	}
}

func methodInList(method string, methods []string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}
