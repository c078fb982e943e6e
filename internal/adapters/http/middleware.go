package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// requestInfo is shared by every layer that handles one request. Traffic
// control records why it refused the request; the access log reports it.
type requestInfo struct {
	id       string
	route    string
	rejected string
}

type requestInfoKey struct{}

func requestInfoFrom(ctx context.Context) *requestInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return info
}

func requestIDFromContext(ctx context.Context) string {
	if info := requestInfoFrom(ctx); info != nil {
		return info.id
	}
	return ""
}

// markRejected tags the request with the traffic-control reason that refused it.
func markRejected(r *http.Request, reason string) {
	if info := requestInfoFrom(r.Context()); info != nil {
		info.rejected = reason
	}
}

// routeClass groups paths into the service's endpoint families for logs.
func routeClass(path string) string {
	switch {
	case path == "/healthz":
		return "health"
	case path == "/metrics":
		return "metrics"
	case path == "/v1/chat":
		return "chat"
	case path == "/v1/cache/stats":
		return "cache"
	case path == "/v1/documents", strings.HasPrefix(path, "/v1/documents/"):
		return "documents"
	default:
		return "unmatched"
	}
}

// trackRequests assigns the request id, echoes it in X-Request-Id and writes
// one access log line per request once the handler chain returns.
func trackRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		info := &requestInfo{
			id:    strings.TrimSpace(r.Header.Get(requestIDHeader)),
			route: routeClass(r.URL.Path),
		}
		if info.id == "" {
			info.id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, info.id)

		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)))

		logRequest(r, info, recorder, time.Since(start))
	})
}

func logRequest(r *http.Request, info *requestInfo, recorder *responseRecorder, elapsed time.Duration) {
	attrs := []any{
		"request_id", info.id,
		"route", info.route,
		"method", r.Method,
		"path", r.URL.Path,
		"status", recorder.status,
		"bytes", recorder.bytes,
		"duration_ms", float64(elapsed.Microseconds()) / 1000.0,
	}
	if info.rejected != "" {
		attrs = append(attrs, "rejected", info.rejected)
	}

	level := slog.LevelInfo
	switch {
	case recorder.status >= http.StatusInternalServerError && info.rejected == "":
		level = slog.LevelError
	case recorder.status >= http.StatusBadRequest:
		level = slog.LevelWarn
	}
	slog.Log(r.Context(), level, "http_request", attrs...)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
