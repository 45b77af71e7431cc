package observability

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/requestctx"
)

// TraceIDHeader echoes the server span's trace ID to callers.
const TraceIDHeader = "X-Trace-Id"

// TraceMiddleware starts a server span per request through otelhttp and copies
// the span identifiers onto the request context.
func TraceMiddleware(operation string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		record := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sc := trace.SpanContextFromContext(r.Context())
			if sc.IsValid() {
				info := requestctx.TraceInfo{
					TraceID: sc.TraceID().String(),
					SpanID:  sc.SpanID().String(),
					Sampled: sc.IsSampled(),
				}
				r = r.WithContext(requestctx.WithTrace(r.Context(), info))
				w.Header().Set(TraceIDHeader, info.TraceID)
			}
			next.ServeHTTP(w, r)
		})
		return otelhttp.NewHandler(record, operation,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return fmt.Sprintf("%s %s", r.Method, sanitizeString(r.URL.Path, 180))
			}),
		)
	}
}
