package httpmiddleware

import (
	"fmt"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a SERVER_ERROR envelope. The panic is
// logged with its stack and recorded on the active span; the client never
// sees the panic value. If the handler already started the response, the
// connection is closed instead.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				msg := fmt.Sprint(v)
				span := trace.SpanFromContext(r.Context())
				span.AddEvent("panic", trace.WithStackTrace(true))
				span.SetStatus(codes.Error, msg)

				zctx.From(r.Context()).Error("Panic recovered",
					zap.String("panic", msg),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Bool("response_started", sw.status != 0),
					zap.Stack("stack"),
				)
				if sw.status != 0 {
					panic(http.ErrAbortHandler)
				}
				w.Header().Set("Connection", "close")
				writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "An unexpected error occurred.")
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
