package httpmiddleware

import (
	"fmt"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery returns a middleware that turns handler panics into 500 responses.
// The panic is logged with the stack, the request route, and the request ID
// when RequestID runs further out, so the log line can be matched to the
// response the client saw.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					fields := []zap.Field{
						zap.String("panic", fmt.Sprint(rec)),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					}
					if id := RequestIDFromContext(r.Context()); id != "" {
						fields = append(fields, zap.String("request_id", id))
					}
					zctx.From(r.Context()).Error("Handler panic", fields...)

					// The handler may have died mid-write; the connection
					// cannot be trusted for another request.
					w.Header().Set("Connection", "close")
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
