// Package httpmiddleware provides net/http middleware used by the ops
// endpoints: panic recovery, request IDs, CORS, and rate limiting.
package httpmiddleware

import "net/http"

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares to h in order: the first middleware is the
// outermost wrapper.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
