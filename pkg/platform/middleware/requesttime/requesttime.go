// Package requesttime provides middleware that pins a request-scoped "now", so
// every record stamped while serving one request shares the same timestamp.
package requesttime

import (
	"net/http"
	"time"

	"promisetracker/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request
// and stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
