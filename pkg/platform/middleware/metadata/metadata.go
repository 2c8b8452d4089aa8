package metadata

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"promisetracker/pkg/requestcontext"
)

// ActorHeader carries the reviewer identity asserted by the authenticating
// proxy in front of this service.
const ActorHeader = "X-Actor"

// RequestMetadata copies the chi request ID and the asserted actor into the
// request context. Mount after middleware.RequestID.
func RequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := middleware.GetReqID(ctx); reqID != "" {
			ctx = requestcontext.WithRequestID(ctx, reqID)
		}
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			ctx = requestcontext.WithActor(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
