package http

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"
)

// HeaderUserID carries the verified caller identity, set by the auth gateway
// in front of this service. Credentials are never re-verified here.
const HeaderUserID = "X-User-ID"

type ctxKey string

const callerIDKey ctxKey = "caller_id"

// RequireIdentity rejects requests without a parseable caller identity and
// threads it into the request context for handlers.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderUserID)
		if raw == "" {
			respondWithError(w, http.StatusUnauthorized, "missing caller identity")
			return
		}

		callerID, err := uuid.FromString(raw)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, "invalid caller identity")
			return
		}

		ctx := context.WithValue(r.Context(), callerIDKey, callerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerID extracts the verified caller identity from the request context.
func CallerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(callerIDKey).(uuid.UUID)
	return id, ok
}
