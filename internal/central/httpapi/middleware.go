package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/klinikos/medsync/internal/central/auth"
	"github.com/klinikos/medsync/internal/common"
)

type contextKey string

const instanceIDKey contextKey = "instance_id"

// authMiddleware validates the bearer token and stores the authenticated
// instance id in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthHeaderName)
		if !strings.HasPrefix(header, common.BearerPrefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token := strings.TrimPrefix(header, common.BearerPrefix)
		instanceID, err := auth.GetInstanceIDFromToken(token, s.secretKey)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), instanceIDKey, instanceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// instanceFromContext returns the authenticated instance id set by
// authMiddleware.
func instanceFromContext(ctx context.Context) string {
	id, _ := ctx.Value(instanceIDKey).(string)
	return id
}
