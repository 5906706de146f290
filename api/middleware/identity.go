package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pasalhub/pasalmart-backend/api/responses"
	pkgerrors "github.com/pasalhub/pasalmart-backend/pkg/errors"
	"github.com/pasalhub/pasalmart-backend/pkg/logger"
)

const (
	headerUserID = "X-User-ID"
	headerRole   = "X-User-Role"
)

// Identity reads the caller identity that the edge proxy injects after
// authenticating the request. The service itself never sees credentials,
// only the resolved user id and role headers.
func Identity(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(headerUserID))
			if userID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing"))
				return
			}
			if _, err := uuid.Parse(userID); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity invalid"))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			if role := strings.TrimSpace(r.Header.Get(headerRole)); role != "" {
				ctx = WithRole(ctx, role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
