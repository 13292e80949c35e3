package middleware

import (
	"net/http"

	"github.com/angelmondragon/tablerewards-backend/api/responses"
	"github.com/angelmondragon/tablerewards-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tablerewards-backend/pkg/errors"
	"github.com/angelmondragon/tablerewards-backend/pkg/logger"
)

// RequireRole admits requests whose token carries one of the supplied roles.
func RequireRole(logg *logger.Logger, roles ...enums.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actual := enums.UserRole(RoleFromContext(r.Context()))
			for _, role := range roles {
				if actual == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
		})
	}
}
