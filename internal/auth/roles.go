package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Role gates what ticket operations a caller may perform.
type Role string

const (
	// RoleUser may create tickets, comment, vote, watch and review.
	RoleUser Role = "USER"
	// RoleMaintainer may additionally edit privileged fields, manage
	// milestones and execute merges.
	RoleMaintainer Role = "MAINTAINER"
	// RoleAdmin is a maintainer with repository administration rights.
	RoleAdmin Role = "ADMIN"
)

// Privileged reports whether the role may touch responsible, milestone
// and merge operations.
func (r Role) Privileged() bool {
	return r == RoleMaintainer || r == RoleAdmin
}

// RequireRole ensures the principal has one of the allowed roles. With no
// arguments it only requires authentication.
func RequireRole(allowed ...Role) fiber.Handler {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

// RequireMaintainer gates privileged operations.
func RequireMaintainer() fiber.Handler {
	return RequireRole(RoleMaintainer, RoleAdmin)
}
