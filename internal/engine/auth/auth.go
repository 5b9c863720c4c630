package auth

import (
	"fmt"
	"strings"
)

// Roles carried by an authenticated actor. Identity and role assignment are
// owned by the external auth collaborator; the engine only consumes them.
const (
	RoleWorker   = "worker"
	RoleReviewer = "reviewer"
	RoleManager  = "manager"
)

// ForbiddenError indicates a missing role.
type ForbiddenError struct {
	Role string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s required", e.Role)
}

// HasRole reports whether roles contains role.
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// RequireRole returns a ForbiddenError when role is absent.
func RequireRole(roles []string, role string) error {
	if HasRole(roles, role) {
		return nil
	}
	return ForbiddenError{Role: role}
}

// SplitRoles parses a comma-separated role list as stored on API keys.
func SplitRoles(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var roles []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			roles = append(roles, trimmed)
		}
	}
	return roles
}
