package authz

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Skotchmaster/scenario_manager/internal/models"
)

var ErrForbidden = errors.New("forbidden")

// ForbiddenError names the role and resource for server-side logs only.
type ForbiddenError struct {
	Role     models.Role
	Resource string
	Required []models.Role
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("role %q is not allowed to access %s (requires one of %v)", e.Role, e.Resource, e.Required)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// Authorize allows when required is empty or contains role.
func Authorize(role models.Role, resource string, required ...models.Role) error {
	if len(required) == 0 || slices.Contains(required, role) {
		return nil
	}
	return &ForbiddenError{Role: role, Resource: resource, Required: slices.Clone(required)}
}
