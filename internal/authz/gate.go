package authz

import (
	"errors"
	"fmt"

	"storekeep/backend/internal/domain"
)

var ErrDenied = errors.New("operation not permitted")

type DeniedError struct {
	Role      domain.Role
	Operation domain.Operation
	Reason    string
}

func (e *DeniedError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("forbidden: %s", e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Operation)
}

func (e *DeniedError) Unwrap() error {
	return ErrDenied
}

// Authorize returns nil when role is granted op and a *DeniedError otherwise.
func Authorize(role domain.Role, op domain.Operation) error {
	if Can(role, op) {
		return nil
	}
	return &DeniedError{Role: role, Operation: op, Reason: "operation not permitted"}
}

// HasAnyRole is the coarse route-level check. An empty allow list admits nobody.
func HasAnyRole(role domain.Role, allowed ...domain.Role) bool {
	for _, candidate := range allowed {
		if candidate == role {
			return true
		}
	}
	return false
}

// RequireRole is HasAnyRole in error form.
func RequireRole(role domain.Role, allowed ...domain.Role) error {
	if HasAnyRole(role, allowed...) {
		return nil
	}
	return &DeniedError{Role: role, Reason: "insufficient role"}
}

// Check runs the role filter and then the operation check; both must pass.
func Check(role domain.Role, op domain.Operation, allowed ...domain.Role) error {
	if err := RequireRole(role, allowed...); err != nil {
		return err
	}
	return Authorize(role, op)
}
