package gate

import (
	"context"
	"fmt"
	"slices"
)

// Role allows principals that carry the role.
func Role(role string) CheckFunc {
	return AnyOf(role)
}

// AnyOf allows principals carrying at least one of the roles. A nil
// principal passes: by the time a guest reaches a role check, the gate has
// already admitted it through WithGuestAccess.
func AnyOf(roles ...string) CheckFunc {
	return func(_ context.Context, principal Principal, _ any) error {
		if principal == nil {
			return nil
		}

		held := principal.PrincipalRoles()
		for _, role := range roles {
			if slices.Contains(held, role) {
				return nil
			}
		}

		return fmt.Errorf("requires one of roles %v", roles)
	}
}

// AllOf allows principals carrying every one of the roles. Nil principals
// pass for the same reason as AnyOf.
func AllOf(roles ...string) CheckFunc {
	return func(_ context.Context, principal Principal, _ any) error {
		if principal == nil {
			return nil
		}

		held := principal.PrincipalRoles()
		for _, role := range roles {
			if !slices.Contains(held, role) {
				return fmt.Errorf("requires role %q", role)
			}
		}

		return nil
	}
}

// RegisterFromConfig registers one role-based ability per map entry, ability
// name to required roles. Config-driven abilities are managed so reloading
// configuration can replace them.
func RegisterFromConfig(g *Gate, abilities map[string][]string) error {
	for name, roles := range abilities {
		if err := g.Register(name, AnyOf(roles...), Managed()); err != nil {
			return err
		}
	}
	return nil
}
