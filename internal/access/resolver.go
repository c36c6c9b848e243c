package access

import (
	"context"
	"errors"

	"github.com/chalkboard-sms/chalkboard/internal/registry"
	"github.com/chalkboard-sms/chalkboard/internal/shared"
)

// OverrideStore fetches the tenant-local permission override document.
// A nil matrix with nil error means no document is configured.
type OverrideStore interface {
	Overrides(ctx context.Context, code string) (registry.PermissionMatrix, error)
}

// FallbackSource supplies the registry-level fallback matrix for a school.
type FallbackSource interface {
	FallbackOverrides(ctx context.Context, code string) (registry.PermissionMatrix, error)
}

// Resolver answers whether a role may perform an action for a tenant. It is
// read-only and deterministic for fixed inputs and fixed override state.
type Resolver struct {
	overrides OverrideStore
	fallback  FallbackSource
}

// NewResolver constructs a Resolver.
func NewResolver(overrides OverrideStore, fallback FallbackSource) *Resolver {
	return &Resolver{overrides: overrides, fallback: fallback}
}

// IsAllowed resolves (role, canonical code, permission key) to a decision.
//
// Sources are consulted in order: tenant-local override document, registry
// fallback matrix, static default table, deny. A student entry in which
// every flag is false is the signature of an accidentally saved all-off
// matrix; it is treated as not configured and the static student defaults
// apply instead. Only infrastructure failures return a non-nil error.
func (r *Resolver) IsAllowed(ctx context.Context, role, code, key string) (bool, error) {
	if role == RoleSuperadmin {
		return true, nil
	}

	matrix, err := r.overrides.Overrides(ctx, code)
	if err != nil {
		return false, err
	}
	if entry, ok := matrix[role]; ok {
		if role == RoleStudent && allFalse(entry) {
			return DefaultAllowed(role, key), nil
		}
		if allowed, ok := entry[key]; ok {
			return allowed, nil
		}
	}

	fallback, err := r.fallback.FallbackOverrides(ctx, code)
	if err != nil {
		if !errors.Is(err, shared.ErrSchoolNotFound) {
			return false, err
		}
		fallback = nil
	}
	if entry, ok := fallback[role]; ok {
		if role == RoleStudent && allFalse(entry) {
			return DefaultAllowed(role, key), nil
		}
		if allowed, ok := entry[key]; ok {
			return allowed, nil
		}
	}

	return DefaultAllowed(role, key), nil
}

func allFalse(entry map[string]bool) bool {
	for _, allowed := range entry {
		if allowed {
			return false
		}
	}
	return true
}
