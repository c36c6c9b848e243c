package access_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chalkboard-sms/chalkboard/internal/access"
	"github.com/chalkboard-sms/chalkboard/internal/registry"
	"github.com/chalkboard-sms/chalkboard/internal/shared"
	_ "github.com/chalkboard-sms/chalkboard/testing"
)

type stubOverrides struct {
	matrix registry.PermissionMatrix
	err    error
}

func (s stubOverrides) Overrides(ctx context.Context, code string) (registry.PermissionMatrix, error) {
	return s.matrix, s.err
}

type stubFallback struct {
	matrix registry.PermissionMatrix
	err    error
}

func (s stubFallback) FallbackOverrides(ctx context.Context, code string) (registry.PermissionMatrix, error) {
	return s.matrix, s.err
}

func TestIsAllowedSuperadminBypassesEverything(t *testing.T) {
	r := access.NewResolver(
		stubOverrides{err: errors.New("tenant store down")},
		stubFallback{err: errors.New("registry down")},
	)
	allowed, err := r.IsAllowed(context.Background(), access.RoleSuperadmin, "GREENWOOD", access.PermManageSchools)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("superadmin must be allowed unconditionally")
	}
}

func TestIsAllowedTenantOverrideWins(t *testing.T) {
	r := access.NewResolver(
		stubOverrides{matrix: registry.PermissionMatrix{
			access.RoleTeacher: {access.PermEditResults: false},
		}},
		stubFallback{matrix: registry.PermissionMatrix{
			access.RoleTeacher: {access.PermEditResults: true},
		}},
	)
	allowed, err := r.IsAllowed(context.Background(), access.RoleTeacher, "GREENWOOD", access.PermEditResults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("tenant override deny must take precedence over the fallback")
	}
}

func TestIsAllowedFallsBackToRegistryMatrix(t *testing.T) {
	r := access.NewResolver(
		stubOverrides{},
		stubFallback{matrix: registry.PermissionMatrix{
			access.RoleParent: {access.PermEditResults: true},
		}},
	)
	allowed, err := r.IsAllowed(context.Background(), access.RoleParent, "GREENWOOD", access.PermEditResults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("registry fallback grant was ignored")
	}
}

func TestIsAllowedStaticDefaults(t *testing.T) {
	r := access.NewResolver(stubOverrides{}, stubFallback{err: shared.ErrSchoolNotFound})

	cases := []struct {
		role, key string
		want      bool
	}{
		{access.RoleAdmin, access.PermManageStaff, true},
		{access.RoleTeacher, access.PermEditResults, true},
		{access.RoleTeacher, access.PermManageStaff, false},
		{access.RoleStudent, access.PermViewResults, true},
		{access.RoleStudent, access.PermSendMessages, false},
		{access.RoleParent, access.PermSendMessages, true},
		{"visitor", access.PermViewResults, false},
	}
	for _, tc := range cases {
		allowed, err := r.IsAllowed(context.Background(), tc.role, "GREENWOOD", tc.key)
		if err != nil {
			t.Fatalf("%s/%s: unexpected error: %v", tc.role, tc.key, err)
		}
		if allowed != tc.want {
			t.Fatalf("%s/%s: got %v, want %v", tc.role, tc.key, allowed, tc.want)
		}
	}
}

func TestIsAllowedStudentAllFalseEntryDiscarded(t *testing.T) {
	r := access.NewResolver(
		stubOverrides{matrix: registry.PermissionMatrix{
			access.RoleStudent: {
				access.PermViewResults:     false,
				access.PermViewTimetable:   false,
				access.PermViewMessages:    false,
				access.PermViewAssignments: false,
			},
		}},
		stubFallback{},
	)
	allowed, err := r.IsAllowed(context.Background(), access.RoleStudent, "GREENWOOD", access.PermViewAssignments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allowed {
		t.Fatal("all-false student entry must yield the static defaults")
	}
}

func TestIsAllowedStudentPartialEntryHonored(t *testing.T) {
	r := access.NewResolver(
		stubOverrides{matrix: registry.PermissionMatrix{
			access.RoleStudent: {
				access.PermViewResults:  false,
				access.PermSendMessages: true,
			},
		}},
		stubFallback{},
	)
	allowed, err := r.IsAllowed(context.Background(), access.RoleStudent, "GREENWOOD", access.PermViewResults)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("a mixed student entry is real configuration and must be honored")
	}
}

func TestIsAllowedPropagatesInfrastructureErrors(t *testing.T) {
	r := access.NewResolver(stubOverrides{err: shared.ErrTenantUnreachable}, stubFallback{})
	_, err := r.IsAllowed(context.Background(), access.RoleTeacher, "GREENWOOD", access.PermViewResults)
	if !errors.Is(err, shared.ErrTenantUnreachable) {
		t.Fatalf("expected ErrTenantUnreachable, got %v", err)
	}
}
