package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/chalkboard-sms/chalkboard/internal/registry"
	"github.com/chalkboard-sms/chalkboard/internal/tenant"
)

// OverrideRepository reads and writes the at-most-one permission override
// document inside a tenant store, borrowing handles from the Manager.
type OverrideRepository struct {
	manager *tenant.Manager
}

// NewOverrideRepository constructs the repository.
func NewOverrideRepository(manager *tenant.Manager) *OverrideRepository {
	return &OverrideRepository{manager: manager}
}

// Overrides fetches the tenant-local matrix. Absence is a valid state and
// returns a nil matrix with nil error.
func (r *OverrideRepository) Overrides(ctx context.Context, code string) (registry.PermissionMatrix, error) {
	handle, err := r.manager.Handle(ctx, code)
	if err != nil {
		return nil, err
	}
	var payload []byte
	err = handle.DB().QueryRow(ctx,
		`SELECT matrix FROM permission_overrides WHERE id = 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var matrix registry.PermissionMatrix
	if err := json.Unmarshal(payload, &matrix); err != nil {
		return nil, fmt.Errorf("access: decode override matrix for %s: %w", code, err)
	}
	return matrix, nil
}

// SetOverrides replaces the tenant-local matrix document.
func (r *OverrideRepository) SetOverrides(ctx context.Context, code string, matrix registry.PermissionMatrix) error {
	handle, err := r.manager.Handle(ctx, code)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(matrix)
	if err != nil {
		return err
	}
	_, err = handle.DB().Exec(ctx,
		`INSERT INTO permission_overrides (id, matrix, updated_at) VALUES (1, $1, NOW())
		 ON CONFLICT (id) DO UPDATE SET matrix = EXCLUDED.matrix, updated_at = NOW()`,
		payload)
	return err
}

var _ OverrideStore = (*OverrideRepository)(nil)
