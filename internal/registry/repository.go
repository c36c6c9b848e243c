package registry

import "context"

// RepositoryPort defines data access methods for the school catalog.
type RepositoryPort interface {
	FindByCode(ctx context.Context, code string) (School, error)
	FindByName(ctx context.Context, name string) (School, error)
	List(ctx context.Context, activeOnly bool) ([]School, error)
	Insert(ctx context.Context, school School) (School, error)
	SetFallbackOverrides(ctx context.Context, code string, matrix PermissionMatrix) error
	SetActive(ctx context.Context, code string, active bool) error
}
