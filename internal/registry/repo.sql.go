package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chalkboard-sms/chalkboard/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the school catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const schoolColumns = `code, display_name, fallback_permissions, active, created_at, updated_at`

// FindByCode fetches a school by its canonical code.
func (r *Repository) FindByCode(ctx context.Context, code string) (School, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+schoolColumns+` FROM schools WHERE code = $1`, code)
	return scanSchool(row)
}

// FindByName fetches a school by display name, case-insensitively.
func (r *Repository) FindByName(ctx context.Context, name string) (School, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+schoolColumns+` FROM schools WHERE LOWER(display_name) = LOWER($1)`, name)
	return scanSchool(row)
}

// List returns registered schools, optionally only active ones.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]School, error) {
	query := `SELECT ` + schoolColumns + ` FROM schools`
	if activeOnly {
		query += ` WHERE active`
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var schools []School
	for rows.Next() {
		school, err := scanSchool(rows)
		if err != nil {
			return nil, err
		}
		schools = append(schools, school)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return schools, nil
}

// Insert persists a newly registered school.
func (r *Repository) Insert(ctx context.Context, school School) (School, error) {
	matrix, err := marshalMatrix(school.FallbackOverrides)
	if err != nil {
		return School{}, err
	}
	now := time.Now().UTC()
	_, err = r.pool.Exec(ctx,
		`INSERT INTO schools (code, display_name, fallback_permissions, active, created_at, updated_at) VALUES ($1, $2, $3, TRUE, $4, $4)`,
		school.Code, school.DisplayName, matrix, now)
	if err != nil {
		return School{}, fmt.Errorf("registry: insert school: %w", err)
	}
	school.Active = true
	school.CreatedAt = now
	school.UpdatedAt = now
	return school, nil
}

// SetFallbackOverrides replaces the registry-level fallback matrix.
func (r *Repository) SetFallbackOverrides(ctx context.Context, code string, matrix PermissionMatrix) error {
	payload, err := marshalMatrix(matrix)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE schools SET fallback_permissions = $2, updated_at = NOW() WHERE code = $1`, code, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSchoolNotFound
	}
	return nil
}

// SetActive flips the soft-deactivation flag.
func (r *Repository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE schools SET active = $2, updated_at = NOW() WHERE code = $1`, code, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrSchoolNotFound
	}
	return nil
}

func scanSchool(row pgx.Row) (School, error) {
	var school School
	var matrix []byte
	err := row.Scan(&school.Code, &school.DisplayName, &matrix, &school.Active, &school.CreatedAt, &school.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return School{}, shared.ErrSchoolNotFound
		}
		return School{}, err
	}
	if len(matrix) > 0 {
		if err := json.Unmarshal(matrix, &school.FallbackOverrides); err != nil {
			return School{}, fmt.Errorf("registry: decode fallback matrix for %s: %w", school.Code, err)
		}
	}
	return school, nil
}

func marshalMatrix(matrix PermissionMatrix) ([]byte, error) {
	if matrix == nil {
		return nil, nil
	}
	return json.Marshal(matrix)
}

var _ RepositoryPort = (*Repository)(nil)
