package tenant

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Named sub-collections inside every tenant store.
const (
	CollectionAdmins     = "admins"
	CollectionTeachers   = "teachers"
	CollectionStudents   = "students"
	CollectionParents    = "parents"
	CollectionMessages   = "messages"
	CollectionResults    = "results"
	CollectionTimetables = "timetables"
	CollectionOverrides  = "permission_overrides"
	CollectionTenantInfo = "tenant_info"
)

var roleCollections = map[string]string{
	"admin":   CollectionAdmins,
	"teacher": CollectionTeachers,
	"student": CollectionStudents,
	"parent":  CollectionParents,
}

// RoleCollection maps a role to the tenant collection holding its users.
func RoleCollection(role string) (string, bool) {
	collection, ok := roleCollections[role]
	return collection, ok
}

// DB is the surface the core needs from one tenant's isolated data store.
// *pgxpool.Pool satisfies it; tests substitute fakes.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Handle is a reusable handle to one tenant's isolated data store. It is
// owned by the Manager's cache; borrowers must not retain it beyond a call.
type Handle struct {
	code string
	db   DB
}

// Code returns the canonical school code the handle belongs to.
func (h *Handle) Code() string {
	return h.code
}

// DB returns the underlying tenant store connection.
func (h *Handle) DB() DB {
	return h.db
}
