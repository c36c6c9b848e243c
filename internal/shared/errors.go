package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrSchoolNotFound indicates the identifier matches no registered school.
	ErrSchoolNotFound = errors.New("school not found")
	// ErrTenantUnreachable indicates the tenant store could not be reached after retry.
	ErrTenantUnreachable = errors.New("tenant unreachable")
	// ErrDuplicateIdentifier indicates identifier allocation exhausted its retries.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	// ErrPermissionDenied indicates the caller may not perform the requested action.
	ErrPermissionDenied = errors.New("permission denied")
)
