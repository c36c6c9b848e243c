package registry

import (
	"regexp"
	"strings"
	"time"
)

// School is one registered tenant in the central catalog.
type School struct {
	Code              string
	DisplayName       string
	FallbackOverrides PermissionMatrix
	Active            bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// PermissionMatrix maps a role to its named capability flags.
type PermissionMatrix map[string]map[string]bool

// codeToken matches a well-formed canonical school code after uppercasing.
var codeToken = regexp.MustCompile(`^[A-Z0-9]{2,12}$`)

// CanonicalizeCode normalizes a raw identifier into canonical code form.
func CanonicalizeCode(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}

// IsCodeToken reports whether the identifier is a plausible canonical code.
func IsCodeToken(identifier string) bool {
	return codeToken.MatchString(CanonicalizeCode(identifier))
}
