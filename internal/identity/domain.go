package identity

import (
	"fmt"
	"time"
)

// roleTags holds the fixed identifier prefix per role.
var roleTags = map[string]string{
	"admin":   "ADM",
	"teacher": "TCH",
	"student": "STU",
	"parent":  "PAR",
}

const sequenceWidth = 4

// RoleTag returns the identifier prefix for a role.
func RoleTag(role string) (string, bool) {
	tag, ok := roleTags[role]
	return tag, ok
}

// FormatUserID renders the sequential identifier, e.g. STU0042.
func FormatUserID(role string, seq int64) string {
	tag := roleTags[role]
	return fmt.Sprintf("%s%0*d", tag, sequenceWidth, seq)
}

// IssuedIdentity is the record produced when a new user is provisioned.
// PlaintextCredential is retained transiently so an administrator can view
// and communicate it once; it is overwritten on the next credential reset.
type IssuedIdentity struct {
	UserID                   string
	Role                     string
	School                   string
	HashedCredential         string
	PlaintextCredential      string
	CredentialChangeRequired bool
	IssuedAt                 time.Time
}
