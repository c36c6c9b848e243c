package identity_test

import (
	"strings"
	"testing"

	"github.com/chalkboard-sms/chalkboard/internal/identity"
	_ "github.com/chalkboard-sms/chalkboard/testing"
)

func TestParseDOBAcceptedForms(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"2008-01-15", "15012008"},
		{"15/01/2008", "15012008"},
		{"15-01-2008", "15012008"},
		{"15012008", "15012008"},
	}
	for _, tc := range cases {
		dob, ok := identity.ParseDOB(tc.input)
		if !ok {
			t.Fatalf("ParseDOB(%q) rejected a valid date", tc.input)
		}
		if got := identity.DOBCredential(dob); got != tc.want {
			t.Fatalf("DOBCredential(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestParseDOBRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "not-a-date", "2008/01/15", "99/99/9999"} {
		if _, ok := identity.ParseDOB(input); ok {
			t.Fatalf("ParseDOB(%q) accepted an invalid date", input)
		}
	}
}

func TestRandomCredentialClasses(t *testing.T) {
	for i := 0; i < 50; i++ {
		cred, err := identity.RandomCredential(8)
		if err != nil {
			t.Fatalf("RandomCredential: %v", err)
		}
		if len(cred) != 8 {
			t.Fatalf("credential %q has length %d, want 8", cred, len(cred))
		}
		if !strings.ContainsAny(cred, "ABCDEFGHJKLMNPQRSTUVWXYZ") {
			t.Fatalf("credential %q lacks an uppercase letter", cred)
		}
		if !strings.ContainsAny(cred, "abcdefghijkmnpqrstuvwxyz") {
			t.Fatalf("credential %q lacks a lowercase letter", cred)
		}
		if !strings.ContainsAny(cred, "0123456789") {
			t.Fatalf("credential %q lacks a digit", cred)
		}
		if strings.ContainsAny(cred, "IOl") {
			t.Fatalf("credential %q contains a confusable character", cred)
		}
	}
}

func TestRandomCredentialCustomLength(t *testing.T) {
	cred, err := identity.RandomCredential(12)
	if err != nil {
		t.Fatalf("RandomCredential: %v", err)
	}
	if len(cred) != 12 {
		t.Fatalf("credential length = %d, want 12", len(cred))
	}
}

func TestFormatUserID(t *testing.T) {
	cases := []struct {
		role string
		seq  int64
		want string
	}{
		{"student", 1, "STU0001"},
		{"teacher", 42, "TCH0042"},
		{"admin", 7, "ADM0007"},
		{"parent", 10001, "PAR10001"},
	}
	for _, tc := range cases {
		if got := identity.FormatUserID(tc.role, tc.seq); got != tc.want {
			t.Fatalf("FormatUserID(%s, %d) = %q, want %q", tc.role, tc.seq, got, tc.want)
		}
	}
}
