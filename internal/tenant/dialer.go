package tenant

import (
	"context"
	"fmt"
	"strings"

	"github.com/chalkboard-sms/chalkboard/internal/platform/db"
)

// Dialer establishes the long-lived connection resource for one tenant.
type Dialer interface {
	Dial(ctx context.Context, code string) (DB, error)
}

// PostgresDialer dials a dedicated per-school database whose DSN is derived
// from a template containing a single %s verb for the lowercased code.
type PostgresDialer struct {
	DSNTemplate string
}

// Dial opens a connection pool for the given school code.
func (d PostgresDialer) Dial(ctx context.Context, code string) (DB, error) {
	if !strings.Contains(d.DSNTemplate, "%s") {
		return nil, fmt.Errorf("tenant: dsn template missing %%s placeholder")
	}
	dsn := fmt.Sprintf(d.DSNTemplate, strings.ToLower(code))
	pool, err := db.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return pool, nil
}
