package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/chalkboard-sms/chalkboard/internal/shared"
	"github.com/chalkboard-sms/chalkboard/internal/tenant"
)

// Store defines the tenant-store operations the issuer needs.
type Store interface {
	Insert(ctx context.Context, code string, identity IssuedIdentity, seq int64) error
	MaxSequence(ctx context.Context, code, role string) (int64, error)
	UpdateCredential(ctx context.Context, code, role, userID, hash, plaintext string, changeRequired bool) error
	ScrubEchoes(ctx context.Context, code, role string, cutoff time.Time) (int64, error)
}

// PGStore persists identities inside per-tenant stores, borrowing handles
// from the connection manager per call.
type PGStore struct {
	manager *tenant.Manager
}

// NewPGStore constructs a store.
func NewPGStore(manager *tenant.Manager) *PGStore {
	return &PGStore{manager: manager}
}

// roleTable resolves the per-role collection; roles come from the fixed
// roleTags set so the table name is never attacker-controlled.
func roleTable(role string) (string, error) {
	collection, ok := tenant.RoleCollection(role)
	if !ok {
		return "", fmt.Errorf("identity: unknown role %q", role)
	}
	return collection, nil
}

// Insert persists a new identity; the unique constraint on user_id makes it
// fail atomically on a duplicate identifier.
func (s *PGStore) Insert(ctx context.Context, code string, identity IssuedIdentity, seq int64) error {
	table, err := roleTable(identity.Role)
	if err != nil {
		return err
	}
	handle, err := s.manager.Handle(ctx, code)
	if err != nil {
		return err
	}
	_, err = handle.DB().Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (user_id, user_seq, password_hash, password_echo, must_change_password, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`, table),
		identity.UserID, seq, identity.HashedCredential, identity.PlaintextCredential, identity.CredentialChangeRequired)
	return err
}

// MaxSequence scans the current maximum sequence in use for (code, role).
func (s *PGStore) MaxSequence(ctx context.Context, code, role string) (int64, error) {
	table, err := roleTable(role)
	if err != nil {
		return 0, err
	}
	handle, err := s.manager.Handle(ctx, code)
	if err != nil {
		return 0, err
	}
	var max int64
	err = handle.DB().QueryRow(ctx, fmt.Sprintf(
		`SELECT COALESCE(MAX(user_seq), 0) FROM %s`, table)).Scan(&max)
	if err != nil {
		return 0, err
	}
	return max, nil
}

// UpdateCredential replaces the stored hash and plaintext echo. The previous
// echo is overwritten, not merely hidden.
func (s *PGStore) UpdateCredential(ctx context.Context, code, role, userID, hash, plaintext string, changeRequired bool) error {
	table, err := roleTable(role)
	if err != nil {
		return err
	}
	handle, err := s.manager.Handle(ctx, code)
	if err != nil {
		return err
	}
	tag, err := handle.DB().Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET password_hash = $2, password_echo = $3, must_change_password = $4, updated_at = NOW() WHERE user_id = $1`, table),
		userID, hash, plaintext, changeRequired)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ScrubEchoes clears plaintext credential echoes last touched before cutoff.
func (s *PGStore) ScrubEchoes(ctx context.Context, code, role string, cutoff time.Time) (int64, error) {
	table, err := roleTable(role)
	if err != nil {
		return 0, err
	}
	handle, err := s.manager.Handle(ctx, code)
	if err != nil {
		return 0, err
	}
	tag, err := handle.DB().Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET password_echo = NULL WHERE password_echo IS NOT NULL AND updated_at < $1`, table),
		cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*PGStore)(nil)
