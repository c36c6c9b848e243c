package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/chalkboard-sms/chalkboard/internal/shared"
)

// maxIssueAttempts bounds the allocate-insert retry loop. Exhausting it
// indicates sustained extreme contention or a data-integrity problem.
const maxIssueAttempts = 5

// Issuer allocates sequential identifiers and initial credentials.
type Issuer struct {
	store            Store
	sequences        *SequenceAllocator
	logger           *slog.Logger
	credentialLength int
}

// NewIssuer constructs an Issuer.
func NewIssuer(store Store, sequences *SequenceAllocator, logger *slog.Logger, credentialLength int) *Issuer {
	if logger == nil {
		logger = slog.Default()
	}
	if credentialLength <= 0 {
		credentialLength = DefaultCredentialLength
	}
	return &Issuer{
		store:            store,
		sequences:        sequences,
		logger:           logger,
		credentialLength: credentialLength,
	}
}

// Issue provisions a new identity in the (code, role) namespace. Students
// with a parseable date of birth get the DDMMYYYY credential; everyone else
// gets a random one. An unparseable date of birth falls back to random
// generation rather than failing.
func (i *Issuer) Issue(ctx context.Context, code, role, dateOfBirth string) (IssuedIdentity, error) {
	if _, ok := RoleTag(role); !ok {
		return IssuedIdentity{}, fmt.Errorf("identity: unknown role %q", role)
	}

	plaintext, err := i.initialCredential(role, dateOfBirth)
	if err != nil {
		return IssuedIdentity{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return IssuedIdentity{}, fmt.Errorf("identity: hash credential: %w", err)
	}

	scan := func(ctx context.Context) (int64, error) {
		return i.store.MaxSequence(ctx, code, role)
	}

	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		seq, err := i.sequences.Next(ctx, code, role, scan)
		if err != nil {
			return IssuedIdentity{}, err
		}
		identity := IssuedIdentity{
			UserID:              FormatUserID(role, seq),
			Role:                role,
			School:              code,
			HashedCredential:    string(hash),
			PlaintextCredential: plaintext,
			IssuedAt:            time.Now().UTC(),
		}
		err = i.store.Insert(ctx, code, identity, seq)
		if err == nil {
			return identity, nil
		}
		if !isUniqueViolation(err) {
			return IssuedIdentity{}, err
		}
		i.logger.Warn("identity: duplicate identifier, reconciling",
			slog.String("school", code),
			slog.String("role", role),
			slog.String("user_id", identity.UserID),
			slog.Int("attempt", attempt+1))
		if max, scanErr := i.store.MaxSequence(ctx, code, role); scanErr == nil {
			i.sequences.Reconcile(ctx, code, role, max)
		}
	}

	return IssuedIdentity{}, fmt.Errorf("identity: issue %s/%s: %w", code, role, shared.ErrDuplicateIdentifier)
}

// ResetCredential replaces a user's credential with a freshly generated
// random one, regardless of role, and returns the plaintext exactly once.
// The stored plaintext echo from the previous issuance is overwritten.
func (i *Issuer) ResetCredential(ctx context.Context, code, role, userID string) (string, error) {
	if _, ok := RoleTag(role); !ok {
		return "", fmt.Errorf("identity: unknown role %q", role)
	}
	plaintext, err := RandomCredential(i.credentialLength)
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("identity: hash credential: %w", err)
	}
	if err := i.store.UpdateCredential(ctx, code, role, userID, string(hash), plaintext, true); err != nil {
		return "", err
	}
	return plaintext, nil
}

func (i *Issuer) initialCredential(role, dateOfBirth string) (string, error) {
	if role == "student" && dateOfBirth != "" {
		if dob, ok := ParseDOB(dateOfBirth); ok {
			return DOBCredential(dob), nil
		}
		// Unparseable date of birth is a non-fatal internal fallback.
		i.logger.Warn("identity: unparseable date of birth, using random credential")
	}
	return RandomCredential(i.credentialLength)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
