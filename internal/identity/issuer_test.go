package identity_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/chalkboard-sms/chalkboard/internal/identity"
	"github.com/chalkboard-sms/chalkboard/internal/shared"
	_ "github.com/chalkboard-sms/chalkboard/testing"
)

type storedUser struct {
	seq            int64
	hash           string
	echo           string
	changeRequired bool
	updatedAt      time.Time
}

// memoryStore mimics the per-tenant tables, including the unique constraint
// on user_id.
type memoryStore struct {
	mu    sync.Mutex
	users map[string]map[string]map[string]*storedUser
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]map[string]map[string]*storedUser)}
}

func (s *memoryStore) namespace(code, role string) map[string]*storedUser {
	if s.users[code] == nil {
		s.users[code] = make(map[string]map[string]*storedUser)
	}
	if s.users[code][role] == nil {
		s.users[code][role] = make(map[string]*storedUser)
	}
	return s.users[code][role]
}

func (s *memoryStore) Insert(ctx context.Context, code string, id identity.IssuedIdentity, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns := s.namespace(code, id.Role)
	if _, exists := ns[id.UserID]; exists {
		return &pgconn.PgError{Code: "23505", ConstraintName: "user_id_key"}
	}
	ns[id.UserID] = &storedUser{
		seq:            seq,
		hash:           id.HashedCredential,
		echo:           id.PlaintextCredential,
		changeRequired: id.CredentialChangeRequired,
		updatedAt:      time.Now().UTC(),
	}
	return nil
}

func (s *memoryStore) MaxSequence(ctx context.Context, code, role string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for _, u := range s.namespace(code, role) {
		if u.seq > max {
			max = u.seq
		}
	}
	return max, nil
}

func (s *memoryStore) UpdateCredential(ctx context.Context, code, role, userID, hash, plaintext string, changeRequired bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.namespace(code, role)[userID]
	if !ok {
		return shared.ErrNotFound
	}
	u.hash = hash
	u.echo = plaintext
	u.changeRequired = changeRequired
	u.updatedAt = time.Now().UTC()
	return nil
}

func (s *memoryStore) ScrubEchoes(ctx context.Context, code, role string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.namespace(code, role) {
		if u.echo != "" && u.updatedAt.Before(cutoff) {
			u.echo = ""
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) get(code, role, userID string) (*storedUser, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.namespace(code, role)[userID]
	return u, ok
}

// staleScanStore reports a stale maximum on the first scan so the issuer has
// to recover from the resulting duplicate identifier.
type staleScanStore struct {
	*memoryStore
	mu    sync.Mutex
	scans int
	stale int64
}

func (s *staleScanStore) MaxSequence(ctx context.Context, code, role string) (int64, error) {
	s.mu.Lock()
	first := s.scans == 0
	s.scans++
	s.mu.Unlock()
	if first {
		return s.stale, nil
	}
	return s.memoryStore.MaxSequence(ctx, code, role)
}

func scanModeIssuer(store identity.Store) *identity.Issuer {
	return identity.NewIssuer(store, identity.NewSequenceAllocator(nil, nil), nil, 0)
}

func TestIssueStudentDOBCredential(t *testing.T) {
	store := newMemoryStore()
	issuer := scanModeIssuer(store)

	id, err := issuer.Issue(context.Background(), "GREENWOOD", "student", "15/01/2008")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if id.UserID != "STU0001" {
		t.Fatalf("user id = %q, want STU0001", id.UserID)
	}
	if id.PlaintextCredential != "15012008" {
		t.Fatalf("plaintext = %q, want 15012008", id.PlaintextCredential)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(id.HashedCredential), []byte("15012008")); err != nil {
		t.Fatalf("hash does not match the derived credential: %v", err)
	}
}

func TestIssueStudentUnparseableDOBGetsRandom(t *testing.T) {
	store := newMemoryStore()
	issuer := scanModeIssuer(store)

	id, err := issuer.Issue(context.Background(), "GREENWOOD", "student", "someday")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if len(id.PlaintextCredential) != identity.DefaultCredentialLength {
		t.Fatalf("plaintext length = %d, want %d", len(id.PlaintextCredential), identity.DefaultCredentialLength)
	}
	if id.PlaintextCredential == "someday" {
		t.Fatal("unparseable date of birth must not be used verbatim")
	}
}

func TestIssueTeacherIgnoresDOB(t *testing.T) {
	store := newMemoryStore()
	issuer := scanModeIssuer(store)

	id, err := issuer.Issue(context.Background(), "GREENWOOD", "teacher", "15/01/2008")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if id.UserID != "TCH0001" {
		t.Fatalf("user id = %q, want TCH0001", id.UserID)
	}
	if id.PlaintextCredential == "15012008" {
		t.Fatal("date-of-birth credentials are for students only")
	}
}

func TestIssueUnknownRole(t *testing.T) {
	issuer := scanModeIssuer(newMemoryStore())
	if _, err := issuer.Issue(context.Background(), "GREENWOOD", "visitor", ""); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestIssueSequentialPerNamespace(t *testing.T) {
	store := newMemoryStore()
	issuer := scanModeIssuer(store)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		id, err := issuer.Issue(ctx, "GREENWOOD", "student", "")
		if err != nil {
			t.Fatalf("Issue %d: %v", i, err)
		}
		want := fmt.Sprintf("STU%04d", i)
		if id.UserID != want {
			t.Fatalf("user id = %q, want %q", id.UserID, want)
		}
	}

	// A different role and a different school each start at 1.
	id, err := issuer.Issue(ctx, "GREENWOOD", "parent", "")
	if err != nil {
		t.Fatalf("Issue parent: %v", err)
	}
	if id.UserID != "PAR0001" {
		t.Fatalf("parent id = %q, want PAR0001", id.UserID)
	}
	id, err = issuer.Issue(ctx, "OAKHILL", "student", "")
	if err != nil {
		t.Fatalf("Issue other school: %v", err)
	}
	if id.UserID != "STU0001" {
		t.Fatalf("other school id = %q, want STU0001", id.UserID)
	}
}

func TestIssueConcurrentIdentifiersUnique(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemoryStore()
	issuer := identity.NewIssuer(store, identity.NewSequenceAllocator(client, nil), nil, 0)

	const workers = 50
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := issuer.Issue(context.Background(), "GREENWOOD", "student", "")
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			ids[i] = id.UserID
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, workers)
	for i, id := range ids {
		if id == "" {
			t.Fatalf("worker %d produced no identifier", i)
		}
		if seen[id] {
			t.Fatalf("duplicate identifier %q", id)
		}
		seen[id] = true
	}
	if !seen["STU0001"] || !seen["STU0050"] {
		t.Fatal("expected a dense sequence from 1 to 50")
	}
}

func TestIssueRecoversFromStaleSequence(t *testing.T) {
	store := &staleScanStore{memoryStore: newMemoryStore(), stale: 0}
	seeded := identity.IssuedIdentity{UserID: "STU0001", Role: "student"}
	if err := store.memoryStore.Insert(context.Background(), "GREENWOOD", seeded, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}

	issuer := scanModeIssuer(store)
	id, err := issuer.Issue(context.Background(), "GREENWOOD", "student", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if id.UserID != "STU0002" {
		t.Fatalf("user id = %q, want STU0002 after duplicate recovery", id.UserID)
	}
}

type alwaysConflictStore struct {
	*memoryStore
	inserts int
}

func (s *alwaysConflictStore) Insert(ctx context.Context, code string, id identity.IssuedIdentity, seq int64) error {
	s.inserts++
	return &pgconn.PgError{Code: "23505"}
}

func TestIssueGivesUpAfterBoundedRetries(t *testing.T) {
	store := &alwaysConflictStore{memoryStore: newMemoryStore()}
	issuer := scanModeIssuer(store)

	_, err := issuer.Issue(context.Background(), "GREENWOOD", "student", "")
	if !errors.Is(err, shared.ErrDuplicateIdentifier) {
		t.Fatalf("expected ErrDuplicateIdentifier, got %v", err)
	}
	if store.inserts != 5 {
		t.Fatalf("insert attempts = %d, want 5", store.inserts)
	}
}

func TestResetCredential(t *testing.T) {
	store := newMemoryStore()
	issuer := scanModeIssuer(store)
	ctx := context.Background()

	issued, err := issuer.Issue(ctx, "GREENWOOD", "student", "15/01/2008")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	first, err := issuer.ResetCredential(ctx, "GREENWOOD", "student", issued.UserID)
	if err != nil {
		t.Fatalf("ResetCredential: %v", err)
	}
	if first == issued.PlaintextCredential {
		t.Fatal("reset must not reuse the previous credential")
	}

	u, ok := store.get("GREENWOOD", "student", issued.UserID)
	if !ok {
		t.Fatal("user vanished")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.hash), []byte(first)); err != nil {
		t.Fatalf("stored hash does not match the new credential: %v", err)
	}
	if u.echo != first {
		t.Fatal("previous plaintext echo was not overwritten")
	}
	if !u.changeRequired {
		t.Fatal("reset must force a credential change on next sign-in")
	}

	second, err := issuer.ResetCredential(ctx, "GREENWOOD", "student", issued.UserID)
	if err != nil {
		t.Fatalf("second ResetCredential: %v", err)
	}
	if second == first {
		t.Fatal("consecutive resets produced the same credential")
	}
}

func TestResetCredentialUnknownUser(t *testing.T) {
	issuer := scanModeIssuer(newMemoryStore())
	if _, err := issuer.ResetCredential(context.Background(), "GREENWOOD", "student", "STU9999"); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
