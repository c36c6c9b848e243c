package tenant_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chalkboard-sms/chalkboard/internal/shared"
	"github.com/chalkboard-sms/chalkboard/internal/tenant"
	_ "github.com/chalkboard-sms/chalkboard/testing"
)

type fakeDB struct {
	mu      sync.Mutex
	pingErr error
	closed  bool
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (f *fakeDB) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeDB) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeDB) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

func (f *fakeDB) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int32
	fail  int
	block bool
	dbs   []*fakeDB
}

func (d *fakeDialer) Dial(ctx context.Context, code string) (tenant.DB, error) {
	atomic.AddInt32(&d.dials, 1)
	if d.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail > 0 {
		d.fail--
		return nil, errors.New("connection refused")
	}
	db := &fakeDB{}
	d.dbs = append(d.dbs, db)
	return db, nil
}

func (d *fakeDialer) dialCount() int {
	return int(atomic.LoadInt32(&d.dials))
}

func TestHandleCachesAndSharesDial(t *testing.T) {
	dialer := &fakeDialer{}
	m := tenant.NewManager(dialer, nil, nil, tenant.ManagerConfig{})
	defer m.Close()

	const workers = 16
	handles := make([]*tenant.Handle, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			h, err := m.Handle(context.Background(), "greenwood")
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			handles[i] = h
		}(i)
	}
	close(start)
	wg.Wait()

	if dialer.dialCount() != 1 {
		t.Fatalf("expected a single dial, got %d", dialer.dialCount())
	}
	for i := 1; i < workers; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("worker %d received a different handle", i)
		}
	}
	if handles[0].Code() != "GREENWOOD" {
		t.Fatalf("handle code = %q", handles[0].Code())
	}
	if !m.Cached("greenwood") {
		t.Fatal("expected handle to be cached")
	}
}

func TestHandleProbeFailureEvictsAndRedials(t *testing.T) {
	dialer := &fakeDialer{}
	m := tenant.NewManager(dialer, nil, nil, tenant.ManagerConfig{})
	defer m.Close()

	first, err := m.Handle(context.Background(), "OAKHILL")
	if err != nil {
		t.Fatalf("first handle: %v", err)
	}

	dialer.dbs[0].setPingErr(errors.New("connection reset"))

	second, err := m.Handle(context.Background(), "OAKHILL")
	if err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if second == first {
		t.Fatal("expected a fresh handle after probe failure")
	}
	if dialer.dialCount() != 2 {
		t.Fatalf("expected redial, got %d dials", dialer.dialCount())
	}
	if !dialer.dbs[0].isClosed() {
		t.Fatal("stale connection was not closed")
	}
}

func TestHandleRetriesOnce(t *testing.T) {
	dialer := &fakeDialer{fail: 1}
	m := tenant.NewManager(dialer, nil, nil, tenant.ManagerConfig{})
	defer m.Close()

	if _, err := m.Handle(context.Background(), "OAKHILL"); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if dialer.dialCount() != 2 {
		t.Fatalf("expected 2 dial attempts, got %d", dialer.dialCount())
	}
}

func TestHandleExhaustedRetriesReturnUnreachable(t *testing.T) {
	dialer := &fakeDialer{fail: 10}
	m := tenant.NewManager(dialer, nil, nil, tenant.ManagerConfig{DialTimeout: 200 * time.Millisecond})
	defer m.Close()

	_, err := m.Handle(context.Background(), "OAKHILL")
	if !errors.Is(err, shared.ErrTenantUnreachable) {
		t.Fatalf("expected ErrTenantUnreachable, got %v", err)
	}
}

func TestHandleWaiterTimeout(t *testing.T) {
	dialer := &fakeDialer{block: true}
	m := tenant.NewManager(dialer, nil, nil, tenant.ManagerConfig{DialTimeout: 2 * time.Second})
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Handle(ctx, "OAKHILL")
	if !errors.Is(err, shared.ErrTenantUnreachable) {
		t.Fatalf("expected ErrTenantUnreachable, got %v", err)
	}
}

func TestEvictClosesHandle(t *testing.T) {
	dialer := &fakeDialer{}
	m := tenant.NewManager(dialer, nil, nil, tenant.ManagerConfig{})
	defer m.Close()

	if _, err := m.Handle(context.Background(), "elmwood"); err != nil {
		t.Fatalf("handle: %v", err)
	}
	m.Evict("ELMWOOD")

	if m.Cached("elmwood") {
		t.Fatal("handle still cached after eviction")
	}
	if !dialer.dbs[0].isClosed() {
		t.Fatal("evicted connection was not closed")
	}
	if _, err := m.Handle(context.Background(), "elmwood"); err != nil {
		t.Fatalf("redial after eviction: %v", err)
	}
	if dialer.dialCount() != 2 {
		t.Fatalf("expected redial after eviction, got %d dials", dialer.dialCount())
	}
}

func TestHandleEmptyCode(t *testing.T) {
	m := tenant.NewManager(&fakeDialer{}, nil, nil, tenant.ManagerConfig{})
	defer m.Close()

	if _, err := m.Handle(context.Background(), "  "); !errors.Is(err, shared.ErrSchoolNotFound) {
		t.Fatalf("expected ErrSchoolNotFound, got %v", err)
	}
}
