package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// MaxScan reads the current maximum sequence in use for a namespace
// directly from the tenant store.
type MaxScan func(ctx context.Context) (int64, error)

// reconcileScript bumps the counter to the given floor if it is behind.
var reconcileScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local floor = tonumber(ARGV[1])
if floor > cur then
  redis.call('SET', KEYS[1], floor)
end
return cur
`)

// SequenceAllocator hands out per-(school, role) sequence numbers. It keeps
// an atomic Redis counter per namespace, reconciled from the store maximum
// on first use, and degrades to a plain store scan when Redis is absent or
// unreachable. The counter is an accelerator only: the unique constraint on
// issued identifiers remains the source of truth.
type SequenceAllocator struct {
	client *redis.Client
	logger *slog.Logger
}

// NewSequenceAllocator constructs an allocator. A nil client selects the
// store-scan-only mode.
func NewSequenceAllocator(client *redis.Client, logger *slog.Logger) *SequenceAllocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SequenceAllocator{client: client, logger: logger}
}

func sequenceKey(code, role string) string {
	return fmt.Sprintf("seq:%s:%s", strings.ToUpper(code), strings.ToLower(role))
}

// Next proposes the next sequence number for the namespace.
func (a *SequenceAllocator) Next(ctx context.Context, code, role string, scan MaxScan) (int64, error) {
	if a.client == nil {
		return a.scanNext(ctx, scan)
	}
	key := sequenceKey(code, role)

	exists, err := a.client.Exists(ctx, key).Result()
	if err != nil {
		a.logger.Warn("identity: sequence redis unavailable, falling back to scan",
			slog.String("key", key), slog.Any("error", err))
		return a.scanNext(ctx, scan)
	}
	if exists == 0 {
		max, err := scan(ctx)
		if err != nil {
			return 0, err
		}
		// SetNX so a concurrent initializer wins harmlessly.
		if err := a.client.SetNX(ctx, key, max, 0).Err(); err != nil {
			a.logger.Warn("identity: sequence init failed",
				slog.String("key", key), slog.Any("error", err))
			return max + 1, nil
		}
	}

	n, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		a.logger.Warn("identity: sequence incr failed, falling back to scan",
			slog.String("key", key), slog.Any("error", err))
		return a.scanNext(ctx, scan)
	}
	return n, nil
}

// Reconcile raises the counter to at least floor. Called after a duplicate
// key insert showed the counter was behind the identifiers actually issued.
func (a *SequenceAllocator) Reconcile(ctx context.Context, code, role string, floor int64) {
	if a.client == nil {
		return
	}
	key := sequenceKey(code, role)
	if err := reconcileScript.Run(ctx, a.client, []string{key}, floor).Err(); err != nil {
		a.logger.Warn("identity: sequence reconcile failed",
			slog.String("key", key), slog.Any("error", err))
	}
}

func (a *SequenceAllocator) scanNext(ctx context.Context, scan MaxScan) (int64, error) {
	max, err := scan(ctx)
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}
