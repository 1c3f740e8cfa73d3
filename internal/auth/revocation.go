package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker remembers signed-out token IDs until the tokens would have
// expired anyway. After that the signature check rejects them on its own,
// so entries never need to outlive ttl.
//
// It also keeps a per-user cutoff: after a password change every token the
// user was issued before the cutoff is rejected.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// RevokeOnce revokes tokenID and reports whether this call did it.
	// Exactly one of several concurrent callers gets true.
	RevokeOnce(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)

	RevokeSessions(ctx context.Context, userID string, before time.Time, ttl time.Duration) error
	SessionsRevokedAt(ctx context.Context, userID string) (time.Time, bool, error)
}

// RedisRevoker stores one "revoked:<jti>" key per signed-out token and lets
// Redis expire it. Use it whenever more than one server instance shares
// sessions.
type RedisRevoker struct {
	rdb *redis.Client
}

var _ Revoker = (*RedisRevoker)(nil)

// NewRedisClient connects to addr and pings it so a bad address fails at
// startup rather than on the first sign-out.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("auth: connecting to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func NewRedisRevoker(rdb *redis.Client) *RedisRevoker {
	return &RedisRevoker{rdb: rdb}
}

func revokedKey(tokenID string) string {
	return "revoked:" + tokenID
}

func sessionsKey(userID string) string {
	return "revoked_sessions:" + userID
}

func (r *RedisRevoker) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, revokedKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoking token: %w", err)
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("auth: checking revocation: %w", err)
	}
	return n > 0, nil
}

// RevokeOnce relies on SET NX so the claim is atomic across instances.
func (r *RedisRevoker) RevokeOnce(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	ok, err := r.rdb.SetNX(ctx, revokedKey(tokenID), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("auth: revoking token: %w", err)
	}
	return ok, nil
}

func (r *RedisRevoker) RevokeSessions(ctx context.Context, userID string, before time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, sessionsKey(userID), before.UnixNano(), ttl).Err(); err != nil {
		return fmt.Errorf("auth: revoking sessions: %w", err)
	}
	return nil
}

func (r *RedisRevoker) SessionsRevokedAt(ctx context.Context, userID string) (time.Time, bool, error) {
	ns, err := r.rdb.Get(ctx, sessionsKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("auth: checking session cutoff: %w", err)
	}
	return time.Unix(0, ns), true, nil
}

// MemoryRevoker keeps revoked IDs in process memory. Good enough for a
// single instance; revocations are lost on restart.
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time // jti → expiry
	cutoffs map[string]cutoff    // userID → cutoff
	now     func() time.Time
}

type cutoff struct {
	before  time.Time
	expires time.Time
}

var _ Revoker = (*MemoryRevoker)(nil)

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{
		revoked: make(map[string]time.Time),
		cutoffs: make(map[string]cutoff),
		now:     time.Now,
	}
}

func (m *MemoryRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()
	m.revoked[tokenID] = m.now().Add(ttl)
	return nil
}

func (m *MemoryRevoker) RevokeOnce(_ context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()
	if _, taken := m.revoked[tokenID]; taken {
		return false, nil
	}
	m.revoked[tokenID] = m.now().Add(ttl)
	return true, nil
}

func (m *MemoryRevoker) RevokeSessions(_ context.Context, userID string, before time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()
	m.cutoffs[userID] = cutoff{before: before, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryRevoker) SessionsRevokedAt(_ context.Context, userID string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.cutoffs[userID]
	if !ok {
		return time.Time{}, false, nil
	}
	if !m.now().Before(c.expires) {
		delete(m.cutoffs, userID)
		return time.Time{}, false, nil
	}
	return c.before, true, nil
}

// prune drops entries that have outlived their tokens. Callers hold mu.
func (m *MemoryRevoker) prune() {
	now := m.now()
	for id, exp := range m.revoked {
		if !now.Before(exp) {
			delete(m.revoked, id)
		}
	}
	for id, c := range m.cutoffs {
		if !now.Before(c.expires) {
			delete(m.cutoffs, id)
		}
	}
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
