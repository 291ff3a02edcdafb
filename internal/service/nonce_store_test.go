package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryNonceStore_IssuePeekConsume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryNonceStore(time.Minute)

	n, err := store.Issue(ctx, "sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(n.Value) != nonceLength {
		t.Fatalf("expected %d char nonce, got %q", nonceLength, n.Value)
	}
	if !n.ExpiresAt.After(n.IssuedAt) {
		t.Fatalf("expected expiry after issue time")
	}

	peeked, err := store.Peek(ctx, "sess-1")
	if err != nil || peeked.Value != n.Value {
		t.Fatalf("expected peek to return issued nonce, got %+v %v", peeked, err)
	}

	if err := store.Consume(ctx, "sess-1", "different"); !errors.Is(err, ErrNonceNotFound) {
		t.Fatalf("expected mismatch to be rejected, got %v", err)
	}
	if _, err := store.Peek(ctx, "sess-1"); err != nil {
		t.Fatalf("mismatched consume must not delete the nonce: %v", err)
	}
	if err := store.Consume(ctx, "sess-1", n.Value); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := store.Consume(ctx, "sess-1", n.Value); !errors.Is(err, ErrNonceNotFound) {
		t.Fatalf("expected second consume to fail, got %v", err)
	}
}

func TestMemoryNonceStore_ReissueReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryNonceStore(time.Minute)
	first, _ := store.Issue(ctx, "sess-1")
	second, _ := store.Issue(ctx, "sess-1")
	if first.Value == second.Value {
		t.Fatalf("expected a fresh nonce")
	}
	if err := store.Consume(ctx, "sess-1", first.Value); !errors.Is(err, ErrNonceNotFound) {
		t.Fatalf("expected superseded nonce to be rejected, got %v", err)
	}
}

func TestMemoryNonceStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewMemoryNonceStore(time.Minute).(*memoryNonceStore)
	store.now = func() time.Time { return now }

	n, _ := store.Issue(ctx, "sess-1")
	now = now.Add(time.Minute)
	if _, err := store.Peek(ctx, "sess-1"); !errors.Is(err, ErrNonceNotFound) {
		t.Fatalf("expected expired nonce on peek, got %v", err)
	}
	if err := store.Consume(ctx, "sess-1", n.Value); !errors.Is(err, ErrNonceNotFound) {
		t.Fatalf("expected expired nonce on consume, got %v", err)
	}
}

func TestMemoryNonceStore_ConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryNonceStore(time.Minute)
	n, _ := store.Issue(ctx, "sess-1")

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Consume(ctx, "sess-1", n.Value); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one successful consume, got %d", wins)
	}
}

func TestMemoryNonceStore_EmptySession(t *testing.T) {
	store := NewMemoryNonceStore(time.Minute)
	if _, err := store.Issue(context.Background(), " "); !errors.Is(err, ErrNonceNotFound) {
		t.Fatalf("expected empty session to be rejected, got %v", err)
	}
}

type mockRedisNonceClient struct {
	lastSetKey string
	lastSetVal interface{}
	lastSetTTL time.Duration
	lastKeys   []string
	lastArgs   []interface{}

	getVal  string
	getErr  error
	evalVal int64
	evalErr error
}

func (m *mockRedisNonceClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.lastSetKey = key
	m.lastSetVal = value
	m.lastSetTTL = expiration
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (m *mockRedisNonceClient) Get(ctx context.Context, key string) *redis.StringCmd {
	m.lastKeys = []string{key}
	cmd := redis.NewStringCmd(ctx)
	if m.getErr != nil {
		cmd.SetErr(m.getErr)
		return cmd
	}
	cmd.SetVal(m.getVal)
	return cmd
}

func (m *mockRedisNonceClient) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.evalErr != nil {
		cmd.SetErr(m.evalErr)
		return cmd
	}
	cmd.SetVal(m.evalVal)
	return cmd
}

func newTestRedisNonceStore(client redisNonceClient) *redisNonceStore {
	return &redisNonceStore{
		client: client,
		ttl:    10 * time.Minute,
		prefix: "siwe:nonce:",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func TestRedisNonceStore_Issue(t *testing.T) {
	mock := &mockRedisNonceClient{}
	store := newTestRedisNonceStore(mock)

	n, err := store.Issue(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if mock.lastSetKey != "siwe:nonce:sess-1" || mock.lastSetVal != n.Value {
		t.Fatalf("unexpected set: %q=%v", mock.lastSetKey, mock.lastSetVal)
	}
	if mock.lastSetTTL != 10*time.Minute {
		t.Fatalf("expected ttl 10m, got %v", mock.lastSetTTL)
	}
}

func TestRedisNonceStore_Peek(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		store := newTestRedisNonceStore(&mockRedisNonceClient{getErr: redis.Nil})
		if _, err := store.Peek(context.Background(), "sess-1"); !errors.Is(err, ErrNonceNotFound) {
			t.Fatalf("expected ErrNonceNotFound, got %v", err)
		}
	})

	t.Run("redis error surfaces", func(t *testing.T) {
		store := newTestRedisNonceStore(&mockRedisNonceClient{getErr: errors.New("redis down")})
		_, err := store.Peek(context.Background(), "sess-1")
		if err == nil || errors.Is(err, ErrNonceNotFound) {
			t.Fatalf("expected dependency error, got %v", err)
		}
	})

	t.Run("found", func(t *testing.T) {
		store := newTestRedisNonceStore(&mockRedisNonceClient{getVal: "abc123"})
		n, err := store.Peek(context.Background(), "sess-1")
		if err != nil || n.Value != "abc123" {
			t.Fatalf("unexpected peek %+v %v", n, err)
		}
	})
}

func TestRedisNonceStore_Consume(t *testing.T) {
	t.Run("compare and delete wins", func(t *testing.T) {
		mock := &mockRedisNonceClient{evalVal: 1}
		store := newTestRedisNonceStore(mock)
		if err := store.Consume(context.Background(), "sess-1", "abc123"); err != nil {
			t.Fatalf("consume: %v", err)
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "siwe:nonce:sess-1" {
			t.Fatalf("unexpected keys %+v", mock.lastKeys)
		}
		if len(mock.lastArgs) != 1 || mock.lastArgs[0] != "abc123" {
			t.Fatalf("unexpected args %+v", mock.lastArgs)
		}
	})

	t.Run("already consumed", func(t *testing.T) {
		store := newTestRedisNonceStore(&mockRedisNonceClient{evalVal: 0})
		if err := store.Consume(context.Background(), "sess-1", "abc123"); !errors.Is(err, ErrNonceNotFound) {
			t.Fatalf("expected ErrNonceNotFound, got %v", err)
		}
	})

	t.Run("empty value", func(t *testing.T) {
		mock := &mockRedisNonceClient{evalVal: 1}
		store := newTestRedisNonceStore(mock)
		if err := store.Consume(context.Background(), "sess-1", ""); !errors.Is(err, ErrNonceNotFound) {
			t.Fatalf("expected ErrNonceNotFound, got %v", err)
		}
		if mock.lastKeys != nil {
			t.Fatalf("expected no redis call")
		}
	})
}
