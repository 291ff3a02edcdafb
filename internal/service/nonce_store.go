package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ethed-api/internal/domain"
)

// NonceStore guarda el nonce vigente de cada sesión. Consume es atómico:
// de dos consumos concurrentes del mismo nonce solo uno tiene éxito.
type NonceStore interface {
	Issue(ctx context.Context, sessionID string) (domain.Nonce, error)
	Peek(ctx context.Context, sessionID string) (domain.Nonce, error)
	Consume(ctx context.Context, sessionID, value string) error
}

var ErrNonceNotFound = errors.New("nonce not found")

const (
	defaultNonceTTL = 10 * time.Minute
	nonceLength     = 16
	nonceAlphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func generateNonce() (string, error) {
	max := big.NewInt(int64(len(nonceAlphabet)))
	var b strings.Builder
	b.Grow(nonceLength)
	for i := 0; i < nonceLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(nonceAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func sameNonce(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type nonceEntry struct {
	value     string
	issuedAt  time.Time
	expiresAt time.Time
}

type memoryNonceStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]nonceEntry
	now   func() time.Time
}

// NewMemoryNonceStore crea un NonceStore en memoria con expiración.
func NewMemoryNonceStore(ttl time.Duration) NonceStore {
	if ttl <= 0 {
		ttl = defaultNonceTTL
	}
	return &memoryNonceStore{
		ttl:   ttl,
		items: make(map[string]nonceEntry),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Issue reemplaza cualquier nonce previo de la sesión.
func (s *memoryNonceStore) Issue(_ context.Context, sessionID string) (domain.Nonce, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Nonce{}, ErrNonceNotFound
	}
	value, err := generateNonce()
	if err != nil {
		return domain.Nonce{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.items {
		if !now.Before(e.expiresAt) {
			delete(s.items, k)
		}
	}
	entry := nonceEntry{value: value, issuedAt: now, expiresAt: now.Add(s.ttl)}
	s.items[sessionID] = entry
	return domain.Nonce{Value: value, IssuedAt: entry.issuedAt, ExpiresAt: entry.expiresAt}, nil
}

func (s *memoryNonceStore) Peek(_ context.Context, sessionID string) (domain.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[sessionID]
	if !ok {
		return domain.Nonce{}, ErrNonceNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.items, sessionID)
		return domain.Nonce{}, ErrNonceNotFound
	}
	return domain.Nonce{Value: e.value, IssuedAt: e.issuedAt, ExpiresAt: e.expiresAt}, nil
}

func (s *memoryNonceStore) Consume(_ context.Context, sessionID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[sessionID]
	if !ok {
		return ErrNonceNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.items, sessionID)
		return ErrNonceNotFound
	}
	if !sameNonce(e.value, value) {
		return ErrNonceNotFound
	}
	delete(s.items, sessionID)
	return nil
}

// Compara y borra en un solo paso.
const redisNonceConsumeScript = `
local current = redis.call("GET", KEYS[1])
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`

type redisNonceClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisNonceStore struct {
	client redisNonceClient
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisNonceStore comparte los nonces entre réplicas del servicio.
func NewRedisNonceStore(client *redis.Client, ttl time.Duration) NonceStore {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = defaultNonceTTL
	}
	return &redisNonceStore{
		client: client,
		ttl:    ttl,
		prefix: "siwe:nonce:",
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *redisNonceStore) Issue(ctx context.Context, sessionID string) (domain.Nonce, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Nonce{}, ErrNonceNotFound
	}
	value, err := generateNonce()
	if err != nil {
		return domain.Nonce{}, err
	}
	now := s.now()
	if err := s.client.Set(ctx, s.prefix+sessionID, value, s.ttl).Err(); err != nil {
		return domain.Nonce{}, err
	}
	return domain.Nonce{Value: value, IssuedAt: now, ExpiresAt: now.Add(s.ttl)}, nil
}

func (s *redisNonceStore) Peek(ctx context.Context, sessionID string) (domain.Nonce, error) {
	if strings.TrimSpace(sessionID) == "" {
		return domain.Nonce{}, ErrNonceNotFound
	}
	value, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Nonce{}, ErrNonceNotFound
	}
	if err != nil {
		return domain.Nonce{}, err
	}
	return domain.Nonce{Value: value}, nil
}

func (s *redisNonceStore) Consume(ctx context.Context, sessionID, value string) error {
	if strings.TrimSpace(sessionID) == "" || value == "" {
		return ErrNonceNotFound
	}
	n, err := s.client.Eval(ctx, redisNonceConsumeScript, []string{s.prefix + sessionID}, value).Int()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrNonceNotFound
	}
	return nil
}
