package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"ethed-api/internal/chain"
	"ethed-api/internal/domain"
	"ethed-api/internal/repository"
)

// fakeDB imita las restricciones únicas del esquema real.
type fakeDB struct {
	mu          sync.Mutex
	users       map[string]domain.User
	wallets     map[string]domain.WalletAddress
	credentials map[string]domain.Credential
	completions map[string]domain.AchievementParams

	createCredentialErr error
	updateENSErr        error
	// beforeCredentialCreate corre sin el lock, justo antes de insertar.
	beforeCredentialCreate func()
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		users:       make(map[string]domain.User),
		wallets:     make(map[string]domain.WalletAddress),
		credentials: make(map[string]domain.Credential),
		completions: make(map[string]domain.AchievementParams),
	}
}

func (db *fakeDB) addWallet(w domain.WalletAddress) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.users[w.UserID]; !ok {
		db.users[w.UserID] = domain.User{ID: w.UserID, CreatedAt: w.CreatedAt}
	}
	db.wallets[w.ID] = w
}

func (db *fakeDB) walletConflict(w domain.WalletAddress) bool {
	for _, existing := range db.wallets {
		if existing.Address == w.Address {
			return true
		}
		if w.ENSName != nil && existing.Name() == *w.ENSName {
			return true
		}
	}
	return false
}

type fakeUserRepo struct{ db *fakeDB }

func (r fakeUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (r fakeUserRepo) CreateWithWallet(_ context.Context, user domain.User, wallet domain.WalletAddress) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.walletConflict(wallet) {
		return repository.ErrConflict
	}
	r.db.users[user.ID] = user
	r.db.wallets[wallet.ID] = wallet
	return nil
}

type fakeWalletRepo struct{ db *fakeDB }

func (r fakeWalletRepo) Create(_ context.Context, wallet domain.WalletAddress) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.walletConflict(wallet) {
		return repository.ErrConflict
	}
	r.db.wallets[wallet.ID] = wallet
	return nil
}

func (r fakeWalletRepo) GetByAddress(_ context.Context, address string) (domain.WalletAddress, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, w := range r.db.wallets {
		if w.Address == address {
			return w, nil
		}
	}
	return domain.WalletAddress{}, repository.ErrNotFound
}

func (r fakeWalletRepo) ListByUserID(_ context.Context, userID string) ([]domain.WalletAddress, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.WalletAddress
	for _, w := range r.db.wallets {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r fakeWalletRepo) ExistsENSName(_ context.Context, fullName string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, w := range r.db.wallets {
		if w.Name() == fullName {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeWalletRepo) UpdateENSName(_ context.Context, walletID, fullName string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.updateENSErr != nil {
		return r.db.updateENSErr
	}
	w, ok := r.db.wallets[walletID]
	if !ok {
		return repository.ErrNotFound
	}
	for id, other := range r.db.wallets {
		if id != walletID && other.Name() == fullName {
			return repository.ErrConflict
		}
	}
	name := fullName
	w.ENSName = &name
	w.ENSAvatar = nil
	r.db.wallets[walletID] = w
	return nil
}

func (r fakeWalletRepo) UpdateAvatar(_ context.Context, walletID, avatar string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	w, ok := r.db.wallets[walletID]
	if !ok {
		return repository.ErrNotFound
	}
	w.ENSAvatar = &avatar
	r.db.wallets[walletID] = w
	return nil
}

type fakeCredentialRepo struct{ db *fakeDB }

func (r fakeCredentialRepo) Create(_ context.Context, c domain.Credential) error {
	if hook := r.db.beforeCredentialCreate; hook != nil {
		hook()
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.createCredentialErr != nil {
		return r.db.createCredentialErr
	}
	for _, existing := range r.db.credentials {
		if existing.UserID == c.UserID && existing.AchievementKind == c.AchievementKind {
			return repository.ErrConflict
		}
	}
	r.db.credentials[c.ID] = c
	return nil
}

func (r fakeCredentialRepo) GetByID(_ context.Context, id string) (domain.Credential, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.credentials[id]
	if !ok {
		return domain.Credential{}, repository.ErrNotFound
	}
	return c, nil
}

func (r fakeCredentialRepo) FindByAchievement(ctx context.Context, userID, kind string) (domain.Credential, error) {
	// Como pgx, una consulta con el contexto cancelado falla.
	if err := ctx.Err(); err != nil {
		return domain.Credential{}, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, c := range r.db.credentials {
		if c.UserID == userID && c.AchievementKind == kind {
			return c, nil
		}
	}
	return domain.Credential{}, repository.ErrNotFound
}

func (r fakeCredentialRepo) ListByUserID(_ context.Context, userID string) ([]domain.Credential, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.Credential
	for _, c := range r.db.credentials {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MintedAt.After(out[j].MintedAt) })
	return out, nil
}

func (r fakeCredentialRepo) SetTransactionHash(_ context.Context, id, txHash string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c, ok := r.db.credentials[id]
	if !ok {
		return repository.ErrNotFound
	}
	if c.TransactionHash != nil && *c.TransactionHash != txHash {
		return repository.ErrConflict
	}
	c.TransactionHash = &txHash
	r.db.credentials[id] = c
	return nil
}

type fakeCompletionRepo struct{ db *fakeDB }

func (r fakeCompletionRepo) GetCourseCompletion(_ context.Context, userID, courseID string) (domain.AchievementParams, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	p, ok := r.db.completions[userID+"|"+courseID]
	if !ok {
		return domain.AchievementParams{}, repository.ErrNotFound
	}
	return p, nil
}

// fakeChain cuenta llamadas; los errores se inyectan por campo.
type fakeChain struct {
	mints         int32
	registrations int32
	mintErr       error
	registerErr   error
	mintDelay     time.Duration
	lastRecipient atomic.Value
	lastURI       atomic.Value
	lastOwner     atomic.Value
}

func (c *fakeChain) SubmitMint(ctx context.Context, recipient, metadataURI string) (chain.MintResult, error) {
	n := atomic.AddInt32(&c.mints, 1)
	c.lastRecipient.Store(recipient)
	c.lastURI.Store(metadataURI)
	if c.mintDelay > 0 {
		select {
		case <-time.After(c.mintDelay):
		case <-ctx.Done():
			return chain.MintResult{}, ctx.Err()
		}
	}
	if c.mintErr != nil {
		return chain.MintResult{}, c.mintErr
	}
	return chain.MintResult{
		TokenID: strconv.Itoa(100 + int(n)),
		TxHash:  "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
	}, nil
}

func (c *fakeChain) SubmitNameRegistration(_ context.Context, label, owner string) (string, error) {
	atomic.AddInt32(&c.registrations, 1)
	c.lastOwner.Store(owner)
	if c.registerErr != nil {
		return "", c.registerErr
	}
	return "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", nil
}

func (c *fakeChain) mintCount() int {
	return int(atomic.LoadInt32(&c.mints))
}

type fakePublisher struct {
	mu    sync.Mutex
	calls int
	uri   string
	err   error
	last  domain.CredentialMetadata
}

func (p *fakePublisher) Publish(_ context.Context, meta domain.CredentialMetadata) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.last = meta
	if p.err != nil {
		return "", p.err
	}
	if p.uri == "" {
		return "ipfs://bafytest", nil
	}
	return p.uri, nil
}

type recordedEvent struct {
	key     string
	payload any
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (e *fakeEvents) Publish(_ context.Context, routingKey string, payload any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{key: routingKey, payload: payload})
	return e.err
}

func (e *fakeEvents) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

type fakeAvatars struct {
	url   string
	err   error
	delay time.Duration
}

func (a fakeAvatars) ResolveAvatar(ctx context.Context, _ string) (string, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return a.url, a.err
}

var errBoom = errors.New("boom")
