package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"ethed-api/internal/domain"
	"ethed-api/internal/events"
	"ethed-api/internal/repository"
)

const aliceAddress = "0x1111111111111111111111111111111111111111"

type registryFixture struct {
	db       *fakeDB
	chain    *fakeChain
	events   *fakeEvents
	registry *IdentityRegistry
}

func newRegistryFixture(avatars fakeAvatars) registryFixture {
	db := newFakeDB()
	fc := &fakeChain{}
	ev := &fakeEvents{}
	reg := NewIdentityRegistry(nil, fakeWalletRepo{db}, fc, avatars, ev, nil, RegistryConfig{
		RootDomain:    "ethed.eth",
		BrandWord:     "EthEd",
		ChainID:       testChainID,
		AvatarTimeout: 50 * time.Millisecond,
	})
	return registryFixture{db: db, chain: fc, events: ev, registry: reg}
}

func (f registryFixture) seedWallet(userID, address string) domain.WalletAddress {
	w := domain.WalletAddress{
		ID:        "w-" + userID,
		UserID:    userID,
		Address:   address,
		ChainID:   testChainID,
		IsPrimary: true,
		CreatedAt: time.Now().UTC(),
	}
	f.db.addWallet(w)
	return w
}

func TestIdentityRegistry_NormalizeLabel(t *testing.T) {
	reg := newRegistryFixture(fakeAvatars{}).registry

	tests := []struct {
		label  string
		want   string
		reason string
	}{
		{label: "ab", reason: "between 3 and 20"},
		{label: "admin", reason: "reserved"},
		{label: "alice-dev", want: "alice-dev"},
		{label: "  Alice-Dev ", want: "alice-dev"},
		{label: strings.Repeat("a", 21), reason: "between 3 and 20"},
		{label: "alice_dev", reason: "only lowercase letters"},
		{label: "-alice", reason: "start or end"},
		{label: "alice-", reason: "start or end"},
		{label: "al--ice", reason: "consecutive"},
		{label: "ethed", reason: "reserved"},
		{label: "eth", reason: "reserved"},
		{label: "bob42", want: "bob42"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := reg.NormalizeLabel(tt.label)
			if tt.reason != "" {
				if !errors.Is(err, ErrInvalidLabel) {
					t.Fatalf("expected ErrInvalidLabel, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.reason) {
					t.Fatalf("expected reason %q, got %q", tt.reason, err.Error())
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("expected %q, got %q (%v)", tt.want, got, err)
			}
		})
	}
}

func TestIdentityRegistry_RegisterName_UpdatesPrimaryWallet(t *testing.T) {
	f := newRegistryFixture(fakeAvatars{url: "https://metadata.ens.domains/mainnet/avatar/alice-dev.ethed.eth"})
	seeded := f.seedWallet("u1", aliceAddress)

	res, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u1", Label: "Alice-Dev"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.FullName != "alice-dev.ethed.eth" {
		t.Fatalf("unexpected full name %q", res.FullName)
	}
	if res.Wallet.ID != seeded.ID || res.Wallet.Name() != "alice-dev.ethed.eth" {
		t.Fatalf("expected existing wallet to be updated, got %+v", res.Wallet)
	}
	if res.Wallet.ENSAvatar == nil {
		t.Fatalf("expected avatar backfill")
	}
	if owner, _ := f.chain.lastOwner.Load().(string); owner != aliceAddress {
		t.Fatalf("expected primary wallet as owner, got %q", owner)
	}
	stored := f.db.wallets[seeded.ID]
	if stored.Name() != "alice-dev.ethed.eth" || stored.ENSAvatar == nil {
		t.Fatalf("expected persisted name and avatar, got %+v", stored)
	}
	if f.events.count() != 1 || f.events.events[0].key != events.RoutingNameRegistered {
		t.Fatalf("expected name.registered event, got %+v", f.events.events)
	}
}

func TestIdentityRegistry_RegisterName_CreatesFirstWallet(t *testing.T) {
	f := newRegistryFixture(fakeAvatars{})

	res, err := f.registry.RegisterName(context.Background(), RegisterNameInput{
		UserID:          "u2",
		Label:           "bob42",
		PrimaryAddress:  "0x" + strings.ToUpper(aliceAddress[2:]),
		VerifiedAddress: aliceAddress,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !res.Wallet.IsPrimary || res.Wallet.UserID != "u2" || res.Wallet.Address != aliceAddress {
		t.Fatalf("unexpected wallet %+v", res.Wallet)
	}
	if res.Wallet.ENSAvatar != nil {
		t.Fatalf("expected no avatar when resolver finds none")
	}
}

func TestIdentityRegistry_RegisterName_Rejections(t *testing.T) {
	t.Run("invalid label never calls chain", func(t *testing.T) {
		f := newRegistryFixture(fakeAvatars{})
		f.seedWallet("u1", aliceAddress)
		_, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u1", Label: "ab"})
		if !errors.Is(err, ErrInvalidLabel) {
			t.Fatalf("expected ErrInvalidLabel, got %v", err)
		}
		if f.chain.registrations != 0 {
			t.Fatalf("expected no chain call")
		}
	})

	t.Run("second registration of the same label", func(t *testing.T) {
		f := newRegistryFixture(fakeAvatars{})
		f.seedWallet("u1", aliceAddress)
		f.seedWallet("u2", "0x2222222222222222222222222222222222222222")
		if _, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u1", Label: "alice-dev"}); err != nil {
			t.Fatalf("first register: %v", err)
		}
		_, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u2", Label: "alice-dev"})
		if !errors.Is(err, ErrNameTaken) {
			t.Fatalf("expected ErrNameTaken, got %v", err)
		}
		if f.db.wallets["w-u1"].Name() != "alice-dev.ethed.eth" {
			t.Fatalf("first owner must keep the name")
		}
	})

	t.Run("no address", func(t *testing.T) {
		f := newRegistryFixture(fakeAvatars{})
		_, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u1", Label: "alice-dev"})
		if !errors.Is(err, ErrMissingAddress) {
			t.Fatalf("expected ErrMissingAddress, got %v", err)
		}
	})

	t.Run("invalid primary address", func(t *testing.T) {
		f := newRegistryFixture(fakeAvatars{})
		_, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u1", Label: "alice-dev", PrimaryAddress: "0x123"})
		if !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress, got %v", err)
		}
	})

	t.Run("address owned by another account", func(t *testing.T) {
		f := newRegistryFixture(fakeAvatars{})
		f.seedWallet("u1", aliceAddress)
		_, err := f.registry.RegisterName(context.Background(), RegisterNameInput{
			UserID:          "u9",
			Label:           "mallory",
			PrimaryAddress:  aliceAddress,
			VerifiedAddress: aliceAddress,
		})
		if !errors.Is(err, ErrAddressInUse) {
			t.Fatalf("expected ErrAddressInUse, got %v", err)
		}
		if f.chain.registrations != 0 {
			t.Fatalf("expected no chain call, got %d", f.chain.registrations)
		}
	})

	t.Run("unverified address is never used", func(t *testing.T) {
		f := newRegistryFixture(fakeAvatars{})
		f.seedWallet("u1", aliceAddress)
		_, err := f.registry.RegisterName(context.Background(), RegisterNameInput{
			UserID:          "u1",
			Label:           "alice-dev",
			PrimaryAddress:  "0x2222222222222222222222222222222222222222",
			VerifiedAddress: aliceAddress,
		})
		if !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress, got %v", err)
		}
		if f.chain.registrations != 0 {
			t.Fatalf("expected no chain call, got %d", f.chain.registrations)
		}
		if f.db.wallets["w-u1"].ENSName != nil {
			t.Fatalf("expected no name persisted")
		}
	})

	t.Run("other account address without a session", func(t *testing.T) {
		f := newRegistryFixture(fakeAvatars{})
		f.seedWallet("u1", aliceAddress)
		_, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u9", Label: "mallory", PrimaryAddress: aliceAddress})
		if !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("expected ErrInvalidAddress, got %v", err)
		}
		if f.chain.registrations != 0 || len(f.db.wallets) != 1 {
			t.Fatalf("expected no chain call and no new wallet")
		}
	})

	t.Run("chain failure persists nothing", func(t *testing.T) {
		f := newRegistryFixture(fakeAvatars{})
		f.chain.registerErr = errBoom
		f.seedWallet("u1", aliceAddress)
		_, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u1", Label: "alice-dev"})
		if !errors.Is(err, ErrRegistrationUnavailable) {
			t.Fatalf("expected ErrRegistrationUnavailable, got %v", err)
		}
		if f.db.wallets["w-u1"].ENSName != nil {
			t.Fatalf("expected no name persisted")
		}
	})

	t.Run("write conflict maps to name taken", func(t *testing.T) {
		f := newRegistryFixture(fakeAvatars{})
		f.seedWallet("u1", aliceAddress)
		f.db.updateENSErr = repository.ErrConflict
		_, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u1", Label: "alice-dev"})
		if !errors.Is(err, ErrNameTaken) {
			t.Fatalf("expected ErrNameTaken, got %v", err)
		}
	})
}

func TestIdentityRegistry_AvatarFailureIsIgnored(t *testing.T) {
	tests := []struct {
		name    string
		avatars fakeAvatars
	}{
		{name: "resolver error", avatars: fakeAvatars{err: errBoom}},
		{name: "resolver timeout", avatars: fakeAvatars{url: "https://late", delay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRegistryFixture(tt.avatars)
			f.seedWallet("u1", aliceAddress)
			start := time.Now()
			res, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u1", Label: "alice-dev"})
			if err != nil {
				t.Fatalf("avatar problems must not fail registration: %v", err)
			}
			if res.Wallet.ENSAvatar != nil {
				t.Fatalf("expected no avatar")
			}
			if time.Since(start) > 500*time.Millisecond {
				t.Fatalf("avatar lookup was not bounded")
			}
		})
	}
}

func TestIdentityRegistry_ConcurrentSameLabelSingleWinner(t *testing.T) {
	f := newRegistryFixture(fakeAvatars{})
	const users = 8
	for i := 0; i < users; i++ {
		f.seedWallet(fmt.Sprintf("u%d", i), "0x"+strings.Repeat(strconv.Itoa(i), 40))
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		taken int
	)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: id, Label: "alice-dev"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrNameTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("u%d", i))
	}
	wg.Wait()
	if wins != 1 || taken != users-1 {
		t.Fatalf("expected one winner, got %d wins %d taken", wins, taken)
	}
}

func TestIdentityRegistry_CheckAvailability(t *testing.T) {
	f := newRegistryFixture(fakeAvatars{})
	f.seedWallet("u1", aliceAddress)

	name, ok, err := f.registry.CheckAvailability(context.Background(), "alice-dev")
	if err != nil || !ok || name != "alice-dev.ethed.eth" {
		t.Fatalf("expected available, got %q %v %v", name, ok, err)
	}
	if _, err := f.registry.RegisterName(context.Background(), RegisterNameInput{UserID: "u1", Label: "alice-dev"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok, _ := f.registry.CheckAvailability(context.Background(), "ALICE-DEV"); ok {
		t.Fatalf("expected name to be taken")
	}
	if _, _, err := f.registry.CheckAvailability(context.Background(), "admin"); !errors.Is(err, ErrInvalidLabel) {
		t.Fatalf("expected ErrInvalidLabel, got %v", err)
	}
}
