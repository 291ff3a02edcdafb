package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ethed-api/internal/domain"
	"ethed-api/internal/repository"
)

// AccountService vincula una identidad verificada con su cuenta de plataforma.
type AccountService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	wallets repository.WalletRepository
	now     func() time.Time
}

func NewAccountService(logger *zap.Logger, users repository.UserRepository, wallets repository.WalletRepository) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		logger:  logger,
		users:   users,
		wallets: wallets,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var ErrAccountNotFound = errors.New("account not found")

// ResolveIdentity devuelve la cuenta dueña de la dirección verificada. La
// primera vez crea el usuario junto con su wallet primaria.
func (s *AccountService) ResolveIdentity(ctx context.Context, identity domain.VerifiedIdentity) (domain.User, domain.WalletAddress, error) {
	user, wallet, err := s.lookup(ctx, identity.Address)
	if err == nil {
		return user, wallet, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return domain.User{}, domain.WalletAddress{}, err
	}

	now := s.now()
	user = domain.User{ID: uuid.NewString(), CreatedAt: now}
	wallet = domain.WalletAddress{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Address:   identity.Address,
		ChainID:   identity.ChainID,
		IsPrimary: true,
		CreatedAt: now,
	}
	err = s.users.CreateWithWallet(ctx, user, wallet)
	if errors.Is(err, repository.ErrConflict) {
		// Otro login de la misma wallet ganó la carrera.
		return s.lookup(ctx, identity.Address)
	}
	if err != nil {
		return domain.User{}, domain.WalletAddress{}, fmt.Errorf("create account: %w", err)
	}
	s.logger.Info("account created", zap.String("user_id", user.ID), zap.String("address", wallet.Address))
	return user, wallet, nil
}

// Wallets lista las wallets del usuario, la primaria primero.
func (s *AccountService) Wallets(ctx context.Context, userID string) ([]domain.WalletAddress, error) {
	return s.wallets.ListByUserID(ctx, userID)
}

func (s *AccountService) lookup(ctx context.Context, address string) (domain.User, domain.WalletAddress, error) {
	wallet, err := s.wallets.GetByAddress(ctx, address)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, domain.WalletAddress{}, ErrAccountNotFound
	}
	if err != nil {
		return domain.User{}, domain.WalletAddress{}, fmt.Errorf("get wallet: %w", err)
	}
	user, err := s.users.GetByID(ctx, wallet.UserID)
	if err != nil {
		return domain.User{}, domain.WalletAddress{}, fmt.Errorf("get user: %w", err)
	}
	return user, wallet, nil
}

// primaryWallet elige la wallet primaria o, si ninguna lo es, la más antigua.
func primaryWallet(wallets []domain.WalletAddress) (domain.WalletAddress, bool) {
	if len(wallets) == 0 {
		return domain.WalletAddress{}, false
	}
	for _, w := range wallets {
		if w.IsPrimary {
			return w, true
		}
	}
	return wallets[0], true
}
