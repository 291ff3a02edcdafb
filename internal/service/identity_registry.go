package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ethed-api/internal/avatar"
	"ethed-api/internal/chain"
	"ethed-api/internal/domain"
	"ethed-api/internal/events"
	"ethed-api/internal/metrics"
	"ethed-api/internal/repository"
	"ethed-api/internal/siwe"
)

const (
	minLabelLength = 3
	maxLabelLength = 20
)

var defaultReservedLabels = []string{
	"admin", "administrator", "api", "app", "www", "mail",
	"support", "help", "root", "system", "ens", "eth",
}

var (
	ErrInvalidLabel            = errors.New("invalid label")
	ErrNameTaken               = errors.New("name already taken")
	ErrMissingAddress          = errors.New("no wallet address to own the name")
	ErrInvalidAddress          = errors.New("invalid wallet address")
	ErrAddressInUse            = errors.New("address is linked to another account")
	ErrRegistrationUnavailable = errors.New("name registration unavailable")
)

// RegistryConfig define el dominio raíz y las palabras reservadas extra.
type RegistryConfig struct {
	RootDomain    string
	BrandWord     string
	ChainID       int64
	AvatarTimeout time.Duration
}

// IdentityRegistry asigna subdominios bajo el dominio raíz de la plataforma.
type IdentityRegistry struct {
	logger   *zap.Logger
	wallets  repository.WalletRepository
	chain    chain.Client
	avatars  avatar.Resolver
	events   events.Publisher
	metrics  *metrics.Metrics
	cfg      RegistryConfig
	reserved map[string]struct{}
	now      func() time.Time
}

func NewIdentityRegistry(
	logger *zap.Logger,
	wallets repository.WalletRepository,
	chainClient chain.Client,
	avatars avatar.Resolver,
	publisher events.Publisher,
	m *metrics.Metrics,
	cfg RegistryConfig,
) *IdentityRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NewNoopPublisher()
	}
	if cfg.AvatarTimeout <= 0 {
		cfg.AvatarTimeout = 2 * time.Second
	}
	cfg.RootDomain = strings.ToLower(strings.Trim(strings.TrimSpace(cfg.RootDomain), "."))

	reserved := make(map[string]struct{}, len(defaultReservedLabels)+1)
	for _, w := range defaultReservedLabels {
		reserved[w] = struct{}{}
	}
	if brand := strings.ToLower(strings.TrimSpace(cfg.BrandWord)); brand != "" {
		reserved[brand] = struct{}{}
	}

	return &IdentityRegistry{
		logger:   logger,
		wallets:  wallets,
		chain:    chainClient,
		avatars:  avatars,
		events:   publisher,
		metrics:  m,
		cfg:      cfg,
		reserved: reserved,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RegisterNameInput struct {
	UserID         string
	Label          string
	PrimaryAddress string
	// VerifiedAddress es la dirección autenticada por SIWE en la sesión.
	VerifiedAddress string
}

type RegisterNameResult struct {
	FullName string               `json:"full_name"`
	TxHash   string               `json:"tx_hash"`
	Wallet   domain.WalletAddress `json:"wallet"`
}

// NormalizeLabel aplica las reglas de etiqueta en orden y devuelve la forma
// canónica. El error envuelve ErrInvalidLabel con el motivo.
func (r *IdentityRegistry) NormalizeLabel(label string) (string, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	if n := utf8.RuneCountInString(label); n < minLabelLength || n > maxLabelLength {
		return "", fmt.Errorf("%w: must be between %d and %d characters", ErrInvalidLabel, minLabelLength, maxLabelLength)
	}
	for _, c := range label {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return "", fmt.Errorf("%w: only lowercase letters, digits and hyphens are allowed", ErrInvalidLabel)
		}
	}
	if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
		return "", fmt.Errorf("%w: cannot start or end with a hyphen", ErrInvalidLabel)
	}
	if strings.Contains(label, "--") {
		return "", fmt.Errorf("%w: cannot contain consecutive hyphens", ErrInvalidLabel)
	}
	if _, ok := r.reserved[label]; ok {
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidLabel, label)
	}
	return label, nil
}

func (r *IdentityRegistry) fullName(label string) string {
	return label + "." + r.cfg.RootDomain
}

// CheckAvailability valida la etiqueta y consulta si el nombre está libre.
func (r *IdentityRegistry) CheckAvailability(ctx context.Context, label string) (string, bool, error) {
	label, err := r.NormalizeLabel(label)
	if err != nil {
		return "", false, err
	}
	name := r.fullName(label)
	exists, err := r.wallets.ExistsENSName(ctx, name)
	if err != nil {
		return "", false, fmt.Errorf("check name: %w", err)
	}
	return name, !exists, nil
}

// RegisterName registra label bajo el dominio raíz para el usuario. El
// pre-chequeo evita llamadas inútiles a la cadena; la unicidad real la
// garantiza el índice único sobre ens_name.
func (r *IdentityRegistry) RegisterName(ctx context.Context, in RegisterNameInput) (RegisterNameResult, error) {
	res, err := r.registerName(ctx, in)
	switch {
	case err == nil:
		r.metrics.RegistrationResult("success")
	case errors.Is(err, ErrInvalidLabel):
		r.metrics.RegistrationResult("invalid_label")
	case errors.Is(err, ErrNameTaken):
		r.metrics.RegistrationResult("name_taken")
	default:
		r.metrics.RegistrationResult("error")
	}
	return res, err
}

func (r *IdentityRegistry) registerName(ctx context.Context, in RegisterNameInput) (RegisterNameResult, error) {
	label, err := r.NormalizeLabel(in.Label)
	if err != nil {
		return RegisterNameResult{}, err
	}
	name := r.fullName(label)

	exists, err := r.wallets.ExistsENSName(ctx, name)
	if err != nil {
		return RegisterNameResult{}, fmt.Errorf("check name: %w", err)
	}
	if exists {
		return RegisterNameResult{}, ErrNameTaken
	}

	wallets, err := r.wallets.ListByUserID(ctx, in.UserID)
	if err != nil {
		return RegisterNameResult{}, fmt.Errorf("list wallets: %w", err)
	}
	target, hasTarget, owner, err := r.pickWallet(wallets, in.PrimaryAddress, in.VerifiedAddress)
	if err != nil {
		return RegisterNameResult{}, err
	}
	if !hasTarget {
		// La dirección no tiene fila del usuario: antes de tocar la cadena
		// hay que confirmar que no pertenece a otra cuenta.
		existing, err := r.wallets.GetByAddress(ctx, owner)
		switch {
		case err == nil && existing.UserID != in.UserID:
			return RegisterNameResult{}, ErrAddressInUse
		case err == nil:
			target, hasTarget = existing, true
		case !errors.Is(err, repository.ErrNotFound):
			return RegisterNameResult{}, fmt.Errorf("lookup address: %w", err)
		}
	}

	txHash, err := r.chain.SubmitNameRegistration(ctx, label, owner)
	if err != nil {
		r.logger.Error("name registration submit failed", zap.String("name", name), zap.Error(err))
		return RegisterNameResult{}, fmt.Errorf("%w: %v", ErrRegistrationUnavailable, err)
	}

	if hasTarget {
		err = r.wallets.UpdateENSName(ctx, target.ID, name)
		target.ENSName = &name
		target.ENSAvatar = nil
	} else {
		target = domain.WalletAddress{
			ID:        uuid.NewString(),
			UserID:    in.UserID,
			Address:   owner,
			ChainID:   r.cfg.ChainID,
			IsPrimary: len(wallets) == 0,
			ENSName:   &name,
			CreatedAt: r.now(),
		}
		err = r.wallets.Create(ctx, target)
		if errors.Is(err, repository.ErrConflict) {
			err = r.classifyCreateConflict(ctx, name)
		}
	}
	if errors.Is(err, repository.ErrConflict) {
		r.logger.Warn("name registration lost uniqueness race", zap.String("name", name), zap.String("tx_hash", txHash))
		return RegisterNameResult{}, ErrNameTaken
	}
	if err != nil {
		return RegisterNameResult{}, fmt.Errorf("persist name: %w", err)
	}

	if uri := r.resolveAvatar(ctx, name); uri != "" {
		if err := r.wallets.UpdateAvatar(ctx, target.ID, uri); err != nil {
			r.logger.Debug("avatar backfill failed", zap.String("name", name), zap.Error(err))
		} else {
			target.ENSAvatar = &uri
		}
	}

	if err := r.events.Publish(ctx, events.RoutingNameRegistered, events.NameRegistered{
		UserID:   in.UserID,
		FullName: name,
		Owner:    owner,
		TxHash:   txHash,
		At:       r.now(),
	}); err != nil {
		r.logger.Warn("name.registered event not published", zap.Error(err))
	}

	r.logger.Info("name registered", zap.String("user_id", in.UserID), zap.String("name", name), zap.String("tx_hash", txHash))
	return RegisterNameResult{FullName: name, TxHash: txHash, Wallet: target}, nil
}

// pickWallet decide qué fila recibe el nombre y qué dirección será dueña.
// Solo vale una wallet del usuario o la dirección verificada de la sesión;
// cualquier otra dirección es ErrInvalidAddress.
func (r *IdentityRegistry) pickWallet(wallets []domain.WalletAddress, requested, verified string) (domain.WalletAddress, bool, string, error) {
	if strings.TrimSpace(requested) == "" {
		if w, ok := primaryWallet(wallets); ok {
			return w, true, w.Address, nil
		}
		if strings.TrimSpace(verified) == "" {
			return domain.WalletAddress{}, false, "", ErrMissingAddress
		}
		requested = verified
	}
	addr, err := siwe.NormalizeAddress(requested)
	if err != nil {
		return domain.WalletAddress{}, false, "", ErrInvalidAddress
	}
	for _, w := range wallets {
		if w.Address == addr {
			return w, true, addr, nil
		}
	}
	if v, err := siwe.NormalizeAddress(verified); err == nil && v == addr {
		return domain.WalletAddress{}, false, addr, nil
	}
	return domain.WalletAddress{}, false, "", ErrInvalidAddress
}

// classifyCreateConflict distingue nombre tomado de dirección ya vinculada.
func (r *IdentityRegistry) classifyCreateConflict(ctx context.Context, name string) error {
	exists, err := r.wallets.ExistsENSName(ctx, name)
	if err != nil {
		return fmt.Errorf("check name: %w", err)
	}
	if exists {
		return repository.ErrConflict
	}
	return ErrAddressInUse
}

func (r *IdentityRegistry) resolveAvatar(ctx context.Context, name string) string {
	if r.avatars == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.AvatarTimeout)
	defer cancel()
	uri, err := r.avatars.ResolveAvatar(ctx, name)
	if err != nil {
		r.logger.Debug("avatar lookup failed", zap.String("name", name), zap.Error(err))
		return ""
	}
	return uri
}
