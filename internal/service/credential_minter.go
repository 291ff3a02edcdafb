package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ethed-api/internal/chain"
	"ethed-api/internal/domain"
	"ethed-api/internal/events"
	"ethed-api/internal/metrics"
	"ethed-api/internal/repository"
	"ethed-api/internal/siwe"
)

var (
	ErrChainUnavailable        = errors.New("chain unavailable")
	ErrMissingRecipient        = errors.New("no recipient address for credential")
	ErrInvalidRecipient        = errors.New("invalid recipient address")
	ErrCourseNotCompleted      = errors.New("course not completed")
	ErrCredentialNotFound      = errors.New("credential not found")
	ErrInvalidTransactionHash  = errors.New("invalid transaction hash")
	ErrTransactionHashMismatch = errors.New("credential already has a different transaction hash")
	ErrMintNotRecorded         = errors.New("credential minted but not recorded")
)

// MintNotRecordedError indica que el mint salió a la cadena pero el registro
// no se pudo guardar. Lleva lo necesario para reconciliar a mano.
type MintNotRecordedError struct {
	UserID          string
	AchievementKind string
	TokenID         string
	TxHash          string
	MetadataURI     string
	Err             error
}

func (e *MintNotRecordedError) Error() string {
	return fmt.Sprintf("%s (user %s, kind %s, token %s, tx %s): %v",
		ErrMintNotRecorded, e.UserID, e.AchievementKind, e.TokenID, e.TxHash, e.Err)
}

func (e *MintNotRecordedError) Is(target error) bool {
	return target == ErrMintNotRecorded
}

func (e *MintNotRecordedError) Unwrap() error {
	return e.Err
}

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// MinterConfig agrupa los datos fijos del contrato y los timeouts.
type MinterConfig struct {
	ContractAddress string
	ChainID         int64
	ImageBaseURL    string
	MintTimeout     time.Duration
}

type IssueInput struct {
	UserID           string
	Kind             string
	Params           domain.AchievementParams
	IdentityName     string
	RecipientAddress string
}

type IssueResult struct {
	Credential    domain.Credential `json:"credential"`
	AlreadyIssued bool              `json:"already_issued"`
}

// CredentialMinter orquesta la emisión: idempotencia, metadata, mint y registro.
type CredentialMinter struct {
	logger      *zap.Logger
	credentials repository.CredentialRepository
	wallets     repository.WalletRepository
	completions repository.CompletionRepository
	publisher   MetadataPublisher
	chain       chain.Client
	events      events.Publisher
	metrics     *metrics.Metrics
	cfg         MinterConfig
	flights     singleflight.Group
	now         func() time.Time
}

func NewCredentialMinter(
	logger *zap.Logger,
	credentials repository.CredentialRepository,
	wallets repository.WalletRepository,
	completions repository.CompletionRepository,
	publisher MetadataPublisher,
	chainClient chain.Client,
	eventPublisher events.Publisher,
	m *metrics.Metrics,
	cfg MinterConfig,
) *CredentialMinter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if eventPublisher == nil {
		eventPublisher = events.NewNoopPublisher()
	}
	if cfg.MintTimeout <= 0 {
		cfg.MintTimeout = 30 * time.Second
	}
	cfg.ContractAddress = strings.ToLower(cfg.ContractAddress)
	return &CredentialMinter{
		logger:      logger,
		credentials: credentials,
		wallets:     wallets,
		completions: completions,
		publisher:   publisher,
		chain:       chainClient,
		events:      eventPublisher,
		metrics:     m,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// IssueFoundingCredential emite la credencial "pioneer", una por usuario.
func (s *CredentialMinter) IssueFoundingCredential(ctx context.Context, userID, identityName, recipientAddress string) (IssueResult, error) {
	return s.IssueCredential(ctx, IssueInput{
		UserID:           userID,
		Kind:             domain.AchievementFounding,
		IdentityName:     identityName,
		RecipientAddress: recipientAddress,
	})
}

// IssueCourseCredential exige que el curso figure como completado.
func (s *CredentialMinter) IssueCourseCredential(ctx context.Context, userID, courseID, courseTitle, recipientAddress string) (IssueResult, error) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return IssueResult{}, fmt.Errorf("%w: empty course id", ErrInvalidAchievement)
	}
	if s.completions == nil {
		return IssueResult{}, ErrCourseNotCompleted
	}
	params, err := s.completions.GetCourseCompletion(ctx, userID, courseID)
	if errors.Is(err, repository.ErrNotFound) {
		return IssueResult{}, ErrCourseNotCompleted
	}
	if err != nil {
		return IssueResult{}, fmt.Errorf("course completion: %w", err)
	}
	params.CourseID = courseID
	if title := strings.TrimSpace(courseTitle); title != "" {
		params.CourseTitle = title
	}
	return s.IssueCredential(ctx, IssueInput{
		UserID:           userID,
		Kind:             domain.CourseAchievement(courseID),
		Params:           params,
		RecipientAddress: recipientAddress,
	})
}

// IssueCredential emite como mucho una credencial por (usuario, logro). Las
// llamadas concurrentes del mismo par comparten una sola ejecución.
func (s *CredentialMinter) IssueCredential(ctx context.Context, in IssueInput) (IssueResult, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Kind = strings.TrimSpace(in.Kind)
	if in.UserID == "" || in.Kind == "" {
		return IssueResult{}, fmt.Errorf("%w: user and kind are required", ErrInvalidAchievement)
	}

	// El vuelo es compartido: no puede depender de la cancelación del
	// primer llamador. Cada paso externo tiene su propio timeout.
	work := context.WithoutCancel(ctx)
	v, err, _ := s.flights.Do(in.UserID+"|"+in.Kind, func() (any, error) {
		return s.issue(work, in)
	})
	s.recordResult(err, v)
	if err != nil {
		return IssueResult{}, err
	}
	return v.(IssueResult), nil
}

func (s *CredentialMinter) recordResult(err error, v any) {
	switch {
	case err == nil:
		if res, ok := v.(IssueResult); ok && res.AlreadyIssued {
			s.metrics.IssuanceResult("already_issued")
		} else {
			s.metrics.IssuanceResult("issued")
		}
	case errors.Is(err, ErrStorageUnavailable):
		s.metrics.IssuanceResult("storage_unavailable")
	case errors.Is(err, ErrChainUnavailable):
		s.metrics.IssuanceResult("chain_unavailable")
	case errors.Is(err, ErrMintNotRecorded):
		s.metrics.IssuanceResult("not_recorded")
	default:
		s.metrics.IssuanceResult("error")
	}
}

func (s *CredentialMinter) issue(ctx context.Context, in IssueInput) (IssueResult, error) {
	existing, err := s.credentials.FindByAchievement(ctx, in.UserID, in.Kind)
	if err == nil {
		return IssueResult{Credential: existing, AlreadyIssued: true}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return IssueResult{}, fmt.Errorf("lookup credential: %w", err)
	}

	recipient, identityName, err := s.resolveRecipient(ctx, in)
	if err != nil {
		return IssueResult{}, err
	}

	issuedAt := s.now()
	meta, err := BuildMetadata(in.Kind, in.Params, identityName, issuedAt, s.cfg.ImageBaseURL)
	if err != nil {
		return IssueResult{}, err
	}

	uri, err := s.publisher.Publish(ctx, meta)
	if err != nil {
		s.logger.Error("metadata publish failed", zap.String("user_id", in.UserID), zap.String("kind", in.Kind), zap.Error(err))
		if !errors.Is(err, ErrStorageUnavailable) {
			err = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return IssueResult{}, err
	}

	minted, err := s.mint(ctx, recipient, uri)
	if err != nil {
		s.logger.Error("mint submit failed", zap.String("user_id", in.UserID), zap.String("kind", in.Kind), zap.Error(err))
		return IssueResult{}, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}

	txHash := minted.TxHash
	owner := recipient
	record := domain.Credential{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		AchievementKind: in.Kind,
		TokenID:         minted.TokenID,
		Name:            meta.Name,
		Description:     meta.Description,
		Image:           meta.Image,
		MetadataURI:     uri,
		ContractAddress: s.cfg.ContractAddress,
		ChainID:         s.cfg.ChainID,
		OwnerAddress:    &owner,
		MintedAt:        issuedAt,
	}
	if txHash != "" {
		record.TransactionHash = &txHash
	}

	err = s.credentials.Create(ctx, record)
	if errors.Is(err, repository.ErrConflict) {
		winner, findErr := s.credentials.FindByAchievement(ctx, in.UserID, in.Kind)
		if findErr == nil {
			s.logger.Warn("duplicate mint for an already issued credential",
				zap.String("user_id", in.UserID),
				zap.String("kind", in.Kind),
				zap.String("orphan_token_id", minted.TokenID),
				zap.String("orphan_tx_hash", txHash),
			)
			return IssueResult{Credential: winner, AlreadyIssued: true}, nil
		}
		err = findErr
	}
	if err != nil {
		s.metrics.IncrementUnrecordedMint()
		s.logger.Error("credential minted but not recorded",
			zap.String("user_id", in.UserID),
			zap.String("kind", in.Kind),
			zap.String("token_id", minted.TokenID),
			zap.String("tx_hash", txHash),
			zap.String("metadata_uri", uri),
			zap.Error(err),
		)
		return IssueResult{}, &MintNotRecordedError{
			UserID:          in.UserID,
			AchievementKind: in.Kind,
			TokenID:         minted.TokenID,
			TxHash:          txHash,
			MetadataURI:     uri,
			Err:             err,
		}
	}

	if err := s.events.Publish(ctx, events.RoutingCredentialIssued, events.CredentialIssued{
		CredentialID:    record.ID,
		UserID:          record.UserID,
		AchievementKind: record.AchievementKind,
		TokenID:         record.TokenID,
		TransactionHash: txHash,
		MetadataURI:     record.MetadataURI,
		MintedAt:        record.MintedAt,
	}); err != nil {
		s.logger.Warn("credential.issued event not published", zap.Error(err))
	}

	s.logger.Info("credential issued",
		zap.String("user_id", in.UserID),
		zap.String("kind", in.Kind),
		zap.String("token_id", record.TokenID),
	)
	return IssueResult{Credential: record}, nil
}

func (s *CredentialMinter) mint(ctx context.Context, recipient, uri string) (chain.MintResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.MintTimeout)
	defer cancel()
	defer s.metrics.ObserveMint(time.Now())
	return s.chain.SubmitMint(ctx, recipient, uri)
}

// resolveRecipient usa la dirección explícita o la wallet primaria. El nombre
// de identidad sale de la wallet si no vino en la entrada.
func (s *CredentialMinter) resolveRecipient(ctx context.Context, in IssueInput) (string, string, error) {
	identityName := strings.TrimSpace(in.IdentityName)
	var recipient string
	if strings.TrimSpace(in.RecipientAddress) != "" {
		addr, err := siwe.NormalizeAddress(in.RecipientAddress)
		if err != nil {
			return "", "", ErrInvalidRecipient
		}
		recipient = addr
		if identityName != "" {
			return recipient, identityName, nil
		}
	}

	wallets, err := s.wallets.ListByUserID(ctx, in.UserID)
	if err != nil {
		return "", "", fmt.Errorf("list wallets: %w", err)
	}
	primary, ok := primaryWallet(wallets)
	if recipient == "" {
		if !ok {
			return "", "", ErrMissingRecipient
		}
		recipient = primary.Address
	}
	if identityName == "" && ok {
		identityName = primary.Name()
	}
	return recipient, identityName, nil
}

// ListCredentials devuelve las credenciales del usuario, la más reciente primero.
func (s *CredentialMinter) ListCredentials(ctx context.Context, userID string) ([]domain.Credential, error) {
	return s.credentials.ListByUserID(ctx, userID)
}

// BackfillTransactionHash completa el hash cuando la confirmación llega tarde.
// Repetir el mismo hash es idempotente.
func (s *CredentialMinter) BackfillTransactionHash(ctx context.Context, credentialID, txHash string) (domain.Credential, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if !txHashPattern.MatchString(txHash) {
		return domain.Credential{}, ErrInvalidTransactionHash
	}
	cred, err := s.credentials.GetByID(ctx, credentialID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Credential{}, ErrCredentialNotFound
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	err = s.credentials.SetTransactionHash(ctx, credentialID, txHash)
	if errors.Is(err, repository.ErrConflict) {
		return domain.Credential{}, ErrTransactionHashMismatch
	}
	if err != nil {
		return domain.Credential{}, fmt.Errorf("backfill tx hash: %w", err)
	}
	cred.TransactionHash = &txHash
	return cred, nil
}
