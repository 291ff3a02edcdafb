package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ethed-api/internal/domain"
	"ethed-api/internal/metrics"
	"ethed-api/internal/siwe"
)

// AuthErrorKind clasifica el rechazo de una autenticación.
type AuthErrorKind string

const (
	AuthMalformedMessage AuthErrorKind = "malformed_message"
	AuthWrongNetwork     AuthErrorKind = "wrong_network"
	AuthInvalidNonce     AuthErrorKind = "invalid_nonce"
	AuthMessageExpired   AuthErrorKind = "message_expired"
	AuthSignatureInvalid AuthErrorKind = "signature_invalid"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrWrongNetwork     = errors.New("wrong network")
	ErrInvalidNonce     = errors.New("invalid nonce")
	ErrMessageExpired   = errors.New("message expired")
	ErrSignatureInvalid = errors.New("signature invalid")
)

var authSentinels = map[AuthErrorKind]error{
	AuthMalformedMessage: ErrMalformedMessage,
	AuthWrongNetwork:     ErrWrongNetwork,
	AuthInvalidNonce:     ErrInvalidNonce,
	AuthMessageExpired:   ErrMessageExpired,
	AuthSignatureInvalid: ErrSignatureInvalid,
}

// AuthError es el rechazo tipado de Authenticate. errors.Is funciona contra
// el sentinel de su Kind.
type AuthError struct {
	Kind   AuthErrorKind
	Reason string
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return authSentinels[e.Kind].Error()
	}
	return fmt.Sprintf("%s: %s", authSentinels[e.Kind], e.Reason)
}

func (e *AuthError) Unwrap() error {
	return authSentinels[e.Kind]
}

func authErr(kind AuthErrorKind, reason string) error {
	return &AuthError{Kind: kind, Reason: reason}
}

// VerifierConfig fija la red y el dominio esperados en los mensajes.
type VerifierConfig struct {
	ChainID int64
	Domain  string
}

// SignatureVerifier prueba el control de una wallet mediante un mensaje SIWE
// firmado. No escribe en la base de datos.
type SignatureVerifier struct {
	logger  *zap.Logger
	nonces  NonceStore
	metrics *metrics.Metrics
	cfg     VerifierConfig
	now     func() time.Time
}

func NewSignatureVerifier(logger *zap.Logger, nonces NonceStore, m *metrics.Metrics, cfg VerifierConfig) *SignatureVerifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignatureVerifier{
		logger:  logger,
		nonces:  nonces,
		metrics: m,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate valida el mensaje firmado contra el nonce de la sesión y
// consume el nonce solo si todas las comprobaciones pasan.
func (v *SignatureVerifier) Authenticate(ctx context.Context, sessionID, rawMessage, signature string) (domain.VerifiedIdentity, error) {
	identity, err := v.authenticate(ctx, sessionID, rawMessage, signature)
	var ae *AuthError
	switch {
	case err == nil:
		v.metrics.AuthResult("success")
	case errors.As(err, &ae):
		v.metrics.AuthResult(string(ae.Kind))
	default:
		v.metrics.AuthResult("error")
	}
	return identity, err
}

func (v *SignatureVerifier) authenticate(ctx context.Context, sessionID, rawMessage, signature string) (domain.VerifiedIdentity, error) {
	msg, err := siwe.Parse(rawMessage)
	if err != nil {
		return domain.VerifiedIdentity{}, authErr(AuthMalformedMessage, err.Error())
	}
	address := strings.ToLower(msg.Address)

	if v.cfg.Domain != "" && !strings.EqualFold(msg.Domain, v.cfg.Domain) {
		return domain.VerifiedIdentity{}, authErr(AuthMalformedMessage, "domain mismatch")
	}
	if msg.ChainID != v.cfg.ChainID {
		return domain.VerifiedIdentity{}, authErr(AuthWrongNetwork, fmt.Sprintf("expected chain %d", v.cfg.ChainID))
	}

	if strings.TrimSpace(sessionID) == "" {
		return domain.VerifiedIdentity{}, authErr(AuthInvalidNonce, "no active session")
	}
	current, err := v.nonces.Peek(ctx, sessionID)
	if errors.Is(err, ErrNonceNotFound) {
		return domain.VerifiedIdentity{}, authErr(AuthInvalidNonce, "no outstanding nonce")
	}
	if err != nil {
		v.logger.Error("nonce lookup failed", zap.Error(err))
		return domain.VerifiedIdentity{}, fmt.Errorf("nonce lookup: %w", err)
	}
	if !sameNonce(current.Value, msg.Nonce) {
		return domain.VerifiedIdentity{}, authErr(AuthInvalidNonce, "nonce mismatch")
	}

	now := v.now()
	if !msg.ValidAt(now) {
		return domain.VerifiedIdentity{}, authErr(AuthMessageExpired, "")
	}

	recovered, err := siwe.RecoverAddress(rawMessage, signature)
	if err != nil || recovered != address {
		v.logger.Warn("siwe signature rejected",
			zap.String("claimed_address", address),
			zap.String("recovered_address", recovered),
			zap.String("domain", msg.Domain),
		)
		return domain.VerifiedIdentity{}, authErr(AuthSignatureInvalid, "")
	}

	if err := v.nonces.Consume(ctx, sessionID, msg.Nonce); err != nil {
		if errors.Is(err, ErrNonceNotFound) {
			return domain.VerifiedIdentity{}, authErr(AuthInvalidNonce, "nonce already used")
		}
		v.logger.Error("nonce consume failed", zap.Error(err))
		return domain.VerifiedIdentity{}, fmt.Errorf("nonce consume: %w", err)
	}

	return domain.VerifiedIdentity{
		Address:    address,
		ChainID:    msg.ChainID,
		VerifiedAt: now,
	}, nil
}
