package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ethed-api/internal/domain"
	"ethed-api/internal/service"
)

const siweSessionCookie = "ethed_siwe"

type identityVerifier interface {
	Authenticate(ctx context.Context, sessionID, message, signature string) (domain.VerifiedIdentity, error)
}

type accountResolver interface {
	ResolveIdentity(ctx context.Context, identity domain.VerifiedIdentity) (domain.User, domain.WalletAddress, error)
}

// AuthHandler expone el flujo Sign-In with Ethereum.
type AuthHandler struct {
	logger       *zap.Logger
	nonces       service.NonceStore
	limiter      service.RateLimiter
	verifier     identityVerifier
	accounts     accountResolver
	jwtServ      *service.JWTService
	secureCookie bool
	cookieTTL    time.Duration
}

func NewAuthHandler(
	logger *zap.Logger,
	nonces service.NonceStore,
	limiter service.RateLimiter,
	verifier identityVerifier,
	accounts accountResolver,
	jwtServ *service.JWTService,
	secureCookie bool,
	cookieTTL time.Duration,
) *AuthHandler {
	if cookieTTL <= 0 {
		cookieTTL = 10 * time.Minute
	}
	return &AuthHandler{
		logger:       logger,
		nonces:       nonces,
		limiter:      limiter,
		verifier:     verifier,
		accounts:     accounts,
		jwtServ:      jwtServ,
		secureCookie: secureCookie,
		cookieTTL:    cookieTTL,
	}
}

// Nonce maneja GET /auth/nonce. Reutiliza la sesión de la cookie si existe.
func (h *AuthHandler) Nonce(c *gin.Context) {
	if h.limiter != nil && !h.limiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	sessionID, err := c.Cookie(siweSessionCookie)
	if err != nil || strings.TrimSpace(sessionID) == "" {
		sessionID = uuid.NewString()
	}

	nonce, err := h.nonces.Issue(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("issue nonce failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not issue nonce, try again"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(siweSessionCookie, sessionID, int(h.cookieTTL.Seconds()), "/", "", h.secureCookie, true)
	c.JSON(http.StatusOK, nonce)
}

// Verify maneja POST /auth/verify.
func (h *AuthHandler) Verify(c *gin.Context) {
	var req struct {
		Message   string `json:"message" binding:"required"`
		Signature string `json:"signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sessionID, _ := c.Cookie(siweSessionCookie)
	identity, err := h.verifier.Authenticate(c.Request.Context(), sessionID, req.Message, req.Signature)
	if err != nil {
		var authErr *service.AuthError
		if errors.As(err, &authErr) {
			status := http.StatusUnauthorized
			if authErr.Kind == service.AuthMalformedMessage || authErr.Kind == service.AuthWrongNetwork {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": string(authErr.Kind), "message": authErr.Error()})
			return
		}
		h.logger.Error("siwe verification failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication temporarily unavailable, try again"})
		return
	}

	user, wallet, err := h.accounts.ResolveIdentity(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("resolve identity failed", zap.String("address", identity.Address), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authentication temporarily unavailable, try again"})
		return
	}

	tokens, err := h.jwtServ.GeneratePair(c.Request.Context(), service.SessionSubject{
		UserID:  user.ID,
		Address: wallet.Address,
		ENSName: wallet.Name(),
	})
	if err != nil {
		h.logger.Error("jwt issue failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue tokens"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "wallet": wallet, "tokens": tokens})
}

// RefreshToken maneja POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	tokens, err := h.jwtServ.RefreshPair(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	_ = h.jwtServ.RevokeRefresh(c.Request.Context(), req.RefreshToken)
	c.Status(http.StatusNoContent)
}
