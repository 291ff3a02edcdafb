package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ethed-api/internal/domain"
	"ethed-api/internal/service"
)

type credentialIssuer interface {
	IssueFoundingCredential(ctx context.Context, userID, identityName, recipientAddress string) (service.IssueResult, error)
	IssueCourseCredential(ctx context.Context, userID, courseID, courseTitle, recipientAddress string) (service.IssueResult, error)
	ListCredentials(ctx context.Context, userID string) ([]domain.Credential, error)
	BackfillTransactionHash(ctx context.Context, credentialID, txHash string) (domain.Credential, error)
}

// CredentialHandler expone la emisión y consulta de credenciales.
type CredentialHandler struct {
	logger       *zap.Logger
	issuer       credentialIssuer
	relayerToken string
}

func NewCredentialHandler(logger *zap.Logger, issuer credentialIssuer, relayerToken string) *CredentialHandler {
	return &CredentialHandler{logger: logger, issuer: issuer, relayerToken: relayerToken}
}

// List maneja GET /credentials.
func (h *CredentialHandler) List(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		return
	}
	creds, err := h.issuer.ListCredentials(c.Request.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("list credentials failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not list credentials, try again"})
		return
	}
	if creds == nil {
		creds = []domain.Credential{}
	}
	c.JSON(http.StatusOK, gin.H{"credentials": creds})
}

// IssueFounding maneja POST /credentials/founding.
func (h *CredentialHandler) IssueFounding(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		return
	}
	var req struct {
		RecipientAddress string `json:"recipient_address"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := h.issuer.IssueFoundingCredential(c.Request.Context(), claims.UserID, claims.ENSName, req.RecipientAddress)
	h.writeIssue(c, res, err)
}

// IssueCourse maneja POST /credentials/courses/:courseId.
func (h *CredentialHandler) IssueCourse(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		return
	}
	var req struct {
		CourseTitle      string `json:"course_title"`
		RecipientAddress string `json:"recipient_address"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	res, err := h.issuer.IssueCourseCredential(c.Request.Context(), claims.UserID, c.Param("courseId"), req.CourseTitle, req.RecipientAddress)
	h.writeIssue(c, res, err)
}

// ConfirmTransaction maneja POST /internal/credentials/:id/transaction, la
// confirmación asíncrona que envía el relayer.
func (h *CredentialHandler) ConfirmTransaction(c *gin.Context) {
	token := c.GetHeader("X-Relayer-Token")
	if h.relayerToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.relayerToken)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid relayer token"})
		return
	}
	var req struct {
		TxHash string `json:"tx_hash" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	cred, err := h.issuer.BackfillTransactionHash(c.Request.Context(), c.Param("id"), req.TxHash)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"credential": cred})
	case errors.Is(err, service.ErrInvalidTransactionHash):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_transaction_hash"})
	case errors.Is(err, service.ErrCredentialNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
	case errors.Is(err, service.ErrTransactionHashMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "transaction_hash_mismatch"})
	default:
		h.logger.Error("transaction backfill failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "try again"})
	}
}

func (h *CredentialHandler) writeIssue(c *gin.Context, res service.IssueResult, err error) {
	switch {
	case err == nil:
		status := http.StatusCreated
		if res.AlreadyIssued {
			status = http.StatusOK
		}
		c.JSON(status, res)
	case errors.Is(err, service.ErrInvalidAchievement),
		errors.Is(err, service.ErrInvalidRecipient),
		errors.Is(err, service.ErrMissingRecipient):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	case errors.Is(err, service.ErrCourseNotCompleted):
		c.JSON(http.StatusForbidden, gin.H{"error": "course_not_completed"})
	case errors.Is(err, service.ErrMintNotRecorded):
		// Ya se loggeó con los datos de reconciliación; reintentar duplicaría el mint.
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "mint_not_recorded",
			"message": "the credential was minted but could not be recorded; do not retry, it will be reconciled",
		})
	case errors.Is(err, service.ErrStorageUnavailable), errors.Is(err, service.ErrChainUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "issuance temporarily unavailable, try again later"})
	default:
		h.logger.Error("credential issuance failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "issuance temporarily unavailable, try again later"})
	}
}

// bindOptionalJSON acepta un cuerpo vacío.
func bindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(dst)
}
