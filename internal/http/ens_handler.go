package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ethed-api/internal/service"
)

type nameRegistry interface {
	RegisterName(ctx context.Context, in service.RegisterNameInput) (service.RegisterNameResult, error)
	CheckAvailability(ctx context.Context, label string) (string, bool, error)
}

// ENSHandler expone el registro de subdominios.
type ENSHandler struct {
	logger   *zap.Logger
	registry nameRegistry
	jwtServ  *service.JWTService
}

func NewENSHandler(logger *zap.Logger, registry nameRegistry, jwtServ *service.JWTService) *ENSHandler {
	return &ENSHandler{logger: logger, registry: registry, jwtServ: jwtServ}
}

// Availability maneja GET /ens/availability?label=.
func (h *ENSHandler) Availability(c *gin.Context) {
	label := c.Query("label")
	fullName, available, err := h.registry.CheckAvailability(c.Request.Context(), label)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"full_name": fullName, "available": available})
}

// Register maneja POST /ens/register. Devuelve tokens nuevos con el nombre.
func (h *ENSHandler) Register(c *gin.Context) {
	claims, ok := sessionClaims(c)
	if !ok {
		return
	}
	var req struct {
		Label          string `json:"label" binding:"required"`
		PrimaryAddress string `json:"primary_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res, err := h.registry.RegisterName(c.Request.Context(), service.RegisterNameInput{
		UserID:          claims.UserID,
		Label:           req.Label,
		PrimaryAddress:  req.PrimaryAddress,
		VerifiedAddress: claims.Address,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	body := gin.H{"full_name": res.FullName, "tx_hash": res.TxHash, "wallet": res.Wallet}
	if h.jwtServ != nil {
		tokens, err := h.jwtServ.GeneratePair(c.Request.Context(), service.SessionSubject{
			UserID:  claims.UserID,
			Address: res.Wallet.Address,
			ENSName: res.FullName,
		})
		if err != nil {
			h.logger.Warn("could not refresh tokens after registration", zap.Error(err))
		} else {
			body["tokens"] = tokens
		}
	}
	c.JSON(http.StatusCreated, body)
}

func (h *ENSHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidLabel):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_label", "message": err.Error()})
	case errors.Is(err, service.ErrInvalidAddress), errors.Is(err, service.ErrMissingAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": err.Error()})
	case errors.Is(err, service.ErrNameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "name_taken"})
	case errors.Is(err, service.ErrAddressInUse):
		c.JSON(http.StatusConflict, gin.H{"error": "address_in_use"})
	default:
		h.logger.Error("name registration failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "registration temporarily unavailable, try again"})
	}
}
