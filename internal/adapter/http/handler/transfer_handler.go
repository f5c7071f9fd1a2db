package handler

import (
	"wallet-gateway/internal/adapter/http/dto"
	"wallet-gateway/internal/adapter/http/middleware"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"
	"wallet-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// TransferHandler handles peer transfer endpoints.
type TransferHandler struct {
	transferSvc ports.TransferService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(transferSvc ports.TransferService) *TransferHandler {
	return &TransferHandler{transferSvc: transferSvc}
}

// Create handles POST /api/v1/transfers.
func (h *TransferHandler) Create(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	key, err := idempotencyKey(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req dto.TransferRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.transferSvc.Transfer(c.Request.Context(), principal, ports.TransferInput{
		RecipientEmail: req.RecipientEmail,
		Amount:         *req.Amount,
		Description:    dto.Description(req.Description),
		UserPin:        req.UserPin,
		IdempotencyKey: key,
		ClientIP:       c.ClientIP(),
		UserAgent:      c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, result, result.Replayed)
}
