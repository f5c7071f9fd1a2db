package handler

import (
	"bytes"

	"wallet-gateway/internal/adapter/http/dto"
	"wallet-gateway/internal/adapter/http/middleware"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"
	"wallet-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentHandler handles merchant payment endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// Create handles POST /api/v1/payments.
func (h *PaymentHandler) Create(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.PaymentRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	metadata := req.Metadata
	if bytes.Equal(bytes.TrimSpace(metadata), []byte("null")) {
		metadata = nil
	}

	result, err := h.paymentSvc.Pay(c.Request.Context(), principal, ports.PaymentInput{
		ExternalOrderID: req.ExternalOrderID,
		UserEmail:       req.UserEmail,
		Amount:          *req.Amount,
		Description:     dto.Description(req.Description),
		CallbackURL:     req.CallbackURL,
		Metadata:        metadata,
		UserPin:         req.UserPin,
		ClientIP:        c.ClientIP(),
		UserAgent:       c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, result, result.Replayed)
}
