package handler

import (
	"wallet-gateway/internal/adapter/http/dto"
	"wallet-gateway/internal/adapter/http/middleware"
	"wallet-gateway/internal/core/ports"
	"wallet-gateway/pkg/apperror"
	"wallet-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CardHandler handles virtual card endpoints. The route, not the body, picks
// between validation and charge.
type CardHandler struct {
	cardSvc ports.CardService
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(cardSvc ports.CardService) *CardHandler {
	return &CardHandler{cardSvc: cardSvc}
}

// Validate handles POST /api/v1/cards/validate.
func (h *CardHandler) Validate(c *gin.Context) {
	h.handle(c, ports.CardModeValidate)
}

// Charge handles POST /api/v1/cards/charge.
func (h *CardHandler) Charge(c *gin.Context) {
	h.handle(c, ports.CardModeCharge)
}

func (h *CardHandler) handle(c *gin.Context, mode ports.CardMode) {
	principal, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.CardRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	in := ports.CardInput{
		CardNumber: req.CardNumber,
		Pin:        req.Pin,
		Amount:     req.Amount,
		MerchantID: req.MerchantID,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	}
	if in.IPAddress == "" {
		in.IPAddress = c.ClientIP()
	}
	if in.UserAgent == "" {
		in.UserAgent = c.Request.UserAgent()
	}

	var (
		result *ports.CardResult
		err    error
	)
	if mode == ports.CardModeCharge {
		if in.IdempotencyKey, err = idempotencyKey(c); err != nil {
			response.Error(c, err)
			return
		}
		result, err = h.cardSvc.Charge(c.Request.Context(), principal, in)
	} else {
		result, err = h.cardSvc.Validate(c.Request.Context(), principal, in)
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	respond(c, result, result.Replayed)
}

// Limits handles POST /api/v1/cards/limits.
func (h *CardHandler) Limits(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.CardLimitsRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	cardID, err := uuid.Parse(req.CardID)
	if err != nil {
		response.Error(c, apperror.ErrInvalidFormat("card_id must be a UUID"))
		return
	}
	amount := decimal.Zero
	if req.Amount != nil {
		amount = *req.Amount
	}

	result, err := h.cardSvc.Limits(c.Request.Context(), principal, cardID, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Deactivate handles POST /api/v1/cards/deactivate.
func (h *CardHandler) Deactivate(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.CardDeactivateRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	cardID, err := uuid.Parse(req.CardID)
	if err != nil {
		response.Error(c, apperror.ErrInvalidFormat("card_id must be a UUID"))
		return
	}
	in := ports.CardDeactivateInput{
		CardID:    cardID,
		Reason:    req.Reason,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}
	if in.IPAddress == "" {
		in.IPAddress = c.ClientIP()
	}
	if in.UserAgent == "" {
		in.UserAgent = c.Request.UserAgent()
	}
	if in.IdempotencyKey, err = idempotencyKey(c); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.cardSvc.Deactivate(c.Request.Context(), principal, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, result, result.Replayed)
}

// History handles POST /api/v1/cards/transactions.
func (h *CardHandler) History(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.CardHistoryRequest
	if err := bind(c, &req); err != nil {
		response.Error(c, err)
		return
	}

	query := ports.CardHistoryQuery{Limit: req.Limit, Offset: req.Offset}
	if req.CardID != "" {
		cardID, err := uuid.Parse(req.CardID)
		if err != nil {
			response.Error(c, apperror.ErrInvalidFormat("card_id must be a UUID"))
			return
		}
		query.CardID = &cardID
	}

	result, err := h.cardSvc.History(c.Request.Context(), principal, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}
