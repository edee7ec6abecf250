package handler

import (
	"strings"

	"crypto-settlement/internal/adapter/http/dto"
	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"
	"crypto-settlement/pkg/response"

	"github.com/gin-gonic/gin"
)

// MerchantHandler handles merchant self-service endpoints.
type MerchantHandler struct {
	merchantSvc ports.MerchantService
}

// NewMerchantHandler creates a new merchant handler.
func NewMerchantHandler(merchantSvc ports.MerchantService) *MerchantHandler {
	return &MerchantHandler{merchantSvc: merchantSvc}
}

// GetProfile handles GET /api/v1/merchants/me.
func (h *MerchantHandler) GetProfile(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	profile, err := h.merchantSvc.GetProfile(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, profile)
}

// UpdateSettings handles PATCH /api/v1/merchants/me. Omitted fields are kept.
func (h *MerchantHandler) UpdateSettings(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	var req dto.MerchantSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	settings := ports.MerchantSettings{
		WebhookURL:      req.WebhookURL,
		FeePercentage:   req.FeePercentage,
		CustomerPaysFee: req.CustomerPaysFee,
	}
	if len(req.Destinations) > 0 {
		settings.Destinations = make(map[domain.Currency]string, len(req.Destinations))
		for raw, addr := range req.Destinations {
			currency, err := domain.ParseCurrency(raw)
			if err != nil {
				response.Error(c, apperror.Validation(err.Error()))
				return
			}
			settings.Destinations[currency] = strings.TrimSpace(addr)
		}
	}

	merchant, err := h.merchantSvc.UpdateSettings(c.Request.Context(), merchantID, settings)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, merchant)
}

// RotateWebhookSecret handles POST /api/v1/merchants/me/rotate-webhook-secret.
func (h *MerchantHandler) RotateWebhookSecret(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	secret, err := h.merchantSvc.RotateWebhookSecret(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.WebhookSecretResponse{WebhookSecret: secret})
}
