package handler

import (
	"strings"

	"crypto-settlement/internal/adapter/http/dto"
	"crypto-settlement/internal/adapter/http/middleware"
	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"
	"crypto-settlement/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxIdempotencyKeyLen = 128

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// Create handles POST /api/v1/payments. A repeated Idempotency-Key returns
// the payment created by the first request.
func (h *PaymentHandler) Create(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	if (req.Amount == nil) == (req.AmountUSD == nil) {
		response.Error(c, apperror.Validation("exactly one of amount and amount_usd is required"))
		return
	}
	idempKey := strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	if len(idempKey) > maxIdempotencyKeyLen {
		response.Error(c, apperror.Validation("Idempotency-Key is too long"))
		return
	}
	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	payment, err := h.paymentSvc.Create(c.Request.Context(), ports.CreatePaymentRequest{
		MerchantID:        merchantID,
		Currency:          currency,
		Amount:            req.Amount,
		AmountUSD:         req.AmountUSD,
		ExpirationMinutes: req.ExpirationMinutes,
		Description:       req.Description,
		IdempotencyKey:    idempKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toPaymentResponse(payment))
}

// Get handles GET /api/v1/payments/:id.
func (h *PaymentHandler) Get(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}
	paymentID, ok := pathID(c)
	if !ok {
		return
	}

	payment, err := h.paymentSvc.Get(c.Request.Context(), merchantID, paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPaymentResponse(payment))
}

// List handles GET /api/v1/payments?status=&page=&page_size=.
func (h *PaymentHandler) List(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}
	page, size := pageParams(c)

	params := ports.PaymentListParams{MerchantID: merchantID, Page: page, PageSize: size}
	if s := c.Query("status"); s != "" {
		status := domain.PaymentStatus(strings.ToUpper(s))
		params.Status = &status
	}

	payments, total, err := h.paymentSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, payments, pageMeta(total, page, size))
}

// PayPage handles GET /api/v1/pay/:id, the public checkout view.
func (h *PaymentHandler) PayPage(c *gin.Context) {
	paymentID, ok := pathID(c)
	if !ok {
		return
	}

	page, err := h.paymentSvc.PaymentPage(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, page)
}

func toPaymentResponse(p *domain.Payment) dto.PaymentResponse {
	return dto.PaymentResponse{
		Payment: p,
		Instructions: dto.PaymentInstructions{
			Network:               p.Currency.Network(),
			Symbol:                p.Currency.Symbol(),
			Address:               p.DepositAddress,
			Amount:                p.CustomerAmount,
			RequiredConfirmations: p.RequiredConfirmations,
			ExpiresAt:             p.ExpiresAt,
		},
	}
}
