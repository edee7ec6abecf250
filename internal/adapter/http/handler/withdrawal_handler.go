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

// WithdrawalHandler handles merchant payouts and their admin review.
type WithdrawalHandler struct {
	withdrawalSvc ports.WithdrawalService
}

// NewWithdrawalHandler creates a new WithdrawalHandler.
func NewWithdrawalHandler(withdrawalSvc ports.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalSvc: withdrawalSvc}
}

// Create handles POST /api/v1/withdrawals.
func (h *WithdrawalHandler) Create(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	var req dto.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	currency, err := domain.ParseCurrency(req.Currency)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	wd, err := h.withdrawalSvc.Request(c.Request.Context(), ports.WithdrawalRequest{
		MerchantID:         merchantID,
		Currency:           currency,
		Amount:             req.Amount,
		DestinationAddress: strings.TrimSpace(req.DestinationAddress),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, wd)
}

// List handles GET /api/v1/withdrawals.
func (h *WithdrawalHandler) List(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	params := ports.WithdrawalListParams{MerchantID: &merchantID, Page: page, PageSize: size}
	params.Status = statusFilter(c)
	h.list(c, params)
}

// Get handles GET /api/v1/withdrawals/:id.
func (h *WithdrawalHandler) Get(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	wd, err := h.withdrawalSvc.Get(c.Request.Context(), merchantID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wd)
}

// Cancel handles POST /api/v1/withdrawals/:id/cancel.
func (h *WithdrawalHandler) Cancel(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	wd, err := h.withdrawalSvc.Cancel(c.Request.Context(), merchantID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wd)
}

// AdminList handles GET /api/v1/admin/withdrawals?status=pending across all merchants.
func (h *WithdrawalHandler) AdminList(c *gin.Context) {
	page, size := pageParams(c)
	h.list(c, ports.WithdrawalListParams{Status: statusFilter(c), Page: page, PageSize: size})
}

// Approve handles POST /api/v1/admin/withdrawals/:id/approve.
func (h *WithdrawalHandler) Approve(c *gin.Context) {
	adminID, ok := merchantFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	wd, err := h.withdrawalSvc.Approve(c.Request.Context(), adminID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wd)
}

// Reject handles POST /api/v1/admin/withdrawals/:id/reject.
func (h *WithdrawalHandler) Reject(c *gin.Context) {
	adminID, ok := merchantFromContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.RejectWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	wd, err := h.withdrawalSvc.Reject(c.Request.Context(), adminID, id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, wd)
}

func (h *WithdrawalHandler) list(c *gin.Context, params ports.WithdrawalListParams) {
	items, total, err := h.withdrawalSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, items, pageMeta(total, params.Page, params.PageSize))
}

func statusFilter(c *gin.Context) *domain.WithdrawalStatus {
	s := c.Query("status")
	if s == "" {
		return nil
	}
	status := domain.WithdrawalStatus(strings.ToUpper(s))
	return &status
}
