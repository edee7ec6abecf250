package handler

import (
	"crypto-settlement/internal/core/domain"
	"crypto-settlement/internal/core/ports"
	"crypto-settlement/pkg/apperror"
	"crypto-settlement/pkg/response"

	"github.com/gin-gonic/gin"
)

// DashboardHandler serves the merchant's balances and ledger history.
type DashboardHandler struct {
	ledgerSvc ports.LedgerService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(ledgerSvc ports.LedgerService) *DashboardHandler {
	return &DashboardHandler{ledgerSvc: ledgerSvc}
}

// Balances handles GET /api/v1/balances.
func (h *DashboardHandler) Balances(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}

	summary, err := h.ledgerSvc.Summary(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, summary)
}

// Ledger handles GET /api/v1/ledger?currency=&page=&page_size=.
func (h *DashboardHandler) Ledger(c *gin.Context) {
	merchantID, ok := merchantFromContext(c)
	if !ok {
		return
	}
	page, size := pageParams(c)

	params := ports.LedgerListParams{MerchantID: merchantID, Page: page, PageSize: size}
	if raw := c.Query("currency"); raw != "" {
		currency, err := domain.ParseCurrency(raw)
		if err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
		params.Currency = &currency
	}

	entries, total, err := h.ledgerSvc.History(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Page(c, entries, pageMeta(total, page, size))
}
