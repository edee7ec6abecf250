package handler

import (
	"strconv"

	"crypto-settlement/internal/adapter/http/middleware"
	"crypto-settlement/pkg/apperror"
	"crypto-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// merchantFromContext writes a 401 and returns false when JWTAuth did not run.
func merchantFromContext(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.MerchantID(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses the :id route parameter.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

func pageParams(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}
	return page, size
}

func pageMeta(total int64, page, size int) response.Meta {
	return response.Meta{Total: total, Limit: size, Offset: (page - 1) * size}
}
