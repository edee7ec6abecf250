package handler

import (
	"net/http"

	"crypto-settlement/internal/adapter/http/middleware"
	redisStore "crypto-settlement/internal/adapter/storage/redis"
	"crypto-settlement/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	PaymentSvc     ports.PaymentService
	LedgerSvc      ports.LedgerService
	WithdrawalSvc  ports.WithdrawalService
	MerchantSvc    ports.MerchantService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Metrics        http.Handler // nil = no /metrics route
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// Public
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	v1.GET("/pay/:id", rl("pay_page"), paymentHandler.PayPage)

	// Merchant JWT
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	payments := v1.Group("/payments", jwtAuth)
	{
		payments.POST("", rl("payments"), paymentHandler.Create)
		payments.GET("", rl("dashboard"), paymentHandler.List)
		payments.GET("/:id", rl("dashboard"), paymentHandler.Get)
	}

	dashboardHandler := NewDashboardHandler(deps.LedgerSvc)
	v1.GET("/balances", jwtAuth, rl("dashboard"), dashboardHandler.Balances)
	v1.GET("/ledger", jwtAuth, rl("dashboard"), dashboardHandler.Ledger)

	withdrawalHandler := NewWithdrawalHandler(deps.WithdrawalSvc)
	withdrawals := v1.Group("/withdrawals", jwtAuth)
	{
		withdrawals.POST("", rl("withdrawals"), withdrawalHandler.Create)
		withdrawals.GET("", rl("dashboard"), withdrawalHandler.List)
		withdrawals.GET("/:id", rl("dashboard"), withdrawalHandler.Get)
		withdrawals.POST("/:id/cancel", rl("withdrawals"), withdrawalHandler.Cancel)
	}

	merchantHandler := NewMerchantHandler(deps.MerchantSvc)
	merchants := v1.Group("/merchants/me", jwtAuth)
	{
		merchants.GET("", rl("dashboard"), merchantHandler.GetProfile)
		merchants.PATCH("", rl("dashboard"), merchantHandler.UpdateSettings)
		merchants.POST("/rotate-webhook-secret", rl("dashboard"), merchantHandler.RotateWebhookSecret)
	}

	// Admin JWT with role claim
	admin := v1.Group("/admin", jwtAuth, middleware.RequireAdmin())
	{
		admin.GET("/withdrawals", rl("admin"), withdrawalHandler.AdminList)
		admin.POST("/withdrawals/:id/approve", rl("admin"), withdrawalHandler.Approve)
		admin.POST("/withdrawals/:id/reject", rl("admin"), withdrawalHandler.Reject)
	}

	return r
}
