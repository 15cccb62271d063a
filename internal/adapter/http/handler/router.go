package handler

import (
	"trustbridge/internal/adapter/http/middleware"
	redisStore "trustbridge/internal/adapter/storage/redis"
	"trustbridge/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	EscrowSvc      ports.EscrowService
	WalletSvc      ports.WalletService
	UserSvc        ports.UserService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.UserSvc, deps.Logger)

	txHandler := NewTransactionHandler(deps.EscrowSvc)
	walletHandler := NewWalletHandler(deps.WalletSvc)
	userHandler := NewUserHandler()

	v1 := r.Group("/api/v1", jwtAuth)

	v1.GET("/me", rl("reads"), userHandler.Me)

	transactions := v1.Group("/transactions")
	{
		transactions.POST("", rl("transactions_create"), txHandler.Create)
		transactions.GET("", rl("reads"), txHandler.List)
		transactions.GET("/:id", rl("reads"), txHandler.Get)
		transactions.GET("/:id/audit", rl("reads"), txHandler.AuditTrail)
		transactions.POST("/:id/fund", rl("transactions_mutate"), txHandler.Fund)
		transactions.POST("/:id/release", rl("transactions_mutate"), txHandler.Release)
		transactions.POST("/:id/dispute", rl("transactions_mutate"), txHandler.Dispute)
		transactions.POST("/:id/refund", rl("transactions_mutate"), txHandler.Refund)
	}

	wallets := v1.Group("/wallets")
	{
		wallets.GET("", rl("reads"), walletHandler.Balances)
		wallets.POST("/deposit", rl("deposits"), middleware.RequireAdmin(), walletHandler.Deposit)
	}

	return r
}
