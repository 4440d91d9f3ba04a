package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/eventledger/internal/metrics"
	"github.com/MarkoPoloResearchLab/eventledger/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey = "auth_claims"
	actorContextKey  = "actor"
)

// Dependencies are the collaborators the API serves. Metrics and Idempotency are optional.
type Dependencies struct {
	Service     *ledger.Service
	Logger      *zap.Logger
	Metrics     *metrics.Recorder
	Idempotency ResponseCache
}

// Run serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	router, err := NewRouter(cfg, deps)
	if err != nil {
		return err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("eventledger api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter validates cfg and builds the gin engine.
func NewRouter(cfg Config, deps Dependencies) (*gin.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("http config: %w", err)
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("http config: ledger service is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return nil, fmt.Errorf("session validator: %w", err)
	}
	handler := &httpHandler{
		logger:  deps.Logger,
		service: deps.Service,
		cfg:     cfg,
	}
	return setupRouter(cfg, deps, handler, validator), nil
}

func setupRouter(cfg Config, deps Dependencies, handler *httpHandler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", headerIdempotencyKey},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	limiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, visitorTTL)

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey), actorMiddleware())
	api.GET("/wallet", handler.handleWallet)

	mutations := api.Group("")
	mutations.Use(rateLimitMiddleware(limiter), idempotencyMiddleware(deps.Idempotency, deps.Logger))
	mutations.POST("/boosts", handler.handleBoosts)
	mutations.POST("/tickets", handler.handleTickets)
	mutations.POST("/subscriptions", handler.handleSubscriptions)
	mutations.POST("/withdrawals", handler.handleWithdrawals)

	admin := api.Group("/admin")
	admin.Use(requireStaff())
	admin.GET("/platform-wallets", handler.handlePlatformWallets)
	adminMutations := admin.Group("")
	adminMutations.Use(rateLimitMiddleware(limiter), idempotencyMiddleware(deps.Idempotency, deps.Logger))
	adminMutations.POST("/deposits", handler.handleDeposit)
	adminMutations.POST("/withdrawals/:id/approve", handler.handleApproveWithdrawal)
	adminMutations.POST("/withdrawals/:id/reject", handler.handleRejectWithdrawal)

	return router
}

// actorMiddleware turns validated session claims into a ledger.Actor. Unknown roles are dropped.
func actorMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := getClaims(ctx)
		if claims == nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		userID, err := ledger.NewUserID(claims.GetUserID())
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session subject"))
			return
		}
		actor := ledger.Actor{UserID: userID}
		for _, rawRole := range claims.GetUserRoles() {
			role, err := ledger.ParseRole(rawRole)
			if err != nil {
				continue
			}
			actor.Roles = append(actor.Roles, role)
		}
		ctx.Set(actorContextKey, actor)
		ctx.Next()
	}
}

func requireStaff() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		actor, ok := actorFrom(ctx)
		if !ok || !actor.IsStaff() {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "staff role required"))
			return
		}
		ctx.Next()
	}
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func actorFrom(ctx *gin.Context) (ledger.Actor, bool) {
	value, ok := ctx.Get(actorContextKey)
	if !ok {
		return ledger.Actor{}, false
	}
	actor, ok := value.(ledger.Actor)
	return actor, ok
}
