package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bengkelpos/internal/domain"
	"bengkelpos/internal/service"
	"bengkelpos/internal/store"
)

type API struct {
	service      *service.Service
	auth         *AuthManager
	log          *zap.Logger
	allowed      []string
	loginLimiter *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, log *zap.Logger, allowedOrigin string) *API {
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		service:      svc,
		auth:         auth,
		log:          log,
		allowed:      []string{allowedOrigin},
		loginLimiter: newAttemptLimiter(5, time.Minute),
	}
}

// Router builds the full REST surface under /api/v1.
func (a *API) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(a.requestLogger())
	r.Use(securityHeaders())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     a.allowed,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", a.handleLogin)

	authed := v1.Group("")
	authed.Use(a.authMiddleware())
	{
		stock := authed.Group("/stock")
		{
			stock.GET("", a.handleListStock)
			stock.GET("/low-stock", a.handleLowStock)
			stock.GET("/reorder-suggestions", a.handleReorderSuggestions)
			stock.GET("/branch/:branchId", a.handleStockByBranch)
			stock.GET("/product/:productId", a.handleStockByProduct)
			stock.GET("/movements", a.handleListMovements)
			stock.POST("/restock", a.handleRestock)
			stock.POST("/adjust", a.handleAdjust)
			stock.GET("/records/:id", a.handleGetStockRecord)
			stock.PUT("/records/:id/restock", a.handleRestockByID)
			stock.PUT("/records/:id/adjust", a.handleAdjustByID)

			stock.POST("/transfers", a.handleCreateTransfer)
			stock.GET("/transfers", a.handleListTransfers)
			stock.GET("/transfers/:id", a.handleGetTransfer)
			stock.PUT("/transfers/:id/status", a.handleTransferStatus)
		}

		sales := authed.Group("/sales")
		{
			sales.POST("", a.handleCreateSalesOrder)
			sales.GET("", a.handleListSalesOrders)
			sales.GET("/:id", a.handleGetSalesOrder)
			sales.PUT("/:id/status", a.handleSalesOrderStatus)
			sales.PUT("/:id/payment", a.handleSalesPayment)
			sales.DELETE("/:id", a.handleCancelSalesOrder)
		}

		services := authed.Group("/services")
		{
			services.POST("", a.handleCreateServiceOrder)
			services.GET("", a.handleListServiceOrders)
			services.GET("/:id", a.handleGetServiceOrder)
			services.PUT("/:id", a.handleServiceDetails)
			services.PUT("/:id/status", a.handleServiceOrderStatus)
			services.PUT("/:id/parts", a.handleServiceParts)
			services.PUT("/:id/payment", a.handleServicePayment)
			services.PUT("/:id/assign", a.handleServiceAssign)
			services.DELETE("/:id", a.handleCancelServiceOrder)
		}
	}

	return r
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// authMiddleware parses the bearer token and stores the actor on the
// request context so every service call sees who is acting.
func (a *API) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("unauthorized", "missing bearer token"))
			return
		}
		actor, err := a.auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody("unauthorized", err.Error()))
			return
		}
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func errorBody(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}

// writeError maps the store sentinels onto HTTP statuses and
// machine-readable codes.
func (a *API) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody("not_found", err.Error()))
	case errors.Is(err, store.ErrForbidden):
		c.JSON(http.StatusForbidden, errorBody("forbidden", "role or branch not permitted"))
	case errors.Is(err, store.ErrInsufficientStock):
		c.JSON(http.StatusConflict, errorBody("insufficient_stock", err.Error()))
	case errors.Is(err, store.ErrInvalidAdjustment):
		c.JSON(http.StatusConflict, errorBody("invalid_adjustment", err.Error()))
	case errors.Is(err, store.ErrInvalidStatusTransition):
		c.JSON(http.StatusConflict, errorBody("invalid_status_transition", err.Error()))
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, errorBody("duplicate", err.Error()))
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, errorBody("conflict", "concurrent update lost, retry"))
	default:
		a.log.Error("internal error", zap.Error(err), zap.String("path", c.Request.URL.Path))
		c.JSON(http.StatusInternalServerError, errorBody("internal", "internal error"))
	}
}

func (a *API) handleLogin(c *gin.Context) {
	if !a.loginLimiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, errorBody("rate_limited", "too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", "username and password are required"))
		return
	}

	resp, err := a.auth.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, errorBody("unauthorized", "invalid credentials"))
			return
		}
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func paging(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	if limit < 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (a *API) handleListStock(c *gin.Context) {
	limit, offset := paging(c)
	records, err := a.service.ListStock(c.Request.Context(), store.StockFilter{
		BranchID:  c.Query("branch_id"),
		ProductID: c.Query("product_id"),
		LowOnly:   c.Query("low") == "true",
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": records})
}

func (a *API) handleLowStock(c *gin.Context) {
	records, err := a.service.ListStock(c.Request.Context(), store.StockFilter{
		BranchID: c.Query("branch_id"),
		LowOnly:  true,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": records})
}

func (a *API) handleReorderSuggestions(c *gin.Context) {
	suggestions, err := a.service.ListReorderSuggestions(c.Request.Context(), c.Query("branch_id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

func (a *API) handleStockByBranch(c *gin.Context) {
	records, err := a.service.ListStock(c.Request.Context(), store.StockFilter{
		BranchID: c.Param("branchId"),
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": records})
}

func (a *API) handleStockByProduct(c *gin.Context) {
	records, err := a.service.ListStock(c.Request.Context(), store.StockFilter{
		ProductID: c.Param("productId"),
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": records})
}

func (a *API) handleGetStockRecord(c *gin.Context) {
	rec, err := a.service.GetStockRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stockBody(rec))
}

func (a *API) handleRestock(c *gin.Context) {
	var req domain.RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	rec, err := a.service.Restock(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stockBody(rec))
}

func (a *API) handleRestockByID(c *gin.Context) {
	var req domain.RestockByIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	rec, err := a.service.RestockByID(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stockBody(rec))
}

func (a *API) handleAdjust(c *gin.Context) {
	var req domain.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	rec, err := a.service.Adjust(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stockBody(rec))
}

func (a *API) handleAdjustByID(c *gin.Context) {
	var req domain.AdjustByIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	rec, err := a.service.AdjustByID(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stockBody(rec))
}

// stockBody exposes the derived available count next to the raw
// counters.
func stockBody(rec *domain.StockRecord) gin.H {
	return gin.H{"stock": rec, "available": rec.Available()}
}

func (a *API) handleListMovements(c *gin.Context) {
	limit, offset := paging(c)
	filter := domain.MovementFilter{
		StockRecordID: c.Query("stock_record_id"),
		ProductID:     c.Query("product_id"),
		BranchID:      c.Query("branch_id"),
		Type:          c.Query("type"),
		Limit:         limit,
		Offset:        offset,
	}
	if raw := c.Query("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("validation_error", "from must be RFC3339"))
			return
		}
		filter.From = &ts
	}
	if raw := c.Query("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorBody("validation_error", "to must be RFC3339"))
			return
		}
		filter.To = &ts
	}

	movements, err := a.service.ListMovements(c.Request.Context(), filter)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": movements})
}

func (a *API) handleCreateTransfer(c *gin.Context) {
	var req domain.TransferCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	transfer, err := a.service.CreateTransfer(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transfer": transfer})
}

func (a *API) handleListTransfers(c *gin.Context) {
	limit, offset := paging(c)
	transfers, err := a.service.ListTransfers(c.Request.Context(), store.TransferFilter{
		ProductID: c.Query("product_id"),
		BranchID:  c.Query("branch_id"),
		Status:    c.Query("status"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfers": transfers})
}

func (a *API) handleGetTransfer(c *gin.Context) {
	transfer, err := a.service.GetTransfer(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfer": transfer})
}

func (a *API) handleTransferStatus(c *gin.Context) {
	var req domain.TransferStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("validation_error", err.Error()))
		return
	}
	transfer, err := a.service.UpdateTransferStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transfer": transfer})
}
