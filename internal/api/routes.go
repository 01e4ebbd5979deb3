// Package api exposes the read API and the websocket alert stream.
package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rawblock/titan-engine/internal/config"
	"github.com/rawblock/titan-engine/internal/db"
	"github.com/rawblock/titan-engine/internal/streams"
)

type APIHandler struct {
	cfg     *config.Config
	dbStore *db.PostgresStore
	redis   *streams.Client
	wsHub   *Hub
	log     zerolog.Logger
}

func SetupRouter(cfg *config.Config, dbStore *db.PostgresStore, redis *streams.Client, wsHub *Hub, logger zerolog.Logger) *gin.Engine {
	r := gin.Default()

	// CORS — configurable via ALLOWED_ORIGINS
	// Production: ALLOWED_ORIGINS=https://titan.example.com
	// Development: leave empty for *
	allowedOrigins := cfg.AllowedOrigins
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{cfg: cfg, dbStore: dbStore, redis: redis, wsHub: wsHub, log: logger}

	limiter := NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst)

	api := r.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/alerts", handler.handleListAlerts)
		api.GET("/alerts/:id", handler.handleGetAlert)
		api.GET("/wallets", handler.handleListWallets)
		api.GET("/wallets/:chain/:address", handler.handleGetWallet)
		api.GET("/tokens/:chain/:address/risk", handler.handleGetTokenRisk)
		api.GET("/regime", handler.handleRegime)
		api.GET("/stream", wsHub.Subscribe)

		api.GET("/ops/health", handler.handleOpsHealth)
		api.GET("/ops/metrics", handler.handleOpsMetrics)

		api.GET("/settings", handler.handleListSettings)
		api.GET("/settings/:key", handler.handleGetSetting)

		authed := api.Group("")
		authed.Use(AuthMiddleware(cfg.APIAuthToken, logger))
		authed.PUT("/settings/:key", handler.handlePutSetting)
		authed.POST("/settings/:key/preview", handler.handlePreviewSetting)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "Titan Signal Engine v1.0",
		"chains": []string{"ethereum", "bsc"},
		"capabilities": gin.H{
			"netev_gate":       true,
			"merit_engine":     true,
			"outcome_replay":   true,
			"watch_autopilot":  true,
			"alert_narratives": h.cfg.OllamaURL != "",
		},
	})
}

func (h *APIHandler) handleListAlerts(c *gin.Context) {
	chain := c.Query("chain")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	alerts, totalCount, err := h.dbStore.ListAlerts(c.Request.Context(), chain, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alerts", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       alerts,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

func (h *APIHandler) handleGetAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid alert id"})
		return
	}
	alert, err := h.dbStore.GetAlert(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch alert", "details": err.Error()})
		return
	}
	if alert == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *APIHandler) handleListWallets(c *gin.Context) {
	tier := c.Query("tier")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	wallets, totalCount, err := h.dbStore.ListWallets(c.Request.Context(), tier, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch wallets", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":       wallets,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

func (h *APIHandler) handleGetWallet(c *gin.Context) {
	chain := strings.ToLower(c.Param("chain"))
	address := strings.ToLower(c.Param("address"))

	wallet, err := h.dbStore.GetWallet(c.Request.Context(), chain, address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch wallet", "details": err.Error()})
		return
	}
	if wallet == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
		return
	}

	metric, err := h.dbStore.GetWalletMetric(c.Request.Context(), chain, address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch wallet metric", "details": err.Error()})
		return
	}
	positions, err := h.dbStore.ListPositions(c.Request.Context(), chain, address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch positions", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet":    wallet,
		"metric":    metric,
		"positions": positions,
	})
}

func (h *APIHandler) handleGetTokenRisk(c *gin.Context) {
	chain := strings.ToLower(c.Param("chain"))
	address := strings.ToLower(c.Param("address"))

	risk, err := h.dbStore.GetTokenRisk(c.Request.Context(), chain, address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch token risk", "details": err.Error()})
		return
	}
	if risk == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Token not scored yet"})
		return
	}
	c.JSON(http.StatusOK, risk)
}

// handleRegime summarizes recent outcome quality into a coarse market stance.
func (h *APIHandler) handleRegime(c *gin.Context) {
	windowHours, _ := strconv.Atoi(c.DefaultQuery("window", "24"))
	metrics, err := h.dbStore.CollectOpsMetrics(c.Request.Context(), windowHours)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect metrics", "details": err.Error()})
		return
	}

	regime := "neutral"
	avgNet := metrics.AvgNetByHorizon[360]
	switch {
	case metrics.TrapRate != nil && *metrics.TrapRate > 0.3:
		regime = "risk_off"
	case avgNet > 0.02 && metrics.TrapRate != nil && *metrics.TrapRate < 0.1:
		regime = "risk_on"
	case avgNet < -0.02:
		regime = "risk_off"
	}

	c.JSON(http.StatusOK, gin.H{
		"regime":      regime,
		"trapRate":    metrics.TrapRate,
		"avgNet6h":    avgNet,
		"windowHours": windowHours,
	})
}

// handleOpsHealth reports worker heartbeats and stream backlogs.
func (h *APIHandler) handleOpsHealth(c *gin.Context) {
	ages, err := h.redis.HeartbeatAges(c.Request.Context(), config.AllWorkers)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read heartbeats", "details": err.Error()})
		return
	}

	backlogs := gin.H{}
	for stream, group := range map[string]string{
		streams.StreamRawEvents:     "decoders",
		streams.StreamDecodedTrades: "risk-enqueue",
		streams.StreamRiskJobs:      "risk-workers",
		streams.StreamProfileJobs:   "profilers",
	} {
		n, err := h.redis.PendingCount(c.Request.Context(), stream, group)
		if err != nil {
			backlogs[stream] = -1
			continue
		}
		backlogs[stream] = n
	}

	degraded := false
	for _, age := range ages {
		if age < 0 || age > 60 {
			degraded = true
		}
	}
	status := "healthy"
	if degraded {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"heartbeats":      ages,
		"pendingByStream": backlogs,
	})
}

func (h *APIHandler) handleOpsMetrics(c *gin.Context) {
	windowHours, _ := strconv.Atoi(c.DefaultQuery("window", "24"))
	metrics, err := h.dbStore.CollectOpsMetrics(c.Request.Context(), windowHours)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to collect metrics", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (h *APIHandler) handleListSettings(c *gin.Context) {
	settings, err := h.dbStore.ListSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list settings", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *APIHandler) handleGetSetting(c *gin.Context) {
	value, err := h.dbStore.GetSetting(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch setting", "details": err.Error()})
		return
	}
	if value == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Setting not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": value})
}

func (h *APIHandler) handlePutSetting(c *gin.Context) {
	var value map[string]any
	if err := c.ShouldBindJSON(&value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body, expected a JSON object"})
		return
	}
	if err := h.dbStore.PutSetting(c.Request.Context(), c.Param("key"), value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store setting", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": c.Param("key"), "value": value})
}

// handlePreviewSetting merges the posted value over the stored one without
// persisting, so operators can inspect the effective result first.
func (h *APIHandler) handlePreviewSetting(c *gin.Context) {
	var value map[string]any
	if err := c.ShouldBindJSON(&value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body, expected a JSON object"})
		return
	}
	current, err := h.dbStore.GetSetting(c.Request.Context(), c.Param("key"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch setting", "details": err.Error()})
		return
	}

	merged := make(map[string]any, len(current)+len(value))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range value {
		merged[k] = v
	}

	c.JSON(http.StatusOK, gin.H{
		"key":      c.Param("key"),
		"current":  current,
		"proposed": value,
		"merged":   merged,
	})
}
