package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/profitpulse/query-gateway/internal/auth"
	"github.com/profitpulse/query-gateway/internal/errors"
	"github.com/profitpulse/query-gateway/internal/observability"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// QueryRequest is the body of POST /api/v1/chat/query. Any tenant field in
// the body is ignored; the tenant comes from the verified token.
type QueryRequest struct {
	Question string `json:"question"`
}

// HistoryEntry is one audited question as shown to its tenant
type HistoryEntry struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	SQL        string    `json:"sql"`
	Status     Status    `json:"status"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Category   string    `json:"category,omitempty"`
	RowCount   int       `json:"row_count"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// HistoryReader lists a tenant's recent questions, newest first
type HistoryReader interface {
	History(ctx context.Context, tenantID string, limit int) ([]HistoryEntry, error)
}

// Server exposes an Asker over HTTP
type Server struct {
	asker         Asker
	history       HistoryReader
	healthChecker *observability.HealthChecker
	logger        *observability.Logger
}

// NewServer creates the HTTP surface for asker
func NewServer(asker Asker) *Server {
	return &Server{
		asker:  asker,
		logger: observability.NewLogger("http"),
	}
}

// SetHistoryReader enables GET /api/v1/chat/history
func (s *Server) SetHistoryReader(history HistoryReader) {
	s.history = history
}

// SetHealthChecker sets the health checker behind /health and /ready
func (s *Server) SetHealthChecker(healthChecker *observability.HealthChecker) {
	s.healthChecker = healthChecker
}

// SetupRoutes builds the router. authMiddleware guards the chat routes; with
// none, every chat request is rejected as unauthenticated.
func (s *Server) SetupRoutes(authMiddleware ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(
		observability.RecoveryMiddleware(s.logger),
		observability.RequestLoggingMiddleware(s.logger),
		observability.CORSWithLogging(s.logger),
	)

	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, observability.GetGlobalMetrics().GetAll())
	})

	api := r.Group("/api/v1/chat")
	api.Use(authMiddleware...)
	{
		api.POST("/query", s.handleQuery)
		api.GET("/history", s.handleHistory)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.healthChecker == nil {
		c.JSON(http.StatusOK, gin.H{
			"status":  observability.HealthStatusHealthy,
			"service": "query-gateway",
		})
		return
	}

	response := s.healthChecker.GetHealthResponse(c.Request.Context())
	statusCode := http.StatusOK
	if response.Status == observability.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// handleReady only reports the overall status; a degraded optional
// dependency still accepts traffic.
func (s *Server) handleReady(c *gin.Context) {
	status := observability.HealthStatusHealthy
	if s.healthChecker != nil {
		status = s.healthChecker.GetOverallStatus(c.Request.Context())
	}

	if status == observability.HealthStatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "status": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true, "status": status})
}

func (s *Server) handleQuery(c *gin.Context) {
	tenantID, ok := auth.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, formatErrorResponse(errors.NewNotAuthenticatedError()))
		return
	}

	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, formatErrorResponse(errors.NewInvalidInputError("request body", "must be a JSON object with a question")))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		c.JSON(http.StatusBadRequest, formatErrorResponse(errors.NewInvalidInputError("question", "must not be empty")))
		return
	}

	outcome := s.asker.Ask(c.Request.Context(), Request{
		Question: req.Question,
		TenantID: tenantID,
	})

	// rejected and failed outcomes are content, not transport errors
	c.JSON(http.StatusOK, outcome)
}

func (s *Server) handleHistory(c *gin.Context) {
	tenantID, ok := auth.TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, formatErrorResponse(errors.NewNotAuthenticatedError()))
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, formatErrorResponse(errors.NewInvalidInputError("limit", "must be a positive integer")))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries := []HistoryEntry{}
	if s.history != nil {
		found, err := s.history.History(c.Request.Context(), tenantID, limit)
		if err != nil {
			s.logger.Error(c.Request.Context(), "Failed to read history", err, nil)
			c.JSON(http.StatusInternalServerError, formatErrorResponse(errors.NewDatabaseQueryError(err, "fetching query history")))
			return
		}
		if found != nil {
			entries = found
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// formatErrorResponse renders an error body without the underlying cause
func formatErrorResponse(err *errors.EnhancedError) gin.H {
	body := gin.H{
		"code":    err.Code,
		"message": err.Message,
	}
	if err.Details != "" {
		body["details"] = err.Details
	}
	if err.Suggestion != "" {
		body["suggestion"] = err.Suggestion
	}
	if len(err.Metadata) > 0 {
		body["metadata"] = err.Metadata
	}
	return gin.H{"error": body}
}
