package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"callcenter-routing/internal/auth"
	"callcenter-routing/internal/callqueue"
	"callcenter-routing/internal/history"
	"callcenter-routing/internal/notify"
	"callcenter-routing/internal/presence"
	"callcenter-routing/internal/rbac"
	"callcenter-routing/internal/telephony"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Calls    *callqueue.Service
	Hub      *notify.Hub
	Presence presence.Registry
	Inbox    *callqueue.Inbox
	Resolver telephony.Resolver
	Adapters *telephony.Registry
	History  *history.Service
	Log      *slog.Logger
}

func (h Handlers) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// --- Auth ---

type loginRequest struct {
	AgentID  string `json:"agent_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.AgentID == "" || req.TenantID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_id, tenant_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.AgentID, req.TenantID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

// Answer claims a ringing or queued call for the authenticated agent.
// The race loser gets 409 with the winning agent's id.
func (h Handlers) Answer(c *gin.Context) {
	tenantID, agentID, ok := identity(c)
	if !ok {
		return
	}
	item, err := h.Calls.Answer(c.Request.Context(), tenantID, c.Param("call_id"), agentID)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h Handlers) Hold(c *gin.Context) {
	tenantID, agentID, ok := identity(c)
	if !ok {
		return
	}
	item, err := h.Calls.Hold(c.Request.Context(), tenantID, c.Param("call_id"), agentID)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h Handlers) Resume(c *gin.Context) {
	tenantID, agentID, ok := identity(c)
	if !ok {
		return
	}
	item, err := h.Calls.Resume(c.Request.Context(), tenantID, c.Param("call_id"), agentID)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h Handlers) End(c *gin.Context) {
	tenantID, agentID, ok := identity(c)
	if !ok {
		return
	}
	item, err := h.Calls.End(c.Request.Context(), tenantID, c.Param("call_id"), agentID)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type transferRequest struct {
	TargetAgentID string `json:"target_agent_id"`
}

func (h Handlers) Transfer(c *gin.Context) {
	tenantID, agentID, ok := identity(c)
	if !ok {
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TargetAgentID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "target_agent_id required"})
		return
	}
	item, err := h.Calls.Transfer(c.Request.Context(), tenantID, c.Param("call_id"), agentID, req.TargetAgentID)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// AcceptTransfer completes a pending transfer for the authenticated target.
func (h Handlers) AcceptTransfer(c *gin.Context) {
	tenantID, agentID, ok := identity(c)
	if !ok {
		return
	}
	item, err := h.Calls.AcceptTransfer(c.Request.Context(), tenantID, c.Param("call_id"), agentID)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type placeCallRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PlaceCall originates an outbound call from one of the tenant's lines and
// starts tracking it.
func (h Handlers) PlaceCall(c *gin.Context) {
	tenantID, agentID, ok := identity(c)
	if !ok {
		return
	}
	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.From == "" || req.To == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to required"})
		return
	}

	ctx := c.Request.Context()
	n, cfg, err := h.Resolver.NumberByDialed(ctx, req.From)
	if err != nil || n.TenantID != tenantID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "line not found"})
		return
	}
	if !n.Can(telephony.CapabilityOutbound) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "line cannot place outbound calls"})
		return
	}
	adapter, err := h.Adapters.Get(cfg.Type)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "provider not available"})
		return
	}

	res, err := adapter.PlaceOutboundCall(ctx, telephony.OutboundCallRequest{From: n.Number, To: req.To}, cfg)
	if err != nil {
		h.logger().Error("outbound placement failed", "tenant", tenantID, "provider", cfg.Type, "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "provider request failed"})
		return
	}
	if !res.Success {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "provider rejected call", "detail": res.Detail})
		return
	}

	item, err := h.Calls.TrackOutbound(ctx, tenantID, agentID, n.ID, cfg.Type, res.ExternalCallID, req.To)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (h Handlers) GetCall(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	item, err := h.Calls.Get(c.Request.Context(), tenantID, c.Param("call_id"))
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// GetQueue returns the tenant's live calls ordered by queue position.
func (h Handlers) GetQueue(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	items, err := h.Calls.LiveQueue(c.Request.Context(), tenantID)
	if err != nil {
		writeCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": items})
}

// --- Presence ---

type heartbeatRequest struct {
	Extension string `json:"extension,omitempty"`
	Available bool   `json:"available"`
}

// Heartbeat refreshes the authenticated agent's presence record.
func (h Handlers) Heartbeat(c *gin.Context) {
	tenantID, agentID, ok := identity(c)
	if !ok {
		return
	}
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := h.Presence.Heartbeat(c.Request.Context(), tenantID, presence.Agent{
		AgentID:   agentID,
		Extension: req.Extension,
		Available: req.Available,
	})
	if err != nil {
		h.logger().Error("heartbeat failed", "tenant", tenantID, "agent", agentID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) AvailableAgents(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	agents, err := h.Presence.Available(c.Request.Context(), tenantID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "presence lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

// --- Providers ---

// GetProvider returns one of the tenant's provider configurations, or the
// default one when no type is given. Credentials never leave the server;
// ProviderConfig excludes its Config map from JSON.
func (h Handlers) GetProvider(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}

	var (
		cfg telephony.ProviderConfig
		err error
	)
	if raw := c.Query("type"); raw != "" {
		pt := telephony.ProviderType(raw)
		if !pt.Valid() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown provider type"})
			return
		}
		cfg, err = h.Resolver.Provider(c.Request.Context(), tenantID, pt)
	} else {
		cfg, err = h.Resolver.DefaultProvider(c.Request.Context(), tenantID)
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "provider not configured"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// --- History ---

// HistorySummary aggregates archived calls over ?from=..&to=.. (RFC 3339).
func (h Handlers) HistorySummary(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	r, err := parseTimeRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sum, err := h.History.Summarize(c.Request.Context(), tenantID, r)
	if err != nil {
		if errors.Is(err, history.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) HistoryList(c *gin.Context) {
	tenantID, _, ok := identity(c)
	if !ok {
		return
	}
	r, err := parseTimeRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	recs, err := h.History.List(c.Request.Context(), tenantID, r)
	if err != nil {
		if errors.Is(err, history.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid time range"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func parseTimeRange(c *gin.Context) (history.TimeRange, error) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		return history.TimeRange{}, errors.New("from must be RFC 3339")
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		return history.TimeRange{}, errors.New("to must be RFC 3339")
	}
	return history.TimeRange{From: from, To: to}, nil
}

// --- Helpers ---

func identity(c *gin.Context) (tenantID, agentID string, ok bool) {
	tid, err := auth.TenantID(c.Request.Context())
	if err != nil || tid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "tenant_id required"})
		return "", "", false
	}
	aid, err := auth.AgentID(c.Request.Context())
	if err != nil || aid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "agent_id required"})
		return "", "", false
	}
	return tid, aid, true
}

// writeCallError maps call service errors onto HTTP statuses. Conflicts
// (lost answer race, wrong-state action) are 409 so consoles can refresh.
func writeCallError(c *gin.Context, err error) {
	var aa *callqueue.AlreadyAnsweredError
	switch {
	case errors.As(err, &aa):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already answered", "answered_by": aa.AnsweredBy})
	case callqueue.IsInvalidTransition(err):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, callqueue.ErrNoAvailableAgent):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "target agent not available"})
	case errors.Is(err, callqueue.ErrDuplicateCall):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already exists"})
	case errors.Is(err, callqueue.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, callqueue.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Convenience middleware bundles.

func RequireTenantAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireTenant(), rbac.RequireAnyRole(roles...)}
}
