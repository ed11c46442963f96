package httpapi

import (
	"io"
	"net/http"

	"callcenter-routing/internal/callqueue"
	"callcenter-routing/internal/telephony"

	"github.com/gin-gonic/gin"
)

// webhookBodyLimit bounds provider callback payloads.
const webhookBodyLimit = 1 << 20

// ProviderWebhook receives one provider callback on
// POST /webhooks/:tenant_id/:provider_type.
//
// The adapter authenticates the payload before parsing it; a failed
// signature or token check is 401 with no state change. Parsed events are
// enqueued, not applied inline, so slow transitions never back up the
// provider's retry loop.
func (h Handlers) ProviderWebhook(c *gin.Context) {
	tenantID := c.Param("tenant_id")
	pt := telephony.ProviderType(c.Param("provider_type"))
	if tenantID == "" || !pt.Valid() {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown endpoint"})
		return
	}

	ctx := c.Request.Context()
	cfg, err := h.Resolver.Provider(ctx, tenantID, pt)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown endpoint"})
		return
	}
	if cfg.WebhookMode == telephony.WebhookModeEventStream {
		// This tenant delivers events over the manager stream only.
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown endpoint"})
		return
	}
	adapter, err := h.Adapters.Get(pt)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown endpoint"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, webhookBodyLimit))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ev, err := adapter.ParseWebhook(ctx, telephony.WebhookRequest{
		Headers:     c.Request.Header,
		Body:        body,
		ContentType: c.ContentType(),
	}, cfg)
	switch {
	case err == nil:
	case telephony.IsAuthError(err):
		h.logger().Warn("webhook auth rejected", "tenant", tenantID, "provider", pt)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	case telephony.IsParseError(err):
		h.logger().Warn("webhook payload rejected", "tenant", tenantID, "provider", pt, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	phoneNumberID := ""
	if n, _, err := h.Resolver.NumberByDialed(ctx, ev.CalledNumber); err == nil && n.TenantID == tenantID {
		phoneNumberID = n.ID
	} else {
		h.logger().Warn("webhook for unregistered number",
			"tenant", tenantID, "provider", pt, "called", ev.CalledNumber)
	}

	ok := h.Inbox.Enqueue(ctx, callqueue.InboundEnvelope{
		TenantID:      tenantID,
		PhoneNumberID: phoneNumberID,
		Provider:      pt,
		Event:         ev,
	})
	if !ok {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "try again"})
		return
	}
	c.Status(http.StatusNoContent)
}
