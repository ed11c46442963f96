package main

import (
	"callcenter-routing/internal/auth"
	"callcenter-routing/internal/httpapi"
	"callcenter-routing/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider callbacks (public; adapters authenticate each payload).
	r.POST("/webhooks/:tenant_id/:provider_type", h.ProviderWebhook)

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	// protected API group
	protected := v1.Group("")
	protected.Use(authMW)
	{
		protected.GET("/me", func(c *gin.Context) {
			aid, _ := auth.AgentID(c.Request.Context())
			tid, _ := auth.TenantID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"agent_id": aid, "tenant_id": tid, "role": role})
		})

		// CALLS routes
		calls := protected.Group("/calls")
		calls.Use(rbac.RequireTenant())
		calls.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor))
		{
			calls.GET("", h.GetQueue)
			calls.POST("", h.PlaceCall)
			calls.GET("/stream", h.StreamQueue)
			calls.GET("/:call_id", h.GetCall)
			calls.POST("/:call_id/answer", h.Answer)
			calls.POST("/:call_id/hold", h.Hold)
			calls.POST("/:call_id/resume", h.Resume)
			calls.POST("/:call_id/transfer", h.Transfer)
			calls.POST("/:call_id/transfer/accept", h.AcceptTransfer)
			calls.POST("/:call_id/end", h.End)
		}

		// PROVIDER routes (read-only tenant configuration)
		prov := protected.Group("/providers")
		prov.Use(rbac.RequireTenant())
		prov.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor))
		{
			prov.GET("", h.GetProvider)
		}

		// PRESENCE routes
		pres := protected.Group("/presence")
		pres.Use(rbac.RequireTenant())
		pres.Use(rbac.RequireAnyRole(rbac.RoleAgent, rbac.RoleSupervisor))
		{
			pres.POST("/heartbeat", h.Heartbeat)
			pres.GET("/agents", h.AvailableAgents)
		}

		// HISTORY routes (supervisors; admin bypasses)
		hist := protected.Group("/history")
		hist.Use(rbac.RequireTenant())
		hist.Use(rbac.RequireAnyRole(rbac.RoleSupervisor))
		{
			hist.GET("", h.HistoryList)
			hist.GET("/summary", h.HistorySummary)
		}
	}
}
