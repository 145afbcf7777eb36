package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Set holds every handler mounted by Register. Nil handlers leave their
// routes unregistered.
type Set struct {
	Claims   *ClaimHandler
	Analysis *AnalysisHandler
	Review   *ReviewHandler
	Clusters *ClusterHandler
	Outputs  *OutputHandler
	Audit    *AuditHandler
	Admin    *AdminHandler
	Health   *HealthHandler
	Events   *EventsHandler
}

// Register mounts the JSON API under /api/v1 and the event stream under
// /ws.
func Register(app *fiber.App, h Set) {
	api := app.Group("/api/v1")

	if h.Claims != nil {
		api.Post("/claims", h.Claims.CreateClaim)
		api.Get("/claims", h.Claims.ListClaims)
		api.Get("/claims/:id", h.Claims.GetClaim)
		api.Get("/claims/:id/related", h.Claims.RelatedClaims)
		api.Post("/claims/:id/analyze", h.Claims.AnalyzeClaim)
	}
	if h.Analysis != nil {
		api.Get("/analysis/:claimId", h.Analysis.GetAnalysis)
	}
	if h.Review != nil {
		api.Post("/review/escalate", h.Review.Escalate)
		api.Post("/review/resolve", h.Review.Resolve)
	}
	if h.Clusters != nil {
		api.Get("/clusters", h.Clusters.ListClusters)
		api.Post("/clusters/recompute", h.Clusters.Recompute)
		api.Get("/clusters/:id", h.Clusters.GetCluster)
	}
	if h.Outputs != nil {
		api.Post("/outputs", h.Outputs.GenerateOutputs)
	}
	if h.Audit != nil {
		api.Get("/audit", h.Audit.ListAuditLogs)
	}
	if h.Admin != nil {
		api.Delete("/admin/reset", h.Admin.Reset)
	}
	if h.Health != nil {
		api.Get("/health", h.Health.Health)
		api.Get("/ready", h.Health.Ready)
	}
	if h.Events != nil {
		app.Get("/ws/claims/:id", h.Events.Upgrade, websocket.New(h.Events.HandleConnection))
	}
}
