package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/herbtrace-api/internal/middleware"
	"github.com/noah-isme/herbtrace-api/internal/models"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Workflow    *WorkflowHandler
	SupplyChain *SupplyChainHandler
	Provenance  *ProvenanceHandler
	Photo       *PhotoHandler
	Analytics   *AnalyticsHandler
}

// RegisterRoutes mounts the public and authenticated routes on group.
// auth runs before role checks; idempotency runs after auth so keys are scoped per caller.
func RegisterRoutes(group *gin.RouterGroup, h Handlers, auth gin.HandlerFunc, idempotency gin.HandlerFunc) {
	group.GET("/provenance/:token", h.Provenance.Get)
	group.GET("/photos/:token", h.Photo.Serve)

	secured := group.Group("")
	secured.Use(auth)
	if idempotency != nil {
		secured.Use(idempotency)
	}

	farmer := middleware.RequireRoles(models.RoleFarmer)
	lab := middleware.RequireRoles(models.RoleLabTechnician)
	processor := middleware.RequireRoles(models.RoleProcessor)
	manager := middleware.RequireRoles(models.RoleSupplyManager)
	staff := middleware.RequireRoles(models.RoleFarmer, models.RoleLabTechnician, models.RoleProcessor, models.RoleSupplyManager)

	harvests := secured.Group("/harvests")
	harvests.POST("", farmer, h.Workflow.RecordHarvest)
	harvests.GET("/mine", farmer, h.SupplyChain.MyHarvests)
	harvests.GET("/pending", lab, h.SupplyChain.PendingHarvests)
	harvests.GET("/:id/photo", staff, h.Photo.Link)

	tests := secured.Group("/test-results")
	tests.POST("", lab, h.Workflow.RecordTestResult)
	tests.GET("", staff, h.SupplyChain.TestResults)

	batches := secured.Group("/processing-batches")
	batches.POST("", processor, h.Workflow.CreateProcessingBatch)
	batches.GET("/completed", staff, h.SupplyChain.CompletedBatches)
	batches.POST("/:id/steps", processor, h.Workflow.AppendStep)
	batches.POST("/:id/finish", processor, h.Workflow.FinishBatch)
	secured.GET("/processing-steps/recent", staff, h.SupplyChain.RecentSteps)

	lots := secured.Group("/lots")
	lots.GET("", staff, h.SupplyChain.ListLots)
	lots.GET("/:id", staff, h.SupplyChain.GetLot)
	lots.POST("/:id/finalize", manager, h.Workflow.FinalizeLot)
	lots.POST("/:id/certificates", manager, h.Workflow.IssueCertificate)

	secured.GET("/workflow/pending/:stage", staff, h.Workflow.Pending)
	secured.GET("/analytics", manager, h.Analytics.Summary)
}
