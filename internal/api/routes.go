package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ajharbinger/perfeval/internal/services"
)

// HealthCheck reports whether a backing dependency is reachable
type HealthCheck func(ctx context.Context) error

// RouteOptions carries the optional parts of the router
type RouteOptions struct {
	// HealthChecks are run by GET /health, keyed by component name
	HealthChecks map[string]HealthCheck
	// Metrics exposes the Prometheus registry on GET /metrics
	Metrics bool
}

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, svc *services.Services, opts RouteOptions) {
	indicatorHandler := NewIndicatorHandler(svc.Indicator, svc.Category, svc.Channel)
	modelHandler := NewModelHandler(svc.Model, svc.Rule)
	draftHandler := NewDraftHandler(svc.Model)
	ruleHandler := NewRuleHandler(svc.Rule)
	channelHandler := NewChannelHandler(svc.Channel)
	runHandler := NewRunHandler(svc.Evaluation)

	r.GET("/health", healthHandler(opts.HealthChecks))
	if opts.Metrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		// Indicator library
		v1.GET("/indicators", indicatorHandler.ListIndicators)
		v1.POST("/indicators", indicatorHandler.CreateIndicator)
		v1.GET("/indicators/:id", indicatorHandler.GetIndicator)
		v1.PUT("/indicators/:id", indicatorHandler.UpdateIndicator)
		v1.DELETE("/indicators/:id", indicatorHandler.DeleteIndicator)
		v1.GET("/indicators/:id/preview", indicatorHandler.PreviewIndicator)

		// Category tree
		v1.GET("/categories", indicatorHandler.GetCategories)
		v1.POST("/categories", indicatorHandler.CreateCategory)
		v1.PUT("/categories/:id", indicatorHandler.RenameCategory)
		v1.POST("/categories/:id/toggle", indicatorHandler.ToggleCategory)
		v1.DELETE("/categories/:id", indicatorHandler.DeleteCategory)

		// Evaluation models
		v1.GET("/models", modelHandler.ListModels)
		v1.POST("/models", modelHandler.CreateModel)
		v1.GET("/models/:id", modelHandler.GetModel)
		v1.PUT("/models/:id", modelHandler.UpdateModel)
		v1.DELETE("/models/:id", modelHandler.DeleteModel)
		v1.POST("/models/:id/copy", modelHandler.CopyModel)
		v1.GET("/models/:id/history", modelHandler.GetModelHistory)
		v1.GET("/models/:id/weights", modelHandler.CheckModelWeights)
		v1.GET("/models/:id/rules", modelHandler.DescribeModel)
		v1.POST("/models/:id/evaluate", modelHandler.EvaluateModel)

		// Model wizard
		v1.POST("/drafts", draftHandler.CreateDraft)
		v1.GET("/drafts/:id", draftHandler.GetDraft)
		v1.DELETE("/drafts/:id", draftHandler.CancelDraft)
		v1.PUT("/drafts/:id/basic-info", draftHandler.SetBasicInfo)
		v1.POST("/drafts/:id/indicators", draftHandler.AddIndicator)
		v1.PATCH("/drafts/:id/indicators/:indicatorId", draftHandler.UpdateIndicator)
		v1.DELETE("/drafts/:id/indicators/:indicatorId", draftHandler.RemoveIndicator)
		v1.PUT("/drafts/:id/grades", draftHandler.SetGrades)
		v1.POST("/drafts/:id/next", draftHandler.NextStep)
		v1.POST("/drafts/:id/back", draftHandler.PreviousStep)
		v1.POST("/drafts/:id/save", draftHandler.SaveDraft)

		// Rule editor helpers
		v1.GET("/rules/types", ruleHandler.GetRuleTypes)
		v1.POST("/rules/describe", ruleHandler.DescribeRule)
		v1.POST("/rules/validate", ruleHandler.ValidateRule)
		v1.POST("/rules/evaluate", ruleHandler.EvaluateRule)

		// Data channels
		v1.GET("/connections", channelHandler.ListConnections)
		v1.POST("/connections", channelHandler.CreateConnection)
		v1.GET("/connections/health", channelHandler.GetChannelHealth)
		v1.GET("/connections/:id", channelHandler.GetConnection)
		v1.PUT("/connections/:id", channelHandler.UpdateConnection)
		v1.DELETE("/connections/:id", channelHandler.DeleteConnection)
		v1.POST("/connections/:id/test", channelHandler.TestConnection)
		v1.POST("/connections/:id/sync", channelHandler.SyncConnection)
		v1.POST("/connections/:id/records", channelHandler.ImportRecords)

		// Data archive
		v1.GET("/records", channelHandler.ListRecords)

		// Evaluation runs
		v1.POST("/runs", runHandler.StartRun)
		v1.GET("/runs", runHandler.ListRuns)
		v1.GET("/runs/:id", runHandler.GetRun)
	}
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := "healthy"
		code := http.StatusOK
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				components[name] = err.Error()
				status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			components[name] = "ok"
		}
		c.JSON(code, gin.H{
			"status":     status,
			"components": components,
			"timestamp":  time.Now(),
		})
	}
}
