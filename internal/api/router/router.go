package router

import (
	"net/http"

	"github.com/cuongbtq/pathogen-analysis/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	health := healthHandler(deps)
	r.GET("/health", health)

	analysisHandler := handler.NewAnalysisHandler(deps)
	labHandler := handler.NewLabHandler(deps)
	patientHandler := handler.NewPatientHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", health)

		v1.GET("/analysis", analysisHandler.GetAnalysis)
		v1.POST("/analysis", analysisHandler.CreateAnalysis)
		v1.PUT("/analysis", analysisHandler.UpdateAnalysis)

		labs := v1.Group("/labs")
		{
			labs.GET("", labHandler.ListLabs)
			labs.GET("/results/:lab_id", labHandler.ListLabResults)
			labs.GET("/results/:lab_id/summary", labHandler.LabSummary)
		}

		v1.GET("/patients/results", patientHandler.ListPatientResults)
	}

	return r
}

func healthHandler(deps *handler.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"detail": err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	}
}
