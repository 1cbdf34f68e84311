package router

import (
	"github.com/cuongbtq/sensei-scan/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.Health)

	scanHandler := handler.NewScanHandler(deps)

	v1 := r.Group("/api/v1")
	{
		scans := v1.Group("/scans")
		{
			scans.POST("", scanHandler.SubmitScan)
			scans.GET("", scanHandler.ListScans)
			scans.GET("/:job_id", scanHandler.GetScan)
		}

		v1.GET("/reports/:result_id", scanHandler.GetReport)
	}

	return r
}
