package router

import (
	"github.com/cuongbtq/papergen/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	jobHandler := handler.NewJobHandler(deps)
	bodyLimit := BodyLimitMiddleware(deps.Gateway.Limits().EncodedLimit())

	r.GET("/health", jobHandler.Health)

	// Path used by the upload form
	r.POST("/api/generate", bodyLimit, jobHandler.Generate)

	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/generate - Run a generation job and return its output
		v1.POST("/generate", bodyLimit, jobHandler.Generate)

		// GET /api/v1/jobs/:job_id - Status of a live job
		v1.GET("/jobs/:job_id", jobHandler.GetJob)
	}

	return r
}
