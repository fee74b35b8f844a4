package api

import (
	"github.com/gin-gonic/gin"

	"gospatial/internal"
)

// NewRouter wires the results API routes
func NewRouter(results ResultsReader, logger *internal.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(internal.OrDefault(logger).With("http")))

	h := NewResultsHandler(results, logger)
	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/results", h.ListResults)
		v1.GET("/results/radii", h.ListRadii)
		v1.GET("/runs", h.ListRuns)
	}
	return r
}

func requestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.Debug("%s %s -> %d", c.Request.Method, c.Request.URL.RequestURI(), c.Writer.Status())
	}
}
