// Package api is the HTTP adapter (C9): a thin gin router translating
// spec.md §6's external interfaces onto internal/executor and internal/store.
// Its handler/route-group shape is grounded on the NGOClaw gateway's
// interfaces/http/server.go (router.Use(gin.Recovery()+logger middleware),
// versioned route groups, one handler type per concern).
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/clcummin/threat-designer/internal/executor"
	"github.com/clcummin/threat-designer/internal/store"
)

// Deps bundles the collaborators the router's handlers need.
type Deps struct {
	Executor *executor.Executor
	Store    *store.Store
	Logger   *zap.Logger
	// UploadBucket names the synthetic bucket generated upload keys are
	// addressed under, so a generated name round-trips through
	// store.NormalizeS3Location as a valid s3_location (spec.md §3/§6).
	UploadBucket string
	// WSHandler, if set, serves GET /ws (A5, job-status push). Left nil in
	// tests that don't exercise the websocket surface.
	WSHandler gin.HandlerFunc
}

func (d Deps) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

// NewRouter builds the gin.Engine exposing spec.md §4.7/§6's endpoints.
func NewRouter(deps Deps) *gin.Engine {
	if deps.UploadBucket == "" {
		deps.UploadBucket = "threat-designer-uploads"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.logger()))

	h := &handler{deps: deps}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/jobs", h.start)
		v1.GET("/jobs", h.getAllResults)
		v1.GET("/jobs/:id/status", h.getStatus)
		v1.GET("/jobs/:id/trail", h.getTrail)
		v1.GET("/jobs/:id/results", h.getResults)
		v1.PATCH("/jobs/:id", h.update)
		v1.POST("/jobs/:id/restore", h.restore)
		v1.DELETE("/jobs/:id", h.delete)
		v1.POST("/jobs/:id/interrupt", h.interrupt)

		v1.POST("/uploads", h.generateUploadURL)
		v1.PUT("/uploads/:key", h.putUploadBlob)
		v1.GET("/uploads/:key", h.getDownloadBlob)
	}

	if deps.WSHandler != nil {
		router.GET("/ws", deps.WSHandler)
	}

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

type handler struct {
	deps Deps
}
