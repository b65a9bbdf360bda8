package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shmookey/coconut/pkg/archive"
	"github.com/shmookey/coconut/pkg/logger"
	"github.com/shmookey/coconut/pkg/middleware"
	"github.com/shmookey/coconut/pkg/odm"
	"github.com/shmookey/coconut/pkg/revision"
)

// Deps are the collaborators the HTTP API is built from. Only Session is
// required.
type Deps struct {
	Session   *odm.Session
	Revisions *revision.Recorder
	Archiver  *archive.Archiver
	// Verifier enables bearer authentication on /api when set.
	Verifier middleware.Verifier
	// RateLimit is applied to /api after authentication when set.
	RateLimit gin.HandlerFunc
	Gatherer  prometheus.Gatherer
}

var startTime = time.Now()

// requestLogger logs one line per request at debug level, errors at warn.
func requestLogger() gin.HandlerFunc {
	log := logger.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := log.Debug()
		if status >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// NewRouter builds the gin engine serving health, metrics, the OpenAPI
// document and the document API.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"types":     len(d.Session.Types()),
			"revisions": d.Revisions != nil,
			"archive":   d.Archiver != nil,
			"uptime":    time.Since(startTime).String(),
		})
	})
	g := d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	RegisterSwagger(r, d.Session)

	api := r.Group("/api")
	if d.Verifier != nil {
		api.Use(middleware.AuthMiddleware(d.Verifier))
	}
	if d.RateLimit != nil {
		api.Use(d.RateLimit)
	}
	RegisterDocumentRoutes(api, d.Session, d.Revisions, d.Archiver)
	return r
}
