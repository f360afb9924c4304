// Package server exposes the streaming orchestration core over HTTP. Event
// streams are framed as Server-Sent Events, one event per message; the
// maintenance surface (health, status, cleanup) and Prometheus metrics are
// served alongside.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	prodfc "github.com/aditya-dange-m0/prod-fc"
	"github.com/aditya-dange-m0/prod-fc/core"
	"github.com/aditya-dange-m0/prod-fc/logging"
)

// Options configure the Server.
type Options struct {
	CORSOrigins []string
	Logger      logging.Logger
}

// Server wires the Service to the gin router.
type Server struct {
	svc    *prodfc.Service
	router *gin.Engine
	logger logging.Logger
}

// AgentRequest is the single-agent stream request body.
type AgentRequest struct {
	Message                 string `json:"message" binding:"required"`
	UserID                  string `json:"user_id"`
	ProjectID               string `json:"project_id"`
	StreamIntermediateSteps *bool  `json:"stream_intermediate_steps"`
}

// TeamRequest is the team stream request body.
type TeamRequest struct {
	Message                 string         `json:"message" binding:"required"`
	TeamConfig              map[string]any `json:"team_config"`
	StreamIntermediateSteps *bool          `json:"stream_intermediate_steps"`
}

// New constructs a Server and registers its routes.
func New(svc *prodfc.Service, optFns ...func(o *Options)) *Server {
	opts := Options{
		CORSOrigins: []string{"*"},
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(opts.CORSOrigins) == 1 && opts.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.CORSOrigins
	}
	corsCfg.AllowCredentials = len(opts.CORSOrigins) != 1 || opts.CORSOrigins[0] != "*"
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"*"}
	router.Use(cors.New(corsCfg))

	s := &Server{svc: svc, router: router, logger: opts.Logger}

	v1 := router.Group("/api/v1")
	v1.POST("/agent/stream", s.handleAgentStream)
	v1.POST("/team/stream", s.handleTeamStream)
	v1.GET("/health", s.handleHealth)
	v1.GET("/agents/status", s.handleAgentsStatus)
	v1.DELETE("/agents/cleanup", s.handleCleanup)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

// Router returns the underlying gin engine, e.g. for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves HTTP on addr until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("server listening", "addr", addr)
	return s.router.Run(addr)
}

func (s *Server) handleAgentStream(c *gin.Context) {
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if req.UserID == "" {
		req.UserID = "default_user"
	}
	if req.ProjectID == "" {
		req.ProjectID = "default_project"
	}

	ctx, cancel := newRunContext(c)
	defer cancel()

	stream, err := s.svc.BeginAgent(ctx, prodfc.AgentRequest{
		Message:                 req.Message,
		UserID:                  req.UserID,
		ProjectID:               req.ProjectID,
		StreamIntermediateSteps: boolOrDefault(req.StreamIntermediateSteps, true),
	})
	if err != nil {
		s.rejectRun(c, err)
		return
	}

	sink, ok := newSSESink(c)
	if !ok {
		stream.Abort()
		return
	}

	stream.Publish(ctx, cancel, sink)
}

func (s *Server) handleTeamStream(c *gin.Context) {
	var req TeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	ctx, cancel := newRunContext(c)
	defer cancel()

	stream, err := s.svc.BeginTeam(ctx, prodfc.TeamRequest{
		Message:                 req.Message,
		StreamIntermediateSteps: boolOrDefault(req.StreamIntermediateSteps, true),
	})
	if err != nil {
		s.rejectRun(c, err)
		return
	}

	sink, ok := newSSESink(c)
	if !ok {
		stream.Abort()
		return
	}

	stream.Publish(ctx, cancel, sink)
}

// rejectRun maps a pre-stream failure to a request-level error. No event
// has been produced at this point, so a plain JSON error is safe.
func (s *Server) rejectRun(c *gin.Context, err error) {
	if errors.Is(err, core.ErrConcurrentRun) {
		c.JSON(http.StatusConflict, gin.H{"detail": err.Error()})
		return
	}
	s.logger.Error("failed to start stream", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.svc.Health())
}

func (s *Server) handleAgentsStatus(c *gin.Context) {
	statuses := s.svc.Status()
	c.JSON(http.StatusOK, gin.H{
		"active_agents": statuses,
		"total_count":   len(statuses),
		"timestamp":     time.Now().UTC(),
	})
}

func (s *Server) handleCleanup(c *gin.Context) {
	// On-demand sweep: evict every idle session regardless of age.
	// Running sessions always survive cleanup.
	evicted := s.svc.CleanupIdle(0)
	c.JSON(http.StatusOK, gin.H{
		"evicted":   evicted,
		"timestamp": time.Now().UTC(),
	})
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
