// Package api exposes the engine's status and control surface over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"griddca/grid"
	"griddca/logger"
	"griddca/store"
)

// Server HTTP API server
type Server struct {
	router     *gin.Engine
	ctl        *grid.Controller
	store      *store.Store
	httpServer *http.Server
	port       int
}

// NewServer creates the API server around one controller.
func NewServer(ctl *grid.Controller, st *store.Store, port int) *Server {
	// Release mode keeps request logging quiet
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router: router,
		ctl:    ctl,
		store:  st,
		port:   port,
	}
	s.setupRoutes()
	return s
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)
		api.POST("/start", s.handleStart)
		api.POST("/pause", s.handlePause)
		api.POST("/stop-after-cycle", s.handleStopAfterCycle)
		api.POST("/emergency/ack", s.handleAckEmergency)
		api.GET("/guards", s.handleGetGuards)
		api.PUT("/guards", s.handlePutGuards)
		api.PUT("/base-amount", s.handlePutBaseAmount)
		api.GET("/cycles", s.handleCycles)
		api.GET("/trades", s.handleTrades)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Status())
}

func (s *Server) handleStart(c *gin.Context) {
	s.ctl.Send(grid.Command{Kind: grid.CmdStart})
	c.JSON(http.StatusOK, gin.H{"message": "start requested"})
}

func (s *Server) handlePause(c *gin.Context) {
	s.ctl.Send(grid.Command{Kind: grid.CmdPause})
	c.JSON(http.StatusOK, gin.H{"message": "pause requested"})
}

func (s *Server) handleStopAfterCycle(c *gin.Context) {
	s.ctl.Send(grid.Command{Kind: grid.CmdStopAfterCycle})
	c.JSON(http.StatusOK, gin.H{"message": "will pause after the current cycle"})
}

func (s *Server) handleAckEmergency(c *gin.Context) {
	s.ctl.Send(grid.Command{Kind: grid.CmdAckEmergency})
	c.JSON(http.StatusOK, gin.H{"message": "emergency stop acknowledged"})
}

func (s *Server) handleGetGuards(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Guards())
}

func (s *Server) handlePutGuards(c *gin.Context) {
	var req grid.GuardConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.ctl.Send(grid.Command{Kind: grid.CmdUpdateGuards, Apply: func(g *grid.GuardConfig) {
		*g = req
	}})
	if s.store != nil {
		if err := s.store.Settings().SetJSON("guards", req); err != nil {
			logger.Errorf("❌ [API] persist guards: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "guard thresholds updated"})
}

func (s *Server) handlePutBaseAmount(c *gin.Context) {
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Amount < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must not be negative"})
		return
	}
	s.ctl.Send(grid.Command{Kind: grid.CmdSetBaseAmount, Amount: req.Amount})
	if s.store != nil {
		if err := s.store.Settings().SetFloat("base_amount_override", req.Amount); err != nil {
			logger.Errorf("❌ [API] persist base amount: %v", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "base amount override queued", "amount": req.Amount})
}

func (s *Server) handleCycles(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	rows, err := s.store.Cycle().Recent(s.ctl.Status().Symbol, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": rows})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence disabled"})
		return
	}
	rows, err := s.store.Trade().Recent(s.ctl.Status().Symbol, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows})
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	logger.Infof("🌐 API server starting at http://localhost%s", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
