// Package api exposes the pipeline, the store and the transport over HTTP,
// plus a websocket stream of pipeline events.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/user/chatpilot/internal/dispatch"
	"github.com/user/chatpilot/internal/pipeline"
	"github.com/user/chatpilot/internal/types"
)

// Store is everything the API reads and writes directly.
type Store interface {
	types.ConversationStore
	types.DashboardStore
}

// Deps are the collaborators a Server is built from. Hub may be nil.
type Deps struct {
	Orchestrator   *pipeline.Orchestrator
	Store          Store
	Transport      types.Transport
	Insight        types.InsightProvider
	Queue          *dispatch.Queue
	Hub            *Hub
	AllowedOrigins []string
}

// Server is the HTTP API.
type Server struct {
	orch      *pipeline.Orchestrator
	store     Store
	transport types.Transport
	insight   types.InsightProvider
	queue     *dispatch.Queue
	hub       *Hub

	engine  *gin.Engine
	baseCtx context.Context
	startAt time.Time
}

// NewServer builds the router. The dispatch queue must be started before the
// server takes traffic.
func NewServer(d Deps) *Server {
	s := &Server{
		orch:      d.Orchestrator,
		store:     d.Store,
		transport: d.Transport,
		insight:   d.Insight,
		queue:     d.Queue,
		hub:       d.Hub,
		baseCtx:   context.Background(),
		startAt:   time.Now(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.Use(cors.New(corsConfig(d.AllowedOrigins)))
	s.engine = engine
	s.routes()
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.handleHealth)

	api := r.Group("/api")

	sy := api.Group("/sync")
	sy.POST("/contacts", s.handleSyncContacts)
	sy.POST("/messages/:chatJid", s.handleSyncMessages)
	sy.POST("/auto-pipeline", s.handleAutoPipeline)

	contacts := api.Group("/contacts")
	contacts.GET("", s.handleListContacts)
	contacts.GET("/:jid", s.handleGetContact)
	contacts.PUT("/:jid", s.handleUpdateContact)

	messages := api.Group("/messages")
	messages.GET("/:chatJid", s.handleGetMessages)
	messages.POST("/search", s.handleSearchMessages)

	ai := api.Group("/ai")
	ai.POST("/analyze/:contactJid", s.handleAnalyze)
	ai.POST("/suggest/:contactJid", s.handleSuggest)
	ai.POST("/send-message", s.handleSendHumanized)
	ai.POST("/entities", s.handleEntities)

	dash := api.Group("/dashboard")
	dash.GET("/metrics", s.handleMetrics)
	dash.GET("/pipeline", s.handlePipeline)
	api.GET("/interactions/:contactJid", s.handleInteractions)

	wa := api.Group("/whatsapp")
	wa.GET("/chats", s.handleListChats)
	wa.POST("/send", s.handleDirectSend)

	rt := api.Group("/realtime")
	rt.POST("/start", s.handleRealtimeStart)
	rt.POST("/stop", s.handleRealtimeStop)
	rt.GET("/status", s.handleRealtimeStatus)
	if s.hub != nil {
		rt.GET("/events", s.hub.serveWS)
	}
}

// ServeHTTP delegates to the gin engine, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully.
// Realtime sync started through the API runs under ctx.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.baseCtx = ctx
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startAt).Round(time.Second).String(),
		"realtime":  s.orch.Realtime().IsRunning(),
		"clients":   s.clientCount(),
	})
}

func (s *Server) clientCount() int {
	if s.hub == nil {
		return 0
	}
	return s.hub.Count()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}

// fail writes err as a JSON error body. Missing rows map to 404, anything
// else to 500.
func fail(c *gin.Context, err error) {
	if errors.Is(err, types.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// queryInt parses a positive integer query parameter, falling back to def.
func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
