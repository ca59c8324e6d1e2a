// Package httpapi serves health, metrics and read-only player state over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/music/player"
)

var (
	playersConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lyrabot_players_connected",
		Help: "Guilds with an active voice connection.",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lyrabot_http_requests_total",
		Help: "Status server requests by route and status code.",
	}, []string{"route", "code"})
)

// Players is the read side of the player manager.
type Players interface {
	Snapshots() []player.Snapshot
	Lookup(guildID string) (*player.GuildPlayer, bool)
	ConnectedCount() int
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NodeStatus reports the audio node session; "" while disconnected.
type NodeStatus interface {
	SessionID() string
	RequestRate() float64
}

// Jobs lists background jobs currently executing.
type Jobs interface {
	Running() []string
}

type Options struct {
	Addr  string
	Debug bool
	// ShutdownTimeout bounds graceful shutdown once ctx ends.
	ShutdownTimeout time.Duration
	// Jobs is optional.
	Jobs Jobs
}

type Server struct {
	opts    Options
	players Players
	db      Pinger
	node    NodeStatus
	started time.Time
	router  *gin.Engine
	log     *zap.SugaredLogger
}

func New(opts Options, players Players, db Pinger, node NodeStatus, log *zap.SugaredLogger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8787"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		opts:    opts,
		players: players,
		db:      db,
		node:    node,
		started: time.Now(),
		log:     logging.OrNop(log).Named("http"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.instrument())

	r.GET("/healthz", s.health)
	r.GET("/metrics", s.metrics())

	api := r.Group("/api")
	{
		api.GET("/players", s.listPlayers)
		api.GET("/players/:guildID", s.getPlayer)
	}
	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnw("Status server shutdown failed", "error", err)
		}
	}()

	s.log.Infow("Status server listening", "addr", s.opts.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	database := "ok"
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			database = err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	node, rate := "disconnected", 0.0
	if s.node != nil {
		if s.node.SessionID() != "" {
			node = "connected"
		}
		rate = s.node.RequestRate()
	}
	jobs := []string{}
	if s.opts.Jobs != nil {
		jobs = append(jobs, s.opts.Jobs.Running()...)
	}

	c.JSON(code, gin.H{
		"status":          status,
		"uptime":          time.Since(s.started).Round(time.Second).String(),
		"database":        database,
		"audio_node":      node,
		"audio_node_rate": rate,
		"players":         s.players.ConnectedCount(),
		"jobs":            jobs,
	})
}

// metrics refreshes the connection gauge before each scrape.
func (s *Server) metrics() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		playersConnected.Set(float64(s.players.ConnectedCount()))
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func (s *Server) listPlayers(c *gin.Context) {
	snaps := s.players.Snapshots()
	if snaps == nil {
		snaps = []player.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"count": len(snaps), "players": snaps})
}

func (s *Server) getPlayer(c *gin.Context) {
	guildID := c.Param("guildID")
	p, ok := s.players.Lookup(guildID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no player for guild " + guildID})
		return
	}
	c.JSON(http.StatusOK, p.Snapshot())
}
