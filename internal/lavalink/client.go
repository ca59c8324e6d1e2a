// Package lavalink talks to a Lavalink v4 node: the event websocket, the
// REST player API and track loading.
package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/keshon/lyrabot/internal/logging"
	"github.com/keshon/lyrabot/internal/music/player"
	"github.com/keshon/lyrabot/pkg/retrylimit"
)

var ErrNoSession = errors.New("lavalink session not established")

// TrackEndFunc receives TrackEndEvents from the node.
type TrackEndFunc func(ctx context.Context, guildID, encoded string, reason player.EndReason)

type Options struct {
	// BaseURL is the node's HTTP address, e.g. http://localhost:2333.
	BaseURL    string
	Password   string
	ClientName string
	HTTPClient *http.Client
	// Reconnect controls websocket reconnect delays; MaxAttempts is ignored.
	Reconnect retrylimit.Config
	// REST controls retries of REST calls.
	REST retrylimit.Config
}

type voiceState struct {
	sessionID string
	token     string
	endpoint  string
}

func (v voiceState) complete() bool {
	return v.sessionID != "" && v.token != "" && v.endpoint != ""
}

type Client struct {
	base       *url.URL
	password   string
	clientName string
	http       *http.Client
	reconnect  retrylimit.Config
	restCfg    retrylimit.Config
	limiter    *retrylimit.AdaptiveLimiter
	log        *zap.SugaredLogger

	mu         sync.RWMutex
	sessionID  string
	voice      map[string]voiceState
	onTrackEnd TrackEndFunc
	ready      chan struct{}
}

func New(opts Options, log *zap.SugaredLogger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse lavalink url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("lavalink url must be http or https, got %q", opts.BaseURL)
	}
	if opts.ClientName == "" {
		opts.ClientName = "lyrabot"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Reconnect.InitialDelay == 0 {
		opts.Reconnect = retrylimit.Config{InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2, Jitter: true}
	}
	if opts.REST.MaxAttempts == 0 {
		opts.REST = retrylimit.DefaultConfig()
		opts.REST.MaxAttempts = 3
	}
	return &Client{
		base:       base,
		password:   opts.Password,
		clientName: opts.ClientName,
		http:       opts.HTTPClient,
		reconnect:  opts.Reconnect,
		restCfg:    opts.REST,
		limiter:    retrylimit.NewAdaptiveLimiter(20, 2, 50, 1, 0.5),
		log:        logging.OrNop(log),
		voice:      make(map[string]voiceState),
		ready:      make(chan struct{}),
	}, nil
}

// OnTrackEnd sets the TrackEndEvent handler. Call before Run.
func (c *Client) OnTrackEnd(fn TrackEndFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrackEnd = fn
}

// RequestRate is the REST request budget per second, lowered while the node
// answers 429 or 5xx.
func (c *Client) RequestRate() float64 { return c.limiter.CurrentLimit() }

func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Ready is closed once the first session is established.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// Run keeps the event websocket connected until ctx ends.
func (c *Client) Run(ctx context.Context, userID string) error {
	backoff := retrylimit.NewBackoff(c.reconnect)
	for {
		started := time.Now()
		err := c.session(ctx, userID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.setSession("")
		if time.Since(started) > time.Minute {
			backoff.Reset()
		}
		wait := backoff.Next()
		c.log.Warnw("Lavalink connection lost, reconnecting", "error", err, "in", wait)
		if err := retrylimit.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (c *Client) wsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v4/websocket"
	return u.String()
}

func (c *Client) session(ctx context.Context, userID string) error {
	header := http.Header{}
	header.Set("Authorization", c.password)
	header.Set("User-Id", userID)
	header.Set("Client-Name", c.clientName)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, c.wsURL(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial lavalink: %w", &retrylimit.StatusError{Code: resp.StatusCode, Err: err})
		}
		return fmt.Errorf("dial lavalink: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(ctx, data)
	}
}

type trackInfo struct {
	Identifier string  `json:"identifier"`
	IsSeekable bool    `json:"isSeekable"`
	Author     string  `json:"author"`
	Length     int64   `json:"length"`
	IsStream   bool    `json:"isStream"`
	Title      string  `json:"title"`
	URI        *string `json:"uri"`
	ArtworkURL *string `json:"artworkUrl"`
	SourceName string  `json:"sourceName"`
}

type trackData struct {
	Encoded string    `json:"encoded"`
	Info    trackInfo `json:"info"`
}

type exception struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

type message struct {
	Op        string     `json:"op"`
	Type      string     `json:"type"`
	SessionID string     `json:"sessionId"`
	Resumed   bool       `json:"resumed"`
	GuildID   string     `json:"guildId"`
	Reason    string     `json:"reason"`
	Track     *trackData `json:"track"`
	Exception *exception `json:"exception"`
	Code      int        `json:"code"`
	ByRemote  bool       `json:"byRemote"`
	Players   int        `json:"players"`
}

func (c *Client) dispatch(ctx context.Context, data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warnw("Malformed lavalink message", "error", err)
		return
	}

	switch msg.Op {
	case "ready":
		known := c.knownVoice()
		c.setSession(msg.SessionID)
		c.log.Infow("Lavalink session ready", "session", msg.SessionID, "resumed", msg.Resumed)
		go c.resendVoice(ctx, known)
	case "event":
		c.handleEvent(ctx, msg)
	case "stats":
		c.log.Debugw("Lavalink stats", "players", msg.Players)
	case "playerUpdate":
	default:
		c.log.Debugw("Unknown lavalink op", "op", msg.Op)
	}
}

func (c *Client) handleEvent(ctx context.Context, msg message) {
	switch msg.Type {
	case "TrackEndEvent":
		c.mu.RLock()
		fn := c.onTrackEnd
		c.mu.RUnlock()
		if fn == nil || msg.Track == nil {
			return
		}
		fn(ctx, msg.GuildID, msg.Track.Encoded, player.EndReason(msg.Reason))
	case "TrackExceptionEvent":
		if msg.Exception != nil {
			c.log.Warnw("Track exception", "guild", msg.GuildID, "message", msg.Exception.Message, "severity", msg.Exception.Severity)
		}
	case "TrackStuckEvent":
		c.log.Warnw("Track stuck", "guild", msg.GuildID)
	case "WebSocketClosedEvent":
		c.log.Warnw("Discord voice websocket closed", "guild", msg.GuildID, "code", msg.Code, "reason", msg.Reason, "byRemote", msg.ByRemote)
	}
}

func (c *Client) setSession(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
	if id == "" {
		return
	}
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}
