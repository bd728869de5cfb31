package socket

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pier0x/bottel/internal/v1/auth"
	"github.com/pier0x/bottel/internal/v1/metrics"
	"github.com/pier0x/bottel/internal/v1/ratelimit"
	"github.com/pier0x/bottel/internal/v1/registry"
	"github.com/pier0x/bottel/internal/v1/store"
)

// TokenValidator defines the interface for token authentication services.
// Production and the package tests both use the shared-secret validator.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

// Server upgrades HTTP requests to websockets and owns the per-connection
// session setup. Room routing and state live behind the registry.
type Server struct {
	registry       *registry.Registry
	store          store.Store
	validator      TokenValidator
	commands       *ratelimit.CommandLimiter
	connects       *ratelimit.ConnectLimiter
	allowedOrigins []string
}

// NewServer wires the connection handler with its dependencies.
func NewServer(reg *registry.Registry, st store.Store, validator TokenValidator, commands *ratelimit.CommandLimiter, connects *ratelimit.ConnectLimiter, allowedOrigins []string) *Server {
	return &Server{
		registry:       reg,
		store:          st,
		validator:      validator,
		commands:       commands,
		connects:       connects,
		allowedOrigins: allowedOrigins,
	}
}

// validateOrigin rejects browser connections from origins outside the
// allow-list. Non-browser clients send no Origin header and pass.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return errors.New("unparseable origin")
	}
	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}
	return errors.New("origin not allowed")
}

// ServeWs upgrades the request and starts the client's pumps. There is no
// HTTP-level authentication: sockets connect anonymously and authenticate
// in-band with an auth frame.
func (s *Server) ServeWs(c *gin.Context) {
	if !s.connects.Allow(c.Request.Context(), c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections"})
		return
	}

	if err := validateOrigin(c.Request, s.allowedOrigins); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, s.allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				// Pre-allocate 4KB buffers
				return make([]byte, 4096)
			},
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade connection", "error", err)
		return
	}

	client := newClient(conn, s, uuid.New().String())
	metrics.IncConnection()
	slog.Info("socket connected", "connId", client.connID, "ip", c.ClientIP())

	go client.writePump()
	go client.readPump()
}
