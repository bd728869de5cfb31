// Package ratelimit implements the per-socket command ceilings and the
// per-IP websocket connect limit.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/pier0x/bottel/internal/v1/logging"
	"github.com/pier0x/bottel/internal/v1/metrics"
)

// CommandLimiter enforces the chat and move ceilings per connection. Keys
// are connection ids, so a displaced socket cannot eat a fresh one's budget.
type CommandLimiter struct {
	chat *limiter.Limiter
	move *limiter.Limiter
}

// NewCommandLimiter parses the formatted rates (e.g. "10-S") and builds the
// limiters over a shared in-memory store.
func NewCommandLimiter(chatRate, moveRate string) (*CommandLimiter, error) {
	chat, err := limiter.NewRateFromFormatted(chatRate)
	if err != nil {
		return nil, fmt.Errorf("invalid chat rate: %w", err)
	}
	move, err := limiter.NewRateFromFormatted(moveRate)
	if err != nil {
		return nil, fmt.Errorf("invalid move rate: %w", err)
	}

	store := memory.NewStore()
	return &CommandLimiter{
		chat: limiter.New(store, chat),
		move: limiter.New(store, move),
	}, nil
}

// AllowChat reports whether the connection may send another chat message.
func (l *CommandLimiter) AllowChat(ctx context.Context, connID string) bool {
	return l.allow(ctx, l.chat, "chat", connID)
}

// AllowMove reports whether the connection may issue another move.
func (l *CommandLimiter) AllowMove(ctx context.Context, connID string) bool {
	return l.allow(ctx, l.move, "move", connID)
}

func (l *CommandLimiter) allow(ctx context.Context, lim *limiter.Limiter, endpoint, connID string) bool {
	metrics.RateLimitRequests.WithLabelValues(endpoint).Inc()

	lctx, err := lim.Get(ctx, endpoint+":"+connID)
	if err != nil {
		// Fail open: availability over strictness.
		logging.Error(ctx, "rate limiter store failed", zap.Error(err))
		return true
	}
	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues(endpoint, "conn").Inc()
		return false
	}
	return true
}

// ConnectLimiter caps websocket upgrade attempts per client IP.
type ConnectLimiter struct {
	ip *limiter.Limiter
}

// NewConnectLimiter parses the formatted rate (e.g. "60-M").
func NewConnectLimiter(ipRate string) (*ConnectLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(ipRate)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket IP rate: %w", err)
	}
	return &ConnectLimiter{ip: limiter.New(memory.NewStore(), rate)}, nil
}

// Allow reports whether the IP may open another websocket.
func (l *ConnectLimiter) Allow(ctx context.Context, ip string) bool {
	metrics.RateLimitRequests.WithLabelValues("websocket_connect").Inc()

	lctx, err := l.ip.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.Error(err))
		return true
	}
	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("websocket_connect", "ip").Inc()
		return false
	}
	return true
}
