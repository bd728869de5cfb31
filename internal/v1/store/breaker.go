package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pier0x/bottel/internal/v1/metrics"
)

const breakerService = "store"

// Breaker wraps a Store with a circuit breaker so a struggling database
// degrades into fast failures instead of piling up blocked engine commands.
type Breaker struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps the given store.
func NewBreaker(inner Store) *Breaker {
	st := gobreaker.Settings{
		Name:        breakerService,
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(breakerService).Set(stateVal)
		},
	}
	return &Breaker{inner: inner, cb: gobreaker.NewCircuitBreaker(st)}
}

// execute runs op through the breaker, tracking metrics per operation.
// Lookup misses are not failures; they must not trip the breaker.
func execute[T any](b *Breaker, operation string, op func() (T, error)) (T, error) {
	start := time.Now()
	result, err := b.cb.Execute(func() (any, error) {
		v, err := op()
		if errors.Is(err, ErrNotFound) {
			return notFoundResult[T]{v}, nil
		}
		return v, err
	})
	metrics.StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerFailures.WithLabelValues(breakerService).Inc()
		}
		metrics.StoreOperationsTotal.WithLabelValues(operation, "error").Inc()
		var zero T
		return zero, err
	}

	if nf, ok := result.(notFoundResult[T]); ok {
		metrics.StoreOperationsTotal.WithLabelValues(operation, "miss").Inc()
		return nf.value, ErrNotFound
	}

	metrics.StoreOperationsTotal.WithLabelValues(operation, "ok").Inc()
	return result.(T), nil
}

type notFoundResult[T any] struct{ value T }

func (b *Breaker) FindRoomBySlug(ctx context.Context, slug string) (*Room, error) {
	return execute(b, "find_room_by_slug", func() (*Room, error) {
		return b.inner.FindRoomBySlug(ctx, slug)
	})
}

func (b *Breaker) FindRoomByID(ctx context.Context, id string) (*Room, error) {
	return execute(b, "find_room_by_id", func() (*Room, error) {
		return b.inner.FindRoomByID(ctx, id)
	})
}

func (b *Breaker) ListPublicRooms(ctx context.Context) ([]Room, error) {
	return execute(b, "list_public_rooms", func() ([]Room, error) {
		return b.inner.ListPublicRooms(ctx)
	})
}

func (b *Breaker) RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	return execute(b, "recent_messages", func() ([]Message, error) {
		return b.inner.RecentMessages(ctx, roomID, limit)
	})
}

func (b *Breaker) InsertMessage(ctx context.Context, roomID string, authorID *string, nameSnapshot, colorSnapshot, content string) (*Message, error) {
	return execute(b, "insert_message", func() (*Message, error) {
		return b.inner.InsertMessage(ctx, roomID, authorID, nameSnapshot, colorSnapshot, content)
	})
}

func (b *Breaker) TouchLastSeen(ctx context.Context, agentID string) error {
	_, err := execute(b, "touch_last_seen", func() (struct{}, error) {
		return struct{}{}, b.inner.TouchLastSeen(ctx, agentID)
	})
	return err
}

func (b *Breaker) FindUserByID(ctx context.Context, id string) (*User, error) {
	return execute(b, "find_user_by_id", func() (*User, error) {
		return b.inner.FindUserByID(ctx, id)
	})
}

func (b *Breaker) CreateRoom(ctx context.Context, room *Room) error {
	_, err := execute(b, "create_room", func() (struct{}, error) {
		return struct{}{}, b.inner.CreateRoom(ctx, room)
	})
	return err
}

func (b *Breaker) Ping(ctx context.Context) error {
	return b.inner.Ping(ctx)
}

func (b *Breaker) Close() error {
	return b.inner.Close()
}
