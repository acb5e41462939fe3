package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// CachedRoster wraps a RosterSource with an LRU cache and a circuit breaker.
// Membership changes must call Invalidate so the next delivery sees the new roster.
type CachedRoster struct {
	src     RosterSource
	cache   *lru.Cache[int64, []string]
	breaker *gobreaker.CircuitBreaker

	// mu orders cache fills against invalidations; it is never held across I/O.
	mu    sync.Mutex
	epoch uint64
}

// NewCachedRoster builds a roster cache holding up to size groups. size <= 0 disables caching.
func NewCachedRoster(src RosterSource, size int, logger *zerolog.Logger) (*CachedRoster, error) {
	c := &CachedRoster{src: src}

	if size > 0 {
		cache, err := lru.New[int64, []string](size)
		if err != nil {
			return nil, fmt.Errorf("roster cache: %w", err)
		}
		c.cache = cache
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "roster",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not a store failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("roster breaker state changed")
		},
	})

	return c, nil
}

// ListGroupMembers returns the cached roster or loads it through the breaker.
func (c *CachedRoster) ListGroupMembers(ctx context.Context, groupID int64) ([]string, error) {
	if c.cache != nil {
		if members, ok := c.cache.Get(groupID); ok {
			return members, nil
		}
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.src.ListGroupMembers(ctx, groupID)
	})
	if err != nil {
		return nil, err
	}
	members, _ := res.([]string)

	if c.cache != nil {
		c.mu.Lock()
		// Skip the fill if the roster changed while we were loading it.
		if c.epoch == epoch {
			c.cache.Add(groupID, members)
		}
		c.mu.Unlock()
	}

	return members, nil
}

// Invalidate drops the cached roster for groupID.
func (c *CachedRoster) Invalidate(groupID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	if c.cache != nil {
		c.cache.Remove(groupID)
	}
}
