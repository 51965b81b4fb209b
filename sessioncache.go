package prtp

import (
	"net"
	"time"

	cache "github.com/patrickmn/go-cache"
)

const (
	sessionCacheDefaultExpiration = 5 * time.Minute
	sessionCacheCleanupInterval   = 10 * time.Minute
)

// SessionOutcome classifies how a session ended, used as the outcome label
// for both the cache and the sessions_total metric.
type SessionOutcome string

const (
	OutcomeComplete   SessionOutcome = "complete"
	OutcomeIdleEmpty  SessionOutcome = "idle_empty"
	OutcomeSocketErr  SessionOutcome = "socket_error"
	OutcomeHandshake  SessionOutcome = "handshake_failed"
)

// SessionSummary is what a completed session leaves behind for operators:
// enough to answer "who connected, how much did they send, and how did it
// end" without re-reading the full transfer.
type SessionSummary struct {
	Peer          net.Addr
	BytesReceived int
	Duration      time.Duration
	Outcome       SessionOutcome
}

// SessionCache remembers recently-completed sessions, keyed by SessionID.
// Entries expire on a fixed default TTL with periodic sweeping, not an
// LRU bound by count.
type SessionCache struct {
	inner *cache.Cache
}

func NewSessionCache() *SessionCache {
	return &SessionCache{inner: cache.New(sessionCacheDefaultExpiration, sessionCacheCleanupInterval)}
}

func (c *SessionCache) Put(id SessionID, summary SessionSummary) {
	c.inner.Set(id.String(), summary, cache.DefaultExpiration)
}

func (c *SessionCache) Get(id SessionID) (SessionSummary, bool) {
	v, ok := c.inner.Get(id.String())
	if !ok {
		return SessionSummary{}, false
	}
	return v.(SessionSummary), true
}

// Recent returns every summary still resident in the cache. Order is not
// meaningful; callers that need it sorted (e.g. a status page) sort by
// Duration or Peer themselves.
func (c *SessionCache) Recent() []SessionSummary {
	items := c.inner.Items()
	out := make([]SessionSummary, 0, len(items))
	for _, item := range items {
		if s, ok := item.Object.(SessionSummary); ok {
			out = append(out, s)
		}
	}
	return out
}
