// Package connectivity tests reachability of the central database. The
// probe never raises; failures are swallowed and reported as offline.
package connectivity

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/tphakala/fieldsync-go/internal/logging"
)

const probeCacheKey = "online"

// Pinger is the slice of the central store adapter the probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe checks whether the central database is reachable. Results are
// cached for a short TTL so repeated checks inside one drain cycle do not
// open extra connections.
type Probe struct {
	pinger  Pinger
	timeout time.Duration
	ttl     time.Duration
	cache   *gocache.Cache
	logger  *slog.Logger
}

// NewProbe creates a probe with the given per-attempt timeout and result
// cache TTL. A zero cacheTTL disables caching.
func NewProbe(pinger Pinger, timeout, cacheTTL time.Duration) *Probe {
	return &Probe{
		pinger:  pinger,
		timeout: timeout,
		ttl:     cacheTTL,
		cache:   gocache.New(cacheTTL, time.Minute),
		logger:  logging.ForService("connectivity"),
	}
}

// IsOnline reports whether the central database answered a ping within the
// bounded timeout. Offline is a state, not an error.
func (p *Probe) IsOnline(ctx context.Context) bool {
	if p.ttl > 0 {
		if cached, found := p.cache.Get(probeCacheKey); found {
			return cached.(bool)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	online := true
	if err := p.pinger.Ping(ctx); err != nil {
		p.logger.Debug("connectivity probe failed", "error", err)
		online = false
	}

	if p.ttl > 0 {
		p.cache.SetDefault(probeCacheKey, online)
	}
	return online
}

// Invalidate drops the cached probe result so the next check hits the
// network. Called after a drain cycle sees transport failures.
func (p *Probe) Invalidate() {
	p.cache.Delete(probeCacheKey)
}
