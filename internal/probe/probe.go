// Package probe answers whether the remote structured store can be used.
// The answer is computed once and kept until Invalidate; a remote that comes
// back mid-session stays unused until someone invalidates the probe.
package probe

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"hackhub/internal/remote"
)

// CheckFunc performs one lightweight existence check.
type CheckFunc func(ctx context.Context) error

type Probe struct {
	mu      sync.Mutex
	check   CheckFunc
	log     zerolog.Logger
	known   bool
	healthy bool
	checks  int
}

// New wraps an arbitrary check. A nil check is never available.
func New(check CheckFunc, log zerolog.Logger) *Probe {
	return &Probe{check: check, log: log}
}

// ForStore probes store by reading at most one message row. A nil store
// means the process runs without a remote.
func ForStore(store remote.Structured, table string, log zerolog.Logger) *Probe {
	if store == nil {
		return New(nil, log)
	}
	return New(func(ctx context.Context) error {
		_, err := store.Select(ctx, table, remote.Query{Limit: 1})
		return err
	}, log)
}

// Available runs the check on first use and memoizes the result.
func (p *Probe) Available(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.known {
		return p.healthy
	}
	p.checks++
	if p.check == nil {
		p.known, p.healthy = true, false
		p.log.Info().Msg("no remote store configured, running local only")
		return false
	}
	err := p.check(ctx)
	if err != nil && ctx.Err() != nil {
		// caller gave up; do not pin a verdict on a cancelled check
		p.log.Debug().Err(err).Msg("remote probe cancelled")
		return false
	}
	p.known, p.healthy = true, err == nil
	if err != nil {
		p.log.Warn().Err(err).Msg("remote store unavailable, falling back to local storage")
	} else {
		p.log.Info().Msg("remote store available")
	}
	return p.healthy
}

// Invalidate forgets the memoized verdict so the next call checks again.
func (p *Probe) Invalidate() {
	p.mu.Lock()
	p.known = false
	p.healthy = false
	p.mu.Unlock()
}

// Checks reports how many times the check ran.
func (p *Probe) Checks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checks
}
