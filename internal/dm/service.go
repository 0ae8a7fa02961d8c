// Package dm is the hybrid router behind direct messaging. Every operation
// tries the remote stores first and falls back to the local document store
// when the remote is missing or fails; callers only ever see canonical
// message.Message values.
package dm

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"hackhub/internal/apperr"
	"hackhub/internal/attachment"
	"hackhub/internal/eviction"
	"hackhub/internal/probe"
	"hackhub/internal/remote"
	"hackhub/internal/storage"
)

// Metrics captures in-process counters for the router.
type Metrics struct {
	RemoteCalls     atomic.Uint64
	Fallbacks       atomic.Uint64
	LocalWrites     atomic.Uint64
	RejectedUploads atomic.Uint64
	Evicted         atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	RemoteCalls     uint64 `json:"remote_calls"`
	Fallbacks       uint64 `json:"fallbacks"`
	LocalWrites     uint64 `json:"local_writes"`
	RejectedUploads uint64 `json:"rejected_uploads"`
	Evicted         uint64 `json:"evicted"`
}

// Deps are the collaborators of a Service. Remote and Objects may be nil.
type Deps struct {
	Remote   remote.Structured
	Objects  remote.Objects
	Buckets  remote.Buckets
	Probe    *probe.Probe
	Local    *storage.LocalStore
	Pipeline *attachment.Pipeline
	Policy   *eviction.Policy
	Logger   zerolog.Logger
	Now      func() time.Time
}

type Service struct {
	remote   remote.Structured
	objects  remote.Objects
	buckets  remote.Buckets
	probe    *probe.Probe
	local    *storage.LocalStore
	pipeline *attachment.Pipeline
	policy   *eviction.Policy
	log      zerolog.Logger
	now      func() time.Time
	metrics  *Metrics
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Buckets == (remote.Buckets{}) {
		d.Buckets = remote.DefaultBuckets()
	}
	if d.Probe == nil {
		d.Probe = probe.ForStore(d.Remote, remote.TableMessages, d.Logger)
	}
	if d.Pipeline == nil {
		d.Pipeline = attachment.NewPipeline(attachment.DefaultLimits(), d.Logger)
	}
	if d.Policy == nil {
		d.Policy = eviction.NewPolicy(d.Local, eviction.DefaultLimits(), d.Logger)
	}
	return &Service{
		remote:   d.Remote,
		objects:  d.Objects,
		buckets:  d.Buckets,
		probe:    d.Probe,
		local:    d.Local,
		pipeline: d.Pipeline,
		policy:   d.Policy,
		log:      d.Logger.With().Str("component", "dm").Logger(),
		now:      d.Now,
		metrics:  &Metrics{},
	}
}

// MetricsSnapshot exposes the current counters.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		RemoteCalls:     s.metrics.RemoteCalls.Load(),
		Fallbacks:       s.metrics.Fallbacks.Load(),
		LocalWrites:     s.metrics.LocalWrites.Load(),
		RejectedUploads: s.metrics.RejectedUploads.Load(),
		Evicted:         s.metrics.Evicted.Load(),
	}
}

// RemoteAvailable reports the memoized probe verdict.
func (s *Service) RemoteAvailable(ctx context.Context) bool {
	return s.remote != nil && s.probe.Available(ctx)
}

// InvalidateProbe makes the next call re-check the remote.
func (s *Service) InvalidateProbe() {
	s.probe.Invalidate()
}

// useRemote gates the remote path and counts the attempt.
func (s *Service) useRemote(ctx context.Context) bool {
	if !s.RemoteAvailable(ctx) {
		return false
	}
	s.metrics.RemoteCalls.Add(1)
	return true
}

// fallback records a failed remote attempt and returns nil when the local
// store should serve the call. The context error comes back when the caller
// is gone, and coded errors come back as they are: those are answers about a
// record the remote holds, not a backend outage.
func (s *Service) fallback(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var coded *apperr.Error
	if errors.As(err, &coded) {
		return err
	}
	s.metrics.Fallbacks.Add(1)
	s.log.Warn().Err(err).Str("op", op).Msg("remote path failed, serving from local storage")
	return nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC()
}
