// Package supervisor hosts the background reclamation loops of the broadcast
// manager: dead-connection cleanup and transient error-counter resets.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/talkwire/room-broadcast-service/internal/domain/registry"
	"golang.org/x/sync/errgroup"
)

// StatusRefresher is what the cleanup pass pokes after reclaiming
// connections; satisfied by the status publisher.
type StatusRefresher interface {
	Trigger()
}

// MailboxTrimmer re-asserts the mailbox capacity bound.
type MailboxTrimmer interface {
	Trim() int
}

type Config struct {
	// CleanupInterval is the cadence of the dead-connection sweep.
	CleanupInterval time.Duration
	// ErrorResetInterval is the cadence of the error-counter reset, long so
	// the too-many-errors policy does not penalize a brief burst forever.
	ErrorResetInterval time.Duration
	// ProbeTimeout is how long a connection may stay silent before the
	// sweep declares it dead (ping interval plus the pong grace window).
	ProbeTimeout time.Duration
}

// Supervisor runs the two periodic loops. Both share one context and are
// cancelled and awaited as a unit on shutdown, so no loop can outlive the
// registry it prunes.
type Supervisor struct {
	registry *registry.Registry
	mailbox  MailboxTrimmer
	status   StatusRefresher
	cfg      Config
	logger   *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

func New(reg *registry.Registry, mailbox MailboxTrimmer, status StatusRefresher, cfg Config, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		registry: reg,
		mailbox:  mailbox,
		status:   status,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Supervisor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.group, ctx = errgroup.WithContext(ctx)

	s.group.Go(func() error { return s.runCleanup(ctx) })
	s.group.Go(func() error { return s.runErrorReset(ctx) })
	s.logger.Info("lifecycle supervisor started",
		"cleanup_interval", s.cfg.CleanupInterval,
		"error_reset_interval", s.cfg.ErrorResetInterval)
}

func (s *Supervisor) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		_ = s.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) runCleanup(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.CleanupPass()
		}
	}
}

func (s *Supervisor) runErrorReset(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ErrorResetInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.ErrorResetPass()
		}
	}
}

// CleanupPass probes every registered connection and reclaims the ones that
// have gone silent past the probe window, then trims mailbox overflow and
// refreshes room status. A single bad connection never aborts the pass.
func (s *Supervisor) CleanupPass() {
	reclaimed := 0
	s.registry.EachConnection(func(c *registry.Conn) {
		if !c.Alive() || time.Since(c.LastSeen()) > s.cfg.ProbeTimeout {
			s.registry.MarkDead(c)
			reclaimed++
		}
	})

	trimmed := s.mailbox.Trim()
	s.status.Trigger()

	if reclaimed > 0 || trimmed > 0 {
		s.logger.Info("cleanup pass", "reclaimed", reclaimed, "trimmed", trimmed)
	}
}

// ErrorResetPass zeroes every connection's transient error counter.
func (s *Supervisor) ErrorResetPass() {
	s.registry.EachConnection(func(c *registry.Conn) {
		c.ResetErrors()
	})
	s.logger.Debug("error counters reset")
}
