package worker

import (
	"context"
	"log/slog"
	"time"

	"postboard/internal/observability"
	"postboard/internal/repository"
	"postboard/internal/service"
)

// CleanupSweeper periodically purges rows whose retention has lapsed: banned
// tokens past the blacklist retention, expired access-token registrations,
// expired refresh sessions, rate-limit usage events past the usage-log
// retention and, when a retention is configured, old audit entries. Each
// target is swept independently so one failing store never starves the rest.
type CleanupSweeper struct {
	blacklist repository.BlacklistRepository
	active    repository.ActiveTokenRepository
	sessions  repository.SessionRepository
	logs      repository.TokenLogRepository
	limiter   *service.RateLimiter
	logger    *slog.Logger

	interval           time.Duration
	blacklistRetention time.Duration
	usageLogRetention  time.Duration
	auditRetention     time.Duration
	sweepTimeout       time.Duration
	now                func() time.Time
}

type CleanupConfig struct {
	Interval           time.Duration
	BlacklistRetention time.Duration
	UsageLogRetention  time.Duration
	// AuditRetention of zero keeps the audit trail forever.
	AuditRetention time.Duration
}

func NewCleanupSweeper(
	blacklist repository.BlacklistRepository,
	active repository.ActiveTokenRepository,
	sessions repository.SessionRepository,
	logs repository.TokenLogRepository,
	limiter *service.RateLimiter,
	logger *slog.Logger,
	cfg CleanupConfig,
) *CleanupSweeper {
	return &CleanupSweeper{
		blacklist:          blacklist,
		active:             active,
		sessions:           sessions,
		logs:               logs,
		limiter:            limiter,
		logger:             logger,
		interval:           cfg.Interval,
		blacklistRetention: cfg.BlacklistRetention,
		usageLogRetention:  cfg.UsageLogRetention,
		auditRetention:     cfg.AuditRetention,
		sweepTimeout:       cfg.Interval / 2,
		now:                time.Now,
	}
}

func (s *CleanupSweeper) WithClock(now func() time.Time) *CleanupSweeper {
	s.now = now
	return s
}

// Run sweeps once per interval until ctx is cancelled. The first sweep waits
// a full interval so startup is not front-loaded with purge traffic.
func (s *CleanupSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full purge cycle. Exported so operators can trigger an
// out-of-band sweep and tests can drive cycles without a ticker.
func (s *CleanupSweeper) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.sweepTimeout)
	defer cancel()

	now := s.now()

	s.sweepTarget(ctx, "blacklist", func() (int64, error) {
		return s.blacklist.PurgeOlderThan(now.Add(-s.blacklistRetention))
	})
	s.sweepTarget(ctx, "active_tokens", func() (int64, error) {
		return s.active.PurgeExpired(now)
	})
	s.sweepTarget(ctx, "sessions", func() (int64, error) {
		return s.sessions.PurgeExpired(now)
	})
	s.sweepTarget(ctx, "usage_log", func() (int64, error) {
		return s.limiter.PurgeOlderThan(ctx, now.Add(-s.usageLogRetention))
	})
	if s.auditRetention > 0 {
		s.sweepTarget(ctx, "audit_log", func() (int64, error) {
			return s.logs.PurgeOlderThan(now.Add(-s.auditRetention))
		})
	}
}

func (s *CleanupSweeper) sweepTarget(ctx context.Context, target string, purge func() (int64, error)) {
	purged, err := purge()
	if err != nil {
		observability.RecordCleanupSweep(ctx, target, "error")
		s.logger.WarnContext(ctx, "cleanup sweep failed", "target", target, "error", err)
		return
	}
	observability.RecordCleanupSweep(ctx, target, "success")
	if purged > 0 {
		observability.RecordCleanupPurgedRows(ctx, target, purged)
		s.logger.InfoContext(ctx, "cleanup sweep purged rows", "target", target, "rows", purged)
	}
}
