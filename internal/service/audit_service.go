package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"postboard/internal/domain"
	"postboard/internal/observability"
	"postboard/internal/repository"
)

// AuditService appends token-action entries to the audit trail and runs the
// anomaly tripwire over them. Every write is best-effort: an audit failure is
// counted and logged but never surfaces to the caller, so a broken trail can
// not take the login path down with it.
type AuditService struct {
	repo          repository.TokenLogRepository
	loginWindow   time.Duration
	refreshWindow time.Duration
	now           func() time.Time
}

func NewAuditService(repo repository.TokenLogRepository, loginWindow, refreshWindow time.Duration) *AuditService {
	return &AuditService{
		repo:          repo,
		loginWindow:   loginWindow,
		refreshWindow: refreshWindow,
		now:           time.Now,
	}
}

func (s *AuditService) WithClock(now func() time.Time) *AuditService {
	s.now = now
	return s
}

// Record appends the entry and, when the request pattern looks like account
// compromise, a second entry with the action rewritten to
// "suspicious <action> detected". The tripwire never blocks the request.
func (s *AuditService) Record(ctx context.Context, userID *uint, username, ip, userAgent, action string) {
	now := s.now()
	suspicious := false
	if userID != nil {
		suspicious = s.IsSuspicious(*userID, ip, userAgent, action, now)
	}

	s.append(ctx, &domain.TokenLog{
		UserID:    userID,
		Username:  username,
		IPAddress: ip,
		UserAgent: userAgent,
		Action:    action,
		Timestamp: now,
	})
	if suspicious {
		observability.RecordSuspiciousEvent(ctx, action)
		s.append(ctx, &domain.TokenLog{
			UserID:    userID,
			Username:  username,
			IPAddress: ip,
			UserAgent: userAgent,
			Action:    fmt.Sprintf("suspicious %s detected", action),
			Timestamp: now,
		})
	}
}

// IsSuspicious compares the incoming request against the most recent prior
// entry for the same action. Logins are flagged when the client identity
// changed within the login window; refreshes when they arrive faster than the
// refresh window. Other actions are never flagged.
func (s *AuditService) IsSuspicious(userID uint, ip, userAgent, action string, now time.Time) bool {
	last, err := s.repo.LastByUserAndAction(userID, action)
	if err != nil {
		if !errors.Is(err, repository.ErrTokenLogNotFound) {
			slog.Warn("anomaly check failed", "user_id", userID, "action", action, "error", err)
		}
		return false
	}

	elapsed := now.Sub(last.Timestamp)
	switch action {
	case domain.TokenActionLogin:
		changed := last.IPAddress != ip || last.UserAgent != userAgent
		return changed && elapsed < s.loginWindow
	case domain.TokenActionRefresh:
		return elapsed < s.refreshWindow
	default:
		return false
	}
}

func (s *AuditService) ListPaged(req repository.PageRequest) (repository.PageResult[domain.TokenLog], error) {
	return s.repo.ListPaged(req)
}

func (s *AuditService) append(ctx context.Context, entry *domain.TokenLog) {
	if err := s.repo.Create(entry); err != nil {
		observability.RecordAuditLogFailure(ctx, entry.Action)
		slog.WarnContext(ctx, "audit trail write failed",
			"action", entry.Action,
			"username", entry.Username,
			"error", err,
		)
	}
}
