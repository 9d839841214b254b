package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"postboard/internal/domain"
	"postboard/internal/observability"
	"postboard/internal/repository"
	"postboard/internal/security"
)

type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      uint   `json:"id"`
	Username    string `json:"username"`
}

// TokenService is the login/refresh/logout use-case layer. It owns the
// session store and the active-token registry; nothing else writes to them.
type TokenService struct {
	jwtMgr        *security.JWTManager
	userRepo      repository.UserRepository
	sessionRepo   repository.SessionRepository
	activeRepo    repository.ActiveTokenRepository
	blacklistRepo repository.BlacklistRepository
	audit         *AuditService
	pepper        string
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenService(
	jwtMgr *security.JWTManager,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	activeRepo repository.ActiveTokenRepository,
	blacklistRepo repository.BlacklistRepository,
	audit *AuditService,
	pepper string,
	refreshTTL time.Duration,
) *TokenService {
	return &TokenService{
		jwtMgr:        jwtMgr,
		userRepo:      userRepo,
		sessionRepo:   sessionRepo,
		activeRepo:    activeRepo,
		blacklistRepo: blacklistRepo,
		audit:         audit,
		pepper:        pepper,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// Login verifies credentials and mints the access/refresh pair. The refresh
// token is returned separately: it travels only in an HttpOnly cookie, never
// in the response body. A session that fails to persist fails the whole
// login; the already-minted access token is deregistered and discarded.
func (s *TokenService) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, string, error) {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthLogin("invalid_credentials")
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("look up user: %w", err)
	}
	if !security.VerifyPassword(password, user.PasswordHash) {
		s.audit.Record(ctx, &user.ID, user.Username, ip, userAgent, domain.TokenActionLoginFailed)
		observability.RecordAuthLogin("invalid_credentials")
		return nil, "", ErrInvalidCredentials
	}
	if !user.Status {
		observability.RecordAuthLogin("blocked")
		return nil, "", ErrUserBlocked
	}

	access, err := s.mintAndRegisterAccessToken(user)
	if err != nil {
		return nil, "", err
	}

	refresh, err := security.NewRefreshToken()
	if err != nil {
		return nil, "", err
	}
	session := &domain.Session{
		UserID:           user.ID,
		RefreshTokenHash: security.HashRefreshToken(refresh, s.pepper),
		IP:               ip,
		UserAgent:        userAgent,
		ExpiresAt:        s.now().Add(s.refreshTTL),
	}
	if err := s.sessionRepo.Create(session); err != nil {
		_, _ = s.activeRepo.Delete(access)
		observability.RecordAuthLogin("session_error")
		return nil, "", fmt.Errorf("persist session: %w", err)
	}

	s.audit.Record(ctx, &user.ID, user.Username, ip, userAgent, domain.TokenActionLogin)
	observability.RecordAuthLogin("success")
	return &LoginResult{
		AccessToken: access,
		TokenType:   "bearer",
		UserID:      user.ID,
		Username:    user.Username,
	}, refresh, nil
}

// Refresh exchanges a valid refresh session for a fresh access token. The
// precondition chain fails fast: token present, session known, user active,
// session neither revoked nor expired. Only then is a token minted.
func (s *TokenService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*LoginResult, error) {
	if refreshToken == "" {
		observability.RecordAuthRefresh("missing")
		return nil, ErrRefreshMissing
	}
	hash := security.HashRefreshToken(refreshToken, s.pepper)
	session, err := s.sessionRepo.FindByHash(hash)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordAuthRefresh("unknown_session")
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("look up session: %w", err)
	}
	user, err := s.userRepo.FindByID(session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthRefresh("blocked")
			return nil, ErrUserBlocked
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if !user.Status {
		observability.RecordAuthRefresh("blocked")
		return nil, ErrUserBlocked
	}
	valid, err := s.sessionRepo.Validate(hash, s.now())
	if err != nil {
		return nil, fmt.Errorf("validate session: %w", err)
	}
	if !valid {
		observability.RecordAuthRefresh("invalid_session")
		return nil, ErrSessionInvalid
	}

	access, err := s.mintAndRegisterAccessToken(user)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &user.ID, user.Username, ip, userAgent, domain.TokenActionRefresh)
	observability.RecordAuthRefresh("success")
	return &LoginResult{
		AccessToken: access,
		TokenType:   "bearer",
		UserID:      user.ID,
		Username:    user.Username,
	}, nil
}

// Logout revokes the refresh session and, when the request carried an access
// token, bans and deregisters it. The three effects are independent: each is
// attempted even when another fails, and "session not found" is only
// reported after the token effects have run.
func (s *TokenService) Logout(ctx context.Context, refreshToken, accessToken string) error {
	if refreshToken == "" {
		observability.RecordAuthLogout("missing")
		return ErrRefreshMissing
	}
	hash := security.HashRefreshToken(refreshToken, s.pepper)
	revoked, revokeErr := s.sessionRepo.Revoke(hash)

	var tokenErrs []error
	if accessToken != "" {
		if err := s.blacklistRepo.Add(accessToken, s.now()); err != nil {
			tokenErrs = append(tokenErrs, fmt.Errorf("blacklist access token: %w", err))
		}
		if _, err := s.activeRepo.Delete(accessToken); err != nil {
			tokenErrs = append(tokenErrs, fmt.Errorf("deregister access token: %w", err))
		}
	}

	if err := errors.Join(append(tokenErrs, revokeErr)...); err != nil {
		observability.RecordAuthLogout("error")
		return err
	}
	if !revoked {
		observability.RecordAuthLogout("unknown_session")
		return ErrSessionInvalid
	}
	observability.RecordAuthLogout("success")
	return nil
}

// LogoutAll revokes every session and bans every outstanding access token
// for the user in one call.
func (s *TokenService) LogoutAll(ctx context.Context, userID uint) error {
	var errs []error
	if _, err := s.sessionRepo.RevokeAllByUser(userID); err != nil {
		errs = append(errs, fmt.Errorf("revoke sessions: %w", err))
	}

	tokens, err := s.activeRepo.ListByUser(userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("list active tokens: %w", err))
	}
	now := s.now()
	for _, rec := range tokens {
		if err := s.blacklistRepo.Add(rec.AccessToken, now); err != nil {
			errs = append(errs, fmt.Errorf("blacklist token: %w", err))
		}
	}
	if _, err := s.activeRepo.DeleteByUser(userID); err != nil {
		errs = append(errs, fmt.Errorf("deregister tokens: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		observability.RecordAuthLogout("error")
		return err
	}
	observability.RecordAuthLogout("success")
	return nil
}

func (s *TokenService) mintAndRegisterAccessToken(user *domain.User) (string, error) {
	access, err := s.jwtMgr.SignAccessToken(user.Username)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	rec := &domain.ActiveAccessToken{
		UserID:      user.ID,
		AccessToken: access,
		ExpiresAt:   s.now().Add(s.jwtMgr.AccessTTL()),
	}
	if err := s.activeRepo.Add(rec); err != nil {
		return "", fmt.Errorf("register access token: %w", err)
	}
	return access, nil
}
