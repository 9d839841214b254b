package service

import (
	"time"

	"postboard/internal/domain"
	"postboard/internal/repository"
)

// SessionView is the session as shown to its owner. The token hash stays
// server-side.
type SessionView struct {
	ID        uint      `json:"id"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

type SessionService struct {
	sessionRepo repository.SessionRepository
}

func NewSessionService(sessionRepo repository.SessionRepository) *SessionService {
	return &SessionService{sessionRepo: sessionRepo}
}

func (s *SessionService) ListByUser(userID uint) ([]SessionView, error) {
	sessions, err := s.sessionRepo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, newSessionView(sess))
	}
	return views, nil
}

func newSessionView(sess domain.Session) SessionView {
	return SessionView{
		ID:        sess.ID,
		IP:        sess.IP,
		UserAgent: sess.UserAgent,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt,
		Revoked:   sess.Revoked,
	}
}
