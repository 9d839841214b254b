package repository

import (
	"context"
	"errors"
	"time"

	"postboard/internal/domain"
	"postboard/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionConflict = errors.New("session refresh token already exists")
)

type SessionRepository interface {
	Create(s *domain.Session) error
	FindByHash(hash string) (*domain.Session, error)
	// Validate reports whether the session exists, is not revoked and has not
	// expired. All three conditions live in one query.
	Validate(hash string, now time.Time) (bool, error)
	// Revoke flips Revoked via a conditional update. Returns true when this
	// call performed the revocation, false when the session was already
	// revoked or absent.
	Revoke(hash string) (bool, error)
	RevokeAllByUser(userID uint) (int64, error)
	ListByUser(userID uint) ([]domain.Session, error)
	PurgeExpired(before time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(s *domain.Session) error {
	err := r.db.Create(s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.RecordRepositoryOperation(context.Background(), "session", "create", "conflict")
			return ErrSessionConflict
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByHash(hash string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Where("refresh_token_hash = ?", hash).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_by_hash", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_by_hash", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_by_hash", "success")
	return &s, nil
}

func (r *GormSessionRepository) Validate(hash string, now time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&domain.Session{}).
		Where("refresh_token_hash = ? AND revoked = ? AND expires_at > ?", hash, false, now).
		Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "validate", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "validate", "success")
	return count > 0, nil
}

func (r *GormSessionRepository) Revoke(hash string) (bool, error) {
	res := r.db.Model(&domain.Session{}).
		Where("refresh_token_hash = ? AND revoked = ?", hash, false).
		Update("revoked", true)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) RevokeAllByUser(userID uint) (int64, error) {
	res := r.db.Model(&domain.Session{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "revoke_all_by_user", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "revoke_all_by_user", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) ListByUser(userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list_by_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list_by_user", "success")
	return sessions, nil
}

func (r *GormSessionRepository) PurgeExpired(before time.Time) (int64, error) {
	res := r.db.Where("expires_at < ?", before).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "purge_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "purge_expired", "success")
	return res.RowsAffected, nil
}
