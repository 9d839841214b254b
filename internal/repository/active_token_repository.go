package repository

import (
	"context"
	"time"

	"postboard/internal/domain"
	"postboard/internal/observability"

	"gorm.io/gorm"
)

type ActiveTokenRepository interface {
	Add(rec *domain.ActiveAccessToken) error
	ListByUser(userID uint) ([]domain.ActiveAccessToken, error)
	Delete(token string) (bool, error)
	DeleteByUser(userID uint) (int64, error)
	PurgeExpired(before time.Time) (int64, error)
}

type GormActiveTokenRepository struct{ db *gorm.DB }

func NewActiveTokenRepository(db *gorm.DB) ActiveTokenRepository {
	return &GormActiveTokenRepository{db: db}
}

func (r *GormActiveTokenRepository) Add(rec *domain.ActiveAccessToken) error {
	if err := r.db.Create(rec).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "active_token", "add", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "active_token", "add", "success")
	return nil
}

func (r *GormActiveTokenRepository) ListByUser(userID uint) ([]domain.ActiveAccessToken, error) {
	var recs []domain.ActiveAccessToken
	err := r.db.Where("user_id = ?", userID).Find(&recs).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "active_token", "list_by_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "active_token", "list_by_user", "success")
	return recs, nil
}

func (r *GormActiveTokenRepository) Delete(token string) (bool, error) {
	res := r.db.Where("access_token = ?", token).Delete(&domain.ActiveAccessToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "active_token", "delete", "error")
		return false, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "active_token", "delete", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormActiveTokenRepository) DeleteByUser(userID uint) (int64, error) {
	res := r.db.Where("user_id = ?", userID).Delete(&domain.ActiveAccessToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "active_token", "delete_by_user", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "active_token", "delete_by_user", "success")
	return res.RowsAffected, nil
}

func (r *GormActiveTokenRepository) PurgeExpired(before time.Time) (int64, error) {
	res := r.db.Where("expires_at < ?", before).Delete(&domain.ActiveAccessToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "active_token", "purge_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "active_token", "purge_expired", "success")
	return res.RowsAffected, nil
}
