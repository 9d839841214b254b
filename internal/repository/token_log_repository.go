package repository

import (
	"context"
	"errors"
	"time"

	"postboard/internal/domain"
	"postboard/internal/observability"

	"gorm.io/gorm"
)

// TokenLogRepository is append-only from the application's point of view;
// PurgeOlderThan exists solely for the retention sweep.
type TokenLogRepository interface {
	Create(entry *domain.TokenLog) error
	LastByUserAndAction(userID uint, action string) (*domain.TokenLog, error)
	ListPaged(req PageRequest) (PageResult[domain.TokenLog], error)
	PurgeOlderThan(cutoff time.Time) (int64, error)
}

var ErrTokenLogNotFound = errors.New("token log entry not found")

type GormTokenLogRepository struct{ db *gorm.DB }

func NewTokenLogRepository(db *gorm.DB) TokenLogRepository { return &GormTokenLogRepository{db: db} }

func (r *GormTokenLogRepository) Create(entry *domain.TokenLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "token_log", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "token_log", "create", "success")
	return nil
}

func (r *GormTokenLogRepository) LastByUserAndAction(userID uint, action string) (*domain.TokenLog, error) {
	var entry domain.TokenLog
	err := r.db.Where("user_id = ? AND action = ?", userID, action).
		Order("timestamp DESC").
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "token_log", "last_by_user_and_action", "not_found")
			return nil, ErrTokenLogNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "token_log", "last_by_user_and_action", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "token_log", "last_by_user_and_action", "success")
	return &entry, nil
}

func (r *GormTokenLogRepository) ListPaged(req PageRequest) (PageResult[domain.TokenLog], error) {
	req = normalizePageRequest(req)
	result := PageResult[domain.TokenLog]{Page: req.Page, PageSize: req.PageSize}

	if err := r.db.Model(&domain.TokenLog{}).Count(&result.TotalItems).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "token_log", "list_paged", "error")
		return result, err
	}
	err := r.db.Order("timestamp DESC").
		Order("id DESC").
		Offset(req.offset()).
		Limit(req.PageSize).
		Find(&result.Items).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "token_log", "list_paged", "error")
		return result, err
	}
	result.TotalPages = calcTotalPages(result.TotalItems, req.PageSize)
	observability.RecordRepositoryOperation(context.Background(), "token_log", "list_paged", "success")
	return result, nil
}

func (r *GormTokenLogRepository) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("timestamp < ?", cutoff).Delete(&domain.TokenLog{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "token_log", "purge_older_than", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "token_log", "purge_older_than", "success")
	return res.RowsAffected, nil
}
