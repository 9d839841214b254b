package repository

import (
	"context"
	"time"

	"postboard/internal/domain"
	"postboard/internal/observability"

	"gorm.io/gorm"
)

type BlacklistRepository interface {
	// Add bans the exact token string. Duplicate bans from logout-all loops
	// are tolerated; the ban is idempotent either way.
	Add(token string, at time.Time) error
	IsBlacklisted(token string) (bool, error)
	PurgeOlderThan(cutoff time.Time) (int64, error)
}

type GormBlacklistRepository struct{ db *gorm.DB }

func NewBlacklistRepository(db *gorm.DB) BlacklistRepository { return &GormBlacklistRepository{db: db} }

func (r *GormBlacklistRepository) Add(token string, at time.Time) error {
	entry := &domain.BlacklistedToken{Token: token, BlacklistedAt: at}
	if err := r.db.Create(entry).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "blacklist", "add", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "blacklist", "add", "success")
	return nil
}

func (r *GormBlacklistRepository) IsBlacklisted(token string) (bool, error) {
	var count int64
	err := r.db.Model(&domain.BlacklistedToken{}).Where("token = ?", token).Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "blacklist", "is_blacklisted", "error")
		return false, err
	}
	observability.RecordRepositoryOperation(context.Background(), "blacklist", "is_blacklisted", "success")
	return count > 0, nil
}

func (r *GormBlacklistRepository) PurgeOlderThan(cutoff time.Time) (int64, error) {
	res := r.db.Where("blacklisted_at < ?", cutoff).Delete(&domain.BlacklistedToken{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "blacklist", "purge_older_than", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(context.Background(), "blacklist", "purge_older_than", "success")
	return res.RowsAffected, nil
}
