package repository

import (
	"context"
	"errors"

	"postboard/internal/domain"
	"postboard/internal/observability"

	"gorm.io/gorm"
)

var ErrPostNotFound = errors.New("post not found")

type PostRepository interface {
	Create(post *domain.Post) error
	FindByID(id uint) (*domain.Post, error)
	ListByUser(userID uint) ([]domain.Post, error)
	// ListByActiveUsers returns posts whose authors are not blocked.
	ListByActiveUsers() ([]domain.Post, error)
	Update(post *domain.Post) error
	Delete(id uint) error
}

type GormPostRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &GormPostRepository{db: db} }

func (r *GormPostRepository) Create(post *domain.Post) error {
	if err := r.db.Create(post).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "create", "success")
	return nil
}

func (r *GormPostRepository) FindByID(id uint) (*domain.Post, error) {
	var p domain.Post
	err := r.db.First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "post", "find_by_id", "not_found")
			return nil, ErrPostNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "post", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "find_by_id", "success")
	return &p, nil
}

func (r *GormPostRepository) ListByUser(userID uint) ([]domain.Post, error) {
	var posts []domain.Post
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&posts).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "list_by_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "list_by_user", "success")
	return posts, nil
}

func (r *GormPostRepository) ListByActiveUsers() ([]domain.Post, error) {
	var posts []domain.Post
	err := r.db.Joins("JOIN users ON users.id = posts.user_id").
		Where("users.status = ?", true).
		Order("posts.created_at DESC").
		Find(&posts).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "list_by_active_users", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "list_by_active_users", "success")
	return posts, nil
}

func (r *GormPostRepository) Update(post *domain.Post) error {
	if err := r.db.Save(post).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "update", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "update", "success")
	return nil
}

func (r *GormPostRepository) Delete(id uint) error {
	res := r.db.Delete(&domain.Post{}, id)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "post", "delete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "post", "delete", "not_found")
		return ErrPostNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "post", "delete", "success")
	return nil
}
