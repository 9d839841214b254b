package service

import (
	"errors"

	"postboard/internal/domain"
	"postboard/internal/repository"
)

// ErrNotPostOwner rejects writes to somebody else's post. Admins are not
// exempt; moderation goes through user blocking instead.
var ErrNotPostOwner = errors.New("post belongs to another user")

type PostService struct {
	postRepo repository.PostRepository
}

func NewPostService(postRepo repository.PostRepository) *PostService {
	return &PostService{postRepo: postRepo}
}

func (s *PostService) Create(userID uint, title, content string) (*domain.Post, error) {
	post := &domain.Post{UserID: userID, Title: title, Content: content}
	if err := s.postRepo.Create(post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) Get(id uint) (*domain.Post, error) {
	return s.postRepo.FindByID(id)
}

// ListFeed returns posts whose authors are active. Blocking a user hides
// their posts without deleting them.
func (s *PostService) ListFeed() ([]domain.Post, error) {
	return s.postRepo.ListByActiveUsers()
}

func (s *PostService) ListByUser(userID uint) ([]domain.Post, error) {
	return s.postRepo.ListByUser(userID)
}

func (s *PostService) Update(userID, postID uint, title, content string) (*domain.Post, error) {
	post, err := s.postRepo.FindByID(postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		return nil, ErrNotPostOwner
	}
	post.Title = title
	post.Content = content
	if err := s.postRepo.Update(post); err != nil {
		return nil, err
	}
	return post, nil
}

func (s *PostService) Delete(userID, postID uint) error {
	post, err := s.postRepo.FindByID(postID)
	if err != nil {
		return err
	}
	if post.UserID != userID {
		return ErrNotPostOwner
	}
	return s.postRepo.Delete(postID)
}
