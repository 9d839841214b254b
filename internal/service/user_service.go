package service

import (
	"errors"
	"fmt"

	"postboard/internal/domain"
	"postboard/internal/repository"
	"postboard/internal/security"
)

var ErrWrongPassword = errors.New("current password does not match")

type UpdateProfileInput struct {
	Email    *string
	FullName *string
	Gender   *string
}

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) Get(id uint) (*domain.User, error) {
	return s.userRepo.FindByID(id)
}

func (s *UserService) List(status *bool) ([]domain.User, error) {
	return s.userRepo.List(status)
}

func (s *UserService) ListPaged(status *bool, req repository.PageRequest) (repository.PageResult[domain.User], error) {
	return s.userRepo.ListPaged(status, req)
}

func (s *UserService) UpdateProfile(userID uint, in UpdateProfileInput) (*domain.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		user.Email = *in.Email
	}
	if in.FullName != nil {
		user.FullName = *in.FullName
	}
	if in.Gender != nil {
		user.Gender = *in.Gender
	}
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword swaps the credential only after the current one verifies.
func (s *UserService) ChangePassword(userID uint, current, next string) error {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return err
	}
	if !security.VerifyPassword(current, user.PasswordHash) {
		return ErrWrongPassword
	}
	hash, err := security.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	return s.userRepo.Update(user)
}

// SetStatus blocks or unblocks the account. Returns false when no such user
// exists.
func (s *UserService) SetStatus(userID uint, active bool) (bool, error) {
	return s.userRepo.SetStatus(userID, active)
}

// Delete removes the account and its posts.
func (s *UserService) Delete(userID uint) error {
	return s.userRepo.Delete(userID)
}
