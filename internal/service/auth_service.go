package service

import (
	"fmt"

	"postboard/internal/domain"
	"postboard/internal/repository"
	"postboard/internal/security"
)

type RegisterInput struct {
	Username string
	Email    string
	Password string
	FullName string
	Gender   string
}

// AuthService owns account registration. Login lives on TokenService, which
// composes the full credential-issuance pipeline.
type AuthService struct {
	userRepo repository.UserRepository
}

func NewAuthService(userRepo repository.UserRepository) *AuthService {
	return &AuthService{userRepo: userRepo}
}

func (s *AuthService) Register(in RegisterInput) (*domain.User, error) {
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FullName:     in.FullName,
		Gender:       in.Gender,
		Role:         domain.RoleUser,
		Status:       true,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, err
	}
	return user, nil
}
