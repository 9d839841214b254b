package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"postboard/internal/domain"
	"postboard/internal/http/response"
	"postboard/internal/repository"
	"postboard/internal/service"
)

type userView struct {
	ID        uint      `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Role      string    `json:"role"`
	Status    bool      `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u *domain.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		Gender:    u.Gender,
		Role:      string(u.Role),
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

type postView struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newPostView(p *domain.Post) postView {
	return postView{
		ID:        p.ID,
		UserID:    p.UserID,
		Title:     p.Title,
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func newPostViews(posts []domain.Post) []postView {
	views := make([]postView, 0, len(posts))
	for i := range posts {
		views = append(views, newPostView(&posts[i]))
	}
	return views
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return false
	}
	return true
}

// writeServiceError maps service and repository sentinels onto the envelope
// error taxonomy. Anything unmapped is a persistence failure.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "AUTH_INVALID", "invalid username or password", nil)
	case errors.Is(err, service.ErrUserBlocked):
		response.Error(w, r, http.StatusForbidden, "AUTH_USER_BLOCKED", "account is blocked", nil)
	case errors.Is(err, service.ErrRefreshMissing):
		response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "refresh token missing", nil)
	case errors.Is(err, service.ErrSessionInvalid):
		response.Error(w, r, http.StatusUnauthorized, "AUTH_REVOKED", "refresh session revoked or expired", nil)
	case errors.Is(err, service.ErrWrongPassword):
		response.Error(w, r, http.StatusBadRequest, "AUTH_INVALID", "current password does not match", nil)
	case errors.Is(err, service.ErrNotPostOwner):
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "post belongs to another user", nil)
	case errors.Is(err, repository.ErrUserConflict):
		response.Error(w, r, http.StatusConflict, "CONFLICT", "username or email already taken", nil)
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrPostNotFound),
		errors.Is(err, repository.ErrSessionNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "PERSISTENCE_ERROR", "internal error", nil)
	}
}
