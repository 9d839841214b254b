package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"postboard/internal/http/middleware"
	"postboard/internal/http/response"
	"postboard/internal/service"
)

type UserHandler struct {
	users    *service.UserService
	sessions *service.SessionService
	tokens   *service.TokenService
}

func NewUserHandler(users *service.UserService, sessions *service.SessionService, tokens *service.TokenService) *UserHandler {
	return &UserHandler{users: users, sessions: sessions, tokens: tokens}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing auth context", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, newUserView(user))
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	active := true
	users, err := h.users.List(&active)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, newUserView(&users[i]))
	}
	response.JSON(w, r, http.StatusOK, views)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.users.Get(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, newUserView(user))
}

type updateProfileRequest struct {
	Email    *string `json:"email"`
	FullName *string `json:"full_name"`
	Gender   *string `json:"gender"`
}

func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing auth context", nil)
		return
	}
	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := h.users.UpdateProfile(user.ID, service.UpdateProfileInput{
		Email:    req.Email,
		FullName: req.FullName,
		Gender:   req.Gender,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, newUserView(updated))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword swaps the credential and revokes every outstanding session
// and token, forcing re-login on all devices.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing auth context", nil)
		return
	}
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NewPassword == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "new password is required", nil)
		return
	}
	if err := h.users.ChangePassword(user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.tokens.LogoutAll(r.Context(), user.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password changed"})
}

// DeactivateMe blocks the caller's own account and ends all its sessions.
func (h *UserHandler) DeactivateMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing auth context", nil)
		return
	}
	if _, err := h.users.SetStatus(user.ID, false); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.tokens.LogoutAll(r.Context(), user.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "account deactivated"})
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing auth context", nil)
		return
	}
	views, err := h.sessions.ListByUser(user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, views)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid id", nil)
		return 0, false
	}
	return uint(id), true
}
