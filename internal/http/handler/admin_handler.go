package handler

import (
	"net/http"
	"strconv"

	"postboard/internal/http/response"
	"postboard/internal/observability"
	"postboard/internal/repository"
	"postboard/internal/service"
)

type AdminHandler struct {
	users  *service.UserService
	tokens *service.TokenService
	audit  *service.AuditService
}

func NewAdminHandler(users *service.UserService, tokens *service.TokenService, audit *service.AuditService) *AdminHandler {
	return &AdminHandler{users: users, tokens: tokens, audit: audit}
}

// ListUsers filters on ?status=true|false; no parameter returns everyone.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var status *bool
	if raw := r.URL.Query().Get("status"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "status must be true or false", nil)
			return
		}
		status = &v
	}
	page, err := h.users.ListPaged(status, pageRequest(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views := make([]userView, 0, len(page.Items))
	for i := range page.Items {
		views = append(views, newUserView(&page.Items[i]))
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"items":       views,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total":       page.TotalItems,
		"total_pages": page.TotalPages,
	})
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
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

// BlockUser deactivates the account and immediately ends every session and
// access token it holds.
func (h *AdminHandler) BlockUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	found, err := h.users.SetStatus(id, false)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !found {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
		return
	}
	if err := h.tokens.LogoutAll(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "admin.user.block", "user_id", id)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "blocked"})
}

func (h *AdminHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	found, err := h.users.SetStatus(id, true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if !found {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
		return
	}
	observability.Audit(r, "admin.user.unblock", "user_id", id)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "unblocked"})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.tokens.LogoutAll(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.users.Delete(id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "admin.user.delete", "user_id", id)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// TokenLogs pages through the audit trail, newest first.
func (h *AdminHandler) TokenLogs(w http.ResponseWriter, r *http.Request) {
	page, err := h.audit.ListPaged(pageRequest(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"items":       page.Items,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total":       page.TotalItems,
		"total_pages": page.TotalPages,
	})
}

func pageRequest(r *http.Request) repository.PageRequest {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	return repository.PageRequest{Page: page, PageSize: size}
}
