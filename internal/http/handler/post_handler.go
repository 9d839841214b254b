package handler

import (
	"net/http"

	"postboard/internal/http/middleware"
	"postboard/internal/http/response"
	"postboard/internal/service"
)

type PostHandler struct {
	posts *service.PostService
}

func NewPostHandler(posts *service.PostService) *PostHandler {
	return &PostHandler{posts: posts}
}

type postRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing auth context", nil)
		return
	}
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "title is required", nil)
		return
	}
	post, err := h.posts.Create(user.ID, req.Title, req.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, newPostView(post))
}

// Feed lists posts from active authors only.
func (h *PostHandler) Feed(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListFeed()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, newPostViews(posts))
}

func (h *PostHandler) Mine(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing auth context", nil)
		return
	}
	posts, err := h.posts.ListByUser(user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, newPostViews(posts))
}

func (h *PostHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	posts, err := h.posts.ListByUser(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, newPostViews(posts))
}

func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	post, err := h.posts.Get(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, newPostView(post))
}

func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing auth context", nil)
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req postRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	post, err := h.posts.Update(user.ID, id, req.Title, req.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, newPostView(post))
}

func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "AUTH_MISSING", "missing auth context", nil)
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.posts.Delete(user.ID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}
