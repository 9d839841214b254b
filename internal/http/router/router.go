package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"postboard/internal/http/handler"
	"postboard/internal/http/middleware"
	"postboard/internal/http/response"
	"postboard/internal/repository"
	"postboard/internal/security"
)

// AuthAllowPaths are served without an access token. Everything else under
// the router runs through the full validation chain.
var AuthAllowPaths = []string{
	"/api/v1/auth/register",
	"/api/v1/auth/login",
	"/api/v1/auth/refresh",
	"/health/live",
	"/health/ready",
}

type Dependencies struct {
	AuthHandler  *handler.AuthHandler
	UserHandler  *handler.UserHandler
	PostHandler  *handler.PostHandler
	AdminHandler *handler.AdminHandler

	JWTManager    *security.JWTManager
	BlacklistRepo repository.BlacklistRepository
	UserRepo      repository.UserRepository

	RateLimit      func(http.Handler) http.Handler
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	if dep.RateLimit != nil {
		r.Use(dep.RateLimit)
	}

	auth := middleware.AuthMiddleware(dep.JWTManager, dep.BlacklistRepo, dep.UserRepo, AuthAllowPaths)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", dep.AuthHandler.Register)
			r.Post("/login", dep.AuthHandler.Login)
			r.Post("/refresh", dep.AuthHandler.Refresh)
			r.Post("/logout", dep.AuthHandler.Logout)
			r.Post("/logout-all", dep.AuthHandler.LogoutAll)
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", dep.PostHandler.Feed)
			r.Post("/", dep.PostHandler.Create)
			r.Get("/me", dep.PostHandler.Mine)
			r.Get("/users/{id}", dep.PostHandler.ByUser)
			r.Get("/{id}", dep.PostHandler.Get)
			r.Put("/{id}", dep.PostHandler.Update)
			r.Delete("/{id}", dep.PostHandler.Delete)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", dep.UserHandler.List)
			r.Get("/me", dep.UserHandler.Me)
			r.Put("/me", dep.UserHandler.UpdateMe)
			r.Patch("/me/change-password", dep.UserHandler.ChangePassword)
			r.Delete("/me", dep.UserHandler.DeactivateMe)
			r.Get("/me/sessions", dep.UserHandler.Sessions)
			r.Get("/{id}", dep.UserHandler.Get)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/users", dep.AdminHandler.ListUsers)
			r.Get("/users/{id}", dep.AdminHandler.GetUser)
			r.Patch("/users/{id}/block", dep.AdminHandler.BlockUser)
			r.Patch("/users/{id}/unblock", dep.AdminHandler.UnblockUser)
			r.Delete("/users/{id}", dep.AdminHandler.DeleteUser)
			r.Get("/token-logs", dep.AdminHandler.TokenLogs)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
