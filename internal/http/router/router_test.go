package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"postboard/internal/domain"
	"postboard/internal/http/handler"
	"postboard/internal/http/middleware"
	"postboard/internal/repository"
	"postboard/internal/security"
	"postboard/internal/service"
)

type apiFixture struct {
	server *httptest.Server
	client *http.Client
	users  repository.UserRepository
	logs   repository.TokenLogRepository
	clock  *testClock
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Post{},
		&domain.Session{},
		&domain.BlacklistedToken{},
		&domain.ActiveAccessToken{},
		&domain.TokenLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	redisServer := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	blacklistRepo := repository.NewBlacklistRepository(db)
	activeRepo := repository.NewActiveTokenRepository(db)
	tokenLogRepo := repository.NewTokenLogRepository(db)

	jwtMgr := security.NewJWTManager("postboard", "postboard-api",
		"0123456789abcdef0123456789abcdef", 30*time.Minute).WithClock(clock.Now)
	auditSvc := service.NewAuditService(tokenLogRepo, 2*time.Minute, 10*time.Second).WithClock(clock.Now)
	tokenSvc := service.NewTokenService(jwtMgr, userRepo, sessionRepo, activeRepo, blacklistRepo,
		auditSvc, "test-pepper-0123456789abcdef", 7*24*time.Hour).WithClock(clock.Now)
	limiter := service.NewRateLimiter(redisClient, "ratelimit", 10*time.Second, 100, time.Minute).WithClock(clock.Now)

	h := NewRouter(Dependencies{
		AuthHandler:   handler.NewAuthHandler(service.NewAuthService(userRepo), tokenSvc),
		UserHandler:   handler.NewUserHandler(service.NewUserService(userRepo), service.NewSessionService(sessionRepo), tokenSvc),
		PostHandler:   handler.NewPostHandler(service.NewPostService(postRepo)),
		AdminHandler:  handler.NewAdminHandler(service.NewUserService(userRepo), tokenSvc, auditSvc),
		JWTManager:    jwtMgr,
		BlacklistRepo: blacklistRepo,
		UserRepo:      userRepo,
		RateLimit:     middleware.RateLimitMiddleware(limiter, 10*time.Second, middleware.FailOpen),
	})

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return &apiFixture{
		server: server,
		client: server.Client(),
		users:  userRepo,
		logs:   tokenLogRepo,
		clock:  clock,
	}
}

type apiResponse struct {
	status  int
	env     envelope
	cookies []*http.Cookie
}

func (f *apiFixture) do(t *testing.T, method, path, token string, cookies []*http.Cookie, body any) apiResponse {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope for %s %s: %v", method, path, err)
	}
	return apiResponse{status: resp.StatusCode, env: env, cookies: resp.Cookies()}
}

func refreshCookieFrom(t *testing.T, res apiResponse) *http.Cookie {
	t.Helper()
	for _, c := range res.cookies {
		if c.Name == "refresh_token" {
			return c
		}
	}
	t.Fatal("no refresh_token cookie in response")
	return nil
}

func TestFullAuthLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	res := f.do(t, http.MethodPost, "/api/v1/auth/register", "", nil, map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "s3cret-pass",
	})
	if res.status != http.StatusCreated {
		t.Fatalf("register: status = %d", res.status)
	}

	res = f.do(t, http.MethodPost, "/api/v1/auth/login", "", nil, map[string]string{
		"username": "alice",
		"password": "s3cret-pass",
	})
	if res.status != http.StatusOK {
		t.Fatalf("login: status = %d", res.status)
	}
	var login struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(res.env.Data, &login); err != nil {
		t.Fatalf("decode login result: %v", err)
	}
	refresh := refreshCookieFrom(t, res)
	if !refresh.HttpOnly {
		t.Fatal("refresh cookie must be HttpOnly")
	}

	res = f.do(t, http.MethodGet, "/api/v1/users/me", login.AccessToken, nil, nil)
	if res.status != http.StatusOK {
		t.Fatalf("protected route with fresh token: status = %d", res.status)
	}

	res = f.do(t, http.MethodPost, "/api/v1/posts", login.AccessToken, nil, map[string]string{
		"title":   "hello",
		"content": "first post",
	})
	if res.status != http.StatusCreated {
		t.Fatalf("create post: status = %d", res.status)
	}

	res = f.do(t, http.MethodPost, "/api/v1/auth/logout", login.AccessToken, []*http.Cookie{refresh}, nil)
	if res.status != http.StatusOK {
		t.Fatalf("logout: status = %d", res.status)
	}

	// The access token is still unexpired yet must be rejected as revoked.
	res = f.do(t, http.MethodGet, "/api/v1/users/me", login.AccessToken, nil, nil)
	if res.status != http.StatusUnauthorized || res.env.Error == nil || res.env.Error.Code != "AUTH_REVOKED" {
		t.Fatalf("revoked token: status = %d, env = %+v", res.status, res.env)
	}

	// The refresh session died with the logout.
	res = f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", []*http.Cookie{refresh}, nil)
	if res.status != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: status = %d", res.status)
	}
}

func TestRefreshIssuesWorkingToken(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/auth/register", "", nil, map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "s3cret-pass",
	})
	res := f.do(t, http.MethodPost, "/api/v1/auth/login", "", nil, map[string]string{
		"username": "bob", "password": "s3cret-pass",
	})
	refresh := refreshCookieFrom(t, res)

	f.clock.Advance(time.Minute)
	res = f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", []*http.Cookie{refresh}, nil)
	if res.status != http.StatusOK {
		t.Fatalf("refresh: status = %d", res.status)
	}
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(res.env.Data, &refreshed); err != nil {
		t.Fatalf("decode refresh result: %v", err)
	}

	res = f.do(t, http.MethodGet, "/api/v1/users/me", refreshed.AccessToken, nil, nil)
	if res.status != http.StatusOK {
		t.Fatalf("protected route with refreshed token: status = %d", res.status)
	}
}

func TestRefreshWithoutCookieRejected(t *testing.T) {
	f := newAPIFixture(t)

	res := f.do(t, http.MethodPost, "/api/v1/auth/refresh", "", nil, nil)
	if res.status != http.StatusUnauthorized || res.env.Error == nil || res.env.Error.Code != "AUTH_MISSING" {
		t.Fatalf("status = %d, env = %+v", res.status, res.env)
	}
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]string{"username": "carol", "email": "carol@example.com", "password": "s3cret-pass"}
	if res := f.do(t, http.MethodPost, "/api/v1/auth/register", "", nil, body); res.status != http.StatusCreated {
		t.Fatalf("first register: status = %d", res.status)
	}
	res := f.do(t, http.MethodPost, "/api/v1/auth/register", "", nil, body)
	if res.status != http.StatusConflict || res.env.Error == nil || res.env.Error.Code != "CONFLICT" {
		t.Fatalf("duplicate register: status = %d, env = %+v", res.status, res.env)
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/auth/register", "", nil, map[string]string{
		"username": "dave", "email": "dave@example.com", "password": "s3cret-pass",
	})
	res := f.do(t, http.MethodPost, "/api/v1/auth/login", "", nil, map[string]string{
		"username": "dave", "password": "s3cret-pass",
	})
	var login struct {
		AccessToken string `json:"access_token"`
		UserID      uint   `json:"id"`
	}
	if err := json.Unmarshal(res.env.Data, &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	res = f.do(t, http.MethodGet, "/api/v1/admin/token-logs", login.AccessToken, nil, nil)
	if res.status != http.StatusForbidden {
		t.Fatalf("regular user on admin route: status = %d", res.status)
	}

	user, err := f.users.FindByID(login.UserID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	user.Role = domain.RoleAdmin
	if err := f.users.Update(user); err != nil {
		t.Fatalf("promote user: %v", err)
	}

	res = f.do(t, http.MethodGet, "/api/v1/admin/token-logs", login.AccessToken, nil, nil)
	if res.status != http.StatusOK {
		t.Fatalf("admin on admin route: status = %d", res.status)
	}
}

func TestSuspiciousLoginAuditedAcrossClientIPs(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPost, "/api/v1/auth/register", "", nil, map[string]string{
		"username": "grace", "email": "grace@example.com", "password": "s3cret-pass",
	})

	// RealIP trusts X-Forwarded-For, so two logins from different addresses
	// can be simulated against the same test server.
	loginFrom := func(ip string) apiResponse {
		t.Helper()
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(map[string]string{
			"username": "grace", "password": "s3cret-pass",
		}); err != nil {
			t.Fatalf("encode body: %v", err)
		}
		req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/auth/login", &buf)
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		req.Header.Set("X-Forwarded-For", ip)
		resp, err := f.client.Do(req)
		if err != nil {
			t.Fatalf("login from %s: %v", ip, err)
		}
		defer resp.Body.Close()
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		return apiResponse{status: resp.StatusCode, env: env}
	}

	if res := loginFrom("203.0.113.7"); res.status != http.StatusOK {
		t.Fatalf("first login: status = %d", res.status)
	}
	f.clock.Advance(30 * time.Second)
	if res := loginFrom("203.0.113.99"); res.status != http.StatusOK {
		t.Fatalf("second login: status = %d", res.status)
	}

	page, err := f.logs.ListPaged(repository.PageRequest{Page: 1, PageSize: 50})
	if err != nil {
		t.Fatalf("list token logs: %v", err)
	}
	suspicious := 0
	for _, entry := range page.Items {
		if entry.Action == "suspicious login detected" {
			suspicious++
			if entry.IPAddress != "203.0.113.99" {
				t.Fatalf("suspicious entry carries ip %q, want the offending client", entry.IPAddress)
			}
		}
	}
	if suspicious != 1 {
		t.Fatalf("expected one suspicious entry after an identity change, found %d", suspicious)
	}
}

func TestPostOwnershipEnforced(t *testing.T) {
	f := newAPIFixture(t)

	for _, name := range []string{"erin", "frank"} {
		f.do(t, http.MethodPost, "/api/v1/auth/register", "", nil, map[string]string{
			"username": name, "email": name + "@example.com", "password": "s3cret-pass",
		})
	}
	erin := f.do(t, http.MethodPost, "/api/v1/auth/login", "", nil, map[string]string{
		"username": "erin", "password": "s3cret-pass",
	})
	var erinLogin struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(erin.env.Data, &erinLogin); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	res := f.do(t, http.MethodPost, "/api/v1/posts", erinLogin.AccessToken, nil, map[string]string{
		"title": "mine", "content": "hands off",
	})
	var post struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(res.env.Data, &post); err != nil {
		t.Fatalf("decode post: %v", err)
	}

	frank := f.do(t, http.MethodPost, "/api/v1/auth/login", "", nil, map[string]string{
		"username": "frank", "password": "s3cret-pass",
	})
	var frankLogin struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(frank.env.Data, &frankLogin); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	res = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", post.ID), frankLogin.AccessToken, nil, nil)
	if res.status != http.StatusForbidden {
		t.Fatalf("foreign delete: status = %d", res.status)
	}
	res = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/posts/%d", post.ID), erinLogin.AccessToken, nil, nil)
	if res.status != http.StatusOK {
		t.Fatalf("owner delete: status = %d", res.status)
	}
}
