package service

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"postboard/internal/domain"
	"postboard/internal/repository"
	"postboard/internal/security"
)

func newServiceTestDB(t *testing.T) *gorm.DB {
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
	return db
}

type tokenServiceFixture struct {
	svc       *TokenService
	audit     *AuditService
	jwtMgr    *security.JWTManager
	users     repository.UserRepository
	sessions  repository.SessionRepository
	active    repository.ActiveTokenRepository
	blacklist repository.BlacklistRepository
	logs      repository.TokenLogRepository
	clock     *fakeClock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

const testPepper = "test-pepper-0123456789abcdef"

func newTokenServiceFixture(t *testing.T) *tokenServiceFixture {
	t.Helper()

	db := newServiceTestDB(t)
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	active := repository.NewActiveTokenRepository(db)
	blacklist := repository.NewBlacklistRepository(db)
	logs := repository.NewTokenLogRepository(db)

	jwtMgr := security.NewJWTManager("postboard", "postboard-api",
		"0123456789abcdef0123456789abcdef", 30*time.Minute).WithClock(clock.Now)
	audit := NewAuditService(logs, 2*time.Minute, 10*time.Second).WithClock(clock.Now)
	svc := NewTokenService(jwtMgr, users, sessions, active, blacklist, audit,
		testPepper, 7*24*time.Hour).WithClock(clock.Now)

	return &tokenServiceFixture{
		svc:       svc,
		audit:     audit,
		jwtMgr:    jwtMgr,
		users:     users,
		sessions:  sessions,
		active:    active,
		blacklist: blacklist,
		logs:      logs,
		clock:     clock,
	}
}

func (f *tokenServiceFixture) createUser(t *testing.T, username, password string, active bool) *domain.User {
	t.Helper()

	hash, err := security.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &domain.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Status:       active,
	}
	if err := f.users.Create(user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
