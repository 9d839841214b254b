package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"postboard/internal/domain"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newSessionRepoForTest(t *testing.T) SessionRepository {
	t.Helper()
	return NewSessionRepository(newTestDB(t, &domain.Session{}))
}

func TestSessionCreateDuplicateHashConflicts(t *testing.T) {
	repo := newSessionRepoForTest(t)

	s1 := &domain.Session{UserID: 1, RefreshTokenHash: "h1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(s1); err != nil {
		t.Fatalf("create: %v", err)
	}

	s2 := &domain.Session{UserID: 2, RefreshTokenHash: "h1", ExpiresAt: time.Now().Add(time.Hour)}
	if err := repo.Create(s2); !errors.Is(err, ErrSessionConflict) {
		t.Fatalf("expected ErrSessionConflict for duplicate hash, got %v", err)
	}
}

func TestSessionValidateChecksAllThreeConditions(t *testing.T) {
	repo := newSessionRepoForTest(t)
	now := time.Now()

	if err := repo.Create(&domain.Session{UserID: 1, RefreshTokenHash: "ok", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create ok: %v", err)
	}
	if err := repo.Create(&domain.Session{UserID: 1, RefreshTokenHash: "expired", ExpiresAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	if err := repo.Create(&domain.Session{UserID: 1, RefreshTokenHash: "revoked", ExpiresAt: now.Add(time.Hour), Revoked: true}); err != nil {
		t.Fatalf("create revoked: %v", err)
	}

	cases := []struct {
		hash string
		want bool
	}{
		{hash: "ok", want: true},
		{hash: "expired", want: false},
		{hash: "revoked", want: false},
		{hash: "absent", want: false},
	}
	for _, tc := range cases {
		got, err := repo.Validate(tc.hash, now)
		if err != nil {
			t.Fatalf("validate %q: %v", tc.hash, err)
		}
		if got != tc.want {
			t.Fatalf("validate %q = %v, want %v", tc.hash, got, tc.want)
		}
	}
}

func TestSessionRevokeIsMonotonicAndIdempotent(t *testing.T) {
	repo := newSessionRepoForTest(t)
	now := time.Now()

	if err := repo.Create(&domain.Session{UserID: 1, RefreshTokenHash: "h1", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	changed, err := repo.Revoke("h1")
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !changed {
		t.Fatal("expected changed=true on first revoke")
	}

	changed, err = repo.Revoke("h1")
	if err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if changed {
		t.Fatal("expected changed=false on already revoked session")
	}

	ok, err := repo.Validate("h1", now)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("revoked session must never validate again")
	}
}

func TestSessionRevokeAllByUser(t *testing.T) {
	repo := newSessionRepoForTest(t)
	now := time.Now()

	for i, hash := range []string{"u1a", "u1b", "u1c"} {
		if err := repo.Create(&domain.Session{UserID: 1, RefreshTokenHash: hash, ExpiresAt: now.Add(time.Duration(i+1) * time.Hour)}); err != nil {
			t.Fatalf("create %s: %v", hash, err)
		}
	}
	if err := repo.Create(&domain.Session{UserID: 2, RefreshTokenHash: "u2a", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create u2a: %v", err)
	}

	count, err := repo.RevokeAllByUser(1)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 sessions revoked, got %d", count)
	}

	for _, hash := range []string{"u1a", "u1b", "u1c"} {
		ok, err := repo.Validate(hash, now)
		if err != nil {
			t.Fatalf("validate %s: %v", hash, err)
		}
		if ok {
			t.Fatalf("session %s should be revoked", hash)
		}
	}
	ok, err := repo.Validate("u2a", now)
	if err != nil {
		t.Fatalf("validate u2a: %v", err)
	}
	if !ok {
		t.Fatal("other user's session must stay valid")
	}
}

func TestSessionPurgeExpiredDeletesOnlyPastExpiry(t *testing.T) {
	repo := newSessionRepoForTest(t)
	now := time.Now()

	if err := repo.Create(&domain.Session{UserID: 1, RefreshTokenHash: "old", ExpiresAt: now.Add(-time.Hour)}); err != nil {
		t.Fatalf("create old: %v", err)
	}
	if err := repo.Create(&domain.Session{UserID: 1, RefreshTokenHash: "live", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create live: %v", err)
	}

	purged, err := repo.PurgeExpired(now)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged session, got %d", purged)
	}

	if _, err := repo.FindByHash("old"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected old session gone, got %v", err)
	}
	if _, err := repo.FindByHash("live"); err != nil {
		t.Fatalf("live session must survive purge: %v", err)
	}
}
