package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDProvider struct {
	id string
}

func (p *staticIDProvider) NewID() (string, error) {
	return p.id, nil
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:retain_users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}, &Client{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clock func() time.Time) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock,
		IDProvider: &staticIDProvider{id: "user-fixed-id"},
	})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}
	return service
}

func TestRegisterProvisionsUserWithInitialCounter(t *testing.T) {
	db := newTestDatabase(t)
	service := newTestService(t, db, nil)

	user, err := service.Register(context.Background(), "  Learner@Example.COM ", " Casey ")
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if user.ID != "user-fixed-id" {
		t.Fatalf("unexpected user id %q", user.ID)
	}
	if user.Email != "learner@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.DisplayName != "Casey" {
		t.Fatalf("expected trimmed display name, got %q", user.DisplayName)
	}
	if user.NextSeqNo != 1 {
		t.Fatalf("expected the sequence counter to start at 1, got %d", user.NextSeqNo)
	}

	stored, err := service.Get(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if !stored.IsActive {
		t.Fatalf("expected a freshly registered user to be active")
	}
}

func TestRegisterRejectsInvalidEmail(t *testing.T) {
	db := newTestDatabase(t)
	service := newTestService(t, db, nil)

	for _, email := range []string{"", "   ", "not-an-email"} {
		if _, err := service.Register(context.Background(), email, ""); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
}

func TestGetUnknownUser(t *testing.T) {
	db := newTestDatabase(t)
	service := newTestService(t, db, nil)

	if _, err := service.Get(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestEnsureClientUpsertsLastSeen(t *testing.T) {
	db := newTestDatabase(t)

	current := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	service := newTestService(t, db, func() time.Time { return current })

	if err := service.EnsureClient(context.Background(), "user-1", "client-1"); err != nil {
		t.Fatalf("unexpected ensure error: %v", err)
	}

	current = current.Add(45 * time.Minute)
	if err := service.EnsureClient(context.Background(), "user-1", "client-1"); err != nil {
		t.Fatalf("unexpected ensure error on second contact: %v", err)
	}

	var count int64
	if err := db.Model(&Client{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count clients: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single client row, got %d", count)
	}

	var stored Client
	if err := db.Take(&stored).Error; err != nil {
		t.Fatalf("failed to load client: %v", err)
	}
	if !stored.LastSeenAt.Equal(current) {
		t.Fatalf("expected last_seen_at %v, got %v", current, stored.LastSeenAt)
	}
}

func TestEnsureClientRequiresIdentifiers(t *testing.T) {
	db := newTestDatabase(t)
	service := newTestService(t, db, nil)

	if err := service.EnsureClient(context.Background(), "", "client-1"); err == nil {
		t.Fatalf("expected an error for a missing user id")
	}
	if err := service.EnsureClient(context.Background(), "user-1", ""); err == nil {
		t.Fatalf("expected an error for a missing client id")
	}
}
