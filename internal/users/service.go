package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidEmail indicates the supplied email is empty or malformed.
	ErrInvalidEmail = errors.New("users: invalid email")
	// ErrUserNotFound indicates no user row exists for the identifier.
	ErrUserNotFound = errors.New("users: user not found")
)

// IDProvider issues identifiers for newly provisioned users.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies for user and client management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// Service provisions users and registers sync clients. Authentication itself
// (passwords, sessions) lives outside this backend; the identity layer hands
// requests an already-authenticated user id and client id.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider IDProvider
}

// NewService constructs the users service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock, idProvider: cfg.IDProvider}, nil
}

// Register provisions a user row with a fresh id and the sequence counter at
// its initial value, so the first reserved sequence number is 1.
func (s *Service) Register(ctx context.Context, email, displayName string) (User, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || !strings.Contains(normalized, "@") {
		return User{}, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:          id,
		Email:       normalized,
		DisplayName: strings.TrimSpace(displayName),
		IsActive:    true,
		NextSeqNo:   1,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, err
	}
	return user, nil
}

// Get loads a user row by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// EnsureClient registers the client on first contact and bumps its last-seen
// stamp on every later one. Safe under concurrent requests from the same
// device: the upsert is keyed on (user_id, id).
func (s *Service) EnsureClient(ctx context.Context, userID, clientID string) error {
	if userID == "" || clientID == "" {
		return fmt.Errorf("users: user id and client id are required")
	}
	row := Client{
		UserID:     userID,
		ID:         clientID,
		LastSeenAt: s.now().UTC(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_seen_at"}),
		}).
		Create(&row).Error
}
