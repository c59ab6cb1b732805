package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/retainhq/retain/backend/internal/users"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:retain_sync_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&users.User{},
		&users.Client{},
		&Card{},
		&CardContent{},
		&CardDeleted{},
		&CardBookmarked{},
		&CardSuspended{},
		&CardMetadata{},
		&Deck{},
		&CardDeck{},
		&ReviewLog{},
		&ReviewLogDeleted{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct sync service: %v", err)
	}
	return service, db
}

func seedUser(t *testing.T, db *gorm.DB, userID string) {
	t.Helper()
	user := users.User{
		ID:        userID,
		Email:     userID + "@example.com",
		IsActive:  true,
		NextSeqNo: 1,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

func mustEnvelope(t *testing.T, opType OperationType, timestamp int64, payload any) Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return Envelope{
		Type:      opType,
		Payload:   json.RawMessage(raw),
		Timestamp: timestamp,
	}
}

func mustApply(t *testing.T, service *Service, userID, clientID string, envelopes ...Envelope) {
	t.Helper()
	if err := service.Apply(context.Background(), userID, clientID, envelopes); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}
}

func cardPayload(cardID string) CardPayload {
	return CardPayload{
		ID:            cardID,
		DueMillis:     1700000000000,
		Stability:     2.5,
		Difficulty:    5.0,
		ElapsedDays:   0,
		ScheduledDays: 1,
		Reps:          1,
		Lapses:        0,
		State:         CardStateNew,
	}
}

func reviewLogPayload(id, cardID string) ReviewLogPayload {
	return ReviewLogPayload{
		ID:              id,
		CardID:          cardID,
		Grade:           ReviewGradeGood,
		State:           CardStateReview,
		DueMillis:       1700000000000,
		Stability:       3.1,
		Difficulty:      4.8,
		ElapsedDays:     1,
		LastElapsedDays: 0,
		ScheduledDays:   3,
		ReviewMillis:    1700000000000,
		DurationMillis:  4200,
		CreatedAtMillis: 1700000000000,
	}
}
