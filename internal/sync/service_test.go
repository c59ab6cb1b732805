package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/retainhq/retain/backend/internal/users"
)

func TestApplyLastWriterWinsIsCommutative(t *testing.T) {
	older := cardPayload("card-1")
	older.Reps = 1
	newer := cardPayload("card-1")
	newer.Reps = 2

	olderEnvelope := func(tt *testing.T) Envelope { return mustEnvelope(tt, OperationTypeCard, 100000, older) }
	newerEnvelope := func(tt *testing.T) Envelope { return mustEnvelope(tt, OperationTypeCard, 101000, newer) }

	orders := []struct {
		name  string
		first func(*testing.T) Envelope
		last  func(*testing.T) Envelope
	}{
		{name: "older-first", first: olderEnvelope, last: newerEnvelope},
		{name: "newer-first", first: newerEnvelope, last: olderEnvelope},
	}

	for _, order := range orders {
		t.Run(order.name, func(t *testing.T) {
			service, db := newTestService(t)
			seedUser(t, db, "user-1")

			mustApply(t, service, "user-1", "test-1", order.first(t))
			mustApply(t, service, "user-1", "test-1", order.last(t))

			var stored Card
			if err := db.Take(&stored).Error; err != nil {
				t.Fatalf("failed to load stored card: %v", err)
			}
			if stored.Reps != 2 {
				t.Fatalf("expected the newer write's payload to win, got reps=%d", stored.Reps)
			}
			if stored.LastModifiedMillis != 101000 {
				t.Fatalf("expected last_modified 101000, got %d", stored.LastModifiedMillis)
			}
			if stored.LastModifiedClient != "test-1" {
				t.Fatalf("unexpected winning client %q", stored.LastModifiedClient)
			}
		})
	}
}

func TestApplyBreaksTimestampTieByClientID(t *testing.T) {
	fromClientOne := cardPayload("card-1")
	fromClientOne.Lapses = 1
	fromClientTwo := cardPayload("card-1")
	fromClientTwo.Lapses = 2

	orders := []struct {
		name          string
		firstClient   string
		firstPayload  CardPayload
		secondClient  string
		secondPayload CardPayload
	}{
		{name: "one-then-two", firstClient: "test-1", firstPayload: fromClientOne, secondClient: "test-2", secondPayload: fromClientTwo},
		{name: "two-then-one", firstClient: "test-2", firstPayload: fromClientTwo, secondClient: "test-1", secondPayload: fromClientOne},
	}

	for _, order := range orders {
		t.Run(order.name, func(t *testing.T) {
			service, db := newTestService(t)
			seedUser(t, db, "user-1")

			mustApply(t, service, "user-1", order.firstClient, mustEnvelope(t, OperationTypeCard, 100000, order.firstPayload))
			mustApply(t, service, "user-1", order.secondClient, mustEnvelope(t, OperationTypeCard, 100000, order.secondPayload))

			var stored Card
			if err := db.Take(&stored).Error; err != nil {
				t.Fatalf("failed to load stored card: %v", err)
			}
			if stored.LastModifiedClient != "test-2" {
				t.Fatalf("expected lexicographically greater client to win, got %q", stored.LastModifiedClient)
			}
			if stored.Lapses != 2 {
				t.Fatalf("expected client test-2's payload, got lapses=%d", stored.Lapses)
			}
		})
	}
}

func TestApplySeqNoTracksWinningWriteOnly(t *testing.T) {
	service, db := newTestService(t)
	seedUser(t, db, "user-1")

	winner := cardPayload("card-1")
	winner.Reps = 7
	loser := cardPayload("card-1")
	loser.Reps = 1

	// The logically newer write lands first and takes seqNo 1; the stale
	// write arrives later with seqNo 2 but must not advance the row's cursor.
	mustApply(t, service, "user-1", "test-1", mustEnvelope(t, OperationTypeCard, 101000, winner))
	mustApply(t, service, "user-1", "test-1", mustEnvelope(t, OperationTypeCard, 100000, loser))

	var stored Card
	if err := db.Take(&stored).Error; err != nil {
		t.Fatalf("failed to load stored card: %v", err)
	}
	if stored.SeqNo != 1 {
		t.Fatalf("expected seq_no 1 from the winning write, got %d", stored.SeqNo)
	}
	if stored.Reps != 7 {
		t.Fatalf("stale write must not overwrite the value, got reps=%d", stored.Reps)
	}

	var user users.User
	if err := db.Where("id = ?", "user-1").Take(&user).Error; err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if user.NextSeqNo != 3 {
		t.Fatalf("both writes consume sequence numbers, expected counter 3, got %d", user.NextSeqNo)
	}
}

func TestApplyReviewLogInsertIsIdempotent(t *testing.T) {
	service, db := newTestService(t)
	seedUser(t, db, "user-1")
	mustApply(t, service, "user-1", "test-1", mustEnvelope(t, OperationTypeCard, 100000, cardPayload("card-1")))

	first := reviewLogPayload("test-review-log-1", "card-1")
	first.CreatedAtMillis = 1700000000000
	mustApply(t, service, "user-1", "test-1", mustEnvelope(t, OperationTypeReviewLog, 100000, first))

	resubmission := reviewLogPayload("test-review-log-1", "card-1")
	resubmission.CreatedAtMillis = 1700009999000
	mustApply(t, service, "user-1", "test-2", mustEnvelope(t, OperationTypeReviewLog, 105000, resubmission))

	var stored ReviewLog
	if err := db.Take(&stored).Error; err != nil {
		t.Fatalf("failed to load review log: %v", err)
	}
	if stored.CreatedAtMillis != 1700000000000 {
		t.Fatalf("re-submission must not change the stored row, got createdAt=%d", stored.CreatedAtMillis)
	}
	if stored.LastModifiedClient != "test-1" {
		t.Fatalf("re-submission must not change bookkeeping, got client %q", stored.LastModifiedClient)
	}

	var count int64
	if err := db.Model(&ReviewLog{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count review logs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one review log row, got %d", count)
	}
}

func TestApplyDeckMembershipMergesByMax(t *testing.T) {
	membership := func(clCount int64) UpdateDeckCardPayload {
		return UpdateDeckCardPayload{DeckID: "deck-1", CardID: "card-1", ClCount: clCount}
	}

	orders := []struct {
		name           string
		expectedSeqNo  int64
		expectedClient string
	}{
		{
			// Lower count arrives first with a later timestamp; the higher
			// count still wins because the merge operation is max, and the
			// row's seq_no is the one from the write that set the max.
			name:           "low-then-high",
			expectedSeqNo:  2,
			expectedClient: "test-2",
		},
		{
			name:           "high-then-low",
			expectedSeqNo:  1,
			expectedClient: "test-1",
		},
	}

	for _, order := range orders {
		t.Run(order.name, func(t *testing.T) {
			service, db := newTestService(t)
			seedUser(t, db, "user-1")

			if order.name == "low-then-high" {
				mustApply(t, service, "user-1", "test-1", mustEnvelope(t, OperationTypeUpdateDeckCard, 101000, membership(1)))
				mustApply(t, service, "user-1", "test-2", mustEnvelope(t, OperationTypeUpdateDeckCard, 100000, membership(2)))
			} else {
				mustApply(t, service, "user-1", "test-1", mustEnvelope(t, OperationTypeUpdateDeckCard, 100000, membership(2)))
				mustApply(t, service, "user-1", "test-2", mustEnvelope(t, OperationTypeUpdateDeckCard, 101000, membership(1)))
			}

			var stored CardDeck
			if err := db.Take(&stored).Error; err != nil {
				t.Fatalf("failed to load membership row: %v", err)
			}
			if stored.ClCount != 2 {
				t.Fatalf("expected max-merged count 2, got %d", stored.ClCount)
			}
			if stored.SeqNo != order.expectedSeqNo {
				t.Fatalf("expected seq_no %d from the write that set the max, got %d", order.expectedSeqNo, stored.SeqNo)
			}
			if stored.LastModifiedClient != order.expectedClient {
				t.Fatalf("expected client %q, got %q", order.expectedClient, stored.LastModifiedClient)
			}
		})
	}
}

func TestApplyRejectsOversizedBatch(t *testing.T) {
	service, db := newTestService(t)
	seedUser(t, db, "user-1")

	envelope := mustEnvelope(t, OperationTypeCard, 100000, cardPayload("card-1"))
	envelopes := make([]Envelope, MaxOperationsPerBatch+1)
	for i := range envelopes {
		envelopes[i] = envelope
	}

	err := service.Apply(context.Background(), "user-1", "test-1", envelopes)
	if !errors.Is(err, ErrTooManyOperations) {
		t.Fatalf("expected ErrTooManyOperations, got %v", err)
	}

	var cardCount int64
	if err := db.Model(&Card{}).Count(&cardCount).Error; err != nil {
		t.Fatalf("failed to count cards: %v", err)
	}
	if cardCount != 0 {
		t.Fatalf("oversized batch must not write anything, found %d rows", cardCount)
	}

	var user users.User
	if err := db.Where("id = ?", "user-1").Take(&user).Error; err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if user.NextSeqNo != 1 {
		t.Fatalf("oversized batch must not consume sequence numbers, counter at %d", user.NextSeqNo)
	}
}

func TestApplyFailsForUnknownUser(t *testing.T) {
	service, _ := newTestService(t)

	err := service.Apply(context.Background(), "missing-user", "test-1",
		[]Envelope{mustEnvelope(t, OperationTypeCard, 100000, cardPayload("card-1"))})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestApplyReviewLogRequiresExistingCard(t *testing.T) {
	service, db := newTestService(t)
	seedUser(t, db, "user-1")

	err := service.Apply(context.Background(), "user-1", "test-1",
		[]Envelope{mustEnvelope(t, OperationTypeReviewLog, 100000, reviewLogPayload("log-1", "card-missing"))})
	if !errors.Is(err, ErrReferentialIntegrity) {
		t.Fatalf("expected ErrReferentialIntegrity, got %v", err)
	}

	var count int64
	if err := db.Model(&ReviewLog{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count review logs: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected review log must not be stored, found %d rows", count)
	}

	var user users.User
	if err := db.Where("id = ?", "user-1").Take(&user).Error; err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if user.NextSeqNo != 1 {
		t.Fatalf("rejected batch must not consume sequence numbers, counter at %d", user.NextSeqNo)
	}
}

func TestApplyReviewLogAcceptsCardFromSameBatch(t *testing.T) {
	service, db := newTestService(t)
	seedUser(t, db, "user-1")

	mustApply(t, service, "user-1", "test-1",
		mustEnvelope(t, OperationTypeCard, 100000, cardPayload("card-1")),
		mustEnvelope(t, OperationTypeReviewLog, 100000, reviewLogPayload("log-1", "card-1")),
	)

	var stored ReviewLog
	if err := db.Take(&stored).Error; err != nil {
		t.Fatalf("failed to load review log: %v", err)
	}
	if stored.SeqNo != 2 {
		t.Fatalf("expected the review log to take the second reserved number, got %d", stored.SeqNo)
	}
}

func TestApplyAssignsSequenceNumbersInListOrder(t *testing.T) {
	service, db := newTestService(t)
	seedUser(t, db, "user-1")

	mustApply(t, service, "user-1", "test-1",
		mustEnvelope(t, OperationTypeDeck, 100000, DeckPayload{ID: "deck-1", Name: "German"}),
		mustEnvelope(t, OperationTypeCard, 100000, cardPayload("card-1")),
		mustEnvelope(t, OperationTypeCardContent, 100000, CardContentPayload{CardID: "card-1", Front: "Hund", Back: "dog"}),
	)

	var deck Deck
	if err := db.Take(&deck).Error; err != nil {
		t.Fatalf("failed to load deck: %v", err)
	}
	if deck.SeqNo != 1 {
		t.Fatalf("expected first operation to get seq_no 1, got %d", deck.SeqNo)
	}

	var content CardContent
	if err := db.Take(&content).Error; err != nil {
		t.Fatalf("failed to load card content: %v", err)
	}
	if content.SeqNo != 3 {
		t.Fatalf("expected third operation to get seq_no 3, got %d", content.SeqNo)
	}
}
