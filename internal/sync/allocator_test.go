package sync

import (
	"context"
	"errors"
	"testing"
)

func TestReserveSeqNosReturnsContiguousBlocks(t *testing.T) {
	_, db := newTestService(t)
	seedUser(t, db, "user-1")

	first, err := reserveSeqNos(context.Background(), db, "user-1", 3)
	if err != nil {
		t.Fatalf("unexpected reservation error: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected first block to start at 1, got %d", first)
	}

	second, err := reserveSeqNos(context.Background(), db, "user-1", 2)
	if err != nil {
		t.Fatalf("unexpected reservation error: %v", err)
	}
	if second != 4 {
		t.Fatalf("expected second block to start at 4, got %d", second)
	}
}

func TestReserveSeqNosUnknownUser(t *testing.T) {
	_, db := newTestService(t)

	_, err := reserveSeqNos(context.Background(), db, "missing-user", 1)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestReserveSeqNosRejectsNonPositiveCount(t *testing.T) {
	_, db := newTestService(t)
	seedUser(t, db, "user-1")

	if _, err := reserveSeqNos(context.Background(), db, "user-1", 0); err == nil {
		t.Fatalf("expected an error for a zero-size reservation")
	}
}
