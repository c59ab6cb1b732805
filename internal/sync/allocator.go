package sync

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// reserveSeqNos atomically advances the user's sequence counter by count and
// returns the counter value before the increment, i.e. the first number of
// the reserved block [start, start+count). The single UPDATE ... RETURNING
// statement is what keeps concurrent reservations for the same user from
// overlapping; no application-level lock is involved. Reserved numbers whose
// writes never land stay as gaps, which is fine: only monotonicity matters.
func reserveSeqNos(ctx context.Context, db *gorm.DB, userID string, count int) (int64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("reservation count must be positive, got %d", count)
	}

	var start int64
	result := db.WithContext(ctx).Raw(
		"UPDATE users SET next_seq_no = next_seq_no + ? WHERE id = ? RETURNING next_seq_no - ?",
		count, userID, count,
	).Scan(&start)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrUserNotFound
	}
	return start, nil
}
