package sync

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Every merge handler is a single conditional upsert so a whole batch can be
// submitted to the store without per-operation transactions. Convergence
// relies on the store evaluating the ON CONFLICT predicate atomically at
// write time.

type batchWrite func(tx *gorm.DB) error

// lwwConflict builds the last-writer-wins upsert clause: overwrite the stored
// row only when the incoming write is strictly newer, breaking timestamp ties
// by lexicographic client id. A losing write leaves the stored row untouched,
// including seq_no, so a stale write never advances the entity's sync cursor.
func lwwConflict(table string, keyColumns []string, valueColumns []string) clause.OnConflict {
	predicate := fmt.Sprintf(
		"excluded.last_modified > %[1]s.last_modified OR (excluded.last_modified = %[1]s.last_modified AND excluded.last_modified_client > %[1]s.last_modified_client)",
		table,
	)

	columns := make([]clause.Column, 0, len(keyColumns))
	for _, name := range keyColumns {
		columns = append(columns, clause.Column{Name: name})
	}

	assignments := make([]string, 0, len(valueColumns)+3)
	assignments = append(assignments, valueColumns...)
	assignments = append(assignments, "last_modified", "last_modified_client", "seq_no")

	return clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns(assignments),
		Where:     clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: predicate}}},
	}
}

// maxMergeConflict builds the grow-only counter upsert clause: the merge
// operation is max, so ties and lower counts are no-ops.
func maxMergeConflict(table string, keyColumns []string) clause.OnConflict {
	columns := make([]clause.Column, 0, len(keyColumns))
	for _, name := range keyColumns {
		columns = append(columns, clause.Column{Name: name})
	}
	return clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.AssignmentColumns([]string{"cl_count", "last_modified", "last_modified_client", "seq_no"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: fmt.Sprintf("excluded.cl_count > %s.cl_count", table)},
		}},
	}
}

// insertOnlyConflict builds the grow-only set clause: on conflict nothing
// changes, not even bookkeeping fields, making re-submission fully idempotent.
func insertOnlyConflict(keyColumns []string) clause.OnConflict {
	columns := make([]clause.Column, 0, len(keyColumns))
	for _, name := range keyColumns {
		columns = append(columns, clause.Column{Name: name})
	}
	return clause.OnConflict{Columns: columns, DoNothing: true}
}

// buildWrite maps one assigned operation onto the upsert for its entity
// table. The switch is exhaustive over the closed payload union; decoding has
// already rejected anything else.
func buildWrite(userID, clientID string, seqNo int64, op Operation) (batchWrite, error) {
	switch payload := op.Payload.(type) {
	case CardPayload:
		row := Card{
			UserID:             userID,
			ID:                 payload.ID,
			LastModifiedMillis: op.Timestamp,
			LastModifiedClient: clientID,
			SeqNo:              seqNo,
			DueMillis:          payload.DueMillis,
			Stability:          payload.Stability,
			Difficulty:         payload.Difficulty,
			ElapsedDays:        payload.ElapsedDays,
			ScheduledDays:      payload.ScheduledDays,
			Reps:               payload.Reps,
			Lapses:             payload.Lapses,
			State:              payload.State,
			LastReviewMillis:   payload.LastReviewMillis,
		}
		conflict := lwwConflict("cards", []string{"user_id", "id"}, []string{
			"due", "stability", "difficulty", "elapsed_days", "scheduled_days",
			"reps", "lapses", "state", "last_review",
		})
		return func(tx *gorm.DB) error {
			return tx.Clauses(conflict).Create(&row).Error
		}, nil

	case ReviewLogPayload:
		row := ReviewLog{
			UserID:             userID,
			ID:                 payload.ID,
			CardID:             payload.CardID,
			SeqNo:              seqNo,
			LastModifiedClient: clientID,
			Grade:              payload.Grade,
			State:              payload.State,
			DueMillis:          payload.DueMillis,
			Stability:          payload.Stability,
			Difficulty:         payload.Difficulty,
			ElapsedDays:        payload.ElapsedDays,
			LastElapsedDays:    payload.LastElapsedDays,
			ScheduledDays:      payload.ScheduledDays,
			ReviewMillis:       payload.ReviewMillis,
			DurationMillis:     payload.DurationMillis,
			CreatedAtMillis:    payload.CreatedAtMillis,
		}
		conflict := insertOnlyConflict([]string{"user_id", "id"})
		return func(tx *gorm.DB) error {
			return tx.Clauses(conflict).Create(&row).Error
		}, nil

	case ReviewLogDeletedPayload:
		row := ReviewLogDeleted{
			UserID:             userID,
			ReviewLogID:        payload.ReviewLogID,
			Deleted:            payload.Deleted,
			LastModifiedMillis: op.Timestamp,
			LastModifiedClient: clientID,
			SeqNo:              seqNo,
		}
		conflict := lwwConflict("review_log_deleted", []string{"user_id", "review_log_id"}, []string{"deleted"})
		return func(tx *gorm.DB) error {
			return tx.Clauses(conflict).Create(&row).Error
		}, nil

	case CardContentPayload:
		row := CardContent{
			UserID:             userID,
			CardID:             payload.CardID,
			Front:              payload.Front,
			Back:               payload.Back,
			LastModifiedMillis: op.Timestamp,
			LastModifiedClient: clientID,
			SeqNo:              seqNo,
		}
		conflict := lwwConflict("card_contents", []string{"user_id", "card_id"}, []string{"front", "back"})
		return func(tx *gorm.DB) error {
			return tx.Clauses(conflict).Create(&row).Error
		}, nil

	case CardDeletedPayload:
		row := CardDeleted{
			UserID:             userID,
			CardID:             payload.CardID,
			Deleted:            payload.Deleted,
			LastModifiedMillis: op.Timestamp,
			LastModifiedClient: clientID,
			SeqNo:              seqNo,
		}
		conflict := lwwConflict("card_deleted", []string{"user_id", "card_id"}, []string{"deleted"})
		return func(tx *gorm.DB) error {
			return tx.Clauses(conflict).Create(&row).Error
		}, nil

	case CardBookmarkedPayload:
		row := CardBookmarked{
			UserID:             userID,
			CardID:             payload.CardID,
			Bookmarked:         payload.Bookmarked,
			LastModifiedMillis: op.Timestamp,
			LastModifiedClient: clientID,
			SeqNo:              seqNo,
		}
		conflict := lwwConflict("card_bookmarked", []string{"user_id", "card_id"}, []string{"bookmarked"})
		return func(tx *gorm.DB) error {
			return tx.Clauses(conflict).Create(&row).Error
		}, nil

	case CardSuspendedPayload:
		row := CardSuspended{
			UserID:             userID,
			CardID:             payload.CardID,
			SuspendedMillis:    payload.SuspendedMillis,
			LastModifiedMillis: op.Timestamp,
			LastModifiedClient: clientID,
			SeqNo:              seqNo,
		}
		conflict := lwwConflict("card_suspended", []string{"user_id", "card_id"}, []string{"suspended"})
		return func(tx *gorm.DB) error {
			return tx.Clauses(conflict).Create(&row).Error
		}, nil

	case CardMetadataPayload:
		row := CardMetadata{
			UserID:             userID,
			CardID:             payload.CardID,
			NoteID:             payload.NoteID,
			SiblingTag:         payload.SiblingTag,
			LastModifiedMillis: op.Timestamp,
			LastModifiedClient: clientID,
			SeqNo:              seqNo,
		}
		conflict := lwwConflict("card_metadata", []string{"user_id", "card_id"}, []string{"note_id", "sibling_tag"})
		return func(tx *gorm.DB) error {
			return tx.Clauses(conflict).Create(&row).Error
		}, nil

	case DeckPayload:
		row := Deck{
			UserID:             userID,
			ID:                 payload.ID,
			Name:               payload.Name,
			Description:        payload.Description,
			Deleted:            payload.Deleted,
			LastModifiedMillis: op.Timestamp,
			LastModifiedClient: clientID,
			SeqNo:              seqNo,
		}
		conflict := lwwConflict("decks", []string{"user_id", "id"}, []string{"name", "description", "deleted"})
		return func(tx *gorm.DB) error {
			return tx.Clauses(conflict).Create(&row).Error
		}, nil

	case UpdateDeckCardPayload:
		row := CardDeck{
			UserID:             userID,
			CardID:             payload.CardID,
			DeckID:             payload.DeckID,
			ClCount:            payload.ClCount,
			LastModifiedMillis: op.Timestamp,
			LastModifiedClient: clientID,
			SeqNo:              seqNo,
		}
		conflict := maxMergeConflict("card_decks", []string{"user_id", "card_id", "deck_id"})
		return func(tx *gorm.DB) error {
			return tx.Clauses(conflict).Create(&row).Error
		}, nil
	}

	return nil, fmt.Errorf("no handler for operation type %q", op.Type)
}
