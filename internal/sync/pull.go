package sync

import (
	"context"
	"encoding/json"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Pull returns every entity change past the client's cursor, excluding rows
// last written by the requesting client, in ascending seq_no order. Because
// the sequence counter is shared by all entity kinds the single sort yields
// one coherent replay order across the ten tables. Only the latest
// materialized row per natural key exists, so a key written twice since the
// cursor comes back once, carrying the winning write's seq_no.
func (s *Service) Pull(ctx context.Context, userID, requestingClientID string, sinceSeqNo int64) ([]Envelope, error) {
	if s.db == nil {
		s.logError(opPull, "missing_database", errMissingDatabase)
		return nil, newServiceError(opPull, "missing_database", errMissingDatabase)
	}

	collectors := []func(*gorm.DB) ([]Envelope, error){
		collectCards,
		collectReviewLogs,
		collectReviewLogDeleted,
		collectCardContents,
		collectCardDeleted,
		collectCardBookmarked,
		collectCardSuspended,
		collectCardMetadata,
		collectDecks,
		collectCardDecks,
	}

	// Session marks the scoped query reusable so each collector gets the
	// same conditions without accumulating state across Find calls.
	scoped := s.db.WithContext(ctx).
		Where("user_id = ? AND seq_no > ? AND last_modified_client <> ?", userID, sinceSeqNo, requestingClientID).
		Session(&gorm.Session{})

	var envelopes []Envelope
	for _, collect := range collectors {
		batch, err := collect(scoped)
		if err != nil {
			s.logError(opPull, "query_failed", err,
				zap.String("user_id", userID),
				zap.Int64("since_seq_no", sinceSeqNo))
			return nil, newServiceError(opPull, "query_failed", err)
		}
		envelopes = append(envelopes, batch...)
	}

	sort.Slice(envelopes, func(i, j int) bool {
		return envelopes[i].SeqNo < envelopes[j].SeqNo
	})
	return envelopes, nil
}

func makeEnvelope(opType OperationType, seqNo, timestamp int64, payload Payload) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:      opType,
		Payload:   json.RawMessage(raw),
		Timestamp: timestamp,
		SeqNo:     seqNo,
	}, nil
}

func collectCards(scope *gorm.DB) ([]Envelope, error) {
	var rows []Card
	if err := scope.Find(&rows).Error; err != nil {
		return nil, err
	}
	envelopes := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		envelope, err := makeEnvelope(OperationTypeCard, row.SeqNo, row.LastModifiedMillis, CardPayload{
			ID:               row.ID,
			DueMillis:        row.DueMillis,
			Stability:        row.Stability,
			Difficulty:       row.Difficulty,
			ElapsedDays:      row.ElapsedDays,
			ScheduledDays:    row.ScheduledDays,
			Reps:             row.Reps,
			Lapses:           row.Lapses,
			State:            row.State,
			LastReviewMillis: row.LastReviewMillis,
		})
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

func collectReviewLogs(scope *gorm.DB) ([]Envelope, error) {
	var rows []ReviewLog
	if err := scope.Find(&rows).Error; err != nil {
		return nil, err
	}
	envelopes := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		envelope, err := makeEnvelope(OperationTypeReviewLog, row.SeqNo, row.CreatedAtMillis, ReviewLogPayload{
			ID:              row.ID,
			CardID:          row.CardID,
			Grade:           row.Grade,
			State:           row.State,
			DueMillis:       row.DueMillis,
			Stability:       row.Stability,
			Difficulty:      row.Difficulty,
			ElapsedDays:     row.ElapsedDays,
			LastElapsedDays: row.LastElapsedDays,
			ScheduledDays:   row.ScheduledDays,
			ReviewMillis:    row.ReviewMillis,
			DurationMillis:  row.DurationMillis,
			CreatedAtMillis: row.CreatedAtMillis,
		})
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

func collectReviewLogDeleted(scope *gorm.DB) ([]Envelope, error) {
	var rows []ReviewLogDeleted
	if err := scope.Find(&rows).Error; err != nil {
		return nil, err
	}
	envelopes := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		envelope, err := makeEnvelope(OperationTypeReviewLogDeleted, row.SeqNo, row.LastModifiedMillis, ReviewLogDeletedPayload{
			ReviewLogID: row.ReviewLogID,
			Deleted:     row.Deleted,
		})
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

func collectCardContents(scope *gorm.DB) ([]Envelope, error) {
	var rows []CardContent
	if err := scope.Find(&rows).Error; err != nil {
		return nil, err
	}
	envelopes := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		envelope, err := makeEnvelope(OperationTypeCardContent, row.SeqNo, row.LastModifiedMillis, CardContentPayload{
			CardID: row.CardID,
			Front:  row.Front,
			Back:   row.Back,
		})
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

func collectCardDeleted(scope *gorm.DB) ([]Envelope, error) {
	var rows []CardDeleted
	if err := scope.Find(&rows).Error; err != nil {
		return nil, err
	}
	envelopes := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		envelope, err := makeEnvelope(OperationTypeCardDeleted, row.SeqNo, row.LastModifiedMillis, CardDeletedPayload{
			CardID:  row.CardID,
			Deleted: row.Deleted,
		})
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

func collectCardBookmarked(scope *gorm.DB) ([]Envelope, error) {
	var rows []CardBookmarked
	if err := scope.Find(&rows).Error; err != nil {
		return nil, err
	}
	envelopes := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		envelope, err := makeEnvelope(OperationTypeCardBookmarked, row.SeqNo, row.LastModifiedMillis, CardBookmarkedPayload{
			CardID:     row.CardID,
			Bookmarked: row.Bookmarked,
		})
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

func collectCardSuspended(scope *gorm.DB) ([]Envelope, error) {
	var rows []CardSuspended
	if err := scope.Find(&rows).Error; err != nil {
		return nil, err
	}
	envelopes := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		envelope, err := makeEnvelope(OperationTypeCardSuspended, row.SeqNo, row.LastModifiedMillis, CardSuspendedPayload{
			CardID:          row.CardID,
			SuspendedMillis: row.SuspendedMillis,
		})
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

func collectCardMetadata(scope *gorm.DB) ([]Envelope, error) {
	var rows []CardMetadata
	if err := scope.Find(&rows).Error; err != nil {
		return nil, err
	}
	envelopes := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		envelope, err := makeEnvelope(OperationTypeCardMetadata, row.SeqNo, row.LastModifiedMillis, CardMetadataPayload{
			CardID:     row.CardID,
			NoteID:     row.NoteID,
			SiblingTag: row.SiblingTag,
		})
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

func collectDecks(scope *gorm.DB) ([]Envelope, error) {
	var rows []Deck
	if err := scope.Find(&rows).Error; err != nil {
		return nil, err
	}
	envelopes := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		envelope, err := makeEnvelope(OperationTypeDeck, row.SeqNo, row.LastModifiedMillis, DeckPayload{
			ID:          row.ID,
			Name:        row.Name,
			Description: row.Description,
			Deleted:     row.Deleted,
		})
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}

func collectCardDecks(scope *gorm.DB) ([]Envelope, error) {
	var rows []CardDeck
	if err := scope.Find(&rows).Error; err != nil {
		return nil, err
	}
	envelopes := make([]Envelope, 0, len(rows))
	for _, row := range rows {
		envelope, err := makeEnvelope(OperationTypeUpdateDeckCard, row.SeqNo, row.LastModifiedMillis, UpdateDeckCardPayload{
			DeckID:  row.DeckID,
			CardID:  row.CardID,
			ClCount: row.ClCount,
		})
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return envelopes, nil
}
