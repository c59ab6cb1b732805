package sync

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// OperationType tags one of the ten supported operation kinds. The union is
// closed: anything else fails validation before any state change.
type OperationType string

const (
	OperationTypeCard             OperationType = "card"
	OperationTypeReviewLog        OperationType = "reviewLog"
	OperationTypeReviewLogDeleted OperationType = "reviewLogDeleted"
	OperationTypeCardContent      OperationType = "cardContent"
	OperationTypeCardDeleted      OperationType = "cardDeleted"
	OperationTypeCardBookmarked   OperationType = "cardBookmarked"
	OperationTypeCardSuspended    OperationType = "cardSuspended"
	OperationTypeCardMetadata     OperationType = "cardMetadata"
	OperationTypeDeck             OperationType = "deck"
	OperationTypeUpdateDeckCard   OperationType = "updateDeckCard"
)

// Envelope is the wire shape of one operation. Timestamp is wall-clock
// milliseconds assigned by the originating client at operation-creation time.
// SeqNo is populated only on server-to-client envelopes.
type Envelope struct {
	Type      OperationType   `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	SeqNo     int64           `json:"seqNo,omitempty"`
}

// Payload is the decoded, kind-specific body of an operation.
type Payload interface {
	kind() OperationType
	validate() error
}

// Operation is a fully decoded and validated envelope.
type Operation struct {
	Type      OperationType
	Timestamp int64
	Payload   Payload
}

// CardPayload carries the scheduler variables computed by the external
// scheduling algorithm; the sync core stores them opaquely.
type CardPayload struct {
	ID               string    `json:"id"`
	DueMillis        int64     `json:"due"`
	Stability        float64   `json:"stability"`
	Difficulty       float64   `json:"difficulty"`
	ElapsedDays      int64     `json:"elapsed_days"`
	ScheduledDays    int64     `json:"scheduled_days"`
	Reps             int64     `json:"reps"`
	Lapses           int64     `json:"lapses"`
	State            CardState `json:"state"`
	LastReviewMillis *int64    `json:"last_review"`
}

func (CardPayload) kind() OperationType { return OperationTypeCard }

func (p CardPayload) validate() error {
	if p.ID == "" {
		return fmt.Errorf("card id is required")
	}
	if p.DueMillis <= 0 {
		return fmt.Errorf("due must be a positive millisecond timestamp")
	}
	if !validCardState(p.State) {
		return fmt.Errorf("unknown card state %q", p.State)
	}
	return nil
}

type ReviewLogPayload struct {
	ID              string      `json:"id"`
	CardID          string      `json:"cardId"`
	Grade           ReviewGrade `json:"grade"`
	State           CardState   `json:"state"`
	DueMillis       int64       `json:"due"`
	Stability       float64     `json:"stability"`
	Difficulty      float64     `json:"difficulty"`
	ElapsedDays     int64       `json:"elapsed_days"`
	LastElapsedDays int64       `json:"last_elapsed_days"`
	ScheduledDays   int64       `json:"scheduled_days"`
	ReviewMillis    int64       `json:"review"`
	DurationMillis  int64       `json:"duration"`
	CreatedAtMillis int64       `json:"createdAt"`
}

func (ReviewLogPayload) kind() OperationType { return OperationTypeReviewLog }

func (p ReviewLogPayload) validate() error {
	if p.ID == "" {
		return fmt.Errorf("review log id is required")
	}
	if p.CardID == "" {
		return fmt.Errorf("review log cardId is required")
	}
	if !validReviewGrade(p.Grade) {
		return fmt.Errorf("unknown review grade %q", p.Grade)
	}
	if !validCardState(p.State) {
		return fmt.Errorf("unknown card state %q", p.State)
	}
	if p.ReviewMillis <= 0 {
		return fmt.Errorf("review must be a positive millisecond timestamp")
	}
	if p.CreatedAtMillis <= 0 {
		return fmt.Errorf("createdAt must be a positive millisecond timestamp")
	}
	return nil
}

type ReviewLogDeletedPayload struct {
	ReviewLogID string `json:"reviewLogId"`
	Deleted     bool   `json:"deleted"`
}

func (ReviewLogDeletedPayload) kind() OperationType { return OperationTypeReviewLogDeleted }

func (p ReviewLogDeletedPayload) validate() error {
	if p.ReviewLogID == "" {
		return fmt.Errorf("reviewLogId is required")
	}
	return nil
}

type CardContentPayload struct {
	CardID string `json:"cardId"`
	Front  string `json:"front"`
	Back   string `json:"back"`
}

func (CardContentPayload) kind() OperationType { return OperationTypeCardContent }

func (p CardContentPayload) validate() error {
	if p.CardID == "" {
		return fmt.Errorf("cardId is required")
	}
	return nil
}

type CardDeletedPayload struct {
	CardID  string `json:"cardId"`
	Deleted bool   `json:"deleted"`
}

func (CardDeletedPayload) kind() OperationType { return OperationTypeCardDeleted }

func (p CardDeletedPayload) validate() error {
	if p.CardID == "" {
		return fmt.Errorf("cardId is required")
	}
	return nil
}

type CardBookmarkedPayload struct {
	CardID     string `json:"cardId"`
	Bookmarked bool   `json:"bookmarked"`
}

func (CardBookmarkedPayload) kind() OperationType { return OperationTypeCardBookmarked }

func (p CardBookmarkedPayload) validate() error {
	if p.CardID == "" {
		return fmt.Errorf("cardId is required")
	}
	return nil
}

type CardSuspendedPayload struct {
	CardID          string `json:"cardId"`
	SuspendedMillis int64  `json:"suspended"`
}

func (CardSuspendedPayload) kind() OperationType { return OperationTypeCardSuspended }

func (p CardSuspendedPayload) validate() error {
	if p.CardID == "" {
		return fmt.Errorf("cardId is required")
	}
	if p.SuspendedMillis <= 0 {
		return fmt.Errorf("suspended must be a positive millisecond timestamp")
	}
	return nil
}

type CardMetadataPayload struct {
	CardID     string `json:"cardId"`
	NoteID     string `json:"noteId"`
	SiblingTag string `json:"siblingTag"`
}

func (CardMetadataPayload) kind() OperationType { return OperationTypeCardMetadata }

func (p CardMetadataPayload) validate() error {
	if p.CardID == "" {
		return fmt.Errorf("cardId is required")
	}
	if p.NoteID == "" {
		return fmt.Errorf("noteId is required")
	}
	return nil
}

type DeckPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Deleted     bool   `json:"deleted"`
}

func (DeckPayload) kind() OperationType { return OperationTypeDeck }

func (p DeckPayload) validate() error {
	if p.ID == "" {
		return fmt.Errorf("deck id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("deck name is required")
	}
	return nil
}

type UpdateDeckCardPayload struct {
	DeckID  string `json:"deckId"`
	CardID  string `json:"cardId"`
	ClCount int64  `json:"clCount"`
}

func (UpdateDeckCardPayload) kind() OperationType { return OperationTypeUpdateDeckCard }

func (p UpdateDeckCardPayload) validate() error {
	if p.DeckID == "" {
		return fmt.Errorf("deckId is required")
	}
	if p.CardID == "" {
		return fmt.Errorf("cardId is required")
	}
	if p.ClCount < 0 {
		return fmt.Errorf("clCount must not be negative")
	}
	return nil
}

// decodeOperation turns one wire envelope into a typed Operation. Payload
// decoding is strict for every kind except cardMetadata, whose schema passes
// unknown fields through.
func decodeOperation(envelope Envelope) (Operation, error) {
	if envelope.Timestamp <= 0 {
		return Operation{}, fmt.Errorf("timestamp must be a positive millisecond value")
	}
	if len(envelope.Payload) == 0 {
		return Operation{}, fmt.Errorf("payload is required")
	}

	var payload Payload
	var err error
	switch envelope.Type {
	case OperationTypeCard:
		payload, err = decodeStrict[CardPayload](envelope.Payload)
	case OperationTypeReviewLog:
		payload, err = decodeStrict[ReviewLogPayload](envelope.Payload)
	case OperationTypeReviewLogDeleted:
		payload, err = decodeStrict[ReviewLogDeletedPayload](envelope.Payload)
	case OperationTypeCardContent:
		payload, err = decodeStrict[CardContentPayload](envelope.Payload)
	case OperationTypeCardDeleted:
		payload, err = decodeStrict[CardDeletedPayload](envelope.Payload)
	case OperationTypeCardBookmarked:
		payload, err = decodeStrict[CardBookmarkedPayload](envelope.Payload)
	case OperationTypeCardSuspended:
		payload, err = decodeStrict[CardSuspendedPayload](envelope.Payload)
	case OperationTypeCardMetadata:
		var metadata CardMetadataPayload
		if unmarshalErr := json.Unmarshal(envelope.Payload, &metadata); unmarshalErr != nil {
			err = unmarshalErr
		} else {
			payload = metadata
		}
	case OperationTypeDeck:
		payload, err = decodeStrict[DeckPayload](envelope.Payload)
	case OperationTypeUpdateDeckCard:
		payload, err = decodeStrict[UpdateDeckCardPayload](envelope.Payload)
	default:
		return Operation{}, fmt.Errorf("unknown operation type %q", envelope.Type)
	}
	if err != nil {
		return Operation{}, fmt.Errorf("malformed %s payload: %v", envelope.Type, err)
	}

	if err := payload.validate(); err != nil {
		return Operation{}, err
	}

	return Operation{
		Type:      envelope.Type,
		Timestamp: envelope.Timestamp,
		Payload:   payload,
	}, nil
}

func decodeStrict[T Payload](raw json.RawMessage) (Payload, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	var value T
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return value, nil
}
