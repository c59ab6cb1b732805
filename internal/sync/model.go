package sync

// CardState enumerates the scheduler states a card can be in. The values are
// produced by the external scheduling algorithm and stored opaquely.
type CardState string

const (
	CardStateNew        CardState = "New"
	CardStateLearning   CardState = "Learning"
	CardStateReview     CardState = "Review"
	CardStateRelearning CardState = "Relearning"
)

// ReviewGrade enumerates the rating a user gave during a review.
type ReviewGrade string

const (
	ReviewGradeManual ReviewGrade = "Manual"
	ReviewGradeEasy   ReviewGrade = "Easy"
	ReviewGradeGood   ReviewGrade = "Good"
	ReviewGradeHard   ReviewGrade = "Hard"
	ReviewGradeAgain  ReviewGrade = "Again"
)

func validCardState(value CardState) bool {
	switch value {
	case CardStateNew, CardStateLearning, CardStateReview, CardStateRelearning:
		return true
	}
	return false
}

func validReviewGrade(value ReviewGrade) bool {
	switch value {
	case ReviewGradeManual, ReviewGradeEasy, ReviewGradeGood, ReviewGradeHard, ReviewGradeAgain:
		return true
	}
	return false
}

// Card stores the scheduler variables for one card. Merged last-writer-wins.
type Card struct {
	UserID             string    `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_cards_user_seq,priority:1"`
	ID                 string    `gorm:"column:id;primaryKey;size:190;not null"`
	LastModifiedMillis int64     `gorm:"column:last_modified;not null"`
	LastModifiedClient string    `gorm:"column:last_modified_client;size:190;not null"`
	SeqNo              int64     `gorm:"column:seq_no;not null;index:idx_cards_user_seq,priority:2"`
	DueMillis          int64     `gorm:"column:due;not null"`
	Stability          float64   `gorm:"column:stability;not null"`
	Difficulty         float64   `gorm:"column:difficulty;not null"`
	ElapsedDays        int64     `gorm:"column:elapsed_days;not null"`
	ScheduledDays      int64     `gorm:"column:scheduled_days;not null"`
	Reps               int64     `gorm:"column:reps;not null"`
	Lapses             int64     `gorm:"column:lapses;not null"`
	State              CardState `gorm:"column:state;size:16;not null"`
	LastReviewMillis   *int64    `gorm:"column:last_review"`
}

// TableName provides the explicit table binding for GORM.
func (Card) TableName() string {
	return "cards"
}

// CardContent stores the front/back text for one card. Merged last-writer-wins.
type CardContent struct {
	UserID             string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_card_contents_user_seq,priority:1"`
	CardID             string `gorm:"column:card_id;primaryKey;size:190;not null"`
	Front              string `gorm:"column:front;type:text;not null"`
	Back               string `gorm:"column:back;type:text;not null"`
	LastModifiedMillis int64  `gorm:"column:last_modified;not null"`
	LastModifiedClient string `gorm:"column:last_modified_client;size:190;not null"`
	SeqNo              int64  `gorm:"column:seq_no;not null;index:idx_card_contents_user_seq,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (CardContent) TableName() string {
	return "card_contents"
}

// CardDeleted is the soft-delete marker for a card. Merged last-writer-wins;
// the card row itself is never physically removed.
type CardDeleted struct {
	UserID             string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_card_deleted_user_seq,priority:1"`
	CardID             string `gorm:"column:card_id;primaryKey;size:190;not null"`
	Deleted            bool   `gorm:"column:deleted;not null;default:true"`
	LastModifiedMillis int64  `gorm:"column:last_modified;not null"`
	LastModifiedClient string `gorm:"column:last_modified_client;size:190;not null"`
	SeqNo              int64  `gorm:"column:seq_no;not null;index:idx_card_deleted_user_seq,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (CardDeleted) TableName() string {
	return "card_deleted"
}

// CardBookmarked is a last-writer-wins flag rather than a counter: a user may
// bookmark and unbookmark repeatedly and the latest intent should win.
type CardBookmarked struct {
	UserID             string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_card_bookmarked_user_seq,priority:1"`
	CardID             string `gorm:"column:card_id;primaryKey;size:190;not null"`
	Bookmarked         bool   `gorm:"column:bookmarked;not null;default:false"`
	LastModifiedMillis int64  `gorm:"column:last_modified;not null"`
	LastModifiedClient string `gorm:"column:last_modified_client;size:190;not null"`
	SeqNo              int64  `gorm:"column:seq_no;not null;index:idx_card_bookmarked_user_seq,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (CardBookmarked) TableName() string {
	return "card_bookmarked"
}

// CardSuspended records until when a card is suspended from scheduling.
type CardSuspended struct {
	UserID             string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_card_suspended_user_seq,priority:1"`
	CardID             string `gorm:"column:card_id;primaryKey;size:190;not null"`
	SuspendedMillis    int64  `gorm:"column:suspended;not null"`
	LastModifiedMillis int64  `gorm:"column:last_modified;not null"`
	LastModifiedClient string `gorm:"column:last_modified_client;size:190;not null"`
	SeqNo              int64  `gorm:"column:seq_no;not null;index:idx_card_suspended_user_seq,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (CardSuspended) TableName() string {
	return "card_suspended"
}

// CardMetadata links a card to its source note and sibling grouping tag.
type CardMetadata struct {
	UserID             string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_card_metadata_user_seq,priority:1"`
	CardID             string `gorm:"column:card_id;primaryKey;size:190;not null"`
	NoteID             string `gorm:"column:note_id;size:190;not null"`
	SiblingTag         string `gorm:"column:sibling_tag;size:190;not null"`
	LastModifiedMillis int64  `gorm:"column:last_modified;not null"`
	LastModifiedClient string `gorm:"column:last_modified_client;size:190;not null"`
	SeqNo              int64  `gorm:"column:seq_no;not null;index:idx_card_metadata_user_seq,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (CardMetadata) TableName() string {
	return "card_metadata"
}

// Deck stores a deck's descriptive fields. Merged last-writer-wins.
type Deck struct {
	UserID             string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_decks_user_seq,priority:1"`
	ID                 string `gorm:"column:id;primaryKey;size:190;not null"`
	Name               string `gorm:"column:name;size:320;not null"`
	Description        string `gorm:"column:description;type:text;not null"`
	Deleted            bool   `gorm:"column:deleted;not null;default:false"`
	LastModifiedMillis int64  `gorm:"column:last_modified;not null"`
	LastModifiedClient string `gorm:"column:last_modified_client;size:190;not null"`
	SeqNo              int64  `gorm:"column:seq_no;not null;index:idx_decks_user_seq,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Deck) TableName() string {
	return "decks"
}

// CardDeck records deck membership as a grow-only counter merged by max.
// An even cl_count means the card is in the deck.
type CardDeck struct {
	UserID             string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_card_decks_user_seq,priority:1"`
	CardID             string `gorm:"column:card_id;primaryKey;size:190;not null"`
	DeckID             string `gorm:"column:deck_id;primaryKey;size:190;not null"`
	ClCount            int64  `gorm:"column:cl_count;not null;default:0"`
	LastModifiedMillis int64  `gorm:"column:last_modified;not null"`
	LastModifiedClient string `gorm:"column:last_modified_client;size:190;not null"`
	SeqNo              int64  `gorm:"column:seq_no;not null;index:idx_card_decks_user_seq,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (CardDeck) TableName() string {
	return "card_decks"
}

// ReviewLog is an immutable record that a review happened. Rows are only ever
// inserted; re-submission of the same id is ignored entirely so that "this
// review happened" stays a permanent fact on every replica.
type ReviewLog struct {
	UserID             string      `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_review_logs_user_seq,priority:1"`
	ID                 string      `gorm:"column:id;primaryKey;size:190;not null"`
	CardID             string      `gorm:"column:card_id;size:190;not null;index:idx_review_logs_user_card"`
	SeqNo              int64       `gorm:"column:seq_no;not null;index:idx_review_logs_user_seq,priority:2"`
	LastModifiedClient string      `gorm:"column:last_modified_client;size:190;not null"`
	Grade              ReviewGrade `gorm:"column:grade;size:16;not null"`
	State              CardState   `gorm:"column:state;size:16;not null"`
	DueMillis          int64       `gorm:"column:due;not null"`
	Stability          float64     `gorm:"column:stability;not null"`
	Difficulty         float64     `gorm:"column:difficulty;not null"`
	ElapsedDays        int64       `gorm:"column:elapsed_days;not null"`
	LastElapsedDays    int64       `gorm:"column:last_elapsed_days;not null"`
	ScheduledDays      int64       `gorm:"column:scheduled_days;not null"`
	ReviewMillis       int64       `gorm:"column:review;not null"`
	DurationMillis     int64       `gorm:"column:duration;not null;default:0"`
	CreatedAtMillis    int64       `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ReviewLog) TableName() string {
	return "review_logs"
}

// ReviewLogDeleted is the mutable soft-delete marker for an immutable review
// log, used to implement review undo. Merged last-writer-wins.
type ReviewLogDeleted struct {
	UserID             string `gorm:"column:user_id;primaryKey;size:190;not null;index:idx_review_log_deleted_user_seq,priority:1"`
	ReviewLogID        string `gorm:"column:review_log_id;primaryKey;size:190;not null"`
	Deleted            bool   `gorm:"column:deleted;not null;default:false"`
	LastModifiedMillis int64  `gorm:"column:last_modified;not null"`
	LastModifiedClient string `gorm:"column:last_modified_client;size:190;not null"`
	SeqNo              int64  `gorm:"column:seq_no;not null;index:idx_review_log_deleted_user_seq,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (ReviewLogDeleted) TableName() string {
	return "review_log_deleted"
}
