package users

import "time"

// User owns all synced data for one account. NextSeqNo is the per-user
// monotonic counter every entity kind draws from; it is mutated only by the
// sequence allocator and never decreases or reuses a value.
type User struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	Email       string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true"`
	NextSeqNo   int64     `gorm:"column:next_seq_no;not null;default:1"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Client registers one sync participant (device or session) within a user's
// scope. The id is opaque and serves only as the LWW tie-breaker and the
// "exclude own writes" filter; the row carries no sync state.
type Client struct {
	UserID     string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	LastSeenAt time.Time `gorm:"column:last_seen_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Client) TableName() string {
	return "clients"
}
