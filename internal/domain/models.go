// Package domain defines the persistence models for users, chat sessions,
// messages, and uploaded prescription images. These types are mapped with
// GORM and form the core data layer of the MediScan backend.
package domain

import "time"

// Message roles. The set is closed and enforced by a DB CHECK constraint.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

// DefaultSessionTitle is used when no usable title can be derived.
const DefaultSessionTitle = "New chat"

// ValidRole reports whether r is one of the accepted message roles.
func ValidRole(r string) bool { return r == RoleUser || r == RoleAI }

// User is a registered account. Accounts are never hard-deleted.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email: lower-cased, unique.
//   - PasswordHash: bcrypt digest; never serialized.
//   - IsVerified: set once the verification link is confirmed.
//   - VerificationToken: pending token, NULL once consumed.
type User struct {
	ID                string    `json:"id"          gorm:"type:char(36);primaryKey"`
	Username          string    `json:"username"    gorm:"type:varchar(128);not null"`
	Email             string    `json:"email"       gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	PasswordHash      string    `json:"-"           gorm:"type:varchar(255);not null"`
	IsVerified        bool      `json:"is_verified" gorm:"not null;default:false"`
	VerificationToken *string   `json:"-"           gorm:"type:char(36);uniqueIndex:ux_users_verification_token"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Session is a chat conversation owned by a user. Owner and ID never change
// after creation; only the title may be updated.
type Session struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index:idx_user_sessions"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null;default:'New chat'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Message is a single immutable utterance within a session, authored either
// by the user or by the AI collaborator. UserID duplicates the session owner
// so per-user queries do not need a join.
type Message struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	SessionID string    `json:"session_id" gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	UserID    string    `json:"user_id"    gorm:"type:char(36);not null;index"`
	Role      string    `json:"role"       gorm:"type:varchar(8);not null;check:chk_messages_role,role IN ('user','ai')"`
	Content   string    `json:"content"    gorm:"type:text;not null"`
	Timestamp time.Time `json:"timestamp"  gorm:"not null;index:idx_session_msgs,priority:2"`

	// Messages are cascade-deleted with their session.
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// SessionSummary is a computed view of a session used by history listings.
// LastMessage and LastMessageAt are nil for sessions without messages.
type SessionSummary struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastMessage   *string    `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
	MessageCount  int64      `json:"message_count"`
}

// Upload records an image stored through the blob backend.
type Upload struct {
	ID               string    `json:"id"                gorm:"type:char(36);primaryKey"`
	UserID           string    `json:"user_id"           gorm:"type:char(36);not null;index"`
	Filename         string    `json:"filename"          gorm:"type:varchar(255);not null"`
	OriginalFilename string    `json:"original_filename" gorm:"type:varchar(255)"`
	ContentType      string    `json:"content_type"      gorm:"type:varchar(128);not null"`
	Size             int64     `json:"size"              gorm:"not null"`
	URL              string    `json:"url"               gorm:"type:text;not null"`
	CreatedAt        time.Time `json:"created_at"`
}

// TableName returns the database table name for Upload.
func (Upload) TableName() string { return "uploads" }
