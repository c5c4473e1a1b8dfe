package db

import (
	"time"

	"gorm.io/datatypes"
)

type SwipeDecision string

const (
	DecisionLike SwipeDecision = "like"
	DecisionPass SwipeDecision = "pass"
)

type MatchStatus string

const (
	MatchActive   MatchStatus = "active"
	MatchInactive MatchStatus = "inactive"
	MatchBlocked  MatchStatus = "blocked"
)

type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestConfirmed RequestStatus = "confirmed"
	RequestRejected  RequestStatus = "rejected"
	RequestExpired   RequestStatus = "expired"
	RequestCancelled RequestStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s RequestStatus) Terminal() bool {
	return s != RequestPending
}

// User is the profile row the core reads preferences and location from.
// Identity itself is owned by the auth system.
type User struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Active       bool   `gorm:"default:true"`
	LastLoginAt  time.Time
	Gender       string `gorm:"size:16;not null"`
	BirthDate    *time.Time
	Latitude     *float64
	Longitude    *float64
	Zodiac       string `gorm:"size:16"`
	Activities   datatypes.JSONSlice[string]

	// Preferences
	MinAge          int
	MaxAge          int
	MaxDistanceKm   float64
	GenderTargets   datatypes.JSONSlice[string]
	ActivityFilters datatypes.JSONSlice[string]
	ZodiacFilters   datatypes.JSONSlice[string]

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Swipe is a swiper's like/pass on a swiped user.
//
// Composite PK: (SwiperID, SwipedID)
//   - Re-swiping the same target updates the row in place.
//
// Indexes:
//   - idx_swiped_decision_updated_swiper(swiped_id, decision, updated_at DESC, swiper_id)
//     Serves "who liked me" listings with pagination.
//   - idx_swiper_swiped_decision(swiper_id, swiped_id, decision)
//     Serves the reverse-like lookup on every like.
type Swipe struct {
	SwiperID  uint64        `gorm:"primaryKey;index:idx_swiper_swiped_decision,priority:1"`
	SwipedID  uint64        `gorm:"primaryKey;index:idx_swiped_decision_updated_swiper,priority:1;index:idx_swiper_swiped_decision,priority:2"`
	Decision  SwipeDecision `gorm:"size:8;not null;index:idx_swiped_decision_updated_swiper,priority:2;index:idx_swiper_swiped_decision,priority:3"`
	CreatedAt time.Time     `gorm:"autoCreateTime"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime;index:idx_swiped_decision_updated_swiper,priority:3,sort:desc"`
}

// MatchRequest is an explicit request from requester to target, unique per
// ordered pair.
type MatchRequest struct {
	ID                    string         `gorm:"primaryKey;size:36"`
	RequesterID           uint64         `gorm:"not null;uniqueIndex:idx_request_pair,priority:1"`
	TargetID              uint64         `gorm:"not null;uniqueIndex:idx_request_pair,priority:2;index:idx_request_target_status"`
	Status                RequestStatus  `gorm:"size:16;not null;index:idx_request_status_expires,priority:1;index:idx_request_target_status"`
	ExpiresAt             time.Time      `gorm:"not null;index:idx_request_status_expires,priority:2"`
	RespondedAt           *time.Time
	CompatibilitySnapshot datatypes.JSON
	CreatedAt             time.Time `gorm:"autoCreateTime"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime"`
}

// Match is keyed by the canonical pair (UserLowID < UserHighID). The unique
// index is what makes formation collide for (a, b) and (b, a).
type Match struct {
	ID                 string      `gorm:"primaryKey;size:36"`
	UserLowID          uint64      `gorm:"not null;uniqueIndex:idx_match_pair,priority:1"`
	UserHighID         uint64      `gorm:"not null;uniqueIndex:idx_match_pair,priority:2;index"`
	Status             MatchStatus `gorm:"size:16;not null;default:active"`
	CompatibilityScore *float64
	ScoreFallback      bool `gorm:"not null;default:false"`
	ScoreBreakdown     datatypes.JSON
	ConversationID     *string `gorm:"size:36"`
	SourceRequestID    *string `gorm:"size:36"`
	MatchedAt          time.Time
	UpdatedAt          time.Time `gorm:"autoUpdateTime"`
}

// NeedsScore reports a legacy or fallback-scored record that should be patched.
func (m *Match) NeedsScore() bool {
	return m.CompatibilityScore == nil || m.ScoreFallback
}

// Conversation belongs 1:1 to a Match, enforced on both the pair and match id.
type Conversation struct {
	ID                 string `gorm:"primaryKey;size:36"`
	UserLowID          uint64 `gorm:"not null;uniqueIndex:idx_conversation_pair,priority:1"`
	UserHighID         uint64 `gorm:"not null;uniqueIndex:idx_conversation_pair,priority:2"`
	MatchID            string `gorm:"size:36;not null;uniqueIndex"`
	LastMessageAt      *time.Time
	LastMessagePreview string    `gorm:"size:255"`
	CreatedAt          time.Time `gorm:"autoCreateTime"`
}

// CompatibilityEntry memoizes the scorer per canonical pair. Safe to drop.
type CompatibilityEntry struct {
	UserLowID  uint64  `gorm:"primaryKey"`
	UserHighID uint64  `gorm:"primaryKey"`
	Score      float64 `gorm:"not null"`
	Breakdown  datatypes.JSON
	ComputedAt time.Time `gorm:"not null"`
}

// RateLimitWindow is a fixed-window counter. WindowStart is unix seconds so
// equality lookups do not depend on the driver's timestamp precision.
type RateLimitWindow struct {
	Identifier   string    `gorm:"primaryKey;size:191"`
	WindowStart  int64     `gorm:"primaryKey;autoIncrement:false"`
	RequestCount int64     `gorm:"not null;default:0"`
	RequestLimit int64     `gorm:"not null"`
	ResetAt      time.Time `gorm:"not null;index"`
}

// StatusAuditRecord is append-only; one row per transition.
type StatusAuditRecord struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	EntityType  string `gorm:"size:32;not null;index:idx_audit_entity,priority:1"`
	EntityID    string `gorm:"size:64;not null;index:idx_audit_entity,priority:2"`
	FromStatus  string `gorm:"size:16"`
	ToStatus    string `gorm:"size:16;not null"`
	Reason      string `gorm:"size:64"`
	TriggeredBy uint64
	Metadata    datatypes.JSON
	CreatedAt   time.Time `gorm:"not null;index"`
}

// Block excludes a pair from discovery and matching in both directions.
type Block struct {
	BlockerID uint64    `gorm:"primaryKey"`
	BlockedID uint64    `gorm:"primaryKey;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Models lists every table managed by AutoMigrate.
func Models() []any {
	return []any{
		&User{},
		&Swipe{},
		&MatchRequest{},
		&Match{},
		&Conversation{},
		&CompatibilityEntry{},
		&RateLimitWindow{},
		&StatusAuditRecord{},
		&Block{},
	}
}
