package gallery

import (
	"errors"
	"fmt"
	"strings"
)

const (
	maxExternalIDLength = 2048
	maxUserIDLength     = 190
)

var (
	// ErrInvalidExternalID indicates an external identifier is empty or exceeds storage bounds.
	ErrInvalidExternalID = errors.New("gallery: invalid external id")
	// ErrInvalidUserID indicates a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("gallery: invalid user id")
	// ErrAlreadyVoted indicates the user has already cast a vote for the item.
	ErrAlreadyVoted = errors.New("gallery: already voted")
	// ErrNotFound indicates an administrative operation matched no gallery rows.
	ErrNotFound = errors.New("gallery: not found")
)

// ExternalID represents a validated external item identifier such as
// "generated:<docID>" or "external:<url>".
type ExternalID string

// NewExternalID validates raw input and returns an ExternalID.
func NewExternalID(rawInput string) (ExternalID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidExternalID)
	}
	if len(trimmed) > maxExternalIDLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidExternalID, maxExternalIDLength)
	}
	return ExternalID(trimmed), nil
}

// String returns the underlying identifier.
func (id ExternalID) String() string {
	return string(id)
}

// UserID represents a validated authenticated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxUserIDLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxUserIDLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying identifier.
func (id UserID) String() string {
	return string(id)
}

// Item models one publicly visible gallery entry, keyed by the encoded
// identifier. Rand is the sampling key assigned once per row; NULL marks
// rows the backfill has not reached yet.
type Item struct {
	NID       string   `gorm:"column:nid;primaryKey;size:512;not null"`
	ID        string   `gorm:"column:id;size:2048;not null"`
	ImageURL  string   `gorm:"column:image_url;size:2048;not null;default:''"`
	Prompt    *string  `gorm:"column:prompt;type:text"`
	Votes     int64    `gorm:"column:votes;not null;default:0;index:idx_gallery_votes"`
	Rand      *float64 `gorm:"column:rand;index:idx_gallery_rand"`
	CreatedAt string   `gorm:"column:created_at;size:64;not null;default:''"`
	UpdatedAt string   `gorm:"column:updated_at;size:64;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Item) TableName() string {
	return "gallery"
}

// VoteMarker proves a user has voted for an item. Rows are insert-only and
// their existence is the sole source of truth for "has this user voted".
type VoteMarker struct {
	MarkerKey string `gorm:"column:marker_key;primaryKey;size:1024;not null"`
	UID       string `gorm:"column:uid;size:190;not null;index"`
	ID        string `gorm:"column:id;size:2048;not null"`
	NID       string `gorm:"column:nid;size:512;not null"`
	CreatedAt string `gorm:"column:created_at;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (VoteMarker) TableName() string {
	return "gallery_votes"
}

// MarkerKeyFor builds the vote marker primary key for a (user, item) pair.
func MarkerKeyFor(uid UserID, nid string) string {
	return uid.String() + ":" + nid
}

// GeneratedImage mirrors the generation pipeline's output rows. This
// service only reads them when publishing into the gallery.
type GeneratedImage struct {
	DocID       string  `gorm:"column:doc_id;primaryKey;size:190;not null"`
	ImageURL    string  `gorm:"column:image_url;size:2048;not null;default:''"`
	Prompt      *string `gorm:"column:prompt;type:text"`
	CreatedDate string  `gorm:"column:created_date;size:64;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (GeneratedImage) TableName() string {
	return "images"
}

// AuditRecord captures an append-only trail of administrative gallery
// mutations.
type AuditRecord struct {
	AuditID    string `gorm:"column:audit_id;primaryKey;size:190;not null"`
	Operation  string `gorm:"column:op;size:64;not null"`
	ActorEmail string `gorm:"column:actor_email;size:320;not null"`
	Affected   int64  `gorm:"column:affected;not null"`
	AppliedAt  string `gorm:"column:applied_at;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (AuditRecord) TableName() string {
	return "gallery_audit"
}

// Target selects gallery rows for administrative operations, either by
// external identifier or by exact image URL. At least one must be set.
type Target struct {
	ID  string
	Src string
}

// IsEmpty reports whether the target selects nothing.
func (t Target) IsEmpty() bool {
	return strings.TrimSpace(t.ID) == "" && strings.TrimSpace(t.Src) == ""
}
