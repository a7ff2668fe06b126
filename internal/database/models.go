package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/threadline/threadline/internal/status"
	"gorm.io/gorm"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Platform identifies an external collaboration platform a thread can be
// linked to.
type Platform string

const (
	PlatformSlack   Platform = "slack"
	PlatformGitHub  Platform = "github"
	PlatformDiscord Platform = "discord"
)

// Valid reports whether p is a supported platform tag.
func (p Platform) Valid() bool {
	switch p {
	case PlatformSlack, PlatformGitHub, PlatformDiscord:
		return true
	}
	return false
}

// ErrExternalLinkIncomplete is returned when a thread is written with only one
// half of the (externalId, externalOrigin) pair.
var ErrExternalLinkIncomplete = errors.New("externalId and externalOrigin must be set together")

// Thread is the canonical internal record of a support conversation.
type Thread struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	UUID           string        `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID string        `gorm:"size:36;not null;index;uniqueIndex:idx_threads_external_link" json:"organization_id"`
	Name           string        `gorm:"type:varchar(255)" json:"name"`
	Status         status.Status `gorm:"not null;default:0" json:"status"`
	Priority       int           `gorm:"default:0" json:"priority"`
	AuthorID       uint          `gorm:"index" json:"author_id"`
	AssignedUserID *string       `gorm:"size:36" json:"assigned_user_id,omitempty"`

	// External link. ExternalID and ExternalOrigin are set together or not at
	// all; a thread keeps exactly one origin for its whole lifetime. The unique
	// index makes concurrent imports of the same platform message collapse onto
	// a single row; unlinked threads carry NULLs and never collide.
	ExternalID       *string   `gorm:"size:255;uniqueIndex:idx_threads_external_link" json:"external_id,omitempty"`
	ExternalOrigin   *Platform `gorm:"size:32;uniqueIndex:idx_threads_external_link" json:"external_origin,omitempty"`
	ExternalMetadata JSONB     `gorm:"type:jsonb" json:"external_metadata,omitempty"`
	ExternalIssueID  *string   `gorm:"size:255;index" json:"external_issue_id,omitempty"`
	ExternalPRID     *string   `gorm:"size:255;index" json:"external_pr_id,omitempty"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// BeforeCreate assigns a UUID and enforces the external-link invariant.
func (t *Thread) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == "" {
		t.UUID = uuid.NewString()
	}
	if (t.ExternalID == nil) != (t.ExternalOrigin == nil) {
		return ErrExternalLinkIncomplete
	}
	return nil
}

// Linked reports whether the thread is linked to an external platform.
func (t *Thread) Linked() bool {
	return t.ExternalID != nil && t.ExternalOrigin != nil
}

// ChannelID returns the platform channel recorded in the external metadata.
func (t *Thread) ChannelID() string {
	if t.ExternalMetadata == nil {
		return ""
	}
	id, _ := t.ExternalMetadata["channelId"].(string)
	return id
}

// Message is a single entry in a thread's conversation.
type Message struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	UUID     string `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	ThreadID uint   `gorm:"not null;index" json:"thread_id"`
	AuthorID uint   `gorm:"index" json:"author_id"`

	// Content holds the serialized rich-text document.
	Content string `gorm:"type:text" json:"content"`

	// Origin is the platform the message arrived from, empty for native
	// messages. ExternalMessageID is write-once: it is set when the message
	// arrives from a platform, or when the outbound relay posts it.
	Origin            *Platform `gorm:"size:32" json:"origin,omitempty"`
	ExternalMessageID *string   `gorm:"size:255;index" json:"external_message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Thread Thread `gorm:"foreignKey:ThreadID" json:"-"`
}

// BeforeCreate assigns a UUID.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.UUID == "" {
		m.UUID = uuid.NewString()
	}
	return nil
}

// UpdateType enumerates the audited thread state changes.
type UpdateType string

const (
	UpdateTypeStatusChanged   UpdateType = "status_changed"
	UpdateTypePriorityChanged UpdateType = "priority_changed"
	UpdateTypeAssignedChanged UpdateType = "assigned_changed"
	UpdateTypeMarkedDuplicate UpdateType = "marked_duplicate"
)

// Update is an append-only audit record of a state change on a thread. Rows
// are never mutated after insert except to set replicated markers.
type Update struct {
	ID       uint       `gorm:"primaryKey" json:"id"`
	UUID     string     `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	ThreadID uint       `gorm:"not null;index" json:"thread_id"`
	Type     UpdateType `gorm:"size:64;not null" json:"type"`

	// UserID is nil for system or platform-originated updates.
	UserID *string `gorm:"size:36" json:"user_id,omitempty"`

	// Metadata snapshots old/new values, human labels, and the source tag.
	Metadata JSONB `gorm:"type:jsonb" json:"metadata"`

	// Replicated maps a platform tag to its delivery acknowledgement (the
	// external message id, or true for self-marked origins). An update with a
	// marker for a platform must never be re-emitted to that platform.
	Replicated JSONB `gorm:"type:jsonb" json:"replicated"`

	CreatedAt time.Time `json:"created_at"`

	Thread Thread `gorm:"foreignKey:ThreadID" json:"-"`
}

// BeforeCreate assigns a UUID.
func (u *Update) BeforeCreate(tx *gorm.DB) error {
	if u.UUID == "" {
		u.UUID = uuid.NewString()
	}
	return nil
}

// ReplicatedTo reports whether the update already carries a marker for the
// given platform.
func (u *Update) ReplicatedTo(platform Platform) bool {
	if u.Replicated == nil {
		return false
	}
	_, ok := u.Replicated[string(platform)]
	return ok
}

// Integration is the per-organization, per-platform configuration blob.
// Exactly one enabled row per (organization, type) is the addressable target
// for that platform's events.
type Integration struct {
	ID             uint     `gorm:"primaryKey" json:"id"`
	UUID           string   `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID string   `gorm:"size:36;not null;index:idx_integrations_org_type" json:"organization_id"`
	Type           Platform `gorm:"size:32;not null;index:idx_integrations_org_type" json:"type"`
	Enabled        bool     `gorm:"default:false" json:"enabled"`

	// Config round-trips the platform-specific JSON shape: teamId,
	// installation, selectedChannels, csrfToken, backfill progress,
	// installationId, repos, accessToken, pendingRepos.
	Config JSONB `gorm:"type:jsonb" json:"config"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID.
func (i *Integration) BeforeCreate(tx *gorm.DB) error {
	if i.UUID == "" {
		i.UUID = uuid.NewString()
	}
	return nil
}

// TeamID returns the platform team/workspace id stored in the config.
func (i *Integration) TeamID() string {
	if i.Config == nil {
		return ""
	}
	id, _ := i.Config["teamId"].(string)
	return id
}

// SelectedChannels returns the channel ids this integration listens on.
func (i *Integration) SelectedChannels() []string {
	if i.Config == nil {
		return nil
	}
	raw, ok := i.Config["selectedChannels"].([]interface{})
	if !ok {
		return nil
	}
	channels := make([]string, 0, len(raw))
	for _, c := range raw {
		if s, ok := c.(string); ok {
			channels = append(channels, s)
		}
	}
	return channels
}

// ChannelSelected reports whether the channel is in selectedChannels.
func (i *Integration) ChannelSelected(channelID string) bool {
	for _, c := range i.SelectedChannels() {
		if c == channelID {
			return true
		}
	}
	return false
}

// Author is a deduplicated message author. For a given organization and
// platform-native user id (metaId) at most one row exists.
type Author struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	OrganizationID string  `gorm:"size:36;not null;uniqueIndex:idx_authors_org_meta" json:"organization_id"`
	UserID         *string `gorm:"size:36" json:"user_id,omitempty"`
	MetaID         *string `gorm:"size:255;uniqueIndex:idx_authors_org_meta" json:"meta_id,omitempty"`
	Name           string  `gorm:"type:varchar(255)" json:"name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides for explicit table naming
func (Thread) TableName() string {
	return "threads"
}

func (Message) TableName() string {
	return "messages"
}

func (Update) TableName() string {
	return "updates"
}

func (Integration) TableName() string {
	return "integrations"
}

func (Author) TableName() string {
	return "authors"
}
