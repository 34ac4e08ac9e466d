package models

import (
	"time"
)

// Mismatch kinds recorded on an Incident.
const (
	MismatchContent  = "content"
	MismatchMetadata = "metadata"
)

// Raw change event kinds emitted by the change source.
const (
	EventCreated  = "created"
	EventModified = "modified"
	EventChmod    = "chmod"
	EventRemoved  = "removed"
)

// TrackedFile represents one enrolled path and its policy
type TrackedFile struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Path        string    `json:"path" gorm:"uniqueIndex;not null"`
	GoodDigest  string    `json:"good_digest" gorm:"not null"` // hex sha256 of the enrolled content
	Degraded    bool      `json:"degraded" gorm:"default:false"`
	AutoRestore bool      `json:"auto_restore" gorm:"default:true"`
	AutoEmail   bool      `json:"auto_email" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// Associations
	Snapshot *EnrolledSnapshot `json:"snapshot,omitempty" gorm:"foreignKey:TrackedFileID"`
}

// EnrolledSnapshot is the trusted baseline for a tracked file (1:1)
type EnrolledSnapshot struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	TrackedFileID uint      `json:"tracked_file_id" gorm:"uniqueIndex;not null"`
	Permission    string    `json:"permission"` // octal string, e.g. "644"
	Owner         string    `json:"owner"`
	Group         string    `json:"group"`
	ModTime       time.Time `json:"mod_time"`
	RawData       []byte    `json:"-"` // enrolled content bytes, used for restore
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Incident represents one detected divergence (append-only)
type Incident struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	TrackedFileID uint      `json:"tracked_file_id" gorm:"index;not null"`
	Kind          string    `json:"kind" gorm:"not null"` // content, metadata
	Timestamp     time.Time `json:"timestamp"`
	CreatedAt     time.Time `json:"created_at"`
	// Associations
	TrackedFile *TrackedFile            `json:"tracked_file,omitempty" gorm:"foreignKey:TrackedFileID"`
	Content     *ContentMismatchDetail  `json:"content,omitempty" gorm:"foreignKey:IncidentID"`
	Metadata    *MetadataMismatchDetail `json:"metadata,omitempty" gorm:"foreignKey:IncidentID"`
}

// ContentMismatchDetail holds the observed bad content for a content incident
type ContentMismatchDetail struct {
	ID             uint   `json:"id" gorm:"primaryKey"`
	IncidentID     uint   `json:"incident_id" gorm:"uniqueIndex;not null"`
	ObservedDigest string `json:"observed_digest"`
	ObservedData   []byte `json:"-"`
}

// MetadataMismatchDetail holds the observed bad metadata for a metadata incident
type MetadataMismatchDetail struct {
	ID                 uint   `json:"id" gorm:"primaryKey"`
	IncidentID         uint   `json:"incident_id" gorm:"uniqueIndex;not null"`
	ObservedOwner      string `json:"observed_owner"`
	ObservedGroup      string `json:"observed_group"`
	ObservedPermission string `json:"observed_permission"`
}

// RawChangeEvent is the audit record of one raw filesystem change signal,
// written before verification so crashed cycles stay accountable
type RawChangeEvent struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	EventUID  string    `json:"event_uid" gorm:"uniqueIndex;not null"`
	Path      string    `json:"path" gorm:"index;not null"`
	EventKind string    `json:"event_kind"` // created, modified, chmod, removed
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}
