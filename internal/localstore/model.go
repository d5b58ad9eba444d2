// model.go: data model for the device-local store
package localstore

import "time"

// Operation states. An operation reaches StateSynced or StateFailed exactly
// once; synced rows are pruned after a grace period, failed rows are kept
// until operator action.
const (
	StatePending  = "pending"
	StateInFlight = "in_flight"
	StateSynced   = "synced"
	StateFailed   = "failed"
	StateBlocked  = "blocked" // held until a prerequisite step produces its payload
)

// Sync states for shadow, voice and media rows.
const (
	SyncStatePending = "pending"
	SyncStateSynced  = "synced"
)

// Operation verbs.
const (
	VerbInsert = "insert"
	VerbUpdate = "update"
	VerbDelete = "delete"
)

// Remote entity kinds an operation can target.
const (
	TargetWorkOrder        = "work_order"
	TargetInterventionNote = "intervention_note"
	TargetIssue            = "issue"
	TargetMediaDescriptor  = "media_descriptor"
	TargetVoiceHistory     = "voice_history"
)

// Operation priorities. Higher drains first.
const (
	PriorityNormal = 0
	PriorityHigh   = 10
)

// Operation is the unit queued for eventual propagation to the central
// store.
type Operation struct {
	ID            uint   `gorm:"primaryKey"`
	Target        string `gorm:"index;not null"`
	Verb          string `gorm:"not null"`
	Key           string // remote primary key, empty for inserts
	PayloadBlob   string `gorm:"type:text"` // canonical key-sorted field encoding
	Priority      int    `gorm:"index:idx_op_queue_state_priority,priority:2"`
	Attempts      int
	State         string `gorm:"index:idx_op_queue_state_priority,priority:1;not null"`
	CreatedAt     time.Time
	LastAttemptAt *time.Time
}

// TableName sets the table name for Operation
func (Operation) TableName() string {
	return "op_queue"
}

// ShadowWorkOrder is a local override of a work order the technician is
// mutating offline. The most recently updated row for a remote id reflects
// the technician's current intent.
type ShadowWorkOrder struct {
	ID          uint   `gorm:"primaryKey"`
	RemoteID    int64  `gorm:"index;not null"`
	Status      string `gorm:"not null"`
	NotesAppend string `gorm:"type:text"`
	UpdatedAt   time.Time
	SyncState   string `gorm:"index;not null"`
	OperationID uint   `gorm:"index"` // op_queue row carrying this intent
}

// TableName sets the table name for ShadowWorkOrder
func (ShadowWorkOrder) TableName() string {
	return "shadow_work_orders"
}

// VoiceCommandRecord is the durable log of a recognized utterance,
// independent of whether it produced any operation.
type VoiceCommandRecord struct {
	ID                uint  `gorm:"primaryKey"`
	WorkOrderRemoteID int64 `gorm:"index"` // zero when the utterance had no work order context
	Kind              string
	Transcript        string `gorm:"type:text"`
	Confidence        float64
	CreatedAt         time.Time
	SyncState         string `gorm:"index;not null"`
	OperationID       uint   `gorm:"index"`
}

// TableName sets the table name for VoiceCommandRecord
func (VoiceCommandRecord) TableName() string {
	return "voice_commands"
}

// Media kinds.
const (
	MediaKindPhoto = "photo"
	MediaKindAudio = "audio"
	MediaKindVideo = "video"
)

// MediaDescriptor holds metadata for a captured photo, audio or video file.
type MediaDescriptor struct {
	ID                uint  `gorm:"primaryKey"`
	WorkOrderRemoteID int64 `gorm:"index;not null"`
	LocalPath         string
	Kind              string
	Transcript        string `gorm:"type:text"` // audio only, may be empty on annotator failure
	BlobURI           string // set once the upload step completes
	CreatedAt         time.Time
	SyncState         string `gorm:"index;not null"`
	OperationID       uint   `gorm:"index"`
}

// TableName sets the table name for MediaDescriptor
func (MediaDescriptor) TableName() string {
	return "media_descriptors"
}

// ResultOutcome classifies the result of one drain attempt.
type ResultOutcome int

const (
	// OutcomeSynced marks the operation as applied to the central store.
	OutcomeSynced ResultOutcome = iota
	// OutcomeRetry returns the operation to pending with one more attempt
	// recorded. Promoted to failed at the attempt ceiling.
	OutcomeRetry
	// OutcomeFailed marks the operation as permanently failed.
	OutcomeFailed
)

// String returns a string representation of the outcome
func (o ResultOutcome) String() string {
	switch o {
	case OutcomeSynced:
		return "synced"
	case OutcomeRetry:
		return "retry"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OperationDraft is the caller-supplied part of an operation.
type OperationDraft struct {
	Target   string
	Verb     string
	Key      string
	Payload  map[string]string
	Priority int
}
