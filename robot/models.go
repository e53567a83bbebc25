package robot

import "time"

// Queue statuses. A record is created pending by the watcher and advanced by
// the processor; duplicate is terminal, failed records can be re-queued by an
// operator, and sent/monitored records can be re-queued with the forced
// sentinel by an operator or the auto-resend sweep.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusDuplicate = "duplicate"
	StatusMonitored = "monitored"
	// StatusIgnored exists only in databases written by older versions; the
	// watcher never enqueues aged-out files anymore.
	StatusIgnored = "ignored"
)

// RetryForced marks a record for one unconditional delivery attempt that
// bypasses duplicate suppression and does not count against the retry budget.
const RetryForced = -1

// MaxRetries is the per-record retry budget; once reached the record is
// marked failed until an operator re-queues it.
const MaxRetries = 5

type QueueRecord struct {
	ID         uint   `gorm:"primaryKey"`
	SourcePath string `gorm:"column:file_path;uniqueIndex;size:1024"`
	// OriginalPath is the path at the origin (remote path for SFTP sources);
	// SourcePath then points at the local staging copy.
	OriginalPath     string `gorm:"size:1024"`
	Status           string `gorm:"index;size:16;default:pending"`
	RetryCount       int
	ContentHash      string    `gorm:"column:file_hash;index;size:64"`
	AddedAt          time.Time `gorm:"index"`
	EventDate        *time.Time
	ProcessedAt      *time.Time
	LastAutoResendAt *time.Time
}

func (QueueRecord) TableName() string { return "queue" }

// ContainerUnit is one container number indexed from a record's content.
// A record may carry many units and a unit may appear in many records.
type ContainerUnit struct {
	ID            uint   `gorm:"primaryKey"`
	QueueRecordID uint   `gorm:"index"`
	Unit          string `gorm:"index;size:32"`
}

func (ContainerUnit) TableName() string { return "container_units" }
