package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Run modes
const (
	RunModeSequence = "sequence"
	RunModeSingle   = "single"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one pipeline execution, either the full sequence or a single
// process picked by alias
type Run struct {
	ID           uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Mode         string     `gorm:"type:varchar(20);not null" json:"mode"`
	Config       string     `gorm:"type:text" json:"config"`
	ProcessAlias string     `gorm:"type:varchar(100)" json:"process_alias,omitempty"`
	CorpusKind   string     `gorm:"type:varchar(20)" json:"corpus_kind"`
	Persist      bool       `gorm:"default:false" json:"persist"`
	Stages       StringList `gorm:"type:text" json:"stages"`
	Skipped      StringList `gorm:"type:text" json:"skipped,omitempty"`
	PersistedTo  StringList `gorm:"type:text" json:"persisted_to,omitempty"`
	Records      int        `gorm:"default:0" json:"records"`
	Status       string     `gorm:"type:varchar(20);not null;default:'running'" json:"status"`
	Error        string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// NewRun starts a run record in the running state
func NewRun(mode, config, processAlias string, persist bool) *Run {
	return &Run{
		ID:           uuid.New(),
		Mode:         mode,
		Config:       config,
		ProcessAlias: processAlias,
		Persist:      persist,
		Status:       RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
}

// TableName specifies the table name for GORM
func (Run) TableName() string {
	return "pipeline_runs"
}

// BeforeCreate GORM hook - called before creating a record
func (r *Run) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	return nil
}

// Complete marks the run as finished successfully. records is -1 when the
// output was a stream that nobody drained.
func (r *Run) Complete(records int) {
	now := time.Now().UTC()
	r.Status = RunStatusCompleted
	r.Records = records
	r.FinishedAt = &now
}

// Fail marks the run as failed
func (r *Run) Fail(err error) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = &now
}

// Duration returns how long the run took, zero while it is still running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ValidRunStatuses returns list of valid run statuses
func ValidRunStatuses() []string {
	return []string{
		RunStatusRunning,
		RunStatusCompleted,
		RunStatusFailed,
	}
}

// IsValidRunStatus checks if a status is valid
func IsValidRunStatus(status string) bool {
	for _, s := range ValidRunStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// StringList is stored as a JSON array in a text column, which works the
// same on PostgreSQL and SQLite
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("invalid StringList value: %w", err)
	}
	*l = out
	return nil
}
