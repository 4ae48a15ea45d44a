package database

import "time"

// JobRecord is one run of the external test pattern generator against a
// circuit file. Progress and results are updated while the run is live so
// the UI can poll job status across page reloads.
type JobRecord struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	JobID    string `gorm:"uniqueIndex;not null" json:"job_id"`
	Circuit  string `gorm:"not null" json:"circuit"`
	Args     string `json:"args"`
	Status   string `gorm:"not null;default:running" json:"status"`
	Progress int    `gorm:"not null;default:0" json:"progress"`

	// Results scraped from generator stdout.
	FaultCoverage float64 `json:"fault_coverage"`
	TestPatterns  int     `json:"test_patterns"`
	Error         string  `json:"error,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"-"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"-"`
}

// Job statuses.
const (
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// WorkspaceEntry is a named bookmark to a directory inside the workspace
// roots, shown in the file explorer sidebar. Bookmarks never widen the
// allow-list; their paths must already sit inside a configured root.
type WorkspaceEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null;size:64" json:"name"`
	Path      string    `gorm:"not null" json:"path"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
