package store

import (
	"time"
)

// Run is one recorded checkout run.
type Run struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"uniqueIndex;not null" json:"run_id"`
	Hostname   string    `json:"hostname"`
	NVMe       int       `gorm:"index" json:"nvme"`
	ResultsDir string    `json:"results_dir"`
	StartedAt  time.Time `gorm:"index;not null" json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Failed     int       `gorm:"not null" json:"failed_tests"`
	CreatedAt  time.Time `json:"created_at"`

	Tests []TestRecord `gorm:"constraint:OnDelete:CASCADE" json:"tests,omitempty"`
}

// TestRecord is one test of a run.
type TestRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      uint      `gorm:"index;not null" json:"-"`
	Number     int       `gorm:"not null" json:"number"`
	Name       string    `gorm:"not null" json:"name"`
	Dir        string    `json:"dir"`
	Errors     int       `gorm:"not null" json:"errors"`
	Passed     bool      `json:"passed"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`

	Steps []StepRecord `gorm:"constraint:OnDelete:CASCADE" json:"steps,omitempty"`
}

// StepRecord is one step of a test.
type StepRecord struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	TestRecordID uint   `gorm:"index;not null" json:"-"`
	Seq          int    `gorm:"not null" json:"seq"`
	Name         string `gorm:"not null" json:"name"`
	Dir          string `json:"dir"`
	Code         int    `json:"code"`
	DurationMS   int64  `json:"duration_ms"`
}
