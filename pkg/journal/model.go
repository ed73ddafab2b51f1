package journal

import (
	"time"
)

// SweepRun is one pass of the sweeper over the main tier.
type SweepRun struct {
	ID            int        `json:"id"`
	UUID          string     `json:"uuid" gorm:"uniqueIndex;size:64"`
	Host          string     `json:"host"`
	DryRun        bool       `json:"dry_run"`
	TotalSize     int64      `json:"total_size"`
	LowWatermark  int64      `json:"low_watermark"`
	HighWatermark int64      `json:"high_watermark"`
	Datasets      int        `json:"datasets"`
	Selected      int        `json:"selected"`
	Evicted       int        `json:"evicted"`
	Skipped       int        `json:"skipped"`
	Failed        int        `json:"failed"`
	FreedBytes    int64      `json:"freed_bytes"`
	Error         string     `json:"error"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (SweepRun) TableName() string {
	return "sweep_runs"
}

type EvictionStatus string

const (
	// Planned is recorded by dry runs.
	Planned EvictionStatus = "planned"
	Evicted EvictionStatus = "evicted"

	// Skipped means the dataset was locked by someone else.
	Skipped EvictionStatus = "skipped"
	Failed  EvictionStatus = "failed"
)

// Eviction is the outcome for one dataset selected by a sweep run.
type Eviction struct {
	ID            int            `json:"id"`
	SweepRunID    int            `json:"sweep_run_id" gorm:"index"`
	SweepRun      *SweepRun      `json:"sweep_run,omitempty" gorm:"foreignKey:SweepRunID;references:ID"`
	Facility      string         `json:"facility"`
	Investigation string         `json:"investigation"`
	Visit         string         `json:"visit"`
	Dataset       string         `json:"dataset"`
	Location      string         `json:"location" gorm:"index"`
	Size          int64          `json:"size"`
	LastModified  time.Time      `json:"last_modified"`
	Status        EvictionStatus `json:"status" gorm:"size:16"`
	Error         string         `json:"error"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (Eviction) TableName() string {
	return "evictions"
}
