// Package journal records what the sweeper did: one row per run and one per
// dataset it selected.
package journal

import (
	"time"

	"github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type Journal interface {
	StartRun(run *SweepRun) (*SweepRun, error)
	RecordEviction(run *SweepRun, e *Eviction) error
	FinishRun(run *SweepRun) error
	ListRuns(limit int) ([]SweepRun, error)
	ListEvictions(runUUID string) ([]Eviction, error)
}

type GormJournal struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormJournal(db *gorm.DB) *GormJournal {
	return &GormJournal{db: db, now: time.Now}
}

// StartRun gives run a UUID and start time and stores it.
func (j *GormJournal) StartRun(run *SweepRun) (*SweepRun, error) {
	var err error
	if run.UUID, err = uuid.GenerateUUID(); err != nil {
		return nil, err
	}

	run.StartedAt = j.now()

	err = WithTxRetry(j.db, func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})

	if err != nil {
		return nil, errors.Wrap(err, "record sweep run")
	}

	return run, nil
}

func (j *GormJournal) RecordEviction(run *SweepRun, e *Eviction) error {
	e.SweepRunID = run.ID

	err := WithTxRetry(j.db, func(tx *gorm.DB) error {
		return tx.Create(e).Error
	})

	return errors.Wrapf(err, "record eviction of %s", e.Location)
}

// FinishRun sets the finish time and saves the counters of run.
func (j *GormJournal) FinishRun(run *SweepRun) error {
	finishedAt := j.now()
	run.FinishedAt = &finishedAt

	err := WithTxRetry(j.db, func(tx *gorm.DB) error {
		return tx.Save(run).Error
	})

	return errors.Wrapf(err, "finish sweep run %s", run.UUID)
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (j *GormJournal) ListRuns(limit int) ([]SweepRun, error) {
	var runs []SweepRun

	q := j.db.Order("started_at desc").Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Find(&runs).Error; err != nil {
		return nil, err
	}

	return runs, nil
}

// ListEvictions returns the evictions of a run in the order they happened.
func (j *GormJournal) ListEvictions(runUUID string) ([]Eviction, error) {
	var run SweepRun
	if err := j.db.Where("uuid = ?", runUUID).First(&run).Error; err != nil {
		return nil, errors.Wrapf(err, "sweep run %s", runUUID)
	}

	var evictions []Eviction
	if err := j.db.Where("sweep_run_id = ?", run.ID).Order("id").Find(&evictions).Error; err != nil {
		return nil, err
	}

	return evictions, nil
}
