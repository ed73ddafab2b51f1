// Package sweep moves the least recently used datasets from the main tier to
// the archive tier whenever main tier usage crosses the high watermark.
package sweep

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/materials-commons/tierstore/pkg/clog"
	"github.com/materials-commons/tierstore/pkg/dirlock"
	"github.com/materials-commons/tierstore/pkg/eviction"
	"github.com/materials-commons/tierstore/pkg/journal"
	"github.com/materials-commons/tierstore/pkg/packer"
	"github.com/materials-commons/tierstore/pkg/storage"
	"github.com/materials-commons/tierstore/pkg/treescan"
	"github.com/pkg/errors"
)

type Config struct {
	Watermarks eviction.Watermarks

	// Interval between two runs started by Start.
	Interval time.Duration

	// DryRun only plans, every selected dataset is journaled as planned.
	DryRun bool

	// LogDir, when set, gets one log file per run named after the run UUID.
	LogDir string
}

type Sweeper struct {
	main     *storage.MainStore
	archiver packer.Archiver
	journal  journal.Journal
	config   Config
	host     string

	// runMu keeps runs from overlapping.
	runMu sync.Mutex

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a sweeper evicting from main. archiver must write to the
// archive tier the datasets are evicted to.
func New(main *storage.MainStore, archiver packer.Archiver, j journal.Journal, config Config) (*Sweeper, error) {
	if err := config.Watermarks.Validate(); err != nil {
		return nil, err
	}

	if config.Watermarks.High == 0 {
		return nil, errors.New("high watermark not configured")
	}

	if config.Interval <= 0 {
		config.Interval = time.Hour
	}

	host, _ := os.Hostname()

	return &Sweeper{
		main:     main,
		archiver: archiver,
		journal:  j,
		config:   config,
		host:     host,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs a sweep every Interval until Stop is called.
func (s *Sweeper) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		clog.UsingCtx(clog.SweepCtx).Infof("Starting sweeper: interval=%s low=%s high=%s dry_run=%t",
			s.config.Interval, humanize.IBytes(uint64(s.config.Watermarks.Low)),
			humanize.IBytes(uint64(s.config.Watermarks.High)), s.config.DryRun)
		go s.worker()
	})
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}

	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.doneCh:
		clog.UsingCtx(clog.SweepCtx).Info("Sweeper stopped")
		return nil
	case <-ctx.Done():
		clog.UsingCtx(clog.SweepCtx).Warn("Sweeper shutdown timeout")
		return ctx.Err()
	}
}

func (s *Sweeper) worker() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				clog.UsingCtx(clog.SweepCtx).Errorf("Sweep failed: %s", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce scans the main tier and evicts the datasets the planner selects.
// Per dataset failures are journaled and counted, they do not fail the run.
func (s *Sweeper) RunOnce(ctx context.Context) (*journal.SweepRun, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	run, err := s.journal.StartRun(&journal.SweepRun{
		Host:          s.host,
		DryRun:        s.config.DryRun,
		LowWatermark:  s.config.Watermarks.Low,
		HighWatermark: s.config.Watermarks.High,
	})
	if err != nil {
		return nil, err
	}

	logger, closeLog := s.runLogger(run)
	defer closeLog()

	err = s.sweep(ctx, run, logger)
	if err != nil {
		run.Error = err.Error()
		logger.Errorf("Sweep %s failed: %s", run.UUID, err)
	}

	if ferr := s.journal.FinishRun(run); ferr != nil && err == nil {
		err = ferr
	}

	logger.Infof("Sweep %s done: %d selected, %d evicted, %d skipped, %d failed, %s freed",
		run.UUID, run.Selected, run.Evicted, run.Skipped, run.Failed, humanize.IBytes(uint64(run.FreedBytes)))

	return run, err
}

// runLogger returns the logger of a run and a func closing it.
func (s *Sweeper) runLogger(run *journal.SweepRun) (*log.Entry, func()) {
	if s.config.LogDir == "" {
		return clog.UsingCtx(clog.SweepCtx), func() {}
	}

	ctxName := "sweep-" + run.UUID
	if _, err := clog.AddFileLoggingContext(ctxName, s.config.LogDir); err != nil {
		clog.UsingCtx(clog.SweepCtx).Warnf("No run log in %s: %s", s.config.LogDir, err)
		return clog.UsingCtx(clog.SweepCtx), func() {}
	}

	return clog.UsingCtx(ctxName), func() { clog.RemoveLoggingContext(ctxName) }
}

func (s *Sweeper) sweep(ctx context.Context, run *journal.SweepRun, logger *log.Entry) error {
	selected, result, err := s.main.DatasetsToArchive(s.config.Watermarks)
	if err != nil {
		return err
	}

	run.TotalSize = result.TotalSize
	run.Datasets = len(result.Records)
	run.Selected = len(selected)

	for _, action := range result.Actions {
		logger.Debugf("Scan cleanup: %s %s", action.Kind, action.Path)
	}

	for _, rec := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}

		e := &journal.Eviction{
			Facility:      rec.Identity.Facility,
			Investigation: rec.Identity.Investigation,
			Visit:         rec.Identity.Visit,
			Dataset:       rec.Identity.Dataset,
			Location:      rec.Location.String(),
			Size:          rec.Size,
			LastModified:  rec.LastModified,
		}

		if s.config.DryRun {
			e.Status = journal.Planned
			logger.Infof("Would evict %s (%s)", rec.Location, humanize.IBytes(uint64(rec.Size)))
		} else {
			s.evict(ctx, rec, e, logger)
		}

		switch e.Status {
		case journal.Evicted:
			run.Evicted++
			run.FreedBytes += rec.Size
		case journal.Skipped:
			run.Skipped++
		case journal.Failed:
			run.Failed++
		}

		if err := s.journal.RecordEviction(run, e); err != nil {
			return err
		}
	}

	return nil
}

// evict archives the dataset and then removes it from the main tier.
func (s *Sweeper) evict(ctx context.Context, rec treescan.Record, e *journal.Eviction, logger *log.Entry) {
	err := s.archiver.Archive(ctx, rec.Identity)
	if err == nil {
		err = s.main.Delete(rec.Identity)
	}

	switch {
	case err == nil:
		e.Status = journal.Evicted
		logger.Infof("Evicted %s (%s)", rec.Location, humanize.IBytes(uint64(rec.Size)))
	case errors.Is(err, dirlock.ErrAlreadyLocked), errors.Is(err, storage.ErrNotFound):
		e.Status = journal.Skipped
		e.Error = err.Error()
		logger.Warnf("Skipped %s: %s", rec.Location, err)
	default:
		e.Status = journal.Failed
		e.Error = err.Error()
		logger.Errorf("Evicting %s failed: %s", rec.Location, err)
	}
}
