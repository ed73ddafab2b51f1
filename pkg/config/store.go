package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const (
	MainDirKey       = "TIERSTORE_MAIN_DIR"
	MainUmaskKey     = "TIERSTORE_MAIN_UMASK"
	MainGroupKey     = "TIERSTORE_MAIN_GROUP"
	MainFileLockKey  = "TIERSTORE_MAIN_FILELOCK"
	ArchiveDirKey    = "TIERSTORE_ARCHIVE_DIR"
	ArchiveUmaskKey  = "TIERSTORE_ARCHIVE_UMASK"
	ArchiveGroupKey  = "TIERSTORE_ARCHIVE_GROUP"
	ArchiveLockKey   = "TIERSTORE_ARCHIVE_FILELOCK"
	LowWatermarkKey  = "TIERSTORE_LOW_WATERMARK"
	HighWatermarkKey = "TIERSTORE_HIGH_WATERMARK"
	StaleLockAgeKey  = "TIERSTORE_STALE_LOCK_AGE"
	SweepIntervalKey = "TIERSTORE_SWEEP_INTERVAL"
	SweepDryRunKey   = "TIERSTORE_SWEEP_DRY_RUN"
	SweepLogDirKey   = "TIERSTORE_SWEEP_LOG_DIR"
	JournalDriverKey = "TIERSTORE_JOURNAL_DRIVER"
	JournalDSNKey    = "TIERSTORE_JOURNAL_DSN"
	LogLevelKey      = "TIERSTORE_LOG_LEVEL"
)

const (
	DefaultUmask         = "022"
	DefaultStaleLockAge  = 24 * time.Hour
	DefaultSweepInterval = time.Hour
	DefaultJournalDriver = "sqlite"
	DefaultJournalDSN    = "~/.tierstore/journal.db"
	DefaultLogLevel      = "info"
)

type TierConfig struct {
	Dir      string      `validate:"omitempty,dir"`
	Umask    os.FileMode `validate:"lte=511"`
	Group    string
	FileLock bool
}

type SweepConfig struct {
	LowWatermark  int64         `validate:"gte=0,ltefield=HighWatermark"`
	HighWatermark int64         `validate:"gte=0"`
	StaleLockAge  time.Duration `validate:"gte=0"`
	Interval      time.Duration `validate:"gt=0"`
	DryRun        bool
	LogDir        string
}

type JournalConfig struct {
	Driver string `validate:"required,oneof=sqlite mysql"`
	DSN    string `validate:"required"`
}

type StoreConfig struct {
	Main     TierConfig
	Archive  TierConfig
	Sweep    SweepConfig
	Journal  JournalConfig
	LogLevel string `validate:"oneof=debug info warn error fatal"`
}

var validate = validator.New()

// LoadStoreConfig reads and validates the store configuration. The main tier
// directory is required, everything else has a default.
func LoadStoreConfig(c Configer) (*StoreConfig, error) {
	var (
		cfg StoreConfig
		err error
	)

	if cfg.Main, err = loadTier(c, MainDirKey, MainUmaskKey, MainGroupKey, MainFileLockKey); err != nil {
		return nil, err
	}

	if cfg.Main.Dir == "" {
		return nil, errors.Errorf("%s is required", MainDirKey)
	}

	if cfg.Archive, err = loadTier(c, ArchiveDirKey, ArchiveUmaskKey, ArchiveGroupKey, ArchiveLockKey); err != nil {
		return nil, err
	}

	if cfg.Sweep, err = loadSweep(c); err != nil {
		return nil, err
	}

	cfg.Journal.Driver = c.GetKeyWithDefault(JournalDriverKey, DefaultJournalDriver)
	cfg.Journal.DSN = c.GetKeyWithDefault(JournalDSNKey, DefaultJournalDSN)
	if cfg.Journal.Driver == "sqlite" {
		if cfg.Journal.DSN, err = homedir.Expand(cfg.Journal.DSN); err != nil {
			return nil, errors.Wrapf(err, "%s", JournalDSNKey)
		}
	}

	cfg.LogLevel = c.GetKeyWithDefault(LogLevelKey, DefaultLogLevel)

	if err := validate.Struct(&cfg); err != nil {
		return nil, formatValidationError(err)
	}

	return &cfg, nil
}

func loadTier(c Configer, dirKey, umaskKey, groupKey, lockKey string) (TierConfig, error) {
	var (
		tier TierConfig
		err  error
	)

	if dir := c.GetKey(dirKey); dir != "" {
		if tier.Dir, err = homedir.Expand(dir); err != nil {
			return tier, errors.Wrapf(err, "%s", dirKey)
		}
	}

	umask, err := strconv.ParseUint(c.GetKeyWithDefault(umaskKey, DefaultUmask), 8, 32)
	if err != nil {
		return tier, errors.Wrapf(err, "%s must be an octal number", umaskKey)
	}

	tier.Umask = os.FileMode(umask)
	tier.Group = c.GetKey(groupKey)
	tier.FileLock = c.GetBoolKeyWithDefault(lockKey, true)

	return tier, nil
}

func loadSweep(c Configer) (SweepConfig, error) {
	var (
		sweep SweepConfig
		err   error
	)

	if sweep.LowWatermark, err = byteSize(c, LowWatermarkKey); err != nil {
		return sweep, err
	}

	if sweep.HighWatermark, err = byteSize(c, HighWatermarkKey); err != nil {
		return sweep, err
	}

	if sweep.StaleLockAge, err = duration(c, StaleLockAgeKey, DefaultStaleLockAge); err != nil {
		return sweep, err
	}

	if sweep.Interval, err = duration(c, SweepIntervalKey, DefaultSweepInterval); err != nil {
		return sweep, err
	}

	sweep.DryRun = c.GetBoolKeyWithDefault(SweepDryRunKey, false)

	if dir := c.GetKey(SweepLogDirKey); dir != "" {
		if sweep.LogDir, err = homedir.Expand(dir); err != nil {
			return sweep, errors.Wrapf(err, "%s", SweepLogDirKey)
		}
	}

	return sweep, nil
}

// byteSize parses values such as "800GB" or "1.5TiB". A missing key is 0.
func byteSize(c Configer, key string) (int64, error) {
	val := c.GetKey(key)
	if val == "" {
		return 0, nil
	}

	size, err := humanize.ParseBytes(val)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}

	return int64(size), nil
}

// duration accepts Go durations ("36h") or a plain number of seconds.
func duration(c Configer, key string, defaultValue time.Duration) (time.Duration, error) {
	val := c.GetKey(key)
	if val == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.ParseInt(val, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.Wrapf(err, "%s", key)
	}

	return d, nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}

	return err
}
