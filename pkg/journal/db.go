package journal

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/materials-commons/tierstore/pkg/clog"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const SqliteInMemoryDSN = ":memory:"

const (
	maxDBRetries  = 5
	dbRetryPause  = 3 * time.Second
	minTxAttempts = 3
)

// Open connects to the journal database and migrates it. mysql connections
// are retried a few times, the database may still be starting.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		if err := ensureSqliteDir(dsn); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, errors.Errorf("unknown journal driver %q", driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var (
		db  *gorm.DB
		err error
	)

	for retryCount := 1; ; retryCount++ {
		db, err = gorm.Open(dialector, gormConfig)
		if err == nil || driver != "mysql" || retryCount >= maxDBRetries {
			break
		}

		clog.Global().Warnf("Failed to open journal database, retrying: %s", err)
		time.Sleep(dbRetryPause)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "open %s journal", driver)
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

func RunMigrations(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(&SweepRun{}, &Eviction{}), "migrate journal")
}

func ensureSqliteDir(dsn string) error {
	if dsn == SqliteInMemoryDSN || strings.HasPrefix(dsn, "file:") {
		return nil
	}

	return os.MkdirAll(filepath.Dir(dsn), 0755)
}

// WithTxRetry runs fn in a transaction, retrying failed transactions.
func WithTxRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for i := 0; i < minTxAttempts; i++ {
		if err = db.Transaction(fn); err == nil {
			return nil
		}
	}

	return err
}
