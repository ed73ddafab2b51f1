package cmd

import (
	"os"

	"github.com/apex/log"
	"github.com/materials-commons/tierstore/pkg/clog"
	"github.com/materials-commons/tierstore/pkg/config"
	"github.com/materials-commons/tierstore/pkg/journal"
	"github.com/materials-commons/tierstore/pkg/storage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	logLevel    string
	storeConfig *config.StoreConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tierstore",
	Short: "Two tier dataset storage",
	Long: `tierstore stores datasets in a main (online) tier and moves the least
recently used ones to an archive (offline) tier when the main tier fills up.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (.env, .yaml, .toml or .properties), defaults to the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides TIERSTORE_LOG_LEVEL")
}

func loadConfig() error {
	config.SetConfig(config.NewConfigForPath(cfgFile))

	var err error
	if storeConfig, err = config.LoadStore(); err != nil {
		return err
	}

	level := storeConfig.LogLevel
	if logLevel != "" {
		level = logLevel
	}

	if err := clog.SetGlobalLoggerLevelFromString(level); err != nil {
		return err
	}

	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}

	return nil
}

func openMainStore() (*storage.MainStore, error) {
	return storage.NewMainStore(storage.OptionsFromConfig(storeConfig.Main), storeConfig.Sweep.StaleLockAge)
}

func openArchiveStore() (*storage.ArchiveStore, error) {
	if storeConfig.Archive.Dir == "" {
		return nil, errors.Errorf("%s is not set", config.ArchiveDirKey)
	}

	return storage.NewArchiveStore(storage.OptionsFromConfig(storeConfig.Archive))
}

func openStores() (*storage.MainStore, *storage.ArchiveStore, error) {
	main, err := openMainStore()
	if err != nil {
		return nil, nil, err
	}

	archive, err := openArchiveStore()
	if err != nil {
		return nil, nil, err
	}

	return main, archive, nil
}

// openJournal returns the journal and a func closing its database.
func openJournal() (*journal.GormJournal, func(), error) {
	db, err := journal.Open(storeConfig.Journal.Driver, storeConfig.Journal.DSN)
	if err != nil {
		return nil, nil, err
	}

	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}

	return journal.NewGormJournal(db), closeDB, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
