package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/materials-commons/tierstore/pkg/clog"
	"github.com/materials-commons/tierstore/pkg/packer"
	"github.com/materials-commons/tierstore/pkg/sweep"
	"github.com/spf13/cobra"
)

var (
	sweepOnce   bool
	sweepDryRun bool
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Move least recently used datasets to the archive tier",
	Long: `Move least recently used datasets to the archive tier whenever the main tier
usage reaches the high watermark, until it is back at the low watermark. Runs
every TIERSTORE_SWEEP_INTERVAL until interrupted, or a single time with --once.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := watermarks()
		if err != nil {
			return err
		}

		main, archive, err := openStores()
		if err != nil {
			return err
		}

		j, closeJournal, err := openJournal()
		if err != nil {
			return err
		}
		defer closeJournal()

		s, err := sweep.New(main, packer.NewZipPacker(main, archive), j, sweep.Config{
			Watermarks: w,
			Interval:   storeConfig.Sweep.Interval,
			DryRun:     sweepDryRun || storeConfig.Sweep.DryRun,
			LogDir:     storeConfig.Sweep.LogDir,
		})
		if err != nil {
			return err
		}

		if sweepOnce {
			run, err := s.RunOnce(cmd.Context())
			if run != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d selected, %d evicted, %d skipped, %d failed, %s freed\n",
					run.UUID, run.Selected, run.Evicted, run.Skipped, run.Failed, humanize.IBytes(uint64(run.FreedBytes)))
			}
			return err
		}

		s.Start()

		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		sig := <-c
		clog.Global().Infof("Got %s signal, stopping sweeper...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		return s.Stop(ctx)
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepOnce, "once", false, "run a single sweep and exit")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "only plan and journal, move nothing")

	rootCmd.AddCommand(sweepCmd)
}
