package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/materials-commons/tierstore/pkg/eviction"
	"github.com/materials-commons/tierstore/pkg/treescan"
	"github.com/spf13/cobra"
)

var (
	planLow  string
	planHigh string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Size the datasets of the main tier, least recently used first",
	Long: `Size the datasets of the main tier, least recently used first. The scan
also removes stale lock files and empty directories.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		main, err := openMainStore()
		if err != nil {
			return err
		}

		result, err := main.Scan()
		if err != nil {
			return err
		}

		printRecords(cmd, result.Records)
		for _, action := range result.Actions {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", action.Kind, action.Path)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d datasets, %s\n",
			len(result.Records), humanize.IBytes(uint64(result.TotalSize)))

		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which datasets a sweep would move to the archive tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := watermarks()
		if err != nil {
			return err
		}

		main, err := openMainStore()
		if err != nil {
			return err
		}

		selected, result, err := main.DatasetsToArchive(w)
		if err != nil {
			return err
		}

		printRecords(cmd, selected)

		var freed int64
		for _, r := range selected {
			freed += r.Size
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "usage %s, low %s, high %s: %d datasets, %s to archive\n",
			humanize.IBytes(uint64(result.TotalSize)), humanize.IBytes(uint64(w.Low)),
			humanize.IBytes(uint64(w.High)), len(selected), humanize.IBytes(uint64(freed)))

		return nil
	},
}

// watermarks are the configured ones, overridden by --low and --high.
func watermarks() (eviction.Watermarks, error) {
	w := eviction.Watermarks{Low: storeConfig.Sweep.LowWatermark, High: storeConfig.Sweep.HighWatermark}

	if planLow != "" {
		low, err := humanize.ParseBytes(planLow)
		if err != nil {
			return w, err
		}
		w.Low = int64(low)
	}

	if planHigh != "" {
		high, err := humanize.ParseBytes(planHigh)
		if err != nil {
			return w, err
		}
		w.High = int64(high)
	}

	return w, w.Validate()
}

func printRecords(cmd *cobra.Command, records []treescan.Record) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, r := range records {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.LastModified.Format(time.DateTime), humanize.IBytes(uint64(r.Size)), r.Location)
	}
	_ = tw.Flush()
}

func init() {
	for _, c := range []*cobra.Command{planCmd, sweepCmd} {
		c.Flags().StringVar(&planLow, "low", "", "low watermark, eg 800GB")
		c.Flags().StringVar(&planHigh, "high", "", "high watermark, eg 1TB")
	}

	rootCmd.AddCommand(scanCmd, planCmd)
}
