package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show what past sweeps did",
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List sweep runs, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, closeJournal, err := openJournal()
		if err != nil {
			return err
		}
		defer closeJournal()

		runs, err := j.ListRuns(journalLimit)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "UUID\tSTARTED\tUSAGE\tSELECTED\tEVICTED\tSKIPPED\tFAILED\tFREED\tDRY RUN\tERROR")
		for _, run := range runs {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%t\t%s\n",
				run.UUID, run.StartedAt.Local().Format(time.DateTime), humanize.IBytes(uint64(run.TotalSize)),
				run.Selected, run.Evicted, run.Skipped, run.Failed, humanize.IBytes(uint64(run.FreedBytes)),
				run.DryRun, run.Error)
		}

		return tw.Flush()
	},
}

var journalEvictionsCmd = &cobra.Command{
	Use:   "evictions <run uuid>",
	Short: "List the datasets a sweep run selected",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, closeJournal, err := openJournal()
		if err != nil {
			return err
		}
		defer closeJournal()

		evictions, err := j.ListEvictions(args[0])
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "STATUS\tSIZE\tLAST MODIFIED\tLOCATION\tERROR")
		for _, e := range evictions {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				e.Status, humanize.IBytes(uint64(e.Size)), e.LastModified.Local().Format(time.DateTime), e.Location, e.Error)
		}

		return tw.Flush()
	},
}

func init() {
	journalRunsCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of runs to show, 0 for all")

	journalCmd.AddCommand(journalRunsCmd, journalEvictionsCmd)
	rootCmd.AddCommand(journalCmd)
}
