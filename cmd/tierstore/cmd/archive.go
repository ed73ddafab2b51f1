package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/materials-commons/tierstore/pkg/packer"
	"github.com/spf13/cobra"
)

var (
	archivePutIdentity    identityFlags
	archiveGetIdentity    identityFlags
	archiveRmIdentity     identityFlags
	archiveExistsIdentity identityFlags
	restoreIdentity       identityFlags
	archiveGetOutput      string
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Work with the archive tier",
}

var archivePutCmd = &cobra.Command{
	Use:   "put",
	Short: "Pack a main tier dataset into the archive tier, keeping the main tier copy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		main, archive, err := openStores()
		if err != nil {
			return err
		}

		return packer.NewZipPacker(main, archive).Archive(cmd.Context(), archivePutIdentity.id)
	},
}

var archiveGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Read the packed artifact of a dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchiveStore()
		if err != nil {
			return err
		}

		rc, err := archive.Get(archiveGetIdentity.id)
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		return copyOut(cmd, archiveGetOutput, rc)
	},
}

var archiveRmCmd = &cobra.Command{
	Use:   "rm",
	Short: "Delete the packed artifact of a dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchiveStore()
		if err != nil {
			return err
		}

		return archive.Delete(archiveRmIdentity.id)
	},
}

var archiveExistsCmd = &cobra.Command{
	Use:   "exists",
	Short: "Check whether a dataset is on the archive tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchiveStore()
		if err != nil {
			return err
		}

		exists, err := archive.Exists(archiveExistsIdentity.id)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintln(cmd.OutOrStdout(), exists)
		return nil
	},
}

var archiveUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Count the artifacts on the archive tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchiveStore()
		if err != nil {
			return err
		}

		usage, err := archive.Usage(cmd.Context())
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d artifacts, %s\n", usage.Artifacts, humanize.IBytes(uint64(usage.Bytes)))
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Unpack an archived dataset back into the main tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		main, archive, err := openStores()
		if err != nil {
			return err
		}

		n, err := packer.NewZipPacker(main, archive).Restore(restoreIdentity.id)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d files restored\n", n)
		return nil
	},
}

func init() {
	for f, c := range map[*identityFlags]*cobra.Command{
		&archivePutIdentity:    archivePutCmd,
		&archiveGetIdentity:    archiveGetCmd,
		&archiveRmIdentity:     archiveRmCmd,
		&archiveExistsIdentity: archiveExistsCmd,
		&restoreIdentity:       restoreCmd,
	} {
		f.register(c)
		f.markRequired(c)
	}

	archiveGetCmd.Flags().StringVarP(&archiveGetOutput, "output", "o", "", "write to this file instead of standard out")

	archiveCmd.AddCommand(archivePutCmd, archiveGetCmd, archiveRmCmd, archiveExistsCmd, archiveUsageCmd)
	rootCmd.AddCommand(archiveCmd, restoreCmd)
}
