package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	putIdentity    identityFlags
	putName        string
	rmIdentity     identityFlags
	existsIdentity identityFlags
	getOutput      string
)

var putCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "Store a file in a dataset on the main tier",
	Long: `Store a file in a dataset on the main tier. Use "-" to read standard input,
--name is required in that case.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		main, err := openMainStore()
		if err != nil {
			return err
		}

		name := putName
		if name == "" {
			if args[0] == "-" {
				return fmt.Errorf("--name is required when reading standard input")
			}
			name = filepath.Base(args[0])
		}

		var r io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			r = f
		}

		location, err := main.Put(putIdentity.id, name, r)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintln(cmd.OutOrStdout(), location)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <location>",
	Short: "Read a file from the main tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		main, err := openMainStore()
		if err != nil {
			return err
		}

		rc, err := main.Get(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = rc.Close() }()

		return copyOut(cmd, getOutput, rc)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [location]",
	Short: "Delete a file, or with the identity flags a whole dataset, from the main tier",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		main, err := openMainStore()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			return main.DeleteLocation(args[0])
		}

		return main.Delete(rmIdentity.id)
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists [location]",
	Short: "Check whether a file, or with the identity flags a dataset, is on the main tier",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		main, err := openMainStore()
		if err != nil {
			return err
		}

		var exists bool
		if len(args) == 1 {
			exists, err = main.ExistsLocation(args[0])
		} else {
			exists, err = main.Exists(existsIdentity.id)
		}

		if err != nil {
			return err
		}

		_, _ = fmt.Fprintln(cmd.OutOrStdout(), exists)
		return nil
	},
}

// copyOut copies r to the file output, or to standard out when output is
// empty or "-".
func copyOut(cmd *cobra.Command, output string, r io.Reader) error {
	if output == "" || output == "-" {
		_, err := io.Copy(cmd.OutOrStdout(), r)
		return err
	}

	f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(output)
		return err
	}

	return f.Close()
}

func init() {
	putIdentity.register(putCmd)
	putIdentity.markRequired(putCmd)
	putCmd.Flags().StringVar(&putName, "name", "", "file name in the dataset, defaults to the base name of <file>")

	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "write to this file instead of standard out")

	rmIdentity.register(rmCmd)
	existsIdentity.register(existsCmd)

	rootCmd.AddCommand(putCmd, getCmd, rmCmd, existsCmd)
}
