package cmd

import (
	"github.com/materials-commons/tierstore/pkg/dsid"
	"github.com/spf13/cobra"
)

type identityFlags struct {
	id dsid.Identity
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id.Facility, "facility", "", "facility name")
	cmd.Flags().StringVar(&f.id.Investigation, "investigation", "", "investigation name")
	cmd.Flags().StringVar(&f.id.Visit, "visit", "", "visit id")
	cmd.Flags().StringVar(&f.id.Dataset, "dataset", "", "dataset name")
}

func (f *identityFlags) markRequired(cmd *cobra.Command) {
	for _, name := range []string{"facility", "investigation", "visit", "dataset"} {
		_ = cmd.MarkFlagRequired(name)
	}
}
