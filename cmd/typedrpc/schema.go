package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newSchemaCmd(a *app) *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the handler schema as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(reg.Schema())
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print without indentation")
	return cmd
}
