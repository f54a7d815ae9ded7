package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/simm/internal/modules/simm/params"
)

func paramsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Inspect SIMM parameter tables",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate a parameter table",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := params.Resolve(root.paramsFile)
			if err != nil {
				return err
			}
			source := root.paramsFile
			if source == "" {
				source = "embedded"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (version %s, %d risk classes)\n",
				source, table.Version, len(table.Classes)+1)
			return nil
		},
	})
	return cmd
}
