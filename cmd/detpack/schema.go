package main

import (
	"github.com/spf13/cobra"
	"github.com/turbokube/detpack/pkg/schema"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the config file",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, _ []string) error { return schema.WriteJSONSchema(cmd.OutOrStdout()) },
	}
}
