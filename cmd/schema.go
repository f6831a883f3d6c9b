package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"icp-wizard/internal/icp"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the ICP JSON schema sent to the model on finalize",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var buf bytes.Buffer
			if err := json.Indent(&buf, icp.Schema(), "", "  "); err != nil {
				return fmt.Errorf("schema: %w", err)
			}
			buf.WriteByte('\n')
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		},
	}
}
