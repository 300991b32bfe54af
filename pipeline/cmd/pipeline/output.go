package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// printOutput writes v in the format selected by --output. YAML output
// keeps the JSON field names.
func printOutput(cmd *cobra.Command, v interface{}) error {
	format, _ := cmd.Flags().GetString("output")
	return writeOutput(cmd.OutOrStdout(), format, v)
}

func writeOutput(w io.Writer, format string, v interface{}) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(generic)
	default:
		return fmt.Errorf("unsupported output format %q (supported: json, yaml)", format)
	}
}
