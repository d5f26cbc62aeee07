package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/hrgate/internal/domain/directory"
)

var fieldsRequiredOnly bool

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Print the field vocabulary",
	Long: `Print the field names tools accept, the directory property each one maps
to, and which fields are required on every update or hold manager/HR links.

Output is YAML.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fields := directory.Fields()
		if fieldsRequiredOnly {
			required := fields[:0]
			for _, f := range fields {
				if f.Required {
					required = append(required, f)
				}
			}
			fields = required
		}

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(map[string][]directory.Field{"fields": fields}); err != nil {
			return fmt.Errorf("encode fields: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	fieldsCmd.Flags().BoolVar(&fieldsRequiredOnly, "required", false, "only print required fields")
	rootCmd.AddCommand(fieldsCmd)
}
