package cmds

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-go-golems/cardstream/pkg/extract"
	"github.com/go-go-golems/cardstream/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the tool response block, or validate a payload against it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("validate")
			if err != nil {
				return err
			}

			if path == "" {
				b, err := json.MarshalIndent(extract.Schema(), "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return err
			}

			doc, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "could not read %s", path)
			}
			if err := helpers.ValidateJSON(extract.Schema(), doc); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is a valid tool response\n", path)
			return err
		},
	}
	cmd.Flags().String("validate", "", "Payload file to validate")
	return cmd
}
