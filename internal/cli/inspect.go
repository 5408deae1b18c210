package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newInspectCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "inspect NAME",
		Short: "Print the configuration of a VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			cfg, err := mgr.Config(args[0])
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch output {
			case "json":
				fmt.Fprintln(out, string(data))
			case "yaml":
				// Go through the JSON form so field names match vm.json.
				var doc any
				if err := json.Unmarshal(data, &doc); err != nil {
					return err
				}
				y, err := yaml.Marshal(doc)
				if err != nil {
					return err
				}
				fmt.Fprint(out, string(y))
			default:
				return fmt.Errorf("unknown output format %q (want json or yaml)", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format: json|yaml")

	return cmd
}
