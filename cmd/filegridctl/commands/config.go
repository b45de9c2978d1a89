package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/filegrid/filegrid/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration file helpers for nmd and ssd",
}

var (
	configSchemaRole   string
	configSchemaOutput string
)

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate a JSON schema for nmd or ssd configuration",
	Long: `Generate a JSON schema for the nmd or ssd configuration file.

The schema can be used for editor autocompletion and validation of the
YAML config file loaded by "nmd start --config" or "ssd start --config".

Examples:
  filegridctl config schema --role nm
  filegridctl config schema --role ss -o ssd.schema.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}

		var schema *jsonschema.Schema
		switch configSchemaRole {
		case "nm":
			schema = reflector.Reflect(&config.NMConfig{})
			schema.Title = "filegrid Name Server Configuration"
		case "ss":
			schema = reflector.Reflect(&config.SSConfig{})
			schema.Title = "filegrid Storage Server Configuration"
		default:
			return fmt.Errorf("unknown --role %q, want nm or ss", configSchemaRole)
		}
		schema.Version = "https://json-schema.org/draft/2020-12/schema"

		schemaJSON, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}

		if configSchemaOutput != "" {
			if err := os.WriteFile(configSchemaOutput, schemaJSON, 0o644); err != nil {
				return fmt.Errorf("write schema file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "JSON schema written to %s\n", configSchemaOutput)
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(schemaJSON))
		return nil
	},
}

var (
	configInitRole   string
	configInitID     string
	configInitOutput string
	configInitForce  bool
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default nmd or ssd configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configInitOutput
		if path == "" {
			path = config.DefaultConfigPath(configInitRole)
		}
		if !configInitForce {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
			}
		}

		switch configInitRole {
		case "nm":
			if err := config.SaveConfig(config.DefaultNMConfig(), path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
		case "ss":
			if configInitID == "" {
				return fmt.Errorf("--id is required for --role ss")
			}
			if err := config.SaveConfig(config.DefaultSSConfig(configInitID), path); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
		default:
			return fmt.Errorf("unknown --role %q, want nm or ss", configInitRole)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	configSchemaCmd.Flags().StringVar(&configSchemaRole, "role", "nm", "Config role (nm|ss)")
	configSchemaCmd.Flags().StringVarP(&configSchemaOutput, "output", "o", "", "Output file (default: stdout)")

	configInitCmd.Flags().StringVar(&configInitRole, "role", "nm", "Config role (nm|ss)")
	configInitCmd.Flags().StringVar(&configInitID, "id", "", "Storage server ID (--role ss only)")
	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "", "Output path (default: XDG config dir)")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configSchemaCmd)
	configCmd.AddCommand(configInitCmd)
}
