package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/snowglobe/internal/cli/config"
	"github.com/spf13/cobra"
)

// starterConfig is the snowglobe.yaml written by init. It mirrors the
// config schema: a profile section for the warehouse connection plus the
// managed-object defaults.
const starterConfig = `# Snowglobe configuration
profile: default

profiles:
  default:
    type: snowflake
    account: your-account
    user: your-user
    # password: set here or via your secret manager
    role: your-role
    warehouse: your-warehouse
    database: your-database
    schema: public

state_dir: .snowglobe

refresh:
  # Object types Snowglobe manages. Add stream, stage, sequence,
  # procedure, function, task, pipe, or file format as needed.
  object_types:
    - table
    - view
  threads: 10
  # What happens to objects that disappear from the warehouse:
  # retain, archive, or delete.
  removal_policy: retain
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new Snowglobe project",
		Long: `Initialize a Snowglobe project with a starter configuration.

This creates:
  - snowglobe.yaml with a connection profile and the managed-object defaults
  - the snapshot state directory`,
		Example: `  # Initialize in current directory
  snowglobe init

  # Initialize in a new directory
  snowglobe init my-project

  # Force overwrite existing config
  snowglobe init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	// Create directory if specified and doesn't exist
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// Check if config already exists
	configPath := filepath.Join(dir, "snowglobe.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("snowglobe.yaml already exists. Use --force to overwrite")
	}

	if err := os.WriteFile(configPath, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write snowglobe.yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, config.DefaultStateDir), 0750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Snowglobe project initialized!")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Edit snowglobe.yaml with your warehouse connection")
	fmt.Fprintln(w, "  2. Run 'snowglobe refresh' to capture the first snapshot")
	fmt.Fprintln(w, "  3. Run 'snowglobe trace <object>' to explore lineage")

	return nil
}
