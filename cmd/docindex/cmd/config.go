package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docindex/configs"
	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/output"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the user configuration file and inspect the effective configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/docindex/config.yaml)
  3. Project config (.docindex.yaml in --dir)
  4. Environment variables (DOCINDEX_*)`,
		Example: `  # Create user config from template
  docindex config init

  # Show effective configuration
  docindex config show

  # Print user config file path
  docindex config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Create the user configuration file from a commented template at
~/.config/docindex/config.yaml (or $XDG_CONFIG_HOME/docindex/config.yaml).

With --force an existing file is backed up, then rewritten with your
settings kept and any new options filled in with defaults.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Back up and upgrade an existing configuration")

	return cmd
}

func newConfigShowCmd(g *globals) *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Example: `  docindex config show
  docindex config show --json
  docindex config show --source user`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, g, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, user, project, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	configPath := config.GetUserConfigPath()

	if config.UserConfigExists() {
		if !force {
			out.Warning("User configuration already exists")
			out.Statusf("📁", "Location: %s", configPath)
			out.Status("💡", "Use --force to upgrade it (your settings are kept)")
			return nil
		}
		return runConfigUpgrade(out, configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(configs.UserConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created user configuration")
	out.Statusf("📁", "Location: %s", configPath)
	out.Status("💡", "Run 'docindex config show' to verify")
	return nil
}

// runConfigUpgrade backs up the user config, then rewrites it merged over
// the current defaults.
func runConfigUpgrade(out *output.Writer, configPath string) error {
	backupPath, err := config.BackupUserConfig()
	if err != nil {
		return fmt.Errorf("failed to back up config: %w", err)
	}
	cfg, err := config.LoadUserConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("config file disappeared during upgrade")
	}
	if err := cfg.WriteYAML(configPath); err != nil {
		return err
	}

	out.Success("Configuration upgraded")
	out.Statusf("📁", "Location: %s", configPath)
	out.Statusf("💾", "Backup: %s", backupPath)
	return nil
}

func runConfigShow(cmd *cobra.Command, g *globals, jsonOutput bool, source string) error {
	out := output.New(cmd.OutOrStdout())
	dir, err := g.projectDir()
	if err != nil {
		return err
	}

	var (
		cfg  *config.Config
		desc string
	)
	switch source {
	case "merged":
		if cfg, err = config.Load(dir); err != nil {
			return err
		}
		desc = "merged (defaults + user + project + env)"

	case "user":
		if cfg, err = config.LoadUserConfig(); err != nil {
			return err
		}
		if cfg == nil {
			out.Warning("No user configuration file found")
			out.Statusf("📁", "Expected at: %s", config.GetUserConfigPath())
			out.Status("💡", "Run 'docindex config init' to create one")
			return nil
		}
		desc = "user (" + config.GetUserConfigPath() + ")"

	case "project":
		path := config.ProjectConfigPath(dir)
		if path == "" {
			out.Warning("No project configuration file found")
			out.Statusf("📁", "Expected at: %s", filepath.Join(dir, config.ProjectFileName))
			return nil
		}
		if cfg, err = config.LoadFile(path); err != nil {
			return err
		}
		desc = "project (" + path + ")"

	case "defaults":
		cfg = config.NewConfig()
		desc = "defaults (hardcoded)"

	default:
		return fmt.Errorf("invalid source: %s (use: merged, user, project, defaults)", source)
	}

	shown := maskSecrets(cfg)
	if jsonOutput {
		return out.JSON(shown)
	}

	out.Statusf("📋", "Configuration source: %s", desc)
	out.Newline()
	data, err := yaml.Marshal(shown)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
	return err
}

const maskedSecret = "********"

// maskSecrets returns a copy of cfg safe to print.
func maskSecrets(cfg *config.Config) *config.Config {
	shown := *cfg
	if shown.Queue.Redis.Password != "" {
		shown.Queue.Redis.Password = maskedSecret
	}
	return &shown
}
