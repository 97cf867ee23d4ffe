package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tume-mail/tume/internal/config"
	"github.com/tume-mail/tume/internal/errors"
)

// Build-time variables (set by goreleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Config holds the resolved configuration
type Config struct {
	FormatStr    string
	ConfigStr    string
	BackendStr   string
	VaultPathStr string
	Verbose      bool
	Resolved     config.Resolved
}

// GlobalConfig holds the global configuration state
var GlobalConfig = &Config{}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tume",
		Short:         "Credential storage for the tume email client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// CLI > ENV > Config
			configSet := cmd.Flags().Changed("config")
			if configSet && GlobalConfig.ConfigStr == "" {
				return errors.New(errors.CodeCfgInvalid, "config path is empty", nil)
			}
			if !configSet {
				GlobalConfig.ConfigStr = os.Getenv("TUME_CONFIG")
			}

			r, xe := config.Resolve(config.Options{
				ConfigPath:      GlobalConfig.ConfigStr,
				CLIFormat:       GlobalConfig.FormatStr,
				CLIFormatSet:    cmd.Flags().Changed("format"),
				CLIBackend:      GlobalConfig.BackendStr,
				CLIBackendSet:   cmd.Flags().Changed("backend"),
				CLIVaultPath:    GlobalConfig.VaultPathStr,
				CLIVaultPathSet: cmd.Flags().Changed("vault-path"),
				EnvFormat:       os.Getenv("TUME_FORMAT"),
				EnvBackend:      os.Getenv("TUME_BACKEND"),
				EnvVaultPath:    os.Getenv("TUME_VAULT_PATH"),
			})
			if xe != nil {
				return xe
			}
			GlobalConfig.Resolved = r
			GlobalConfig.FormatStr = r.Format
			GlobalConfig.BackendStr = string(r.Backend)
			GlobalConfig.VaultPathStr = r.VaultPath
			return nil
		},
	}

	root.PersistentFlags().StringVar(&GlobalConfig.ConfigStr, "config", "", "Config file path (YAML); default: ./tume.yaml or $HOME/.config/tume/tume.yaml")
	root.PersistentFlags().StringVarP(&GlobalConfig.FormatStr, "format", "f", "auto", "Output format: json|yaml|table|csv|auto")
	root.PersistentFlags().StringVar(&GlobalConfig.BackendStr, "backend", "auto", "Credential backend: auto|keyring|file")
	root.PersistentFlags().StringVar(&GlobalConfig.VaultPathStr, "vault-path", "", "Encrypted vault file path")
	root.PersistentFlags().BoolVarP(&GlobalConfig.Verbose, "verbose", "v", false, "Log diagnostics to stderr")

	return root
}
