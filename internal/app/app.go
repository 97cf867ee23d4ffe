package app

import (
	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/output"
	"github.com/tume-mail/tume/internal/spec"
)

type App struct {
	Version string
	Commit  string
	Date    string
}

func New(version, commit, date string) App {
	return App{Version: version, Commit: commit, Date: date}
}

func (a App) BuildSpec() spec.Spec {
	globalFlags := []spec.FlagSpec{
		{Name: "config", Env: "TUME_CONFIG", Default: "", Description: "Config file path (YAML); default: ./tume.yaml or $HOME/.config/tume/tume.yaml"},
		{Name: "format", Shorthand: "f", Env: "TUME_FORMAT", Default: "auto", Description: "Output format: json|yaml|table|csv|auto"},
		{Name: "backend", Env: "TUME_BACKEND", Default: "auto", Description: "Credential backend: auto|keyring|file"},
		{Name: "vault-path", Env: "TUME_VAULT_PATH", Default: "$HOME/.local/share/tume/credentials.vault", Description: "Encrypted vault file path"},
		{Name: "verbose", Shorthand: "v", Default: "false", Description: "Log diagnostics to stderr"},
	}
	with := func(extra ...spec.FlagSpec) []spec.FlagSpec {
		flags := make([]spec.FlagSpec, 0, len(globalFlags)+len(extra))
		flags = append(flags, globalFlags...)
		return append(flags, extra...)
	}
	// 主密码只从 TUME_MASTER_PASSWORD / TUME_NEW_MASTER_PASSWORD 或终端提示读取，不提供 flag
	const pw = "; master password from TUME_MASTER_PASSWORD or prompt"
	return spec.Spec{
		SchemaVersion: output.SchemaVersion,
		Commands: []spec.CommandSpec{
			{Name: "spec", Description: "Export tool spec for AI/agents", Flags: with()},
			{Name: "version", Description: "Print version information", Flags: with()},
			{Name: "creds probe", Description: "Probe the OS keyring and report which backend would be used", Flags: with()},
			{Name: "creds status", Description: "Show credential backend, lock state and vault metadata", Flags: with()},
			{
				Name:        "creds setup",
				Description: "Store IMAP/SMTP credentials (first run or after reset); IMAP/SMTP passwords from TUME_IMAP_PASSWORD/TUME_SMTP_PASSWORD or prompt" + pw,
				Flags: with(
					spec.FlagSpec{Name: "provider", Default: "custom", Description: "Provider preset id (see providers list)"},
					spec.FlagSpec{Name: "email", Description: "Email address; default username for IMAP and SMTP"},
					spec.FlagSpec{Name: "imap-host", Description: "IMAP server host"},
					spec.FlagSpec{Name: "imap-port", Description: "IMAP server port"},
					spec.FlagSpec{Name: "imap-user", Description: "IMAP username"},
					spec.FlagSpec{Name: "smtp-host", Description: "SMTP server host"},
					spec.FlagSpec{Name: "smtp-port", Description: "SMTP server port"},
					spec.FlagSpec{Name: "smtp-user", Description: "SMTP username"},
					spec.FlagSpec{Name: "account-id", Default: "default", Description: "Account id saved in config"},
					spec.FlagSpec{Name: "name", Description: "Account display name"},
				),
			},
			{Name: "creds unlock", Description: "Verify the master password against the encrypted vault" + pw, Flags: with()},
			{Name: "creds show", Description: "Show stored server settings with passwords masked" + pw, Flags: with()},
			{Name: "creds passwd", Description: "Change the master password of the encrypted vault" + pw + "; new password from TUME_NEW_MASTER_PASSWORD or prompt", Flags: with()},
			{
				Name:        "creds migrate",
				Description: "Move credentials to another backend" + pw + "; file target password from TUME_NEW_MASTER_PASSWORD or prompt",
				Flags:       with(spec.FlagSpec{Name: "to", Description: "Target backend: keyring|file"}),
			},
			{
				Name:        "creds reset",
				Description: "Delete stored credentials from the active backend",
				Flags:       with(spec.FlagSpec{Name: "yes", Default: "false", Description: "Confirm deletion"}),
			},
			{Name: "accounts list", Description: "List account metadata saved after setup", Flags: with()},
			{Name: "providers list", Description: "List email provider presets", Flags: with()},
			{Name: "providers show", Description: "Show a provider preset", Flags: with()},
			{
				Name:        "mcp server",
				Description: "Start a read-only MCP server",
				Flags: with(
					spec.FlagSpec{Name: "transport", Env: "TUME_MCP_TRANSPORT", Default: "stdio", Description: "Transport: stdio|streamable_http"},
					spec.FlagSpec{Name: "http-addr", Env: "TUME_MCP_HTTP_ADDR", Default: "127.0.0.1:8787", Description: "Listen address for streamable_http"},
					spec.FlagSpec{Name: "http-auth-token", Env: "TUME_MCP_HTTP_AUTH_TOKEN", Description: "Bearer token required by streamable_http"},
				),
			},
		},
		ErrorCodes: errors.AllCodes(),
	}
}

type VersionInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

func (a App) VersionInfo() VersionInfo {
	return VersionInfo{Version: a.Version, Commit: a.Commit, Date: a.Date}
}
