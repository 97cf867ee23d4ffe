package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/keyring"
	"github.com/tume-mail/tume/internal/vault"
)

func TestResolve_Defaults(t *testing.T) {
	tmp := t.TempDir()
	got, xe := Resolve(Options{WorkDir: tmp, HomeDir: tmp})
	if xe != nil {
		t.Fatalf("unexpected err: %v", xe)
	}
	if got.ConfigPath != "" {
		t.Fatalf("expected empty config path")
	}
	if got.Format != "auto" || got.Backend != keyring.PreferAuto {
		t.Fatalf("format=%q backend=%q", got.Format, got.Backend)
	}
	if got.VaultPath != filepath.Join(tmp, ".local", "share", "tume", "credentials.vault") {
		t.Fatalf("vault path=%q", got.VaultPath)
	}
	if got.ProbeTimeout != 5*time.Second || got.MinPasswordLength != 8 {
		t.Fatalf("timeout=%v min=%d", got.ProbeTimeout, got.MinPasswordLength)
	}
	if got.KDF != vault.DefaultParams() {
		t.Fatalf("kdf=%+v", got.KDF)
	}
}

func TestResolve_ExplicitConfigMissingIsError(t *testing.T) {
	tmp := t.TempDir()
	_, xe := Resolve(Options{WorkDir: tmp, HomeDir: tmp, ConfigPath: "no_such.yaml"})
	if xe == nil || xe.Code != errors.CodeCfgNotFound {
		t.Fatalf("expected %s, got %v", errors.CodeCfgNotFound, xe)
	}
}

func TestResolve_Precedence(t *testing.T) {
	tmp := t.TempDir()
	writeConfig(t, filepath.Join(tmp, "tume.yaml"), "format: yaml\nbackend: file\nvault_path: cfg.vault\n")

	tests := []struct {
		name    string
		opts    Options
		format  string
		backend keyring.Preference
		vault   string
	}{
		{"config", Options{}, "yaml", keyring.PreferFile, filepath.Join(tmp, "cfg.vault")},
		{"env overrides config",
			Options{EnvFormat: "json", EnvBackend: "keyring", EnvVaultPath: "/env/v.vault"},
			"json", keyring.PreferKeyring, "/env/v.vault"},
		{"cli overrides env",
			Options{EnvFormat: "yaml", CLIFormat: "table", CLIFormatSet: true,
				EnvBackend: "keyring", CLIBackend: "auto", CLIBackendSet: true,
				EnvVaultPath: "/env/v.vault", CLIVaultPath: "~/cli.vault", CLIVaultPathSet: true},
			"table", keyring.PreferAuto, filepath.Join(tmp, "cli.vault")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			opts.WorkDir, opts.HomeDir = tmp, tmp
			got, xe := Resolve(opts)
			if xe != nil {
				t.Fatal(xe)
			}
			if got.Format != tt.format || got.Backend != tt.backend || got.VaultPath != filepath.Clean(tt.vault) {
				t.Fatalf("got format=%q backend=%q vault=%q", got.Format, got.Backend, got.VaultPath)
			}
		})
	}
}

func TestResolve_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		opts Options
	}{
		{"backend", "backend: cloud\n", Options{}},
		{"cli backend", "", Options{CLIBackend: "vault", CLIBackendSet: true}},
		{"probe timeout", "probe_timeout: soon\n", Options{}},
		{"negative probe timeout", "probe_timeout: -1s\n", Options{}},
		{"short passwords", "min_password_length: 4\n", Options{}},
		{"kdf", "kdf: {time: 0, memory_kib: 65536, threads: 4}\n", Options{}},
		{"two defaults", "accounts:\n  a: {name: A, email: a@x, provider: gmail, default: true}\n  b: {name: B, email: b@x, provider: gmail, default: true}\n", Options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			if tt.body != "" {
				writeConfig(t, filepath.Join(tmp, "tume.yaml"), tt.body)
			}
			opts := tt.opts
			opts.WorkDir, opts.HomeDir = tmp, tmp
			_, xe := Resolve(opts)
			if xe == nil || xe.Code != errors.CodeCfgInvalid {
				t.Fatalf("expected %s, got %v", errors.CodeCfgInvalid, xe)
			}
		})
	}
}

func TestResolve_ConfigTunables(t *testing.T) {
	tmp := t.TempDir()
	writeConfig(t, filepath.Join(tmp, "tume.yaml"),
		"probe_timeout: 250ms\nmin_password_length: 12\nkdf: {time: 1, memory_kib: 1024, threads: 1}\n")

	got, xe := Resolve(Options{WorkDir: tmp, HomeDir: tmp})
	if xe != nil {
		t.Fatal(xe)
	}
	if got.ProbeTimeout != 250*time.Millisecond || got.MinPasswordLength != 12 {
		t.Fatalf("timeout=%v min=%d", got.ProbeTimeout, got.MinPasswordLength)
	}
	if got.KDF != (vault.Params{Time: 1, MemoryKiB: 1024, Threads: 1}) {
		t.Fatalf("kdf=%+v", got.KDF)
	}
}

func TestExpandPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"~", "/home/u"},
		{"~/a/b.vault", "/home/u/a/b.vault"},
		{"rel.vault", "/work/rel.vault"},
		{"/abs/x.vault", "/abs/x.vault"},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in, "/home/u", "/work"); got != filepath.FromSlash(tt.want) {
			t.Errorf("expandPath(%q)=%q want %q", tt.in, got, tt.want)
		}
	}
}
