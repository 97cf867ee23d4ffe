package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tume-mail/tume/internal/errors"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig_NoConfig(t *testing.T) {
	tmp := t.TempDir()
	cfg, path, xe := LoadConfig(Options{WorkDir: tmp, HomeDir: tmp})
	if xe != nil {
		t.Fatalf("unexpected error: %v", xe)
	}
	if path != "" {
		t.Fatalf("expected empty path, got %q", path)
	}
	if cfg.Accounts == nil {
		t.Fatal("expected non-nil Accounts map")
	}
}

func TestLoadConfig_ExplicitConfigMissing(t *testing.T) {
	tmp := t.TempDir()
	_, _, xe := LoadConfig(Options{WorkDir: tmp, HomeDir: tmp, ConfigPath: "no_such.yaml"})
	if xe == nil {
		t.Fatal("expected error")
	}
	if xe.Code != errors.CodeCfgNotFound {
		t.Fatalf("expected %s, got %s", errors.CodeCfgNotFound, xe.Code)
	}
}

func TestLoadConfig_WorkDirConfig(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "tume.yaml")
	writeConfig(t, path, `backend: file
vault_path: ~/vaults/mail.vault
probe_timeout: 2s
min_password_length: 12
kdf:
  time: 4
  memory_kib: 131072
  threads: 2
accounts:
  gmail:
    name: Gmail Account
    email: a@example.com
    provider: gmail
    default: true
`)

	file, cfgPath, xe := LoadConfig(Options{WorkDir: tmp, HomeDir: tmp})
	if xe != nil {
		t.Fatalf("unexpected error: %v", xe)
	}
	if cfgPath != path {
		t.Fatalf("expected path %q, got %q", path, cfgPath)
	}
	if file.Backend != "file" || file.ProbeTimeout != "2s" || file.MinPasswordLength != 12 {
		t.Errorf("unexpected scalar fields: %+v", file)
	}
	if file.KDF == nil || file.KDF.Time != 4 || file.KDF.MemoryKiB != 131072 || file.KDF.Threads != 2 {
		t.Errorf("unexpected kdf: %+v", file.KDF)
	}
	acct, ok := file.Accounts["gmail"]
	if !ok {
		t.Fatal("expected 'gmail' account")
	}
	if acct.Email != "a@example.com" || acct.Provider != "gmail" || !acct.Default {
		t.Errorf("unexpected account: %+v", acct)
	}
}

func TestLoadConfig_HomeDirConfig(t *testing.T) {
	workDir := t.TempDir()
	homeDir := t.TempDir()

	path := filepath.Join(homeDir, ".config", "tume", "tume.yaml")
	writeConfig(t, path, "backend: keyring\n")

	file, cfgPath, xe := LoadConfig(Options{WorkDir: workDir, HomeDir: homeDir})
	if xe != nil {
		t.Fatalf("unexpected error: %v", xe)
	}
	if cfgPath != path {
		t.Fatalf("expected path %q, got %q", path, cfgPath)
	}
	if file.Backend != "keyring" {
		t.Fatalf("backend=%q", file.Backend)
	}
	if DefaultConfigPath(homeDir) != path {
		t.Fatalf("DefaultConfigPath=%q", DefaultConfigPath(homeDir))
	}
}

func TestLoadConfig_WorkDirTakesPrecedence(t *testing.T) {
	workDir := t.TempDir()
	homeDir := t.TempDir()

	writeConfig(t, filepath.Join(workDir, "tume.yaml"), "backend: file\n")
	writeConfig(t, filepath.Join(homeDir, ".config", "tume", "tume.yaml"), "backend: keyring\n")

	file, cfgPath, xe := LoadConfig(Options{WorkDir: workDir, HomeDir: homeDir})
	if xe != nil {
		t.Fatalf("unexpected error: %v", xe)
	}
	if cfgPath != filepath.Join(workDir, "tume.yaml") {
		t.Fatalf("expected work dir config, got %q", cfgPath)
	}
	if file.Backend != "file" {
		t.Fatalf("expected work dir backend, got %q", file.Backend)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmp := t.TempDir()
	writeConfig(t, filepath.Join(tmp, "tume.yaml"), `invalid: yaml: syntax: [`)

	_, _, xe := LoadConfig(Options{WorkDir: tmp, HomeDir: tmp})
	if xe == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if xe.Code != errors.CodeCfgInvalid {
		t.Fatalf("expected %s, got %s", errors.CodeCfgInvalid, xe.Code)
	}
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	tmp := t.TempDir()
	customPath := filepath.Join(tmp, "custom.yaml")
	writeConfig(t, customPath, "format: json\n")

	file, cfgPath, xe := LoadConfig(Options{ConfigPath: customPath})
	if xe != nil {
		t.Fatalf("unexpected error: %v", xe)
	}
	if cfgPath != customPath {
		t.Fatalf("expected path %q, got %q", customPath, cfgPath)
	}
	if file.Format != "json" {
		t.Fatalf("format=%q", file.Format)
	}
}
