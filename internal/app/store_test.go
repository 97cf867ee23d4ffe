package app

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tume-mail/tume/internal/config"
	"github.com/tume-mail/tume/internal/credential"
	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/keyring"
	"github.com/tume-mail/tume/internal/vault"
)

type noKeyring struct{}

func (noKeyring) Get(string, string) (string, error) { return "", stderrors.New("unavailable") }
func (noKeyring) Set(string, string, string) error   { return stderrors.New("unavailable") }
func (noKeyring) Delete(string, string) error        { return stderrors.New("unavailable") }

func resolved(path string) config.Resolved {
	return config.Resolved{
		Backend:           keyring.PreferAuto,
		VaultPath:         path,
		ProbeTimeout:      time.Second,
		MinPasswordLength: 8,
		KDF:               vault.Params{Time: 1, MemoryKiB: 64, Threads: 1},
	}
}

func TestOpenStore_NoCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.vault")
	s, xe := OpenStore(context.Background(), StoreOptions{Config: resolved(path), Keyring: noKeyring{}})
	if xe != nil {
		t.Fatalf("unexpected error: %v", xe)
	}
	defer s.Close()
	st := s.Status()
	if st.State != credential.StateNoCredentials || st.Backend != keyring.BackendFile {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestOpenStore_CorruptVaultStillReturnsStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.vault")
	if err := os.WriteFile(path, []byte("not a vault"), 0o600); err != nil {
		t.Fatal(err)
	}
	s, xe := OpenStore(context.Background(), StoreOptions{Config: resolved(path), Keyring: noKeyring{}})
	if xe == nil || xe.Code != errors.CodeVaultFormat {
		t.Fatalf("expected vault format error, got %v", xe)
	}
	if s == nil {
		t.Fatal("expected store for reset")
	}
	defer s.Close()
	if rx := s.Reset(); rx != nil {
		t.Fatalf("reset: %v", rx)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("vault should be removed, stat err=%v", err)
	}
}

func TestOpenStore_KeyringForcedButUnavailable(t *testing.T) {
	cfg := resolved(filepath.Join(t.TempDir(), "credentials.vault"))
	cfg.Backend = keyring.PreferKeyring
	s, xe := OpenStore(context.Background(), StoreOptions{Config: cfg, Keyring: noKeyring{}})
	if xe == nil || xe.Code != errors.CodeBackendUnavailable {
		t.Fatalf("expected backend unavailable, got %v", xe)
	}
	if s != nil {
		t.Fatal("expected nil store")
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"keyring", false},
		{"file", false},
		{"auto", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			b, xe := ParseBackend(tt.in)
			if (xe != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", xe, tt.wantErr)
			}
			if !tt.wantErr && string(b) != tt.in {
				t.Fatalf("backend=%s", b)
			}
		})
	}
}
