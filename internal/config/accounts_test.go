package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAccount_CreatesAndUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tume.yaml")

	if xe := SaveAccount(path, "work", Account{Name: "Work", Email: "w@example.com", Provider: "outlook"}); xe != nil {
		t.Fatal(xe)
	}
	f, xe := readFile(path)
	if xe != nil {
		t.Fatal(xe)
	}
	if !f.Accounts["work"].Default {
		t.Fatal("first account should become default")
	}

	if xe := SaveAccount(path, "gmail", Account{Name: "Gmail", Email: "g@example.com", Provider: "gmail", Default: true}); xe != nil {
		t.Fatal(xe)
	}
	f, xe = readFile(path)
	if xe != nil {
		t.Fatal(xe)
	}
	if len(f.Accounts) != 2 || f.Accounts["work"].Default || !f.Accounts["gmail"].Default {
		t.Fatalf("unexpected accounts: %+v", f.Accounts)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestSaveAccount_PreservesSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tume.yaml")
	writeConfig(t, path, "backend: file\nprobe_timeout: 3s\n")

	if xe := SaveAccount(path, "gmail", Account{Name: "Gmail", Email: "g@example.com", Provider: "gmail"}); xe != nil {
		t.Fatal(xe)
	}
	f, xe := readFile(path)
	if xe != nil {
		t.Fatal(xe)
	}
	if f.Backend != "file" || f.ProbeTimeout != "3s" {
		t.Fatalf("settings lost: %+v", f)
	}
	if _, ok := f.Accounts["gmail"]; !ok {
		t.Fatal("account not saved")
	}
}

func TestSaveAccount_RejectsEmptyID(t *testing.T) {
	if xe := SaveAccount(filepath.Join(t.TempDir(), "tume.yaml"), "", Account{}); xe == nil {
		t.Fatal("expected error")
	}
}

func TestDefaultAccount(t *testing.T) {
	if _, _, ok := DefaultAccount(nil); ok {
		t.Fatal("empty map has no default")
	}
	id, _, ok := DefaultAccount(map[string]Account{
		"b": {Name: "B", DisplayOrder: 2},
		"a": {Name: "A", DisplayOrder: 2},
		"c": {Name: "C", DisplayOrder: 1},
	})
	if !ok || id != "c" {
		t.Fatalf("expected lowest display_order, got %q", id)
	}
	id, _, _ = DefaultAccount(map[string]Account{
		"a": {Name: "A"},
		"z": {Name: "Z", Default: true},
	})
	if id != "z" {
		t.Fatalf("expected flagged default, got %q", id)
	}
}
