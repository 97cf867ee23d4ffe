package vault

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/tume-mail/tume/internal/errors"
)

func writeSealed(t *testing.T, path, plaintext, password string) {
	t.Helper()
	if xe := WriteFile(path, sealed(t, plaintext, password)); xe != nil {
		t.Fatalf("WriteFile failed: %v", xe)
	}
}

func readPlain(t *testing.T, path, password string) string {
	t.Helper()
	f, xe := ReadFile(path)
	if xe != nil {
		t.Fatalf("ReadFile failed: %v", xe)
	}
	out, xe := Open(f, []byte(password))
	if xe != nil {
		t.Fatalf("Open failed: %v", xe)
	}
	defer out.Destroy()
	return string(out.Bytes())
}

func tempEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var tmp []string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			tmp = append(tmp, e.Name())
		}
	}
	return tmp
}

func TestWriteReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.vault")
	writeSealed(t, path, "v1", "longenoughpw")

	if got := readPlain(t, path, "longenoughpw"); got != "v1" {
		t.Fatalf("got %q", got)
	}

	if runtime.GOOS != "windows" {
		st, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if st.Mode().Perm() != fileMode {
			t.Errorf("mode=%v want %v", st.Mode().Perm(), os.FileMode(fileMode))
		}
	}
	if tmp := tempEntries(t, filepath.Dir(path)); len(tmp) != 0 {
		t.Errorf("temp files left behind: %v", tmp)
	}
}

func TestWriteFile_ReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.vault")
	writeSealed(t, path, "v1", "longenoughpw")
	writeSealed(t, path, "v2", "longenoughpw")

	if got := readPlain(t, path, "longenoughpw"); got != "v2" {
		t.Fatalf("got %q", got)
	}
}

// 模拟在 rename 之前崩溃：旧 vault 必须完整可读，临时文件被清理。
func TestWriteFile_InterruptedKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.vault")
	writeSealed(t, path, "v1", "longenoughpw")

	var seenTmp string
	orig := beforeRename
	beforeRename = func(tmpPath string) error {
		seenTmp = tmpPath
		return stderrors.New("simulated crash")
	}
	t.Cleanup(func() { beforeRename = orig })

	xe := WriteFile(path, sealed(t, "v2", "longenoughpw"))
	if xe == nil || xe.Code != errors.CodeIO {
		t.Fatalf("expected %s, got %v", errors.CodeIO, xe)
	}
	if seenTmp == "" || filepath.Dir(seenTmp) != filepath.Dir(path) {
		t.Fatalf("temp file should live next to the vault, got %q", seenTmp)
	}
	if _, err := os.Stat(seenTmp); !os.IsNotExist(err) {
		t.Errorf("temp file not removed: %v", err)
	}
	if got := readPlain(t, path, "longenoughpw"); got != "v1" {
		t.Fatalf("previous vault damaged, got %q", got)
	}
}

func TestWriteFile_InterruptedWithoutPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.vault")

	orig := beforeRename
	beforeRename = func(string) error { return stderrors.New("simulated crash") }
	t.Cleanup(func() { beforeRename = orig })

	if xe := WriteFile(path, sealed(t, "v1", "longenoughpw")); xe == nil {
		t.Fatal("expected error")
	}
	ok, xe := Exists(path)
	if xe != nil || ok {
		t.Fatalf("vault should not exist: ok=%v err=%v", ok, xe)
	}
	if tmp := tempEntries(t, filepath.Dir(path)); len(tmp) != 0 {
		t.Errorf("temp files left behind: %v", tmp)
	}
}

func TestReadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, xe := ReadFile(filepath.Join(dir, "missing.vault"))
	if xe == nil || xe.Code != errors.CodeNotConfigured {
		t.Fatalf("expected %s, got %v", errors.CodeNotConfigured, xe)
	}

	garbage := filepath.Join(dir, "garbage.vault")
	if err := os.WriteFile(garbage, []byte("definitely not a vault"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, xe = ReadFile(garbage)
	if xe == nil || xe.Code != errors.CodeVaultFormat {
		t.Fatalf("expected %s, got %v", errors.CodeVaultFormat, xe)
	}
	if xe.Details["path"] != garbage {
		t.Errorf("expected path detail, got %v", xe.Details)
	}
}

func TestRemoveFileAndExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.vault")

	ok, xe := Exists(path)
	if xe != nil || ok {
		t.Fatalf("Exists before write: ok=%v err=%v", ok, xe)
	}
	writeSealed(t, path, "v1", "pw")
	ok, xe = Exists(path)
	if xe != nil || !ok {
		t.Fatalf("Exists after write: ok=%v err=%v", ok, xe)
	}
	if xe := RemoveFile(path); xe != nil {
		t.Fatal(xe)
	}
	if xe := RemoveFile(path); xe != nil {
		t.Fatalf("removing absent vault should succeed: %v", xe)
	}
	ok, _ = Exists(path)
	if ok {
		t.Fatal("vault still exists after RemoveFile")
	}
}
