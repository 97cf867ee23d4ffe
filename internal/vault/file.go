package vault

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/tume-mail/tume/internal/errors"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// beforeRename 在临时文件写入并校验之后、rename 之前调用；测试用它模拟崩溃。
var beforeRename = func(tmpPath string) error { return nil }

// WriteFile 原子地把 f 写到 path：同目录临时文件 → fsync → 回读校验 → rename → 同步目录。
// 任一步失败都不会破坏 path 上已有的 vault。
func WriteFile(path string, f *File) *errors.XError {
	data, err := f.MarshalBinary()
	if err != nil {
		return errors.AsOrWrap(err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return ioErr("failed to create vault directory", path, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return ioErr("failed to create temp vault file", path, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(fileMode); err != nil {
		return ioErr("failed to set vault file mode", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		return ioErr("failed to write temp vault file", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return ioErr("failed to sync temp vault file", path, err)
	}
	if err := tmp.Close(); err != nil {
		return ioErr("failed to close temp vault file", path, err)
	}

	written, err := os.ReadFile(tmpPath)
	if err != nil {
		return ioErr("failed to read back temp vault file", path, err)
	}
	if !bytes.Equal(written, data) {
		return errors.New(errors.CodeIO, "temp vault file verification failed", map[string]any{"path": path})
	}
	if _, xe := ParseFile(written); xe != nil {
		return errors.Wrap(errors.CodeIO, "temp vault file verification failed", map[string]any{"path": path}, xe)
	}

	if err := beforeRename(tmpPath); err != nil {
		return ioErr("interrupted before replacing vault", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return ioErr("failed to replace vault file", path, err)
	}
	committed = true
	if err := syncDir(dir); err != nil {
		return ioErr("failed to sync vault directory", path, err)
	}
	return nil
}

// ReadFile 读取并解析 path。文件不存在返回 CodeNotConfigured。
func ReadFile(path string) (*File, *errors.XError) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeNotConfigured, "vault file not found", map[string]any{"path": path})
		}
		return nil, ioErr("failed to read vault file", path, err)
	}
	f, xe := ParseFile(data)
	if xe != nil {
		if xe.Details == nil {
			xe.Details = map[string]any{}
		}
		xe.Details["path"] = path
		return nil, xe
	}
	return f, nil
}

// RemoveFile 删除 vault；文件不存在视为成功。
func RemoveFile(path string) *errors.XError {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return ioErr("failed to delete vault file", path, err)
	}
	return nil
}

// Exists 报告 path 上是否存在 vault 文件；无法判断时返回错误。
func Exists(path string) (bool, *errors.XError) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, ioErr("failed to stat vault file", path, err)
}

func ioErr(msg, path string, err error) *errors.XError {
	return errors.Wrap(errors.CodeIO, msg, map[string]any{"path": path}, err)
}
