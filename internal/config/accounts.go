package config

import (
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tume-mail/tume/internal/errors"
)

// SaveAccount 把账户元数据写入 path（不存在则创建）。acct.Default 为真时清除其它账户的 default 标记。
// 使用同目录临时文件 + rename，写入中断不会留下半个配置文件。
func SaveAccount(path, id string, acct Account) *errors.XError {
	if id == "" {
		return errors.New(errors.CodeCfgInvalid, "account id is required", nil)
	}
	f, xe := readFile(path)
	if xe != nil {
		if xe.Code != errors.CodeCfgNotFound {
			return xe
		}
		f = File{Accounts: map[string]Account{}}
	}
	if acct.Default {
		for k, a := range f.Accounts {
			a.Default = false
			f.Accounts[k] = a
		}
	}
	if len(f.Accounts) == 0 {
		acct.Default = true
	}
	f.Accounts[id] = acct
	return writeFile(path, f)
}

// DefaultAccount 返回标记为 default 的账户；没有标记时按 display_order、ID 取第一个。
func DefaultAccount(accounts map[string]Account) (string, Account, bool) {
	if len(accounts) == 0 {
		return "", Account{}, false
	}
	ids := make([]string, 0, len(accounts))
	for id, a := range accounts {
		if a.Default {
			return id, a, true
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ai, aj := accounts[ids[i]], accounts[ids[j]]
		if ai.DisplayOrder != aj.DisplayOrder {
			return ai.DisplayOrder < aj.DisplayOrder
		}
		return ids[i] < ids[j]
	})
	return ids[0], accounts[ids[0]], true
}

func writeFile(path string, f File) *errors.XError {
	data, err := yaml.Marshal(f)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to encode config", nil, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(errors.CodeIO, "failed to create config directory", map[string]any{"path": path}, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return errors.Wrap(errors.CodeIO, "failed to write config", map[string]any{"path": path}, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.CodeIO, "failed to write config", map[string]any{"path": path}, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.CodeIO, "failed to sync config", map[string]any{"path": path}, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.CodeIO, "failed to write config", map[string]any{"path": path}, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.Wrap(errors.CodeIO, "failed to replace config", map[string]any{"path": path}, err)
	}
	return nil
}
