package config

import (
	"time"

	"github.com/tume-mail/tume/internal/keyring"
	"github.com/tume-mail/tume/internal/vault"
)

// File 表示 tume.yaml 的配置结构。配置文件中不保存任何 secret。
// 约束：配置优先级为 CLI > ENV > Config > 默认值。
type File struct {
	Backend           string             `yaml:"backend,omitempty"`       // auto | keyring | file
	VaultPath         string             `yaml:"vault_path,omitempty"`    // 支持 ~/ 前缀
	ProbeTimeout      string             `yaml:"probe_timeout,omitempty"` // Go duration，例如 5s
	MinPasswordLength int                `yaml:"min_password_length,omitempty"`
	KDF               *vault.Params      `yaml:"kdf,omitempty"` // 新建 vault 时使用的参数
	Format            string             `yaml:"format,omitempty"`
	Accounts          map[string]Account `yaml:"accounts,omitempty"`
}

// Account 是账户的非敏感元数据；凭据本身在 credential store 中。
type Account struct {
	Name         string `yaml:"name" json:"name"`
	Email        string `yaml:"email" json:"email"`
	Provider     string `yaml:"provider" json:"provider"`
	Default      bool   `yaml:"default,omitempty" json:"default,omitempty"`
	Color        string `yaml:"color,omitempty" json:"color,omitempty"`
	DisplayOrder int    `yaml:"display_order,omitempty" json:"display_order,omitempty"`
}

type Resolved struct {
	ConfigPath        string
	Format            string
	Backend           keyring.Preference
	VaultPath         string
	ProbeTimeout      time.Duration
	MinPasswordLength int
	KDF               vault.Params
	Accounts          map[string]Account
}

type Options struct {
	// ConfigPath: 若非空，则只读取该文件（不存在报错）。
	ConfigPath string

	// CLI
	CLIFormat       string
	CLIFormatSet    bool
	CLIBackend      string
	CLIBackendSet   bool
	CLIVaultPath    string
	CLIVaultPathSet bool

	// ENV（由调用方注入，便于测试）
	EnvFormat    string
	EnvBackend   string
	EnvVaultPath string

	// HomeDir 用于默认路径计算（为空则自动探测）。
	HomeDir string

	// WorkDir 用于默认路径（为空则使用进程当前工作目录）。
	WorkDir string
}
