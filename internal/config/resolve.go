package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/keyring"
	"github.com/tume-mail/tume/internal/vault"
)

const (
	defaultProbeTimeout = 5 * time.Second
	// 配置只能提高主密码最小长度，不能低于该值。
	minPasswordFloor = 8
)

// DefaultVaultPath 返回 $HOME/.local/share/tume/credentials.vault。
func DefaultVaultPath(homeDir string) string {
	return filepath.Join(homeDir, ".local", "share", "tume", "credentials.vault")
}

// Resolve 合并配置：CLI > ENV > Config > 默认值，并校验取值。
func Resolve(opts Options) (Resolved, *errors.XError) {
	opts.fillDirs()

	// 1) 读取配置文件（如有）
	cfg, cfgPath, xe := LoadConfig(opts)
	if xe != nil {
		return Resolved{}, xe
	}
	detail := map[string]any{"path": cfgPath}

	// 2) format：--format > TUME_FORMAT > format > auto
	format := pick("auto", cfg.Format, opts.EnvFormat, opts.CLIFormat, opts.CLIFormatSet)

	// 3) backend：--backend > TUME_BACKEND > backend > auto
	backend := keyring.Preference(pick(string(keyring.PreferAuto), cfg.Backend, opts.EnvBackend, opts.CLIBackend, opts.CLIBackendSet))
	switch backend {
	case keyring.PreferAuto, keyring.PreferKeyring, keyring.PreferFile:
	default:
		return Resolved{}, errors.New(errors.CodeCfgInvalid, "backend must be auto, keyring or file", map[string]any{"path": cfgPath, "backend": string(backend)})
	}

	// 4) vault 路径：--vault-path > TUME_VAULT_PATH > vault_path > 默认
	vaultPath := pick("", cfg.VaultPath, opts.EnvVaultPath, opts.CLIVaultPath, opts.CLIVaultPathSet)
	if vaultPath == "" {
		if opts.HomeDir == "" {
			return Resolved{}, errors.New(errors.CodeCfgInvalid, "cannot determine home directory for vault path", detail)
		}
		vaultPath = DefaultVaultPath(opts.HomeDir)
	}
	vaultPath = expandPath(vaultPath, opts.HomeDir, opts.WorkDir)

	// 5) 其余只来自配置文件
	timeout := defaultProbeTimeout
	if cfg.ProbeTimeout != "" {
		d, err := time.ParseDuration(cfg.ProbeTimeout)
		if err != nil || d <= 0 {
			return Resolved{}, errors.Wrap(errors.CodeCfgInvalid, "invalid probe_timeout", map[string]any{"path": cfgPath, "probe_timeout": cfg.ProbeTimeout}, err)
		}
		timeout = d
	}

	minLen := minPasswordFloor
	if cfg.MinPasswordLength != 0 {
		if cfg.MinPasswordLength < minPasswordFloor {
			return Resolved{}, errors.New(errors.CodeCfgInvalid, "min_password_length must be at least 8", map[string]any{"path": cfgPath, "min_password_length": cfg.MinPasswordLength})
		}
		minLen = cfg.MinPasswordLength
	}

	params := vault.DefaultParams()
	if cfg.KDF != nil {
		if xe := cfg.KDF.Validate(); xe != nil {
			return Resolved{}, errors.Wrap(errors.CodeCfgInvalid, "invalid kdf parameters", map[string]any{"path": cfgPath}, xe)
		}
		params = *cfg.KDF
	}

	if n := countDefaults(cfg.Accounts); n > 1 {
		return Resolved{}, errors.New(errors.CodeCfgInvalid, "only one account may be marked default", map[string]any{"path": cfgPath, "defaults": n})
	}

	return Resolved{
		ConfigPath:        cfgPath,
		Format:            format,
		Backend:           backend,
		VaultPath:         vaultPath,
		ProbeTimeout:      timeout,
		MinPasswordLength: minLen,
		KDF:               params,
		Accounts:          cfg.Accounts,
	}, nil
}

// pick 按 CLI > ENV > Config > def 选择第一个非空值。
func pick(def, cfgVal, envVal, cliVal string, cliSet bool) string {
	v := def
	if cfgVal != "" {
		v = cfgVal
	}
	if envVal != "" {
		v = envVal
	}
	if cliSet {
		v = cliVal
	}
	return v
}

func expandPath(p, homeDir, workDir string) string {
	if p == "~" {
		return homeDir
	}
	if strings.HasPrefix(p, "~/") {
		p = filepath.Join(homeDir, p[2:])
	}
	if !filepath.IsAbs(p) && workDir != "" {
		p = filepath.Join(workDir, p)
	}
	return filepath.Clean(p)
}

func countDefaults(accounts map[string]Account) int {
	n := 0
	for _, a := range accounts {
		if a.Default {
			n++
		}
	}
	return n
}
