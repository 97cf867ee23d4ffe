package app

import (
	"context"
	"log/slog"

	"github.com/tume-mail/tume/internal/config"
	"github.com/tume-mail/tume/internal/credential"
	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/keyring"
)

// StoreOptions 描述从已解析配置构造凭据存储所需的依赖。
type StoreOptions struct {
	Config  config.Resolved
	Keyring keyring.KeyringAPI
	Logger  *slog.Logger
}

// NewStore 按配置构造未打开的 Store。
func NewStore(opts StoreOptions) *credential.Store {
	return credential.New(credential.Options{
		Keyring:           opts.Keyring,
		VaultPath:         opts.Config.VaultPath,
		Params:            opts.Config.KDF,
		MinPasswordLength: opts.Config.MinPasswordLength,
		Preference:        opts.Config.Backend,
		ProbeTimeout:      opts.Config.ProbeTimeout,
		Logger:            opts.Logger,
	})
}

// OpenStore 构造并打开 Store。
// 打开失败但状态已确定（例如 vault 损坏进入 Locked）时仍返回 Store，便于调用方执行 reset。
func OpenStore(ctx context.Context, opts StoreOptions) (*credential.Store, *errors.XError) {
	s := NewStore(opts)
	if xe := s.Open(ctx); xe != nil {
		if s.Status().State == credential.StateUninitialized {
			return nil, xe
		}
		return s, xe
	}
	return s, nil
}

// ParseBackend 校验迁移目标；auto 在此处无意义。
func ParseBackend(s string) (keyring.Backend, *errors.XError) {
	switch keyring.Backend(s) {
	case keyring.BackendKeyring, keyring.BackendFile:
		return keyring.Backend(s), nil
	default:
		return "", errors.New(errors.CodeCfgInvalid, "invalid backend", map[string]any{"backend": s, "allowed": []string{string(keyring.BackendKeyring), string(keyring.BackendFile)}})
	}
}
