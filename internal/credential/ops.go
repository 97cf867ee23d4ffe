package credential

import (
	"context"
	"crypto/subtle"
	"fmt"
	"unicode/utf8"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/keyring"
	"github.com/tume-mail/tume/internal/secret"
	"github.com/tume-mail/tume/internal/vault"
)

// ValidateMasterPassword 检查新主密码的长度与两次输入是否一致。
func ValidateMasterPassword(password, confirm []byte, minLen int) *errors.XError {
	if xe := checkPasswordPolicy(password, minLen); xe != nil {
		return xe
	}
	if len(password) != len(confirm) || subtle.ConstantTimeCompare(password, confirm) != 1 {
		return errors.New(errors.CodePasswordPolicy, "passwords do not match", nil)
	}
	return nil
}

func checkPasswordPolicy(password []byte, minLen int) *errors.XError {
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}
	if len(password) == 0 {
		return errors.New(errors.CodePasswordPolicy, "master password is required", nil)
	}
	if utf8.RuneCount(password) < minLen {
		return errors.New(errors.CodePasswordPolicy, fmt.Sprintf("master password must be at least %d characters", minLen),
			map[string]any{"min_length": minLen})
	}
	return nil
}

func (s *Store) stateErr(op string) *errors.XError {
	switch s.state {
	case StateUninitialized:
		return errors.New(errors.CodeInvalidState, "credential store is not open", map[string]any{"op": op})
	case StateNoCredentials:
		return errors.New(errors.CodeNotConfigured, "no credentials configured", map[string]any{"op": op})
	default:
		return errors.New(errors.CodeInvalidState, fmt.Sprintf("cannot %s while %s", op, s.state), map[string]any{"op": op, "state": string(s.state)})
	}
}

// Setup 保存第一份 bundle：NoCredentials → Unlocked。
// keyring 后端忽略 masterPassword；文件后端要求主密码满足最小长度。
// b 与 masterPassword 仍归调用方所有，由调用方擦除。
func (s *Store) Setup(b *Bundle, masterPassword []byte) *errors.XError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNoCredentials {
		return s.stateErr("setup")
	}
	plain, xe := marshalBundle(b)
	if xe != nil {
		return xe
	}
	defer plain.Destroy()

	switch s.sel.Backend {
	case keyring.BackendKeyring:
		if xe := s.saveKeyring(plain); xe != nil {
			return xe
		}
	case keyring.BackendFile:
		if xe := checkPasswordPolicy(masterPassword, s.opts.MinPasswordLength); xe != nil {
			return xe
		}
		if xe := s.saveFile(plain, masterPassword); xe != nil {
			return xe
		}
	}
	if xe := s.startSession(plain.Bytes()); xe != nil {
		return xe
	}
	s.state = StateUnlocked
	s.log.Info("credentials saved", "backend", string(s.sel.Backend))
	return nil
}

func (s *Store) saveKeyring(plain *secret.Buffer) *errors.XError {
	if s.opts.Keyring == nil {
		return errors.New(errors.CodeBackendUnavailable, "keyring is not available", nil)
	}
	if err := s.opts.Keyring.Set(keyring.ServiceName, keyring.Account, encodeKeyringValue(plain)); err != nil {
		return errors.Wrap(errors.CodeBackendUnavailable, "failed to write keyring entry", nil, err)
	}
	return nil
}

// saveFile 以当前默认参数和新 salt 加密并原子写入 vault。
func (s *Store) saveFile(plain *secret.Buffer, masterPassword []byte) *errors.XError {
	if s.opts.VaultPath == "" {
		return errors.New(errors.CodeCfgInvalid, "vault path is not configured", nil)
	}
	f, xe := vault.Seal(plain.Bytes(), masterPassword, s.opts.Params)
	if xe != nil {
		return xe
	}
	if xe := vault.WriteFile(s.opts.VaultPath, f); xe != nil {
		return xe
	}
	s.params = f.Params
	return nil
}

// readFile 读取 vault 并用主密码解密出明文。
func (s *Store) readFile(masterPassword []byte) (*secret.Buffer, *vault.File, *errors.XError) {
	f, xe := vault.ReadFile(s.opts.VaultPath)
	if xe != nil {
		return nil, nil, xe
	}
	plain, xe := vault.Open(f, masterPassword)
	if xe != nil {
		return nil, nil, xe
	}
	return plain, f, nil
}

// Unlock 用主密码解密 vault：Locked → Unlocked。
// 认证失败时保持 Locked，vault 不受影响，可以重试。
func (s *Store) Unlock(masterPassword []byte) *errors.XError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel.Backend == keyring.BackendKeyring {
		return errors.New(errors.CodeInvalidState, "keyring backend does not use a master password", nil)
	}
	if s.state != StateLocked {
		return s.stateErr("unlock")
	}
	plain, f, xe := s.readFile(masterPassword)
	if xe != nil {
		s.log.Debug("unlock failed", "code", string(xe.Code))
		return xe
	}
	defer plain.Destroy()
	if xe := s.startSession(plain.Bytes()); xe != nil {
		return xe
	}
	s.params = f.Params
	s.state = StateUnlocked
	s.log.Info("vault unlocked")
	return nil
}

// WithBundle 以只读借用的方式提供解锁后的 bundle：明文只在 fn 执行期间存在于受保护内存中，
// fn 返回后立即擦除。fn 不得保留 bundle 或其字段，也不得回调 Store。
func (s *Store) WithBundle(fn func(*Bundle) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnlocked {
		return s.stateErr("read credentials")
	}
	buf, xe := s.session.Open()
	if xe != nil {
		return xe
	}
	defer buf.Destroy()
	b, xe := unmarshalBundle(buf.Bytes())
	if xe != nil {
		return xe
	}
	defer b.Wipe()
	return fn(b)
}

// Reset 删除已保存的凭据并结束会话：Locked|Unlocked → NoCredentials。
// Locked 也允许，以便从损坏或忘记密码的 vault 中恢复。
func (s *Store) Reset() *errors.XError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUninitialized {
		return s.stateErr("reset")
	}
	switch s.sel.Backend {
	case keyring.BackendKeyring:
		if xe := s.deleteKeyring(); xe != nil {
			return xe
		}
	case keyring.BackendFile:
		if xe := vault.RemoveFile(s.opts.VaultPath); xe != nil {
			return xe
		}
	}
	s.endSession()
	s.params = vault.Params{}
	s.state = StateNoCredentials
	s.log.Info("credentials reset", "backend", string(s.sel.Backend))
	return nil
}

func (s *Store) deleteKeyring() *errors.XError {
	if s.opts.Keyring == nil {
		return nil
	}
	if err := s.opts.Keyring.Delete(keyring.ServiceName, keyring.Account); err != nil && !keyring.IsNotFound(err) {
		return errors.Wrap(errors.CodeBackendUnavailable, "failed to delete keyring entry", nil, err)
	}
	return nil
}

// Lock 丢弃会话中的明文：文件后端 Unlocked → Locked。
func (s *Store) Lock() *errors.XError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel.Backend != keyring.BackendFile || s.state != StateUnlocked {
		return s.stateErr("lock")
	}
	s.endSession()
	s.state = StateLocked
	return nil
}

// ChangeMasterPassword 用旧密码解密后，以新密码、新 salt 和当前默认 KDF 参数重新加密整个 vault。
// 这是升级 KDF 参数的唯一途径。
func (s *Store) ChangeMasterPassword(oldPassword, newPassword []byte) *errors.XError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sel.Backend != keyring.BackendFile {
		return errors.New(errors.CodeInvalidState, "keyring backend does not use a master password", nil)
	}
	if s.state != StateLocked && s.state != StateUnlocked {
		return s.stateErr("change master password")
	}
	if xe := checkPasswordPolicy(newPassword, s.opts.MinPasswordLength); xe != nil {
		return xe
	}
	plain, _, xe := s.readFile(oldPassword)
	if xe != nil {
		return xe
	}
	defer plain.Destroy()
	if xe := s.saveFile(plain, newPassword); xe != nil {
		return xe
	}
	if xe := s.startSession(plain.Bytes()); xe != nil {
		return xe
	}
	s.state = StateUnlocked
	s.log.Info("master password changed")
	return nil
}

// Migrate 把已解锁的 bundle 移到另一个后端：先写入目标，成功后再删除来源。
// 迁移到文件后端时 newMasterPassword 必须满足密码策略；迁移到 keyring 时忽略。
func (s *Store) Migrate(ctx context.Context, target keyring.Backend, newMasterPassword []byte) *errors.XError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnlocked {
		return s.stateErr("migrate")
	}
	if target == s.sel.Backend {
		return errors.New(errors.CodeInvalidState, "credentials already use this backend", map[string]any{"backend": string(target)})
	}

	buf, xe := s.session.Open()
	if xe != nil {
		return xe
	}
	defer buf.Destroy()

	var next keyring.Selection
	switch target {
	case keyring.BackendKeyring:
		pctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
		next = keyring.Probe(pctx, s.opts.Keyring)
		cancel()
		if next.Backend != keyring.BackendKeyring {
			return errors.New(errors.CodeBackendUnavailable, "keyring backend is unavailable", map[string]any{"reason": next.Reason})
		}
		if xe := s.saveKeyring(buf); xe != nil {
			return xe
		}
		next.Reason = "migrated to keyring"
	case keyring.BackendFile:
		if xe := checkPasswordPolicy(newMasterPassword, s.opts.MinPasswordLength); xe != nil {
			return xe
		}
		if xe := s.saveFile(buf, newMasterPassword); xe != nil {
			return xe
		}
		next = keyring.Selection{Backend: keyring.BackendFile, Reason: "migrated to encrypted file"}
	default:
		return errors.New(errors.CodeCfgInvalid, "unknown backend", map[string]any{"backend": string(target)})
	}

	source := s.sel.Backend
	s.sel = next
	if target == keyring.BackendKeyring {
		s.params = vault.Params{}
	}
	s.log.Info("credentials migrated", "from", string(source), "to", string(target))

	// 目标已写入；来源删除失败时新后端照常生效，但要把残留报告给调用方
	var cleanup *errors.XError
	switch source {
	case keyring.BackendKeyring:
		cleanup = s.deleteKeyring()
	case keyring.BackendFile:
		cleanup = vault.RemoveFile(s.opts.VaultPath)
	}
	if cleanup != nil {
		if cleanup.Details == nil {
			cleanup.Details = map[string]any{}
		}
		cleanup.Details["migrated"] = true
		cleanup.Details["stale_backend"] = string(source)
		return cleanup
	}
	return nil
}
