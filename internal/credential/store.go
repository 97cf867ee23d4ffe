package credential

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/keyring"
	"github.com/tume-mail/tume/internal/log"
	"github.com/tume-mail/tume/internal/secret"
	"github.com/tume-mail/tume/internal/vault"
)

// State 是 Store 的生命周期状态。
type State string

const (
	StateUninitialized State = "uninitialized"
	StateNoCredentials State = "no_credentials"
	StateLocked        State = "locked"
	StateUnlocked      State = "unlocked"
)

const (
	DefaultMinPasswordLength = 8
	DefaultProbeTimeout      = 5 * time.Second
)

// Options 配置 Store。零值字段使用默认值；Keyring 为 nil 表示没有可用的 OS keyring。
type Options struct {
	Keyring           keyring.KeyringAPI
	VaultPath         string
	Params            vault.Params
	MinPasswordLength int
	Preference        keyring.Preference
	ProbeTimeout      time.Duration
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Params == (vault.Params{}) {
		o.Params = vault.DefaultParams()
	}
	if o.MinPasswordLength <= 0 {
		o.MinPasswordLength = DefaultMinPasswordLength
	}
	if o.Preference == "" {
		o.Preference = keyring.PreferAuto
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.Logger == nil {
		o.Logger = log.Discard()
	}
	return o
}

// Store 是凭据存储门面，由调用方显式持有（每个进程一个活动会话）。
// 所有方法互斥执行，可以在 UI 的工作 goroutine 中调用。
type Store struct {
	mu   sync.Mutex
	opts Options
	log  *slog.Logger

	sel   keyring.Selection
	state State

	// session 保存解锁后的明文 bundle（memguard enclave，内存中加密）。
	session *secret.Enclave
	// params 是当前 vault 文件的 KDF 参数；keyring 后端或尚未读取时为零值。
	params vault.Params
}

func New(opts Options) *Store {
	opts = opts.withDefaults()
	return &Store{opts: opts, log: opts.Logger, state: StateUninitialized}
}

// Open 选择后端并确定初始状态：keyring 中已有条目则直接 Unlocked；
// vault 文件存在则 Locked；否则 NoCredentials。
//
// 自动模式下 keyring 可用但没有条目、而磁盘上存在旧的 vault 时，本次会话继续使用文件后端，
// 以免之前保存的凭据变得不可达；用户可以通过 Migrate 迁移到 keyring。
func (s *Store) Open(ctx context.Context) *errors.XError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUninitialized {
		return errors.New(errors.CodeInvalidState, "credential store already opened", map[string]any{"state": string(s.state)})
	}

	pctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()
	sel, xe := keyring.Select(pctx, s.opts.Preference, s.opts.Keyring)
	if xe != nil {
		return xe
	}
	s.log.Debug("credential backend selected", "backend", string(sel.Backend), "reason", sel.Reason)

	switch sel.Backend {
	case keyring.BackendKeyring:
		gctx, gcancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
		found, xe := s.loadKeyring(gctx)
		gcancel()
		if xe != nil {
			if stderrors.Is(xe, keyring.ErrTimeout) {
				// 无法确定是否有条目：保持 Uninitialized
				return xe
			}
			s.sel = sel
			// 条目存在但不可读：进入 Locked，允许 Reset
			s.state = StateLocked
			return xe
		}
		if found {
			s.sel = sel
			s.state = StateUnlocked
			return nil
		}
		if s.opts.Preference == keyring.PreferAuto && s.opts.VaultPath != "" {
			if ok, _ := vault.Exists(s.opts.VaultPath); ok {
				sel = keyring.Selection{
					Backend: keyring.BackendFile,
					Reason:  "existing encrypted vault found; keyring available for migration",
				}
				s.log.Info("using existing vault file", "path", s.opts.VaultPath)
				s.sel = sel
				return s.openFile()
			}
		}
		s.sel = sel
		s.state = StateNoCredentials
		return nil
	case keyring.BackendFile:
		s.sel = sel
		return s.openFile()
	default:
		return errors.New(errors.CodeInternal, "unknown backend", map[string]any{"backend": string(sel.Backend)})
	}
}

// openFile 在文件后端下根据 vault 是否存在设置状态；文件损坏时仍进入 Locked 以便 Reset。
func (s *Store) openFile() *errors.XError {
	if s.opts.VaultPath == "" {
		return errors.New(errors.CodeCfgInvalid, "vault path is not configured", nil)
	}
	f, xe := vault.ReadFile(s.opts.VaultPath)
	if xe != nil {
		if xe.Code == errors.CodeNotConfigured {
			s.state = StateNoCredentials
			return nil
		}
		s.state = StateLocked
		return xe
	}
	s.params = f.Params
	s.state = StateLocked
	return nil
}

// loadKeyring 读取 keyring 条目并放入会话。条目不存在时返回 false。
func (s *Store) loadKeyring(ctx context.Context) (bool, *errors.XError) {
	v, err := keyring.GetContext(ctx, s.opts.Keyring, keyring.ServiceName, keyring.Account)
	if err != nil {
		if keyring.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(errors.CodeBackendUnavailable, "failed to read keyring entry", nil, err)
	}
	plain, xe := decodeKeyringValue(v)
	if xe != nil {
		return false, xe
	}
	defer plain.Destroy()
	if xe := s.startSession(plain.Bytes()); xe != nil {
		return false, xe
	}
	return true, nil
}

// startSession 校验明文可以解析为 bundle，然后把它的副本封存进 enclave。
func (s *Store) startSession(plain []byte) *errors.XError {
	b, xe := unmarshalBundle(plain)
	if xe != nil {
		return xe
	}
	b.Wipe()

	cp := make([]byte, len(plain))
	copy(cp, plain)
	s.session = secret.Seal(cp)
	return nil
}

func (s *Store) endSession() {
	// enclave 内容是密文，丢弃引用即可；明文只在 Open 期间出现
	s.session = nil
}

// ProbeResult 报告重新探测的结果与当前使用的后端是否一致。
type ProbeResult struct {
	Active   keyring.Selection `json:"active" yaml:"active"`
	Detected keyring.Selection `json:"detected" yaml:"detected"`
	Changed  bool              `json:"changed" yaml:"changed"`
	Note     string            `json:"note,omitempty" yaml:"note,omitempty"`
}

// ProbeBackend 重新探测 keyring，只报告可用性变化，不切换正在使用的后端。
func (s *Store) ProbeBackend(ctx context.Context) ProbeResult {
	pctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()
	detected := keyring.Probe(pctx, s.opts.Keyring)

	s.mu.Lock()
	active := s.sel
	s.mu.Unlock()

	res := ProbeResult{Active: active, Detected: detected}
	if active.Backend == "" {
		return res
	}
	if active.Backend != detected.Backend {
		res.Changed = true
		switch detected.Backend {
		case keyring.BackendKeyring:
			res.Note = "keyring became available; credentials remain in the encrypted file"
		case keyring.BackendFile:
			res.Note = "keyring is no longer available"
		}
	}
	return res
}

// IsConfigured 报告是否已有保存的凭据（Locked 或 Unlocked）。
func (s *Store) IsConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateLocked || s.state == StateUnlocked
}

// Selection 返回正在使用的后端。
func (s *Store) Selection() keyring.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel
}

// StatusInfo 是不含任何 secret 的状态快照。
type StatusInfo struct {
	Backend      keyring.Backend `json:"backend" yaml:"backend"`
	BackendLabel string          `json:"backend_label" yaml:"backend_label"`
	Reason       string          `json:"reason" yaml:"reason"`
	State        State           `json:"state" yaml:"state"`
	Configured   bool            `json:"configured" yaml:"configured"`
	VaultPath    string          `json:"vault_path,omitempty" yaml:"vault_path,omitempty"`
	KDF          *vault.Params   `json:"kdf,omitempty" yaml:"kdf,omitempty"`
}

func (s *Store) Status() StatusInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := StatusInfo{
		Backend:      s.sel.Backend,
		BackendLabel: s.sel.Backend.Label(),
		Reason:       s.sel.Reason,
		State:        s.state,
		Configured:   s.state == StateLocked || s.state == StateUnlocked,
	}
	if s.sel.Backend == keyring.BackendFile {
		st.VaultPath = s.opts.VaultPath
		if s.params != (vault.Params{}) {
			p := s.params
			st.KDF = &p
		}
	}
	return st
}

// Close 结束会话；可重复调用。之后 Store 回到 Uninitialized。
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endSession()
	s.state = StateUninitialized
	s.sel = keyring.Selection{}
	s.params = vault.Params{}
}
