package keyring

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/google/uuid"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/tume-mail/tume/internal/errors"
)

// Backend 是凭据存储后端的标签，仅在运行时计算，不持久化。
type Backend string

const (
	BackendKeyring Backend = "keyring"
	BackendFile    Backend = "file"
)

// Label 返回面向用户的名称。
func (b Backend) Label() string {
	switch b {
	case BackendKeyring:
		return "System Keyring"
	case BackendFile:
		return "Encrypted File"
	default:
		return string(b)
	}
}

// Preference 是配置中的后端偏好。
type Preference string

const (
	PreferAuto    Preference = "auto"
	PreferKeyring Preference = "keyring"
	PreferFile    Preference = "file"
)

// Selection 是探测结果：选中的后端以及展示给用户的原因。
type Selection struct {
	Backend Backend `json:"backend" yaml:"backend"`
	Reason  string  `json:"reason" yaml:"reason"`
}

// probePrefix 是保留给探测哨兵条目的 account 前缀；每次探测追加随机后缀，避免多进程互相干扰。
const probePrefix = "probe-"

// Probe 对 OS keyring 做一次 写→读→删 往返。成功选择 BackendKeyring；
// 任何失败（设施缺失、权限拒绝、无 Secret Service、超时）都回退到 BackendFile 并附带原因。
// 不会返回错误：keyring 不可用是预期情况。
func Probe(ctx context.Context, kr KeyringAPI) Selection {
	if kr == nil {
		return Selection{Backend: BackendFile, Reason: "keyring unavailable: no keyring implementation"}
	}
	account := probePrefix + uuid.NewString()
	value := uuid.NewString()

	err := withDeadline(ctx, func() error {
		return roundTrip(kr, account, value)
	})
	switch {
	case stderrors.Is(err, ErrTimeout):
		return Selection{Backend: BackendFile, Reason: "keyring unavailable: probe timed out"}
	case err != nil:
		return Selection{Backend: BackendFile, Reason: "keyring unavailable: " + describe(err)}
	}
	return Selection{Backend: BackendKeyring, Reason: "keyring available"}
}

// ErrTimeout 表示 OS keyring 调用没有在 ctx 结束前返回。
var ErrTimeout = stderrors.New("keyring call timed out")

// withDeadline 在后台 goroutine 中执行 fn；ctx 结束时立即返回 ErrTimeout，
// 卡住的调用留在后台，结果被丢弃。
func withDeadline(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrTimeout
	}
}

// GetContext 与 kr.Get 相同，但受 ctx 期限约束。
func GetContext(ctx context.Context, kr KeyringAPI, service, account string) (string, error) {
	type result struct {
		v   string
		err error
	}
	out := make(chan result, 1)
	err := withDeadline(ctx, func() error {
		v, err := kr.Get(service, account)
		out <- result{v, err}
		return err
	})
	if stderrors.Is(err, ErrTimeout) {
		return "", err
	}
	r := <-out
	return r.v, r.err
}

func roundTrip(kr KeyringAPI, account, value string) error {
	if err := kr.Set(ServiceName, account, value); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	got, err := kr.Get(ServiceName, account)
	if err != nil {
		_ = kr.Delete(ServiceName, account)
		return fmt.Errorf("read back: %w", err)
	}
	if got != value {
		_ = kr.Delete(ServiceName, account)
		return stderrors.New("read back: value mismatch")
	}
	if err := kr.Delete(ServiceName, account); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func describe(err error) string {
	if stderrors.Is(err, gokeyring.ErrUnsupportedPlatform) {
		return "not supported on this platform"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "unknown error"
}

// Select 依据偏好选择后端。auto 时探测；file 时不触碰 keyring；
// keyring 时探测失败返回 CodeBackendUnavailable。
func Select(ctx context.Context, pref Preference, kr KeyringAPI) (Selection, *errors.XError) {
	switch pref {
	case PreferAuto, "":
		return Probe(ctx, kr), nil
	case PreferFile:
		return Selection{Backend: BackendFile, Reason: "encrypted file backend selected by configuration"}, nil
	case PreferKeyring:
		sel := Probe(ctx, kr)
		if sel.Backend != BackendKeyring {
			return sel, errors.New(errors.CodeBackendUnavailable, "keyring backend requested but unavailable", map[string]any{"reason": sel.Reason})
		}
		sel.Reason = "keyring backend selected by configuration"
		return sel, nil
	default:
		return Selection{}, errors.New(errors.CodeCfgInvalid, "invalid backend preference", map[string]any{"backend": string(pref)})
	}
}
