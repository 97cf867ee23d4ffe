// Package keyring 封装操作系统原生凭据设施（macOS Keychain、Windows Credential Manager、
// Linux Secret Service），并在启动时探测其是否可用。
package keyring

import (
	stderrors "errors"
	"strings"

	gokeyring "github.com/zalando/go-keyring"
)

const (
	// ServiceName / Account 是 bundle 在 OS keyring 中的固定标识。
	ServiceName = "tume-email-client"
	Account     = "default"
)

// KeyringAPI 是对 OS keyring 的最小抽象，便于测试与跨平台。
// service 对应 keyring 的 service name，account 对应 user/account。
type KeyringAPI interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

// Default 返回基于 zalando/go-keyring 的实现。
// Get/Set/Delete 见 keyring_default.go / keyring_windows.go（按平台编译）。
func Default() KeyringAPI {
	return &osKeyring{}
}

type osKeyring struct{}

// IsNotFound 判断 err 是否表示条目不存在。
func IsNotFound(err error) bool {
	return stderrors.Is(err, gokeyring.ErrNotFound)
}

// stripNullBytes 去掉 Windows Credential Manager 在字符间插入的 null 字节（UTF-16 遗留问题）。
func stripNullBytes(v string) string {
	return strings.ReplaceAll(v, "\x00", "")
}
