// Package credential 是凭据存储的门面：在 OS keyring 与加密文件之间选择后端，
// 管理 bundle 的创建、解锁、读取与重置，并保证明文只以可擦除的形式短暂存在于内存中。
package credential

import (
	"crypto/subtle"
	"math"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/secret"
)

// Bundle 是一个邮件账户的全部 secret。文本字段使用 []byte 以便原地擦除。
type Bundle struct {
	IMAPHost     []byte
	IMAPPort     uint16
	IMAPUser     []byte
	IMAPPassword []byte
	SMTPHost     []byte
	SMTPPort     uint16
	SMTPUser     []byte
	SMTPPassword []byte

	// backing 非空时，文本字段是它的子切片（解码得到的 bundle 位于受保护内存中）。
	backing *secret.Buffer
}

func (b *Bundle) texts() [][]byte {
	return [][]byte{b.IMAPHost, b.IMAPUser, b.IMAPPassword, b.SMTPHost, b.SMTPUser, b.SMTPPassword}
}

// Wipe 把所有文本字段覆写为零并清空引用；nil 安全，可重复调用。
func (b *Bundle) Wipe() {
	if b == nil {
		return
	}
	secret.Wipe(b.texts()...)
	b.backing.Destroy()
	*b = Bundle{}
}

// Clone 返回独立的深拷贝，拷贝需要单独 Wipe。
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	return &Bundle{
		IMAPHost:     dup(b.IMAPHost),
		IMAPPort:     b.IMAPPort,
		IMAPUser:     dup(b.IMAPUser),
		IMAPPassword: dup(b.IMAPPassword),
		SMTPHost:     dup(b.SMTPHost),
		SMTPPort:     b.SMTPPort,
		SMTPUser:     dup(b.SMTPUser),
		SMTPPassword: dup(b.SMTPPassword),
	}
}

// Validate 要求主机与用户名非空、端口非零。密码允许为空（部分 bridge 不需要）。
func (b *Bundle) Validate() *errors.XError {
	if b == nil {
		return errors.New(errors.CodeCfgInvalid, "credential bundle is empty", nil)
	}
	var missing []string
	check := func(name string, ok bool) {
		if !ok {
			missing = append(missing, name)
		}
	}
	check("imap_host", len(b.IMAPHost) > 0)
	check("imap_port", b.IMAPPort != 0)
	check("imap_user", len(b.IMAPUser) > 0)
	check("smtp_host", len(b.SMTPHost) > 0)
	check("smtp_port", b.SMTPPort != 0)
	check("smtp_user", len(b.SMTPUser) > 0)
	if len(missing) > 0 {
		return errors.New(errors.CodeCfgInvalid, "credential bundle is incomplete", map[string]any{"missing": missing})
	}
	for _, f := range b.texts() {
		if len(f) > math.MaxUint16 {
			return errors.New(errors.CodeCfgInvalid, "credential field too long", map[string]any{"max": math.MaxUint16})
		}
	}
	return nil
}

// Equal 以常量时间比较每个字段。
func (b *Bundle) Equal(o *Bundle) bool {
	if b == nil || o == nil {
		return b == o
	}
	eq := subtle.ConstantTimeEq(int32(b.IMAPPort), int32(o.IMAPPort)) &
		subtle.ConstantTimeEq(int32(b.SMTPPort), int32(o.SMTPPort))
	x, y := b.texts(), o.texts()
	for i := range x {
		eq &= constantTimeEqual(x[i], y[i])
	}
	return eq == 1
}

func constantTimeEqual(a, b []byte) int {
	if len(a) != len(b) {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	return subtle.ConstantTimeCompare(a, b)
}

// Summary 是可以展示的 bundle 视图：密码只显示是否已设置。
type Summary struct {
	IMAPHost     string `json:"imap_host" yaml:"imap_host"`
	IMAPPort     uint16 `json:"imap_port" yaml:"imap_port"`
	IMAPUser     string `json:"imap_user" yaml:"imap_user"`
	IMAPPassword string `json:"imap_password" yaml:"imap_password"`
	SMTPHost     string `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort     uint16 `json:"smtp_port" yaml:"smtp_port"`
	SMTPUser     string `json:"smtp_user" yaml:"smtp_user"`
	SMTPPassword string `json:"smtp_password" yaml:"smtp_password"`
}

const redacted = "********"

// Summarize 返回脱敏视图。主机与用户名不属于 secret，可以转成 string。
func (b *Bundle) Summarize() Summary {
	if b == nil {
		return Summary{}
	}
	mask := func(p []byte) string {
		if len(p) == 0 {
			return ""
		}
		return redacted
	}
	return Summary{
		IMAPHost:     string(b.IMAPHost),
		IMAPPort:     b.IMAPPort,
		IMAPUser:     string(b.IMAPUser),
		IMAPPassword: mask(b.IMAPPassword),
		SMTPHost:     string(b.SMTPHost),
		SMTPPort:     b.SMTPPort,
		SMTPUser:     string(b.SMTPUser),
		SMTPPassword: mask(b.SMTPPassword),
	}
}

func dup(p []byte) []byte {
	if p == nil {
		return nil
	}
	return append([]byte(nil), p...)
}
