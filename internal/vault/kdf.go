// Package vault 实现加密文件后端：Argon2id 密钥派生、XChaCha20-Poly1305 认证加密、
// 版本化的二进制文件格式，以及原子替换写入。
//
// 本包不做任何恢复决策：所有失败都以带错误码的 *errors.XError 返回给上层。
package vault

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/secret"
)

const (
	// KeySize 与 XChaCha20-Poly1305 的密钥长度一致。
	KeySize = chacha20poly1305.KeySize
	// SaltSize 是 KDF salt 的固定长度。
	SaltSize = 16
)

// 解锁时可接受的参数上限。参数在认证之前就被使用，上限必须让被篡改的文件头
// 只能导致一次有界的派生，而不是巨量内存分配。
const (
	maxTime    = 16
	maxMemory  = 1024 * 1024 // KiB，即 1 GiB
	maxThreads = 255
)

// Params 是 Argon2id 代价参数。创建 vault 时选定并随文件持久化，之后每次解锁原样复用。
type Params struct {
	Time      uint32 `json:"time" yaml:"time"`
	MemoryKiB uint32 `json:"memory_kib" yaml:"memory_kib"`
	Threads   uint8  `json:"threads" yaml:"threads"`
}

// DefaultParams 用于新建 vault。
func DefaultParams() Params {
	return Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}
}

// Validate 拒绝为零或超出上限的参数。
func (p Params) Validate() *errors.XError {
	if p.Time == 0 || p.MemoryKiB == 0 || p.Threads == 0 {
		return errors.New(errors.CodeVaultFormat, "kdf parameters must be non-zero", p.details())
	}
	if p.Time > maxTime || p.MemoryKiB > maxMemory {
		return errors.New(errors.CodeVaultFormat, "kdf parameters out of range", p.details())
	}
	// argon2 要求 memory >= 8*threads KiB
	if p.MemoryKiB < 8*uint32(p.Threads) {
		return errors.New(errors.CodeVaultFormat, "kdf memory too small for parallelism", p.details())
	}
	return nil
}

func (p Params) details() map[string]any {
	return map[string]any{"time": p.Time, "memory_kib": p.MemoryKiB, "threads": p.Threads}
}

// NewSalt 生成随机 salt。
func NewSalt() ([]byte, *errors.XError) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to generate salt", nil, err)
	}
	return salt, nil
}

// DeriveKey 由主密码、salt 与参数派生 KeySize 字节的密钥。相同输入必然得到相同密钥。
// 返回的 Buffer 由调用方 Destroy。
func DeriveKey(password, salt []byte, p Params) (*secret.Buffer, *errors.XError) {
	if len(password) == 0 {
		return nil, errors.New(errors.CodePasswordPolicy, "master password is empty", nil)
	}
	if len(salt) != SaltSize {
		return nil, errors.New(errors.CodeVaultFormat, "invalid salt length", map[string]any{"length": len(salt)})
	}
	if xe := p.Validate(); xe != nil {
		return nil, xe
	}
	key := argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, KeySize)
	// FromBytes 会覆写 argon2 返回的堆上切片
	return secret.FromBytes(key), nil
}
