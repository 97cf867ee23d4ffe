// Package secret 管理进程内明文 secret 的生命周期：主密码、派生密钥、解密后的凭据。
//
// 所有持有明文的内存都必须放在 Buffer/Enclave 中，或登记到 Scope，
// 以保证正常返回、提前返回、错误返回各路径上都会被覆写为零。
package secret

import (
	"github.com/awnumar/memguard"
)

// Buffer 是一段受保护的明文内存（mlock + guard page），Destroy 时覆写为零。
// nil *Buffer 可安全调用所有方法。
type Buffer struct {
	lb *memguard.LockedBuffer
}

// NewBuffer 分配 size 字节的可写 Buffer。
func NewBuffer(size int) *Buffer {
	if size < 1 {
		return &Buffer{}
	}
	return &Buffer{lb: memguard.NewBuffer(size)}
}

// FromBytes 将 src 移入只读 Buffer，并把 src 覆写为零。
func FromBytes(src []byte) *Buffer {
	if len(src) == 0 {
		return &Buffer{}
	}
	return &Buffer{lb: memguard.NewBufferFromBytes(src)}
}

// Bytes 返回底层内存；Destroy 之后返回 nil。调用方不得在 Buffer 生命周期之外持有该切片。
func (b *Buffer) Bytes() []byte {
	if b == nil || b.lb == nil || !b.lb.IsAlive() {
		return nil
	}
	return b.lb.Bytes()
}

func (b *Buffer) Len() int {
	return len(b.Bytes())
}

// Alive 报告 Buffer 是否仍持有数据。
func (b *Buffer) Alive() bool {
	return b != nil && b.lb != nil && b.lb.IsAlive()
}

// Destroy 覆写并释放内存；幂等。
func (b *Buffer) Destroy() {
	if b == nil || b.lb == nil {
		return
	}
	b.lb.Destroy()
}

// Wipe 将每个切片覆写为零。
func Wipe(bs ...[]byte) {
	for _, p := range bs {
		memguard.WipeBytes(p)
	}
}

// CatchInterrupt 在 SIGINT/SIGTERM 时擦除所有受保护内存后退出。
func CatchInterrupt() {
	memguard.CatchInterrupt()
}

// Purge 擦除进程内所有 memguard 管理的内存，进程退出前调用。
func Purge() {
	memguard.Purge()
}
