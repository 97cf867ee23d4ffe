package secret

import (
	"github.com/awnumar/memguard"

	"github.com/tume-mail/tume/internal/errors"
)

// Enclave 在内存中以加密形式保存一段 secret；只有 Open 期间才以明文出现。
// 用于会话期间长期持有的解密后 bundle。
type Enclave struct {
	e *memguard.Enclave
}

// Seal 把 src 加密存入 Enclave 并覆写 src。src 为空时返回 nil。
func Seal(src []byte) *Enclave {
	if len(src) == 0 {
		return nil
	}
	return &Enclave{e: memguard.NewEnclave(src)}
}

// SealBuffer 把 Buffer 的内容封存进 Enclave 并销毁 Buffer。
func SealBuffer(b *Buffer) *Enclave {
	if !b.Alive() {
		return nil
	}
	defer b.Destroy()
	cp := make([]byte, b.Len())
	copy(cp, b.Bytes())
	return Seal(cp)
}

// Open 解密到一个新的只读 Buffer；调用方必须 Destroy。
func (e *Enclave) Open() (*Buffer, *errors.XError) {
	if e == nil || e.e == nil {
		return nil, errors.New(errors.CodeInternal, "enclave is empty", nil)
	}
	lb, err := e.e.Open()
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to open enclave", nil, err)
	}
	return &Buffer{lb: lb}, nil
}

func (e *Enclave) Size() int {
	if e == nil || e.e == nil {
		return 0
	}
	return e.e.Size()
}
