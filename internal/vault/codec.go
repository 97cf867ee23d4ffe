package vault

import (
	"bytes"
	"encoding/binary"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/secret"
)

// 文件布局（大端）：
//
//	magic "TUMV" | version u16 | kdf u8 | time u32 | memory u32 | threads u8 |
//	saltLen u8 | salt | nonceLen u8 | nonce | ctLen u32 | ciphertext | tag
//
// magic 到 salt 为止的头部作为 AEAD 附加数据参与认证；nonce 由 AEAD 本身约束。
const (
	magic = "TUMV"

	// Version 是当前唯一支持的格式版本；未知版本直接拒绝，不做尽力解析。
	Version uint16 = 1

	kdfArgon2id uint8 = 1

	// 单个 bundle 远小于此值，超出视为损坏。
	maxCiphertext = 1 << 20
)

// File 是加密文件后端在磁盘上的表示。除主密码外，解密所需的一切都与密文放在一起。
type File struct {
	Version    uint16
	Params     Params
	Salt       []byte
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// aad 返回参与认证的头部。
func (f *File) aad() []byte {
	var b bytes.Buffer
	b.WriteString(magic)
	_ = binary.Write(&b, binary.BigEndian, f.Version)
	b.WriteByte(kdfArgon2id)
	_ = binary.Write(&b, binary.BigEndian, f.Params.Time)
	_ = binary.Write(&b, binary.BigEndian, f.Params.MemoryKiB)
	b.WriteByte(f.Params.Threads)
	b.WriteByte(byte(len(f.Salt)))
	b.Write(f.Salt)
	return b.Bytes()
}

// MarshalBinary 序列化为磁盘格式。
func (f *File) MarshalBinary() ([]byte, error) {
	if len(f.Salt) > 255 || len(f.Nonce) > 255 || len(f.Ciphertext) > maxCiphertext {
		return nil, errors.New(errors.CodeInternal, "vault fields exceed format limits", nil)
	}
	var b bytes.Buffer
	b.Write(f.aad())
	b.WriteByte(byte(len(f.Nonce)))
	b.Write(f.Nonce)
	_ = binary.Write(&b, binary.BigEndian, uint32(len(f.Ciphertext)))
	b.Write(f.Ciphertext)
	b.Write(f.Tag)
	return b.Bytes(), nil
}

// ParseFile 解析磁盘格式。任何结构问题都返回 CodeVaultFormat。
func ParseFile(data []byte) (*File, *errors.XError) {
	r := reader{buf: data}
	if string(r.next(len(magic))) != magic {
		return nil, formatErr("not a tume vault file")
	}
	f := &File{}
	f.Version = r.u16()
	if r.err {
		return nil, formatErr("truncated vault header")
	}
	if f.Version != Version {
		return nil, errors.New(errors.CodeVaultFormat, "unsupported vault version", map[string]any{"version": f.Version, "reset_required": true})
	}
	if kdf := r.u8(); kdf != kdfArgon2id && !r.err {
		return nil, errors.New(errors.CodeVaultFormat, "unsupported key derivation function", map[string]any{"kdf": kdf, "reset_required": true})
	}
	f.Params.Time = r.u32()
	f.Params.MemoryKiB = r.u32()
	f.Params.Threads = r.u8()
	f.Salt = clone(r.next(int(r.u8())))
	f.Nonce = clone(r.next(int(r.u8())))
	n := r.u32()
	if n > maxCiphertext {
		return nil, formatErr("ciphertext length out of range")
	}
	f.Ciphertext = clone(r.next(int(n)))
	f.Tag = clone(r.next(TagSize))
	if r.err {
		return nil, formatErr("truncated vault file")
	}
	if len(r.buf) != 0 {
		return nil, formatErr("trailing data after vault")
	}
	if len(f.Salt) != SaltSize || len(f.Nonce) != NonceSize {
		return nil, formatErr("invalid salt or nonce length")
	}
	if xe := f.Params.Validate(); xe != nil {
		xe.Details["reset_required"] = true
		return nil, xe
	}
	return f, nil
}

// Encode 用 key 加密 plaintext，生成新的 File（每次调用都是新的随机 nonce）。纯变换，不触碰磁盘。
func Encode(plaintext []byte, key *secret.Buffer, salt []byte, p Params) (*File, *errors.XError) {
	if len(salt) != SaltSize {
		return nil, errors.New(errors.CodeInternal, "invalid salt length", map[string]any{"length": len(salt)})
	}
	f := &File{Version: Version, Params: p, Salt: clone(salt)}
	nonce, ct, tag, xe := Encrypt(plaintext, key, f.aad())
	if xe != nil {
		return nil, xe
	}
	f.Nonce, f.Ciphertext, f.Tag = nonce, ct, tag
	return f, nil
}

// Decode 校验并解密 File。失败时不返回任何明文。
func Decode(f *File, key *secret.Buffer) (*secret.Buffer, *errors.XError) {
	if f == nil {
		return nil, formatErr("vault file is empty")
	}
	if f.Version != Version {
		return nil, errors.New(errors.CodeVaultFormat, "unsupported vault version", map[string]any{"version": f.Version, "reset_required": true})
	}
	return Decrypt(f.Nonce, f.Ciphertext, f.Tag, key, f.aad())
}

func formatErr(msg string) *errors.XError {
	return errors.New(errors.CodeVaultFormat, msg, map[string]any{"reset_required": true})
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// reader 是只前进的切片游标；越界后 err 置位，后续读取返回零值。
type reader struct {
	buf []byte
	err bool
}

func (r *reader) next(n int) []byte {
	if r.err || n < 0 || len(r.buf) < n {
		r.err = true
		return nil
	}
	p := r.buf[:n]
	r.buf = r.buf[n:]
	return p
}

func (r *reader) u8() uint8 {
	p := r.next(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *reader) u16() uint16 {
	p := r.next(2)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint16(p)
}

func (r *reader) u32() uint32 {
	p := r.next(4)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint32(p)
}
