package credential

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/secret"
	"github.com/tume-mail/tume/internal/vault"
)

// 明文 bundle 布局：bundleVersion u8，随后按字段顺序写入；
// 文本字段为 u16 长度 + 字节，端口为 u16（大端）。
const bundleVersion uint8 = 1

// marshalBundle 把 b 序列化进新的受保护 Buffer。调用方负责 Destroy。
func marshalBundle(b *Bundle) (*secret.Buffer, *errors.XError) {
	if xe := b.Validate(); xe != nil {
		return nil, xe
	}
	size := 1 + 2*2
	for _, f := range b.texts() {
		size += 2 + len(f)
	}
	buf := secret.NewBuffer(size)
	p := buf.Bytes()
	p[0] = bundleVersion
	off := 1
	text := func(f []byte) {
		binary.BigEndian.PutUint16(p[off:], uint16(len(f)))
		off += 2
		off += copy(p[off:], f)
	}
	port := func(v uint16) {
		binary.BigEndian.PutUint16(p[off:], v)
		off += 2
	}
	text(b.IMAPHost)
	port(b.IMAPPort)
	text(b.IMAPUser)
	text(b.IMAPPassword)
	text(b.SMTPHost)
	port(b.SMTPPort)
	text(b.SMTPUser)
	text(b.SMTPPassword)
	return buf, nil
}

// unmarshalBundle 解析明文。结果的文本字段指向一块新的受保护内存，随 Bundle.Wipe 释放；
// data 本身不会被修改。
func unmarshalBundle(data []byte) (*Bundle, *errors.XError) {
	if len(data) == 0 {
		return nil, bundleFormatErr("credential bundle is empty")
	}
	if v := data[0]; v != bundleVersion {
		return nil, errors.New(errors.CodeVaultFormat, "unsupported credential bundle version",
			map[string]any{"version": v, "reset_required": true})
	}
	buf := secret.NewBuffer(len(data))
	p := buf.Bytes()
	copy(p, data)
	off := 1
	bad := false
	u16 := func() uint16 {
		if bad || len(p)-off < 2 {
			bad = true
			return 0
		}
		v := binary.BigEndian.Uint16(p[off:])
		off += 2
		return v
	}
	text := func() []byte {
		n := int(u16())
		if bad || len(p)-off < n {
			bad = true
			return nil
		}
		f := p[off : off+n : off+n]
		off += n
		return f
	}

	b := &Bundle{backing: buf}
	b.IMAPHost = text()
	b.IMAPPort = u16()
	b.IMAPUser = text()
	b.IMAPPassword = text()
	b.SMTPHost = text()
	b.SMTPPort = u16()
	b.SMTPUser = text()
	b.SMTPPassword = text()

	if bad || off != len(p) {
		b.Wipe()
		return nil, bundleFormatErr("malformed credential bundle")
	}
	return b, nil
}

func bundleFormatErr(msg string) *errors.XError {
	return errors.New(errors.CodeVaultFormat, msg, map[string]any{"reset_required": true})
}

// EncodeBundle 序列化 b 并用 key 加密成 vault.File。
func EncodeBundle(b *Bundle, key *secret.Buffer, salt []byte, p vault.Params) (*vault.File, *errors.XError) {
	plain, xe := marshalBundle(b)
	if xe != nil {
		return nil, xe
	}
	defer plain.Destroy()
	return vault.Encode(plain.Bytes(), key, salt, p)
}

// DecodeBundle 解密并解析 vault.File。返回的 Bundle 由调用方 Wipe。
func DecodeBundle(f *vault.File, key *secret.Buffer) (*Bundle, *errors.XError) {
	plain, xe := vault.Decode(f, key)
	if xe != nil {
		return nil, xe
	}
	defer plain.Destroy()
	return unmarshalBundle(plain.Bytes())
}

// keyring 只接受 string，因此明文以 base64 形式交给 OS。
// Go string 无法擦除，这份拷贝的生命周期由运行时决定。
func encodeKeyringValue(plain *secret.Buffer) string {
	enc := secret.NewBuffer(base64.StdEncoding.EncodedLen(plain.Len()))
	defer enc.Destroy()
	base64.StdEncoding.Encode(enc.Bytes(), plain.Bytes())
	return string(enc.Bytes())
}

func decodeKeyringValue(v string) (*secret.Buffer, *errors.XError) {
	raw := []byte(v)
	defer secret.Wipe(raw)
	if base64.StdEncoding.DecodedLen(len(raw)) == 0 {
		return nil, errors.New(errors.CodeVaultFormat, "malformed keyring entry", map[string]any{"reset_required": true})
	}
	out := secret.NewBuffer(base64.StdEncoding.DecodedLen(len(raw)))
	n, err := base64.StdEncoding.Decode(out.Bytes(), raw)
	if err != nil {
		out.Destroy()
		return nil, errors.Wrap(errors.CodeVaultFormat, "malformed keyring entry", map[string]any{"reset_required": true}, err)
	}
	if n == out.Len() {
		return out, nil
	}
	// DecodedLen 是上界，按实际长度收缩
	defer out.Destroy()
	exact := secret.NewBuffer(n)
	copy(exact.Bytes(), out.Bytes()[:n])
	return exact, nil
}
