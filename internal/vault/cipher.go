package vault

import (
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/secret"
)

const (
	// NonceSize 为 24 字节（XChaCha20），随机生成时碰撞概率可以忽略。
	NonceSize = chacha20poly1305.NonceSizeX
	// TagSize 是 Poly1305 认证标签长度。
	TagSize = chacha20poly1305.Overhead
)

// Encrypt 用 key 加密 plaintext，aad 参与认证但不加密。
// nonce 只在这里从 crypto/rand 生成，调用方无法指定，从结构上避免同一 key 下的 nonce 复用。
func Encrypt(plaintext []byte, key *secret.Buffer, aad []byte) (nonce, ciphertext, tag []byte, xe *errors.XError) {
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, nil, nil, errors.Wrap(errors.CodeInternal, "failed to initialise cipher", nil, err)
	}
	nonce = make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, nil, errors.Wrap(errors.CodeInternal, "failed to generate nonce", nil, err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	split := len(sealed) - TagSize
	return nonce, sealed[:split:split], sealed[split:], nil
}

// Decrypt 校验 tag 并解密到新的 Buffer；任何校验失败都返回 CodeAuthFailed，绝不返回部分明文。
// 返回的 Buffer 由调用方 Destroy。
func Decrypt(nonce, ciphertext, tag []byte, key *secret.Buffer, aad []byte) (*secret.Buffer, *errors.XError) {
	if len(nonce) != NonceSize || len(tag) != TagSize {
		return nil, errors.New(errors.CodeAuthFailed, "unable to decrypt vault", nil)
	}
	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, errors.Wrap(errors.CodeInternal, "failed to initialise cipher", nil, err)
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	out, err := aead.Open(nil, nonce, sealed, aad)
	if err != nil {
		// 不区分密码错误与文件被篡改
		return nil, errors.New(errors.CodeAuthFailed, "unable to decrypt vault", nil)
	}
	return secret.FromBytes(out), nil
}
