package vault

import (
	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/secret"
)

// Seal 以新的随机 salt 派生密钥并加密 plaintext。派生出的密钥在返回前销毁。
func Seal(plaintext, password []byte, p Params) (*File, *errors.XError) {
	salt, xe := NewSalt()
	if xe != nil {
		return nil, xe
	}
	scope := secret.NewScope()
	defer scope.Close()

	key, xe := DeriveKey(password, salt, p)
	if xe != nil {
		return nil, xe
	}
	scope.Track(key)
	return Encode(plaintext, key, salt, p)
}

// Open 使用文件中记录的 salt 与参数派生密钥并解密。返回的 Buffer 由调用方 Destroy。
func Open(f *File, password []byte) (*secret.Buffer, *errors.XError) {
	if f == nil {
		return nil, formatErr("vault file is empty")
	}
	scope := secret.NewScope()
	defer scope.Close()

	key, xe := DeriveKey(password, f.Salt, f.Params)
	if xe != nil {
		return nil, xe
	}
	scope.Track(key)
	return Decode(f, key)
}
