package vault

import (
	"bytes"
	"testing"

	"github.com/tume-mail/tume/internal/errors"
	"github.com/tume-mail/tume/internal/secret"
)

// testParams 足够便宜，让测试可以大量派生密钥
var testParams = Params{Time: 1, MemoryKiB: 64, Threads: 1}

func mustKey(t *testing.T, password string, salt []byte, p Params) *secret.Buffer {
	t.Helper()
	key, xe := DeriveKey([]byte(password), salt, p)
	if xe != nil {
		t.Fatalf("DeriveKey failed: %v", xe)
	}
	t.Cleanup(key.Destroy)
	return key
}

func fixedSalt(b byte) []byte {
	return bytes.Repeat([]byte{b}, SaltSize)
}

// =============================================================================
// Key derivation
// =============================================================================

func TestDeriveKey_Deterministic(t *testing.T) {
	salt := fixedSalt(7)
	k1 := mustKey(t, "longenoughpw", salt, testParams)
	k2 := mustKey(t, "longenoughpw", salt, testParams)

	if k1.Len() != KeySize {
		t.Fatalf("key length=%d want %d", k1.Len(), KeySize)
	}
	if !bytes.Equal(k1.Bytes(), k2.Bytes()) {
		t.Fatal("expected same key for same inputs")
	}
}

func TestDeriveKey_SensitiveToEveryInput(t *testing.T) {
	base := mustKey(t, "longenoughpw", fixedSalt(1), testParams)

	tests := []struct {
		name     string
		password string
		salt     []byte
		params   Params
	}{
		{"password", "longenoughpx", fixedSalt(1), testParams},
		{"salt", "longenoughpw", fixedSalt(2), testParams},
		{"time", "longenoughpw", fixedSalt(1), Params{Time: 2, MemoryKiB: 64, Threads: 1}},
		{"memory", "longenoughpw", fixedSalt(1), Params{Time: 1, MemoryKiB: 128, Threads: 1}},
		{"threads", "longenoughpw", fixedSalt(1), Params{Time: 1, MemoryKiB: 64, Threads: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := mustKey(t, tt.password, tt.salt, tt.params)
			if bytes.Equal(k.Bytes(), base.Bytes()) {
				t.Fatalf("changing %s did not change the key", tt.name)
			}
		})
	}
}

func TestDeriveKey_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		password string
		salt     []byte
		params   Params
		code     errors.Code
	}{
		{"empty password", "", fixedSalt(1), testParams, errors.CodePasswordPolicy},
		{"short salt", "pw", []byte("salt"), testParams, errors.CodeVaultFormat},
		{"zero time", "pw", fixedSalt(1), Params{Time: 0, MemoryKiB: 64, Threads: 1}, errors.CodeVaultFormat},
		{"zero threads", "pw", fixedSalt(1), Params{Time: 1, MemoryKiB: 64, Threads: 0}, errors.CodeVaultFormat},
		{"huge memory", "pw", fixedSalt(1), Params{Time: 1, MemoryKiB: maxMemory + 1, Threads: 1}, errors.CodeVaultFormat},
		{"memory below parallelism", "pw", fixedSalt(1), Params{Time: 1, MemoryKiB: 8, Threads: 4}, errors.CodeVaultFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, xe := DeriveKey([]byte(tt.password), tt.salt, tt.params)
			if xe == nil || xe.Code != tt.code {
				t.Fatalf("expected %s, got %v", tt.code, xe)
			}
		})
	}
}

func TestDefaultParamsValid(t *testing.T) {
	if xe := DefaultParams().Validate(); xe != nil {
		t.Fatalf("default params invalid: %v", xe)
	}
}

// =============================================================================
// Cipher
// =============================================================================

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := mustKey(t, "pw", fixedSalt(3), testParams)
	aad := []byte("header")

	nonce, ct, tag, xe := Encrypt([]byte("imap_secret"), key, aad)
	if xe != nil {
		t.Fatal(xe)
	}
	if len(nonce) != NonceSize || len(tag) != TagSize {
		t.Fatalf("nonce=%d tag=%d", len(nonce), len(tag))
	}
	if bytes.Contains(ct, []byte("imap_secret")) {
		t.Fatal("ciphertext contains plaintext")
	}

	out, xe := Decrypt(nonce, ct, tag, key, aad)
	if xe != nil {
		t.Fatal(xe)
	}
	defer out.Destroy()
	if string(out.Bytes()) != "imap_secret" {
		t.Fatalf("got %q", out.Bytes())
	}

	if _, xe := Decrypt(nonce, ct, tag, key, []byte("other")); xe == nil || xe.Code != errors.CodeAuthFailed {
		t.Fatalf("expected auth failure for different aad, got %v", xe)
	}
	if _, xe := Decrypt(nonce[:10], ct, tag, key, aad); xe == nil || xe.Code != errors.CodeAuthFailed {
		t.Fatalf("expected auth failure for short nonce, got %v", xe)
	}
}

func TestEncrypt_NonceUniqueness(t *testing.T) {
	key := mustKey(t, "pw", fixedSalt(4), testParams)
	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		nonce, _, _, xe := Encrypt([]byte("x"), key, nil)
		if xe != nil {
			t.Fatal(xe)
		}
		if _, dup := seen[string(nonce)]; dup {
			t.Fatalf("nonce repeated after %d encryptions", i)
		}
		seen[string(nonce)] = struct{}{}
	}
}

// =============================================================================
// Codec
// =============================================================================

func sealed(t *testing.T, plaintext, password string) *File {
	t.Helper()
	f, xe := Seal([]byte(plaintext), []byte(password), testParams)
	if xe != nil {
		t.Fatalf("Seal failed: %v", xe)
	}
	return f
}

func TestSealOpen_RoundTrip(t *testing.T) {
	f := sealed(t, "bundle bytes", "longenoughpw")

	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	parsed, xe := ParseFile(data)
	if xe != nil {
		t.Fatalf("ParseFile failed: %v", xe)
	}
	if parsed.Params != testParams {
		t.Fatalf("params not persisted: %+v", parsed.Params)
	}

	out, xe := Open(parsed, []byte("longenoughpw"))
	if xe != nil {
		t.Fatalf("Open failed: %v", xe)
	}
	defer out.Destroy()
	if string(out.Bytes()) != "bundle bytes" {
		t.Fatalf("got %q", out.Bytes())
	}
}

func TestOpen_WrongPasswordFailsClosed(t *testing.T) {
	f := sealed(t, "bundle bytes", "longenoughpw")
	for _, pw := range []string{"wrong", "longenoughpW", "longenoughpw "} {
		out, xe := Open(f, []byte(pw))
		if xe == nil || xe.Code != errors.CodeAuthFailed {
			t.Fatalf("password %q: expected auth failure, got %v", pw, xe)
		}
		if out != nil {
			t.Fatalf("password %q: returned plaintext on failure", pw)
		}
	}
}

func TestSeal_FreshSaltAndNonce(t *testing.T) {
	a := sealed(t, "same", "pw")
	b := sealed(t, "same", "pw")
	if bytes.Equal(a.Salt, b.Salt) {
		t.Fatal("salt reused across vaults")
	}
	if bytes.Equal(a.Nonce, b.Nonce) {
		t.Fatal("nonce reused across writes")
	}
}

// 翻转任意一位：要么解析失败（格式错误），要么认证失败，绝不返回其它明文
func TestTamper_EveryBit(t *testing.T) {
	f := sealed(t, "imap.example.com:993 user@example.com imap_secret", "longenoughpw")
	data, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	headerLen := len(f.aad())
	saltStart := headerLen - SaltSize
	nonceStart := headerLen + 1
	ctStart := nonceStart + NonceSize + 4
	tagStart := len(data) - TagSize

	mustAuth := func(i int) bool {
		return (i >= saltStart && i < headerLen) ||
			(i >= nonceStart && i < nonceStart+NonceSize) ||
			i >= ctStart
	}
	if tagStart <= ctStart {
		t.Fatal("layout assumption broken")
	}

	for i := range data {
		for bit := 0; bit < 8; bit++ {
			mut := append([]byte(nil), data...)
			mut[i] ^= 1 << bit

			parsed, xe := ParseFile(mut)
			if xe != nil {
				if mustAuth(i) {
					t.Fatalf("byte %d bit %d: expected auth failure, got parse error %v", i, bit, xe)
				}
				if xe.Code != errors.CodeVaultFormat {
					t.Fatalf("byte %d bit %d: unexpected code %s", i, bit, xe.Code)
				}
				continue
			}
			// 参数字节被翻转后可能合法但极其昂贵；它们同样在 AAD 里，跳过高代价组合即可
			if uint64(parsed.Params.Time)*uint64(parsed.Params.MemoryKiB) > 1<<16 {
				continue
			}
			out, xe := Open(parsed, []byte("longenoughpw"))
			if xe == nil {
				out.Destroy()
				t.Fatalf("byte %d bit %d: tampered vault decrypted", i, bit)
			}
			if mustAuth(i) && xe.Code != errors.CodeAuthFailed {
				t.Fatalf("byte %d bit %d: expected auth failure, got %v", i, bit, xe)
			}
		}
	}
}

func TestParseFile_Rejects(t *testing.T) {
	f := sealed(t, "x", "pw")
	good, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	badVersion := append([]byte(nil), good...)
	badVersion[5] = 9

	badKDF := append([]byte(nil), good...)
	badKDF[6] = 2

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("NOPE"), good[4:]...)},
		{"unknown version", badVersion},
		{"unknown kdf", badKDF},
		{"truncated", good[:len(good)-1]},
		{"trailing", append(append([]byte(nil), good...), 0)},
		{"header only", good[:20]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, xe := ParseFile(tt.data)
			if xe == nil || xe.Code != errors.CodeVaultFormat {
				t.Fatalf("expected %s, got %v", errors.CodeVaultFormat, xe)
			}
			if xe.Details["reset_required"] != true {
				t.Errorf("expected reset_required detail, got %v", xe.Details)
			}
		})
	}
}

func TestParseFile_TamperedParamsStayBounded(t *testing.T) {
	f := &File{
		Version:    Version,
		Params:     DefaultParams(),
		Salt:       make([]byte, SaltSize),
		Nonce:      make([]byte, NonceSize),
		Ciphertext: []byte{1},
		Tag:        make([]byte, TagSize),
	}
	good, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	// magic(4) + version(2) + kdf(1)，随后是 time(4) 与 memory(4)
	const timeOff, memOff = 7, 11

	for off := timeOff; off < memOff+4; off++ {
		for bit := 0; bit < 8; bit++ {
			data := append([]byte(nil), good...)
			data[off] ^= 1 << bit
			got, xe := ParseFile(data)
			if xe != nil {
				if xe.Code != errors.CodeVaultFormat {
					t.Fatalf("byte %d bit %d: expected %s, got %v", off, bit, errors.CodeVaultFormat, xe)
				}
				continue
			}
			if got.Params.MemoryKiB > maxMemory || got.Params.Time > maxTime {
				t.Fatalf("byte %d bit %d: accepted params %+v", off, bit, got.Params)
			}
		}
	}

	// 64 MiB -> 2112 MiB
	data := append([]byte(nil), good...)
	data[memOff+1] ^= 1 << 5
	if _, xe := ParseFile(data); xe == nil || xe.Code != errors.CodeVaultFormat {
		t.Fatalf("expected %s for oversized memory, got %v", errors.CodeVaultFormat, xe)
	}
}

func TestDecode_UnknownVersion(t *testing.T) {
	f := sealed(t, "x", "pw")
	key := mustKey(t, "pw", f.Salt, f.Params)
	f.Version = 2
	if _, xe := Decode(f, key); xe == nil || xe.Code != errors.CodeVaultFormat {
		t.Fatalf("expected format error, got %v", xe)
	}
	if _, xe := Decode(nil, key); xe == nil || xe.Code != errors.CodeVaultFormat {
		t.Fatalf("expected format error for nil file, got %v", xe)
	}
}
