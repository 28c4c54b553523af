package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/cockroachdb/errors"
)

var (
	// ErrSealedTooShort 表示密文块长度不足，无法包含完整的 nonce 与密文。
	ErrSealedTooShort = errors.New("crypto: sealed block too short")

	// ErrKeySize 表示密钥长度不是 AES-256 要求的 32 字节。
	ErrKeySize = errors.New("crypto: key must be 32 bytes for AES-256-GCM")
)

const aes256KeySizeBytes = 32

// AESGCM 基于 AES-256-GCM 实现 Encryptor。
// AEAD 自带完整性校验，密文或关联数据被篡改时 Open 失败。
//
// 密文块布局：nonce || ciphertext
//   - nonce     ：随机数，长度等于 AEAD.NonceSize()
//   - ciphertext：AES-GCM 密文（含 GCM tag）
type AESGCM struct {
	aead cipher.AEAD
}

// 编译期断言：确保 AESGCM 实现了 Encryptor 接口。
var _ Encryptor = (*AESGCM)(nil)

// NewAESGCM 用 32 字节密钥创建 AES-256-GCM 加密器。
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != aes256KeySizeBytes {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

// Encrypt 实现 Encryptor 接口。每次调用生成新的随机 nonce。
func (c *AESGCM) Encrypt(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Decrypt 实现 Encryptor 接口。aad 必须与加密时一致。
func (c *AESGCM) Decrypt(sealed, aad []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, ErrSealedTooShort
	}
	nonce := sealed[:nonceSize]
	ciphertext := sealed[nonceSize:]
	return c.aead.Open(nil, nonce, ciphertext, aad)
}
