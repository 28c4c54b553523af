package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CryptoSuite struct {
	suite.Suite
}

func (s *CryptoSuite) key() []byte {
	return bytes.Repeat([]byte{0x5a}, 32)
}

func (s *CryptoSuite) TestNopPassthrough() {
	var c NopEncryptor
	src := []byte("plaintext")

	sealed, err := c.Encrypt(src, nil)
	s.Require().NoError(err)
	s.Equal(src, sealed)

	plain, err := c.Decrypt(sealed, nil)
	s.Require().NoError(err)
	s.Equal(src, plain)
}

func (s *CryptoSuite) TestKeySize() {
	_, err := NewAESGCM(make([]byte, 16))
	s.ErrorIs(err, ErrKeySize)

	_, err = NewAESGCM(nil)
	s.ErrorIs(err, ErrKeySize)

	_, err = NewAESGCM(s.key())
	s.NoError(err)
}

func (s *CryptoSuite) TestRoundtrip() {
	c, err := NewAESGCM(s.key())
	s.Require().NoError(err)

	plaintext := []byte(`{"_type":"Task","_id":"t-1"}`)
	aad := []byte("SLX1|header")

	sealed, err := c.Encrypt(plaintext, aad)
	s.Require().NoError(err)
	s.NotEqual(plaintext, sealed)

	plain, err := c.Decrypt(sealed, aad)
	s.Require().NoError(err)
	s.Equal(plaintext, plain)
}

func (s *CryptoSuite) TestNonceIsFresh() {
	c, err := NewAESGCM(s.key())
	s.Require().NoError(err)

	a, err := c.Encrypt([]byte("same input"), nil)
	s.Require().NoError(err)
	b, err := c.Encrypt([]byte("same input"), nil)
	s.Require().NoError(err)
	s.NotEqual(a, b)
}

func (s *CryptoSuite) TestTamperDetected() {
	c, err := NewAESGCM(s.key())
	s.Require().NoError(err)

	sealed, err := c.Encrypt([]byte("payload"), []byte("aad"))
	s.Require().NoError(err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = c.Decrypt(sealed, []byte("aad"))
	s.Error(err)
}

func (s *CryptoSuite) TestAADMismatch() {
	c, err := NewAESGCM(s.key())
	s.Require().NoError(err)

	sealed, err := c.Encrypt([]byte("payload"), []byte("header-v1"))
	s.Require().NoError(err)

	_, err = c.Decrypt(sealed, []byte("header-v2"))
	s.Error(err)
}

func (s *CryptoSuite) TestSealedTooShort() {
	c, err := NewAESGCM(s.key())
	s.Require().NoError(err)

	_, err = c.Decrypt([]byte{0x01, 0x02}, nil)
	s.ErrorIs(err, ErrSealedTooShort)
}

func TestCrypto(t *testing.T) {
	suite.Run(t, new(CryptoSuite))
}
