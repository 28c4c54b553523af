package compressor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CompressorSuite struct {
	suite.Suite
}

func (s *CompressorSuite) TestNopPassthrough() {
	var c NopCompressor
	src := []byte("snapshot payload")

	packed, err := c.Compress(nil, src)
	s.Require().NoError(err)
	s.Equal(src, packed)

	plain, err := c.Decompress(nil, packed)
	s.Require().NoError(err)
	s.Equal(src, plain)
}

func (s *CompressorSuite) TestZstdRoundtrip() {
	c, err := NewZstdCompressor()
	s.Require().NoError(err)
	defer c.Close()

	src := bytes.Repeat([]byte(`{"_type":"Task","steps":[1,2,3]}`), 256)

	packed, err := c.Compress(nil, src)
	s.Require().NoError(err)
	s.Less(len(packed), len(src))

	plain, err := c.Decompress(nil, packed)
	s.Require().NoError(err)
	s.Equal(src, plain)
}

func (s *CompressorSuite) TestZstdEmptyInput() {
	c, err := NewZstdCompressorWithConcurrency(1)
	s.Require().NoError(err)
	defer c.Close()

	packed, err := c.Compress(nil, nil)
	s.Require().NoError(err)

	plain, err := c.Decompress(nil, packed)
	s.Require().NoError(err)
	s.Empty(plain)
}

func (s *CompressorSuite) TestZstdBufferReuse() {
	c, err := NewZstdCompressor()
	s.Require().NoError(err)
	defer c.Close()

	packBuf := make([]byte, 0, 1024)
	plainBuf := make([]byte, 0, 1024)
	src := []byte("reuse the destination buffer")

	packed, err := c.Compress(packBuf, src)
	s.Require().NoError(err)

	plain, err := c.Decompress(plainBuf, packed)
	s.Require().NoError(err)
	s.Equal(src, plain)
}

func (s *CompressorSuite) TestClosedZstd() {
	c, err := NewZstdCompressor()
	s.Require().NoError(err)
	c.Close()

	_, err = c.Compress(nil, []byte("x"))
	s.Error(err)
	_, err = c.Decompress(nil, []byte("x"))
	s.Error(err)
}

func TestCompressor(t *testing.T) {
	suite.Run(t, new(CompressorSuite))
}
