package snapshot

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
	"github.com/lk2023060901/serilux-go/serialization"
)

type SnapshotSuite struct {
	suite.Suite
}

func (s *SnapshotSuite) key() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func (s *SnapshotSuite) prim(v any) *serialization.Node {
	n, err := serialization.NewPrimitiveNode(v)
	s.Require().NoError(err)
	return n
}

// buildNode 构造一棵带嵌套结构的标签树。
func (s *SnapshotSuite) buildNode() *serialization.Node {
	steps := serialization.NewSequenceNode(s.prim("fetch"), s.prim("merge"), s.prim("flush"))
	node, err := serialization.NewObjectNode("Task", "task-1", []serialization.Field{
		{Name: "name", Value: s.prim("rebuild index")},
		{Name: "retries", Value: s.prim(int64(3))},
		{Name: "steps", Value: steps},
	})
	s.Require().NoError(err)
	return node
}

func (s *SnapshotSuite) encode(c *Container, node *serialization.Node) []byte {
	var buf bytes.Buffer
	s.Require().NoError(c.Write(&buf, node))
	return buf.Bytes()
}

// assertSameTree 通过线格式比较两棵树。
func (s *SnapshotSuite) assertSameTree(want, got *serialization.Node) {
	wantJSON, err := want.MarshalJSON()
	s.Require().NoError(err)
	gotJSON, err := got.MarshalJSON()
	s.Require().NoError(err)
	s.JSONEq(string(wantJSON), string(gotJSON))
}

func (s *SnapshotSuite) TestRoundtripPlain() {
	c, err := New()
	s.Require().NoError(err)
	defer c.Close()

	node := s.buildNode()
	data := s.encode(c, node)
	s.Equal([]byte("SLX1"), data[:4])

	got, err := c.Read(bytes.NewReader(data))
	s.Require().NoError(err)
	s.assertSameTree(node, got)
}

func (s *SnapshotSuite) TestRoundtripCompressed() {
	c, err := New(WithCompression())
	s.Require().NoError(err)
	defer c.Close()

	node := s.buildNode()
	got, err := c.Read(bytes.NewReader(s.encode(c, node)))
	s.Require().NoError(err)
	s.assertSameTree(node, got)
}

func (s *SnapshotSuite) TestRoundtripEncrypted() {
	c, err := New(WithEncryption(s.key()))
	s.Require().NoError(err)
	defer c.Close()

	node := s.buildNode()
	got, err := c.Read(bytes.NewReader(s.encode(c, node)))
	s.Require().NoError(err)
	s.assertSameTree(node, got)
}

func (s *SnapshotSuite) TestRoundtripCompressedEncrypted() {
	c, err := New(WithCompression(), WithEncryption(s.key()))
	s.Require().NoError(err)
	defer c.Close()

	node := s.buildNode()
	got, err := c.Read(bytes.NewReader(s.encode(c, node)))
	s.Require().NoError(err)
	s.assertSameTree(node, got)
}

func (s *SnapshotSuite) TestCompressedReadableByPlainContainer() {
	// 压缩只是写出端选项，读取端按 flags 自行解压。
	wc, err := New(WithCompression())
	s.Require().NoError(err)
	defer wc.Close()

	rc, err := New()
	s.Require().NoError(err)
	defer rc.Close()

	node := s.buildNode()
	got, err := rc.Read(bytes.NewReader(s.encode(wc, node)))
	s.Require().NoError(err)
	s.assertSameTree(node, got)
}

func (s *SnapshotSuite) TestEncryptedRequiresKey() {
	wc, err := New(WithEncryption(s.key()))
	s.Require().NoError(err)
	defer wc.Close()

	rc, err := New()
	s.Require().NoError(err)
	defer rc.Close()

	_, err = rc.Read(bytes.NewReader(s.encode(wc, s.buildNode())))
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SnapshotSuite) TestWrongKeyRejected() {
	wc, err := New(WithEncryption(s.key()))
	s.Require().NoError(err)
	defer wc.Close()

	rc, err := New(WithEncryption(bytes.Repeat([]byte{0x24}, 32)))
	s.Require().NoError(err)
	defer rc.Close()

	_, err = rc.Read(bytes.NewReader(s.encode(wc, s.buildNode())))
	s.ErrorIs(err, merr.ErrSnapshotCorrupt)
}

func (s *SnapshotSuite) TestBadKeySize() {
	_, err := New(WithEncryption([]byte("short")))
	s.Error(err)
}

func (s *SnapshotSuite) TestTamperedHeaderRejected() {
	c, err := New(WithEncryption(s.key()))
	s.Require().NoError(err)
	defer c.Close()

	data := s.encode(c, s.buildNode())

	// flags 是 AAD 的一部分，翻转一个已知位后解密失败。
	tampered := append([]byte(nil), data...)
	tampered[7] ^= 0x01
	_, err = c.Read(bytes.NewReader(tampered))
	s.ErrorIs(err, merr.ErrSnapshotCorrupt)

	// 版本串同样被绑定：降级改写能通过版本闸门，但通不过解密。
	_, err = c.Read(bytes.NewReader(s.patchVersion(data, "0.2.1")))
	s.ErrorIs(err, merr.ErrSnapshotCorrupt)
}

func (s *SnapshotSuite) TestTamperedPayloadRejected() {
	c, err := New(WithEncryption(s.key()))
	s.Require().NoError(err)
	defer c.Close()

	data := s.encode(c, s.buildNode())

	tampered := append([]byte(nil), data...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = c.Read(bytes.NewReader(tampered))
	s.ErrorIs(err, merr.ErrSnapshotCorrupt)
}

func (s *SnapshotSuite) TestBadMagic() {
	c, err := New()
	s.Require().NoError(err)
	defer c.Close()

	data := s.encode(c, s.buildNode())
	data[0] = 'X'
	_, err = c.Read(bytes.NewReader(data))
	s.ErrorIs(err, merr.ErrSnapshotCorrupt)
}

func (s *SnapshotSuite) TestTruncated() {
	c, err := New()
	s.Require().NoError(err)
	defer c.Close()

	data := s.encode(c, s.buildNode())
	for _, cut := range []int{0, 3, 8, 9, len(data) / 2, len(data) - 1} {
		_, err = c.Read(bytes.NewReader(data[:cut]))
		s.ErrorIs(err, merr.ErrSnapshotCorrupt, cut)
	}
}

func (s *SnapshotSuite) TestUnknownFlagsRejected() {
	c, err := New()
	s.Require().NoError(err)
	defer c.Close()

	data := s.encode(c, s.buildNode())
	data[4] |= 0x80
	_, err = c.Read(bytes.NewReader(data))
	s.ErrorIs(err, merr.ErrSnapshotCorrupt)
}

// patchVersion 替换头部中与当前版本串等长的版本字段。
func (s *SnapshotSuite) patchVersion(data []byte, version string) []byte {
	s.Require().Len(version, len(FormatVersion))
	out := append([]byte(nil), data...)
	copy(out[9:9+len(version)], version)
	return out
}

func (s *SnapshotSuite) TestVersionGate() {
	c, err := New()
	s.Require().NoError(err)
	defer c.Close()

	data := s.encode(c, s.buildNode())

	// 更高的次版本号与不同的主版本号都被拒绝。
	_, err = c.Read(bytes.NewReader(s.patchVersion(data, "0.9.0")))
	s.ErrorIs(err, merr.ErrSnapshotVersion)

	_, err = c.Read(bytes.NewReader(s.patchVersion(data, "1.3.1")))
	s.ErrorIs(err, merr.ErrSnapshotVersion)

	// 同主版本的旧次版本可以读取。
	got, err := c.Read(bytes.NewReader(s.patchVersion(data, "0.2.9")))
	s.Require().NoError(err)
	s.NotNil(got)

	// 同版本不同补丁号可以读取。
	got, err = c.Read(bytes.NewReader(s.patchVersion(data, "0.3.7")))
	s.Require().NoError(err)
	s.NotNil(got)
}

func (s *SnapshotSuite) TestGarbledVersionRejected() {
	c, err := New()
	s.Require().NoError(err)
	defer c.Close()

	data := s.encode(c, s.buildNode())
	_, err = c.Read(bytes.NewReader(s.patchVersion(data, "x.y.z")))
	s.ErrorIs(err, merr.ErrSnapshotCorrupt)
}

func (s *SnapshotSuite) TestPayloadSizeLimit() {
	c, err := New(WithMaxPayloadSize(8))
	s.Require().NoError(err)
	defer c.Close()

	var buf bytes.Buffer
	err = c.Write(&buf, s.buildNode())
	s.ErrorIs(err, merr.ErrParameterInvalid)

	// 读取端同样受上限保护。
	wc, err := New()
	s.Require().NoError(err)
	defer wc.Close()
	_, err = c.Read(bytes.NewReader(s.encode(wc, s.buildNode())))
	s.ErrorIs(err, merr.ErrSnapshotCorrupt)
}

func (s *SnapshotSuite) TestNilArguments() {
	c, err := New()
	s.Require().NoError(err)
	defer c.Close()

	err = c.Write(nil, s.buildNode())
	s.ErrorIs(err, merr.ErrParameterInvalid)

	var buf bytes.Buffer
	err = c.Write(&buf, nil)
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = c.Read(nil)
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SnapshotSuite) TestSaveLoad() {
	c, err := New(WithCompression(), WithEncryption(s.key()))
	s.Require().NoError(err)
	defer c.Close()

	path := filepath.Join(s.T().TempDir(), "task.slx")
	node := s.buildNode()

	s.Require().NoError(c.Save(path, node))

	got, err := c.Load(path)
	s.Require().NoError(err)
	s.assertSameTree(node, got)
}

func (s *SnapshotSuite) TestLoadMissingFile() {
	c, err := New()
	s.Require().NoError(err)
	defer c.Close()

	_, err = c.Load(filepath.Join(s.T().TempDir(), "absent.slx"))
	s.ErrorIs(err, merr.ErrIoFailed)
}

func TestSnapshot(t *testing.T) {
	suite.Run(t, new(SnapshotSuite))
}
