// Package snapshot 实现标签树的落盘容器格式。
//
// 容器布局（多字节整数均为大端序）：
//
//	magic "SLX1" | flags uint32 | 版本串长度 uvarint | 版本串 | 净荷长度 uint32 | 净荷
//
// 写出管线：
//
//	node --> JSON --> [压缩?] --> [加密?] --> 净荷
//
// 读取为对称的逆过程。加密的关联数据（AAD）绑定 magic、flags 与
// 版本串，头部被改动时解密直接失败；净荷长度不进入 AAD，
// 避免与密文长度互相依赖。
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/blang/semver/v4"
	"go.uber.org/zap"

	"github.com/lk2023060901/serilux-go/internal/compressor"
	"github.com/lk2023060901/serilux-go/internal/crypto"
	"github.com/lk2023060901/serilux-go/pkg/log"
	"github.com/lk2023060901/serilux-go/pkg/metrics"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
	"github.com/lk2023060901/serilux-go/serialization"
)

const (
	// FormatVersion 是写出端声明的容器格式版本。
	// 读取端接受主版本号相同且次版本号不高于当前值的快照。
	FormatVersion = "0.3.1"

	// DefaultMaxPayloadSize 是净荷大小上限的默认值。
	DefaultMaxPayloadSize = 16 * 1024 * 1024 // 16MB
)

const (
	flagCompressed = uint32(1) << 0
	flagEncrypted  = uint32(1) << 1

	knownFlags = flagCompressed | flagEncrypted

	// 版本串长度上限。合法长度小于 128，其 uvarint 编码必然只占一个字节。
	maxVersionLen = 64
)

var (
	magic          = [4]byte{'S', 'L', 'X', '1'}
	currentVersion = semver.MustParse(FormatVersion)
)

type config struct {
	compress   bool
	encryptKey []byte
	maxPayload uint32
}

// Option 调整容器的行为。
type Option func(*config)

// WithCompression 启用净荷的 zstd 压缩。
func WithCompression() Option {
	return func(c *config) {
		c.compress = true
	}
}

// WithEncryption 启用净荷的 AES-256-GCM 加密，key 必须为 32 字节。
func WithEncryption(key []byte) Option {
	return func(c *config) {
		c.encryptKey = append([]byte(nil), key...)
	}
}

// WithMaxPayloadSize 调整净荷大小上限，0 保持默认值。
func WithMaxPayloadSize(n uint32) Option {
	return func(c *config) {
		if n > 0 {
			c.maxPayload = n
		}
	}
}

// Container 按固定管线写出与读回快照，可并发复用。
//
// 压缩只影响写出端：读取端按头部 flags 自行解压。
// 加密则要求读取端配置相同的密钥。
type Container struct {
	log.Binder

	compress   bool
	compressor *compressor.ZstdCompressor
	encryptor  crypto.Encryptor
	encrypted  bool
	maxPayload uint32
}

// New 创建一个快照容器。
func New(opts ...Option) (*Container, error) {
	cfg := config{maxPayload: DefaultMaxPayloadSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	zc, err := compressor.NewZstdCompressor()
	if err != nil {
		return nil, err
	}

	c := &Container{
		compress:   cfg.compress,
		compressor: zc,
		encryptor:  crypto.NopEncryptor{},
		maxPayload: cfg.maxPayload,
	}
	if cfg.encryptKey != nil {
		enc, err := crypto.NewAESGCM(cfg.encryptKey)
		if err != nil {
			zc.Close()
			return nil, err
		}
		c.encryptor = enc
		c.encrypted = true
	}
	c.SetLogger(log.With(
		log.FieldComponent("snapshot"),
		zap.Bool("compress", c.compress),
		zap.Bool("encrypted", c.encrypted),
	))
	return c, nil
}

// Close 释放容器持有的压缩器资源，之后实例不可再用。
func (c *Container) Close() {
	c.compressor.Close()
}

// headerPrefix 构造净荷长度字段之前的全部头部字节，同时充当加密的 AAD。
func headerPrefix(flags uint32) []byte {
	buf := make([]byte, 0, 8+binary.MaxVarintLen64+len(FormatVersion))
	buf = append(buf, magic[:]...)
	buf = binary.BigEndian.AppendUint32(buf, flags)
	buf = binary.AppendUvarint(buf, uint64(len(FormatVersion)))
	buf = append(buf, FormatVersion...)
	return buf
}

// Write 将节点按容器格式写入 w。
func (c *Container) Write(w io.Writer, node *serialization.Node) error {
	if err := c.write(w, node); err != nil {
		metrics.SnapshotWriteTotal.WithLabelValues(metrics.FailLabel).Inc()
		c.Logger().Warn("snapshot write failed", zap.Error(err))
		return err
	}
	metrics.SnapshotWriteTotal.WithLabelValues(metrics.SuccessLabel).Inc()
	return nil
}

func (c *Container) write(w io.Writer, node *serialization.Node) error {
	if w == nil {
		return merr.WrapErrParameterInvalidMsg("snapshot writer must not be nil")
	}
	if node == nil {
		return merr.WrapErrParameterInvalidMsg("snapshot node must not be nil")
	}

	payload, err := node.MarshalJSON()
	if err != nil {
		return err
	}

	flags := uint32(0)
	if c.compress && len(payload) > 0 {
		packed, err := c.compressor.Compress(nil, payload)
		if err != nil {
			return merr.WrapErrIoFailedReason("compress snapshot payload: " + err.Error())
		}
		payload = packed
		flags |= flagCompressed
	}

	if c.encrypted && len(payload) > 0 {
		flags |= flagEncrypted
		sealed, err := c.encryptor.Encrypt(payload, headerPrefix(flags))
		if err != nil {
			return merr.WrapErrIoFailedReason("encrypt snapshot payload: " + err.Error())
		}
		payload = sealed
	}

	if uint64(len(payload)) > uint64(c.maxPayload) {
		return merr.WrapErrParameterInvalidMsg("snapshot payload size %d exceeds limit %d", len(payload), c.maxPayload)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := w.Write(headerPrefix(flags)); err != nil {
		return merr.WrapErrIoFailedReason("write snapshot header: " + err.Error())
	}
	if _, err := w.Write(lenBuf[:]); err != nil {
		return merr.WrapErrIoFailedReason("write snapshot payload length: " + err.Error())
	}
	if _, err := w.Write(payload); err != nil {
		return merr.WrapErrIoFailedReason("write snapshot payload: " + err.Error())
	}

	metrics.SnapshotPayloadBytes.Observe(float64(len(payload)))
	return nil
}

// Read 从 r 解析一个完整容器并还原节点。
func (c *Container) Read(r io.Reader) (*serialization.Node, error) {
	node, err := c.read(r)
	if err != nil {
		metrics.SnapshotReadTotal.WithLabelValues(metrics.FailLabel).Inc()
		c.Logger().Warn("snapshot read failed", zap.Error(err))
		return nil, err
	}
	metrics.SnapshotReadTotal.WithLabelValues(metrics.SuccessLabel).Inc()
	return node, nil
}

func (c *Container) read(r io.Reader) (*serialization.Node, error) {
	if r == nil {
		return nil, merr.WrapErrParameterInvalidMsg("snapshot reader must not be nil")
	}

	// prefix 原样保留读到的头部字节，解密时作为 AAD 复用。
	prefix := make([]byte, 0, 8+1+maxVersionLen)

	var head [8]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, merr.WrapErrSnapshotCorrupt("truncated header", err.Error())
	}
	if !bytes.Equal(head[:4], magic[:]) {
		return nil, merr.WrapErrSnapshotCorrupt(fmt.Sprintf("bad magic %q", head[:4]))
	}
	flags := binary.BigEndian.Uint32(head[4:8])
	if flags&^knownFlags != 0 {
		return nil, merr.WrapErrSnapshotCorrupt(fmt.Sprintf("unknown flags %#x", flags&^knownFlags))
	}
	prefix = append(prefix, head[:]...)

	var one [1]byte
	if _, err := io.ReadFull(r, one[:]); err != nil {
		return nil, merr.WrapErrSnapshotCorrupt("truncated version length", err.Error())
	}
	prefix = append(prefix, one[0])
	if one[0]&0x80 != 0 || one[0] == 0 || int(one[0]) > maxVersionLen {
		return nil, merr.WrapErrSnapshotCorrupt(fmt.Sprintf("implausible version length %d", one[0]))
	}

	verBuf := make([]byte, one[0])
	if _, err := io.ReadFull(r, verBuf); err != nil {
		return nil, merr.WrapErrSnapshotCorrupt("truncated version", err.Error())
	}
	prefix = append(prefix, verBuf...)

	ver, err := semver.Parse(string(verBuf))
	if err != nil {
		return nil, merr.WrapErrSnapshotCorrupt(fmt.Sprintf("unparsable version %q", verBuf))
	}
	if ver.Major != currentVersion.Major || ver.Minor > currentVersion.Minor {
		return nil, merr.WrapErrSnapshotVersion(FormatVersion, ver.String())
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, merr.WrapErrSnapshotCorrupt("truncated payload length", err.Error())
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > c.maxPayload {
		return nil, merr.WrapErrSnapshotCorrupt(fmt.Sprintf("payload length %d exceeds limit %d", size, c.maxPayload))
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, merr.WrapErrSnapshotCorrupt("truncated payload", err.Error())
	}

	if flags&flagEncrypted != 0 {
		if !c.encrypted {
			return nil, merr.WrapErrParameterInvalidMsg("snapshot payload is encrypted and no key is configured")
		}
		plain, err := c.encryptor.Decrypt(payload, prefix)
		if err != nil {
			return nil, merr.WrapErrSnapshotCorrupt("decrypt failed", err.Error())
		}
		payload = plain
	}

	if flags&flagCompressed != 0 {
		plain, err := c.compressor.Decompress(nil, payload)
		if err != nil {
			return nil, merr.WrapErrSnapshotCorrupt("decompress failed", err.Error())
		}
		payload = plain
	}

	node := &serialization.Node{}
	if err := node.UnmarshalJSON(payload); err != nil {
		return nil, err
	}
	return node, nil
}
