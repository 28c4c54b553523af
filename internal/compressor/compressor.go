package compressor

// Compressor 抽象了快照净荷的单次压缩/解压能力。
//
// 快照是一次性落盘的整块数据，这里不考虑流式场景；
// 实现不做全局单例，由容器层按需创建并持有实例。
type Compressor interface {
	// Compress 将 src 压缩到 dst。
	//
	// dst 可以传入一个可复用的缓冲区（长度可为 0），实现可选择复用其底层容量；
	// 返回值为压缩后的完整数据。
	Compress(dst, src []byte) (packed []byte, err error)

	// Decompress 将压缩数据 src 解压到 dst，src 必须是 Compress 的输出。
	Decompress(dst, src []byte) (plain []byte, err error)
}

// NopCompressor 是空实现：不做任何压缩/解压，直接透传输入。
// 未开启压缩的快照容器使用它，调用侧逻辑保持一致。
type NopCompressor struct{}

func (NopCompressor) Compress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

func (NopCompressor) Decompress(_ []byte, src []byte) ([]byte, error) {
	return src, nil
}

// 编译期断言：确保 NopCompressor 实现了 Compressor 接口。
var _ Compressor = NopCompressor{}
