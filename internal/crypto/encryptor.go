package crypto

// Encryptor 抽象了快照净荷的加密方案：
//   - Encrypt：加密并生成防篡改的完整密文块
//   - Decrypt：校验完整性并还原明文
//
// aad（Associated Data）为关联数据，不加密但受完整性保护；
// 快照容器用它绑定头部字段，头部被改动时解密直接失败。
type Encryptor interface {
	Encrypt(plaintext, aad []byte) (sealed []byte, err error)
	Decrypt(sealed, aad []byte) (plaintext []byte, err error)
}

// NopEncryptor 是空实现：不加密也不校验，直接透传数据。
// 未开启加密的快照容器使用它。
type NopEncryptor struct{}

func (NopEncryptor) Encrypt(plaintext, _ []byte) ([]byte, error) {
	return plaintext, nil
}

func (NopEncryptor) Decrypt(sealed, _ []byte) ([]byte, error) {
	return sealed, nil
}

// 编译期断言：确保 NopEncryptor 实现了 Encryptor 接口。
var _ Encryptor = NopEncryptor{}
