package serialization

// DefaultMaxDepth 是编码与解码共用的默认最大容器嵌套深度。
const DefaultMaxDepth = 100

type serializeConfig struct {
	maxDepth int
}

// SerializeOption 配置一次序列化调用。
type SerializeOption func(*serializeConfig)

// WithMaxDepth 设置编码侧最大嵌套深度。n <= 0 时调用返回 ErrParameterInvalid。
func WithMaxDepth(n int) SerializeOption {
	return func(cfg *serializeConfig) {
		cfg.maxDepth = n
	}
}

func newSerializeConfig(opts ...SerializeOption) serializeConfig {
	cfg := serializeConfig{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type deserializeConfig struct {
	maxDepth int
	strict   bool
	registry *ObjectRegistry
}

// DeserializeOption 配置一次反序列化调用。
type DeserializeOption func(*deserializeConfig)

// WithStrict 开启严格模式：节点携带目标类型未声明的字段时
// 返回 ErrFieldUnknown，而不是静默丢弃。
func WithStrict() DeserializeOption {
	return func(cfg *deserializeConfig) {
		cfg.strict = true
	}
}

// WithObjectRegistry 让本次解码使用调用方提供的对象注册表，
// 以便在多次解码之间共享对象身份（跨树重建循环引用）。
func WithObjectRegistry(reg *ObjectRegistry) DeserializeOption {
	return func(cfg *deserializeConfig) {
		cfg.registry = reg
	}
}

// WithDeserializeMaxDepth 设置解码侧最大嵌套深度。n <= 0 时调用返回 ErrParameterInvalid。
func WithDeserializeMaxDepth(n int) DeserializeOption {
	return func(cfg *deserializeConfig) {
		cfg.maxDepth = n
	}
}

func newDeserializeConfig(opts ...DeserializeOption) deserializeConfig {
	cfg := deserializeConfig{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
