package serialization

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/lk2023060901/serilux-go/pkg/log"
	"github.com/lk2023060901/serilux-go/pkg/metrics"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// Factory 构造一个可填充的空白实例，供反序列化阶段 1 使用。
type Factory func() Serializable

// registration 记录一个已登记类型：工厂 + 具体类型指纹。
type registration struct {
	factory Factory

	// fingerprint 为工厂产物的具体 Go 类型指纹（%T），
	// 用于区分“同名重复登记”与“同名不同类型冲突”。
	fingerprint string
}

// TypeRegistry 维护类型名到工厂的映射。
//
// 登记通常发生在包初始化阶段，解码热路径只读，
// 因此使用读写锁而非并发容器。
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]registration
}

// NewTypeRegistry 创建一个空的类型注册表。
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string]registration),
	}
}

// defaultTypeRegistry 是包级默认注册表，Register/Resolve 等包级函数作用于它。
var defaultTypeRegistry = NewTypeRegistry()

// DefaultTypeRegistry 返回包级默认注册表。
func DefaultTypeRegistry() *TypeRegistry {
	return defaultTypeRegistry
}

// probeFactory 执行可构造性探测：工厂必须能在零参数下构造出
// 非 nil、且 TypeName 与登记名一致的实例。探测在 recover 保护下进行。
func probeFactory(name string, factory Factory) (fingerprint string, err error) {
	if name == "" {
		return "", merr.WrapErrParameterInvalidMsg("type name must not be empty")
	}
	if factory == nil {
		return "", merr.WrapErrConstructionContract(name, "factory is nil")
	}

	defer func() {
		if r := recover(); r != nil {
			fingerprint = ""
			err = merr.WrapErrConstructionContract(name, fmt.Sprintf("factory panicked: %v", r))
		}
	}()

	inst := factory()
	if isNil(inst) {
		return "", merr.WrapErrConstructionContract(name, "factory returned nil")
	}
	if got := inst.TypeName(); got != name {
		return "", merr.WrapErrConstructionContract(name,
			fmt.Sprintf("factory builds type %q", got))
	}
	return fmt.Sprintf("%T", inst), nil
}

// Register 登记类型名到工厂的映射。
//
// 登记前执行可构造性探测，失败返回 ErrConstructionContract。
// 同名重复登记在指纹一致时幂等；指纹不一致返回 ErrRegistrationConflict。
func (r *TypeRegistry) Register(name string, factory Factory) error {
	fingerprint, err := probeFactory(name, factory)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.types[name]; ok {
		if existing.fingerprint == fingerprint {
			return nil
		}
		log.Warn("type registration conflict",
			zap.String("name", name),
			zap.String("registered", existing.fingerprint),
			zap.String("incoming", fingerprint))
		return merr.WrapErrRegistrationConflict(name, existing.fingerprint, fingerprint)
	}

	r.types[name] = registration{factory: factory, fingerprint: fingerprint}
	// 指标只跟踪包级默认注册表；临时注册表（多见于测试）不计入。
	if r == defaultTypeRegistry {
		metrics.CodecRegisteredTypes.Set(float64(len(r.types)))
	}
	log.Debug("type registered",
		zap.String("name", name),
		zap.String("fingerprint", fingerprint))
	return nil
}

// MustRegister 与 Register 一致，失败时 panic。用于包初始化阶段的登记。
func (r *TypeRegistry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Resolve 按名字解析工厂，未登记时返回 ErrTypeNotFound。
func (r *TypeRegistry) Resolve(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.types[name]
	if !ok {
		return nil, merr.WrapErrTypeNotFound(name)
	}
	return reg.factory, nil
}

// fingerprintOf 返回已登记类型的指纹，供校验器比对实例的具体类型。
func (r *TypeRegistry) fingerprintOf(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.types[name]
	return reg.fingerprint, ok
}

// Registered 返回全部已登记的类型名，顺序不保证。
func (r *TypeRegistry) Registered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Keys(r.types)
}

// Len 返回已登记的类型数量。
func (r *TypeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}

// Clear 清空注册表。主要用于测试隔离。
func (r *TypeRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = make(map[string]registration)
	if r == defaultTypeRegistry {
		metrics.CodecRegisteredTypes.Set(0)
	}
}

// Register 在包级默认注册表上登记类型。
func Register(name string, factory Factory) error {
	return defaultTypeRegistry.Register(name, factory)
}

// MustRegister 在包级默认注册表上登记类型，失败时 panic。
func MustRegister(name string, factory Factory) {
	defaultTypeRegistry.MustRegister(name, factory)
}

// Resolve 在包级默认注册表上解析工厂。
func Resolve(name string) (Factory, error) {
	return defaultTypeRegistry.Resolve(name)
}
