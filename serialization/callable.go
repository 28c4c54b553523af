package serialization

import (
	"github.com/lk2023060901/serilux-go/expression"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
	"github.com/lk2023060901/serilux-go/pkg/util/typeutil"

	"golang.org/x/exp/slices"
)

// CallableKind 标识 Callable 的形态。
type CallableKind uint8

const (
	// CallableFunction 表示函数注册表中的自由函数。
	CallableFunction CallableKind = iota
	// CallableMethod 表示绑定到某个 Serializable 实例的方法。
	CallableMethod
	// CallableBuiltin 表示表达式包内建函数表中的内建。
	CallableBuiltin
	// CallableExpression 表示已编译的沙箱表达式。
	CallableExpression
)

// String 返回 CallableKind 的线格式名称。
func (k CallableKind) String() string {
	switch k {
	case CallableFunction:
		return CallableTypeFunction
	case CallableMethod:
		return CallableTypeMethod
	case CallableBuiltin:
		return CallableTypeBuiltin
	case CallableExpression:
		return "expression"
	default:
		return "unknown"
	}
}

// Callable 是可被序列化引用的调用体的封闭集合：
// 自由函数、绑定方法、内建、沙箱表达式。
//
// Callable 只能经由构造函数产生，构造即完成符号解析，
// 保证任何拿到的 *Callable 都可直接调用。
type Callable struct {
	kind CallableKind

	// CallableFunction。
	module string
	name   string

	// CallableMethod。绑定方法保留接收者，
	// 编码时用于方法所有权检查与身份引用。
	owner      Serializable
	methodName string

	// CallableExpression。
	program *expression.Program

	// 解析完成的调用体（表达式形态除外）。
	fn MethodFunc
}

// Func 从函数注册表解析出自由函数形态的 Callable。
// 未登记的符号返回 ErrSymbolUnknown。
func Func(module, name string) (*Callable, error) {
	fn, err := ResolveFunction(module, name)
	if err != nil {
		return nil, err
	}
	return &Callable{
		kind:   CallableFunction,
		module: module,
		name:   name,
		fn:     fn,
	}, nil
}

// BindMethod 构造绑定方法形态的 Callable。
//
// owner 必须实现 MethodProvider 并暴露 method 对应的方法，
// 否则返回 ErrCallableInvalid。
func BindMethod(owner Serializable, method string) (*Callable, error) {
	if owner == nil {
		return nil, merr.WrapErrParameterInvalidMsg("method owner must not be nil")
	}
	provider, ok := owner.(MethodProvider)
	if !ok {
		return nil, merr.WrapErrCallableInvalid(CallableTypeMethod,
			"owner type "+owner.TypeName()+" does not provide serializable methods")
	}
	fn, ok := provider.SerializableMethod(method)
	if !ok || fn == nil {
		return nil, merr.WrapErrCallableInvalid(CallableTypeMethod,
			"owner type "+owner.TypeName()+" does not expose method "+method)
	}
	return &Callable{
		kind:       CallableMethod,
		owner:      owner,
		methodName: method,
		fn:         fn,
	}, nil
}

// BuiltinCallable 从表达式包的内建函数表解析出内建形态的 Callable。
// 未知内建返回 ErrSymbolUnknown。
func BuiltinCallable(name string) (*Callable, error) {
	fn, ok := expression.Builtin(name)
	if !ok {
		return nil, merr.WrapErrSymbolUnknown(name, "not a builtin")
	}
	return &Callable{
		kind: CallableBuiltin,
		name: name,
		fn:   MethodFunc(fn),
	}, nil
}

// FromProgram 将已编译的表达式包装为 Callable。p 为 nil 时返回 nil。
func FromProgram(p *expression.Program) *Callable {
	if p == nil {
		return nil
	}
	return &Callable{
		kind:    CallableExpression,
		program: p,
	}
}

// Call 调用底层调用体。表达式形态按位置绑定 lambda 参数。
func (c *Callable) Call(args ...any) (any, error) {
	if c == nil {
		return nil, merr.WrapErrCallableInvalid("nil", "callable is nil")
	}
	switch c.kind {
	case CallableExpression:
		return c.program.Call(args...)
	default:
		if c.fn == nil {
			return nil, merr.WrapErrCallableInvalid(c.kind.String(), "callable is unresolved")
		}
		return c.fn(args...)
	}
}

// Kind 返回 Callable 的形态。
func (c *Callable) Kind() CallableKind {
	return c.kind
}

// Module 返回函数形态的模块名。
func (c *Callable) Module() string {
	return c.module
}

// Name 返回函数/内建形态的符号名。
func (c *Callable) Name() string {
	return c.name
}

// MethodName 返回方法形态的方法名。
func (c *Callable) MethodName() string {
	return c.methodName
}

// Owner 返回方法形态的接收者。
func (c *Callable) Owner() Serializable {
	return c.owner
}

// Program 返回表达式形态的已编译程序。
func (c *Callable) Program() *expression.Program {
	return c.program
}

// functionRegistry 是进程级函数注册表，键为 module.name。
// 解码函数引用时按键解析回 Go 函数。
var functionRegistry = typeutil.NewConcurrentMap[string, MethodFunc]()

func functionKey(module, name string) string {
	return module + "." + name
}

// RegisterFunction 以 module.name 为键登记自由函数。
//
// Go 函数值不可比较，无法区分“重复登记同一函数”与“换了实现”，
// 因此同键重复登记一律返回 ErrRegistrationConflict。
func RegisterFunction(module, name string, fn MethodFunc) error {
	if name == "" {
		return merr.WrapErrParameterInvalidMsg("function name must not be empty")
	}
	if fn == nil {
		return merr.WrapErrParameterInvalidMsg("function %s must not be nil", functionKey(module, name))
	}
	if _, loaded := functionRegistry.GetOrInsert(functionKey(module, name), fn); loaded {
		return merr.WrapErrRegistrationConflict(functionKey(module, name), "function", "function")
	}
	return nil
}

// MustRegisterFunction 与 RegisterFunction 一致，失败时 panic。
func MustRegisterFunction(module, name string, fn MethodFunc) {
	if err := RegisterFunction(module, name, fn); err != nil {
		panic(err)
	}
}

// ResolveFunction 按 module.name 解析已登记的函数，
// 未登记返回 ErrSymbolUnknown。
func ResolveFunction(module, name string) (MethodFunc, error) {
	fn, ok := functionRegistry.Get(functionKey(module, name))
	if !ok {
		return nil, merr.WrapErrSymbolUnknown(functionKey(module, name))
	}
	return fn, nil
}

// RegisteredFunctions 返回全部已登记函数的键（module.name），按字典序。
func RegisteredFunctions() []string {
	keys := functionRegistry.Keys()
	slices.Sort(keys)
	return keys
}
