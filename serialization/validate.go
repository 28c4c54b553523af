package serialization

import (
	"context"
	"fmt"
	"reflect"

	"github.com/lk2023060901/serilux-go/pkg/util/conc"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// ValidateFactory 独立执行可构造性探测，检查项与登记时一致：
// 工厂在零参数下构造出非 nil、TypeName 与 name 一致的实例，且不 panic。
func ValidateFactory(name string, factory Factory) error {
	_, err := probeFactory(name, factory)
	return err
}

// ValidateTree 按序列化的遍历方式走查对象图，但不构建节点：
//   - 每个嵌套 Serializable 的类型已登记，且实例的具体类型与登记指纹一致；
//   - 方法形态的可调用引用通过所有权与身份检查；
//   - 每个字段值都落在编码器支持的封闭集合内。
//
// 深度计数与错误类型都与 Serialize 一致，可作为编码前的预检。
func ValidateTree(obj Serializable, opts ...SerializeOption) error {
	cfg := newSerializeConfig(opts...)
	if cfg.maxDepth <= 0 {
		return merr.WrapErrParameterInvalidMsg("max depth must be positive, got %d", cfg.maxDepth)
	}
	if isNil(obj) {
		return merr.WrapErrParameterInvalidMsg("object must not be nil")
	}
	v := &treeValidator{cfg: cfg}
	return v.validateObject(obj, 1)
}

// ValidateRegistered 并行重探默认注册表中的全部工厂，
// 聚合返回所有违反构造契约的类型。适合在跨包登记完成后统一预检。
func ValidateRegistered(ctx context.Context) error {
	pool := conc.NewDefaultPool[any]()
	defer pool.Release()

	names := defaultTypeRegistry.Registered()
	futures := make([]*conc.Future[any], 0, len(names))
	for _, name := range names {
		name := name
		futures = append(futures, pool.Submit(func() (any, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			factory, err := defaultTypeRegistry.Resolve(name)
			if err != nil {
				return nil, err
			}
			return nil, ValidateFactory(name, factory)
		}))
	}
	return conc.AwaitAll(futures...)
}

type treeValidator struct {
	cfg serializeConfig
}

func (v *treeValidator) validateObject(obj Serializable, depth int) error {
	if depth > v.cfg.maxDepth {
		return merr.WrapErrDepthLimitExceeded(v.cfg.maxDepth, depth)
	}

	name := obj.TypeName()
	fingerprint, ok := defaultTypeRegistry.fingerprintOf(name)
	if !ok {
		return merr.WrapErrTypeNotFound(name)
	}
	if got := fmt.Sprintf("%T", obj); got != fingerprint {
		return merr.WrapErrRegistrationConflict(name, fingerprint, got,
			"instance type does not match registered factory")
	}

	for _, fieldName := range obj.SerializableFields() {
		value, err := obj.Field(fieldName)
		if err != nil {
			return merr.WrapErrFieldInvalid(name, fieldName, err.Error())
		}
		if err := v.validateValue(obj, fieldName, value, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (v *treeValidator) validateValue(owner Serializable, field string, value any, depth int) error {
	if isNil(value) {
		return nil
	}

	switch val := value.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil

	case []any:
		return v.validateSequence(owner, field, val, depth)
	case []string, []int, []int64, []float64, []bool:
		// 便捷切片元素必为标量，深度检查即可。
		if depth > v.cfg.maxDepth {
			return merr.WrapErrDepthLimitExceeded(v.cfg.maxDepth, depth)
		}
		return nil

	case map[string]any:
		return v.validateMapping(owner, field, val, depth)
	case map[string]string:
		if depth > v.cfg.maxDepth {
			return merr.WrapErrDepthLimitExceeded(v.cfg.maxDepth, depth)
		}
		for key := range val {
			if key == typeKey || key == idKey {
				return merr.WrapErrValueUnsupportedReason(
					"mapping key " + key + " collides with a reserved wire key")
			}
		}
		return nil

	case *Node:
		return nil

	case *Callable:
		return validateCallable(owner, val)

	case Serializable:
		return v.validateObject(val, depth)

	default:
		if reflect.TypeOf(value).Kind() == reflect.Map {
			return merr.WrapErrValueUnsupported(value, "mapping keys must be strings")
		}
		return merr.WrapErrFieldInvalid(owner.TypeName(), field,
			fmt.Sprintf("unsupported value type %T", value))
	}
}

func (v *treeValidator) validateSequence(owner Serializable, field string, items []any, depth int) error {
	if depth > v.cfg.maxDepth {
		return merr.WrapErrDepthLimitExceeded(v.cfg.maxDepth, depth)
	}
	for _, item := range items {
		if err := v.validateValue(owner, field, item, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (v *treeValidator) validateMapping(owner Serializable, field string, m map[string]any, depth int) error {
	if depth > v.cfg.maxDepth {
		return merr.WrapErrDepthLimitExceeded(v.cfg.maxDepth, depth)
	}
	for key, item := range m {
		if key == typeKey || key == idKey {
			return merr.WrapErrValueUnsupportedReason(
				"mapping key " + key + " collides with a reserved wire key")
		}
		if err := v.validateValue(owner, field, item, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func validateCallable(owner Serializable, c *Callable) error {
	if c.kind != CallableMethod {
		return nil
	}
	if owner != nil && c.owner != owner {
		return merr.WrapErrMethodOwnership(c.owner.TypeName(), c.methodName,
			"bound receiver is not the object being validated")
	}
	if c.owner.ObjectID() == "" {
		return merr.WrapErrCallableInvalid(CallableTypeMethod,
			"method owner has no object id; the reference could not be resolved on decode")
	}
	return nil
}
