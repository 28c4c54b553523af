package serialization

import (
	"fmt"
	"reflect"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/serilux-go/internal/json"
	"github.com/lk2023060901/serilux-go/pkg/log"
	"github.com/lk2023060901/serilux-go/pkg/metrics"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// Serialize 将对象图编码为标记树。
//
// 遍历为深度优先且不修改对象；深度按容器嵌套层数计数（根对象为 1），
// 超过上限返回 ErrDepthLimitExceeded。编码侧不做环检测：
// 真正的对象环最终由深度上限截断，跨树身份由解码侧的对象注册表还原。
func Serialize(obj Serializable, opts ...SerializeOption) (*Node, error) {
	cfg := newSerializeConfig(opts...)
	if cfg.maxDepth <= 0 {
		return nil, merr.WrapErrParameterInvalidMsg("max depth must be positive, got %d", cfg.maxDepth)
	}
	if isNil(obj) {
		return nil, merr.WrapErrParameterInvalidMsg("object must not be nil")
	}

	start := time.Now()
	s := &serializer{cfg: cfg}
	node, err := s.encodeObject(obj, 1)
	if err != nil {
		metrics.CodecSerializeTotal.WithLabelValues(metrics.FailLabel).Inc()
		log.Warn("serialize failed",
			zap.String("type", obj.TypeName()),
			zap.Error(err))
		return nil, err
	}
	metrics.CodecSerializeTotal.WithLabelValues(metrics.SuccessLabel).Inc()
	metrics.CodecSerializeLatency.Observe(float64(time.Since(start).Milliseconds()))
	return node, nil
}

// Marshal 将对象图编码为线格式 JSON 字节。
func Marshal(obj Serializable, opts ...SerializeOption) ([]byte, error) {
	node, err := Serialize(obj, opts...)
	if err != nil {
		return nil, err
	}
	return json.Marshal(node)
}

// SerializeCallable 独立编码一个可调用引用。
//
// c 为 nil 时编码为 null 标量节点，调用方无需为可选回调做判空。
// 独立编码没有“正在编码的对象”，因此不执行方法所有权检查，
// 但方法接收者缺少身份标识仍返回 ErrCallableInvalid。
func SerializeCallable(c *Callable) (*Node, error) {
	if c == nil {
		return NullNode(), nil
	}
	return encodeCallable(nil, c)
}

type serializer struct {
	cfg serializeConfig
}

func (s *serializer) encodeObject(obj Serializable, depth int) (*Node, error) {
	if depth > s.cfg.maxDepth {
		return nil, merr.WrapErrDepthLimitExceeded(s.cfg.maxDepth, depth)
	}

	names := obj.SerializableFields()
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		value, err := obj.Field(name)
		if err != nil {
			return nil, merr.WrapErrFieldInvalid(obj.TypeName(), name, err.Error())
		}
		child, err := s.encodeValue(obj, name, value, depth+1)
		if err != nil {
			return nil, err
		}
		fields = append(fields, Field{Name: name, Value: child})
	}
	return NewObjectNode(obj.TypeName(), obj.ObjectID(), fields)
}

// encodeValue 编码封闭值集合中的一个值。depth 是该值自身所处的嵌套深度，
// 标量与可调用引用是叶子，不消耗深度。
func (s *serializer) encodeValue(owner Serializable, field string, value any, depth int) (*Node, error) {
	if isNil(value) {
		return NullNode(), nil
	}

	switch v := value.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return NewPrimitiveNode(v)

	case []any:
		return s.encodeSequence(owner, field, v, depth)
	case []string:
		return s.encodeSequence(owner, field, lo.ToAnySlice(v), depth)
	case []int:
		return s.encodeSequence(owner, field, lo.ToAnySlice(v), depth)
	case []int64:
		return s.encodeSequence(owner, field, lo.ToAnySlice(v), depth)
	case []float64:
		return s.encodeSequence(owner, field, lo.ToAnySlice(v), depth)
	case []bool:
		return s.encodeSequence(owner, field, lo.ToAnySlice(v), depth)

	case map[string]any:
		return s.encodeMapping(owner, field, v, depth)
	case map[string]string:
		anyValues := lo.MapValues(v, func(item string, _ string) any { return item })
		return s.encodeMapping(owner, field, anyValues, depth)

	case *Node:
		// 预构建的子树直接挂入，深度由其构造方负责。
		return v, nil

	case *Callable:
		return encodeCallable(owner, v)

	case Serializable:
		return s.encodeObject(v, depth)

	default:
		if reflect.TypeOf(value).Kind() == reflect.Map {
			return nil, merr.WrapErrValueUnsupported(value, "mapping keys must be strings")
		}
		return nil, merr.WrapErrFieldInvalid(owner.TypeName(), field,
			fmt.Sprintf("unsupported value type %T", value))
	}
}

func (s *serializer) encodeSequence(owner Serializable, field string, items []any, depth int) (*Node, error) {
	if depth > s.cfg.maxDepth {
		return nil, merr.WrapErrDepthLimitExceeded(s.cfg.maxDepth, depth)
	}
	elems := make([]*Node, 0, len(items))
	for _, item := range items {
		child, err := s.encodeValue(owner, field, item, depth+1)
		if err != nil {
			return nil, err
		}
		elems = append(elems, child)
	}
	return NewSequenceNode(elems...), nil
}

// encodeMapping 编码字符串键映射。Go map 无固有顺序，
// 编码侧按键的字典序输出以保证结果确定；线格式层面的条目顺序
// 在节点与字节之间往返保持不变。
func (s *serializer) encodeMapping(owner Serializable, field string, m map[string]any, depth int) (*Node, error) {
	if depth > s.cfg.maxDepth {
		return nil, merr.WrapErrDepthLimitExceeded(s.cfg.maxDepth, depth)
	}

	keys := maps.Keys(m)
	slices.Sort(keys)

	entries := make([]MapEntry, 0, len(keys))
	for _, key := range keys {
		child, err := s.encodeValue(owner, field, m[key], depth+1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, MapEntry{Key: key, Value: child})
	}
	return NewMappingNode(entries)
}

// encodeCallable 编码可调用引用。owner 为正在编码的对象；
// owner 非 nil 时，方法形态执行所有权检查：绑定接收者必须就是 owner 本身。
func encodeCallable(owner Serializable, c *Callable) (*Node, error) {
	switch c.kind {
	case CallableFunction:
		return NewFunctionCallableNode(c.module, c.name), nil

	case CallableMethod:
		if owner != nil && c.owner != owner {
			return nil, merr.WrapErrMethodOwnership(c.owner.TypeName(), c.methodName,
				"bound receiver is not the object being encoded")
		}
		id := c.owner.ObjectID()
		if id == "" {
			return nil, merr.WrapErrCallableInvalid(CallableTypeMethod,
				"method owner has no object id; the reference could not be resolved on decode")
		}
		return NewMethodCallableNode(c.owner.TypeName(), c.methodName, id), nil

	case CallableBuiltin:
		return NewBuiltinCallableNode(c.name), nil

	case CallableExpression:
		return NewExpressionNode(c.program.Source()), nil

	default:
		return nil, merr.WrapErrCallableInvalid("unknown",
			fmt.Sprintf("unknown callable kind %d", c.kind))
	}
}

// isNil 判断接口值是否为 nil，或携带类型化的 nil 指针/容器。
// 仅做 Kind 级别判断，不涉及字段反射。
func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
