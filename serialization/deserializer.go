package serialization

import (
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/serilux-go/expression"
	"github.com/lk2023060901/serilux-go/internal/json"
	"github.com/lk2023060901/serilux-go/pkg/log"
	"github.com/lk2023060901/serilux-go/pkg/metrics"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
	"github.com/lk2023060901/serilux-go/pkg/util/typeutil"
)

// Deserialize 用标记树填充一个已有实例。
//
// 解码分两个阶段：
//
// 阶段 1（身份预扫描）：遍历整棵树，对每个对象节点先经类型注册表解析
// _type（未登记类型在任何实例被填充前就失败）并构造空白实例，把所有携带
// _id 的实例登记到对象注册表。根节点携带 _id 时登记的是 target 本身，
// 因此自引用的方法绑定也能解析。
//
// 阶段 2（填充）：再次遍历，按字段声明顺序 SetField。对象节点的 _id 已在
// 注册表中时复用该实例就地填充，绝不构造第二份拷贝，循环引用与前向引用
// 由此还原为指针级同一性。
func Deserialize(node *Node, target Serializable, opts ...DeserializeOption) error {
	start := time.Now()
	err := deserializeInto(node, target, opts...)
	observeDecode(start, err)
	if err != nil {
		log.Warn("deserialize failed", zap.Error(err))
	}
	return err
}

// Instantiate 从标记树构造一个新实例：根实例由类型注册表中的工厂产生。
func Instantiate(node *Node, opts ...DeserializeOption) (Serializable, error) {
	start := time.Now()
	obj, err := instantiateNode(node, opts...)
	observeDecode(start, err)
	if err != nil {
		log.Warn("instantiate failed", zap.Error(err))
	}
	return obj, err
}

// Unmarshal 从线格式 JSON 字节填充一个已有实例。
func Unmarshal(data []byte, target Serializable, opts ...DeserializeOption) error {
	var node Node
	if err := json.Unmarshal(data, &node); err != nil {
		return err
	}
	return Deserialize(&node, target, opts...)
}

// InstantiateJSON 从线格式 JSON 字节构造一个新实例。
func InstantiateJSON(data []byte, opts ...DeserializeOption) (Serializable, error) {
	var node Node
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	return Instantiate(&node, opts...)
}

func observeDecode(start time.Time, err error) {
	if err != nil {
		metrics.CodecDeserializeTotal.WithLabelValues(metrics.FailLabel).Inc()
		return
	}
	metrics.CodecDeserializeTotal.WithLabelValues(metrics.SuccessLabel).Inc()
	metrics.CodecDeserializeLatency.Observe(float64(time.Since(start).Milliseconds()))
}

func deserializeInto(node *Node, target Serializable, opts ...DeserializeOption) error {
	d, err := newDeserializer(node, opts...)
	if err != nil {
		return err
	}
	if isNil(target) {
		return merr.WrapErrParameterInvalidMsg("target must not be nil")
	}
	if node.typeName != target.TypeName() {
		return merr.WrapErrParameterInvalid(target.TypeName(), node.typeName,
			"root node type does not match target")
	}

	// 根节点带 _id 时先登记 target，再做身份预扫描：
	// 树中对 target 的回引与方法绑定都会解析到 target 本身。
	if id := node.objectID; id != "" {
		if err := adoptID(d.registry, target, id); err != nil {
			return err
		}
	}
	if err := d.phase1(node, 1); err != nil {
		return err
	}
	return d.populateObject(node, target, 1)
}

func instantiateNode(node *Node, opts ...DeserializeOption) (Serializable, error) {
	d, err := newDeserializer(node, opts...)
	if err != nil {
		return nil, err
	}
	if err := d.phase1(node, 1); err != nil {
		return nil, err
	}
	return d.decodeObject(node, 1)
}

// objectIDSetter 是可选能力：解码时把线格式携带的 _id 写回实例，
// 实例再编码时身份不丢失。内嵌 Meta 的类型天然具备。
type objectIDSetter interface {
	SetObjectID(id string)
}

// adoptID 把 obj 以 id 登记进注册表，登记成功后回写身份。
// 已被其他实例占用的 id 原样返回登记错误。
func adoptID(registry *ObjectRegistry, obj Serializable, id string) error {
	if err := registry.Register(obj, id); err != nil {
		return err
	}
	if setter, ok := obj.(objectIDSetter); ok {
		setter.SetObjectID(id)
	}
	return nil
}

type deserializer struct {
	cfg      deserializeConfig
	registry *ObjectRegistry
	types    *TypeRegistry
}

func newDeserializer(node *Node, opts ...DeserializeOption) (*deserializer, error) {
	cfg := newDeserializeConfig(opts...)
	if cfg.maxDepth <= 0 {
		return nil, merr.WrapErrParameterInvalidMsg("max depth must be positive, got %d", cfg.maxDepth)
	}
	if node == nil {
		return nil, merr.WrapErrParameterInvalidMsg("node must not be nil")
	}
	if node.kind != KindObject {
		return nil, merr.WrapErrParameterInvalidMsg("root node must be an object, got %s", node.kind.String())
	}

	registry := cfg.registry
	if registry == nil {
		registry = NewObjectRegistry()
	}
	return &deserializer{
		cfg:      cfg,
		registry: registry,
		types:    defaultTypeRegistry,
	}, nil
}

// phase1 是身份预扫描：解析并构造所有对象节点，登记所有带 _id 的实例。
// 同一 _id 的后续出现保留首个登记的实例。
// 深度只按容器层计数，与编码侧一致：标量与可调用引用是叶子。
func (d *deserializer) phase1(node *Node, depth int) error {
	if node == nil {
		return nil
	}

	switch node.kind {
	case KindObject:
		if depth > d.cfg.maxDepth {
			return merr.WrapErrDepthLimitExceeded(d.cfg.maxDepth, depth)
		}
		factory, err := d.types.Resolve(node.typeName)
		if err != nil {
			return err
		}
		inst := factory()
		if id := node.objectID; id != "" {
			if _, ok := d.registry.FindByID(id); !ok {
				if err := adoptID(d.registry, inst, id); err != nil {
					return err
				}
			}
		}
		for _, f := range node.fields {
			if err := d.phase1(f.Value, depth+1); err != nil {
				return err
			}
		}
		return nil

	case KindSequence:
		if depth > d.cfg.maxDepth {
			return merr.WrapErrDepthLimitExceeded(d.cfg.maxDepth, depth)
		}
		for _, e := range node.elems {
			if err := d.phase1(e, depth+1); err != nil {
				return err
			}
		}
		return nil

	case KindMapping:
		if depth > d.cfg.maxDepth {
			return merr.WrapErrDepthLimitExceeded(d.cfg.maxDepth, depth)
		}
		for _, e := range node.entries {
			if err := d.phase1(e.Value, depth+1); err != nil {
				return err
			}
		}
		return nil

	default:
		// 标量、可调用引用与表达式是叶子。
		return nil
	}
}

// populateObject 按节点字段顺序填充 target。节点中目标未声明的字段
// 默认忽略，严格模式下返回 ErrFieldUnknown；节点未携带的字段保持原值。
func (d *deserializer) populateObject(node *Node, target Serializable, depth int) error {
	if depth > d.cfg.maxDepth {
		return merr.WrapErrDepthLimitExceeded(d.cfg.maxDepth, depth)
	}

	declared := typeutil.NewSet(target.SerializableFields()...)
	for _, f := range node.fields {
		if !declared.Contain(f.Name) {
			if d.cfg.strict {
				return merr.WrapErrFieldUnknown(target.TypeName(), f.Name)
			}
			continue
		}
		value, err := d.decodeValue(f.Value, depth+1)
		if err != nil {
			return err
		}
		if err := target.SetField(f.Name, value); err != nil {
			return merr.WrapErrFieldInvalid(target.TypeName(), f.Name, err.Error())
		}
	}
	return nil
}

// decodeObject 解码一个对象节点为实例：_id 已登记时复用并就地填充，
// 否则构造新实例（带 _id 的同时登记）。
func (d *deserializer) decodeObject(node *Node, depth int) (Serializable, error) {
	if id := node.objectID; id != "" {
		if inst, ok := d.registry.FindByID(id); ok {
			if err := d.populateObject(node, inst, depth); err != nil {
				return nil, err
			}
			return inst, nil
		}
	}

	factory, err := d.types.Resolve(node.typeName)
	if err != nil {
		return nil, err
	}
	inst := factory()
	if id := node.objectID; id != "" {
		if err := adoptID(d.registry, inst, id); err != nil {
			return nil, err
		}
	}
	if err := d.populateObject(node, inst, depth); err != nil {
		return nil, err
	}
	return inst, nil
}

func (d *deserializer) decodeValue(node *Node, depth int) (any, error) {
	if node == nil {
		return nil, nil
	}

	switch node.kind {
	case KindPrimitive:
		return node.prim, nil

	case KindSequence:
		if depth > d.cfg.maxDepth {
			return nil, merr.WrapErrDepthLimitExceeded(d.cfg.maxDepth, depth)
		}
		out := make([]any, 0, len(node.elems))
		for _, e := range node.elems {
			v, err := d.decodeValue(e, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case KindMapping:
		if depth > d.cfg.maxDepth {
			return nil, merr.WrapErrDepthLimitExceeded(d.cfg.maxDepth, depth)
		}
		out := make(map[string]any, len(node.entries))
		for _, e := range node.entries {
			v, err := d.decodeValue(e.Value, depth+1)
			if err != nil {
				return nil, err
			}
			out[e.Key] = v
		}
		return out, nil

	case KindObject:
		return d.decodeObject(node, depth)

	case KindCallable:
		return d.resolveCallable(node.callable)

	case KindExpression:
		prog, err := expression.Compile(node.source)
		if err != nil {
			return nil, err
		}
		return FromProgram(prog), nil

	default:
		return nil, merr.WrapErrNodeMalformed("unknown node kind " + node.kind.String())
	}
}

// resolveCallable 把可调用引用解析回 *Callable。
// 方法引用经对象注册表（含自定义查找）定位接收者。
func (d *deserializer) resolveCallable(ref *CallableRef) (*Callable, error) {
	switch ref.CallableType {
	case CallableTypeFunction:
		return Func(ref.Module, ref.Name)

	case CallableTypeBuiltin:
		return BuiltinCallable(ref.Name)

	case CallableTypeMethod:
		owner, ok := d.registry.FindByClassAndID(ref.ClassName, ref.ObjectID)
		if !ok {
			return nil, merr.WrapErrObjectReferenceMissing(ref.ClassName, ref.ObjectID)
		}
		return BindMethod(owner, ref.MethodName)

	default:
		return nil, merr.WrapErrCallableInvalid(ref.CallableType, "unknown callable type")
	}
}
