package serialization

import (
	"math"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// Kind 标识节点在标记树中的形态。
type Kind uint8

const (
	// KindPrimitive 表示标量节点：nil / bool / int64 / uint64 / float64 / string。
	KindPrimitive Kind = iota
	// KindObject 表示带 _type（及可选 _id）标记的对象节点。
	KindObject
	// KindSequence 表示有序序列节点。
	KindSequence
	// KindMapping 表示字符串键的有序映射节点。
	KindMapping
	// KindCallable 表示可调用引用节点（函数 / 绑定方法 / 内建）。
	KindCallable
	// KindExpression 表示沙箱表达式节点。
	KindExpression
)

// String 返回 Kind 的可读名称。
func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindObject:
		return "object"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindCallable:
		return "callable"
	case KindExpression:
		return "expression"
	default:
		return "unknown"
	}
}

// 标记树的保留键与类型标记。
const (
	typeKey = "_type"
	idKey   = "_id"

	callableTag   = "callable"
	expressionTag = "lambda_expression"

	callableTypeKey = "callable_type"
	moduleKey       = "module"
	nameKey         = "name"
	classNameKey    = "class_name"
	methodNameKey   = "method_name"
	objectIDKey     = "object_id"
	expressionKey   = "expression"
)

// 可调用引用的三种形态。
const (
	CallableTypeFunction = "function"
	CallableTypeMethod   = "method"
	CallableTypeBuiltin  = "builtin"
)

// Field 是对象节点中的一个命名字段，字段顺序即声明顺序。
type Field struct {
	Name  string
	Value *Node
}

// MapEntry 是映射节点中的一个键值对，条目顺序即遇到顺序。
type MapEntry struct {
	Key   string
	Value *Node
}

// CallableRef 是可调用引用节点的载荷。
//
// CallableType 决定有效字段：
//   - function：Module + Name
//   - method  ：ClassName + MethodName + ObjectID
//   - builtin ：Name
type CallableRef struct {
	CallableType string
	Module       string
	Name         string
	ClassName    string
	MethodName   string
	ObjectID     string
}

// Node 是标记树的封闭节点联合体。
//
// 节点只能经由构造函数或线上解码产生，内部保证 kind 与载荷一致。
// Node 实现 json.Marshaler/json.Unmarshaler，线上形态见包文档。
type Node struct {
	kind Kind

	// KindPrimitive：nil / bool / int64 / uint64 / float64 / string。
	prim any

	// KindObject。
	typeName string
	objectID string
	fields   []Field

	// KindSequence。
	elems []*Node

	// KindMapping。
	entries []MapEntry

	// KindCallable。
	callable *CallableRef

	// KindExpression。
	source string
}

// NewPrimitiveNode 创建标量节点。
//
// 所有整数宽度归一化为 int64（超出 int64 范围的 uint64 保留为 uint64），
// float32 归一化为 float64。值不在标量集合内时返回 ErrValueUnsupported。
func NewPrimitiveNode(value any) (*Node, error) {
	n := &Node{kind: KindPrimitive}
	switch v := value.(type) {
	case nil:
		n.prim = nil
	case bool:
		n.prim = v
	case string:
		n.prim = v
	case int:
		n.prim = int64(v)
	case int8:
		n.prim = int64(v)
	case int16:
		n.prim = int64(v)
	case int32:
		n.prim = int64(v)
	case int64:
		n.prim = v
	case uint:
		n.prim = int64(v)
	case uint8:
		n.prim = int64(v)
	case uint16:
		n.prim = int64(v)
	case uint32:
		n.prim = int64(v)
	case uint64:
		if v > math.MaxInt64 {
			n.prim = v
		} else {
			n.prim = int64(v)
		}
	case float32:
		n.prim = float64(v)
	case float64:
		n.prim = v
	default:
		return nil, merr.WrapErrValueUnsupported(value, "not a primitive")
	}
	return n, nil
}

// NullNode 返回表示 null 的标量节点。
func NullNode() *Node {
	return &Node{kind: KindPrimitive}
}

// NewObjectNode 创建对象节点。typeName 不能为空；objectID 为空表示匿名对象。
//
// 只带 _type/_id 而没有任何字段的对象节点是合法的回引形态，
// 解码时按身份从对象注册表解析。
func NewObjectNode(typeName, objectID string, fields []Field) (*Node, error) {
	if typeName == "" {
		return nil, merr.WrapErrParameterInvalidMsg("object node requires a non-empty type name")
	}
	return &Node{
		kind:     KindObject,
		typeName: typeName,
		objectID: objectID,
		fields:   fields,
	}, nil
}

// NewSequenceNode 创建序列节点，元素顺序保持。
func NewSequenceNode(elems ...*Node) *Node {
	return &Node{kind: KindSequence, elems: elems}
}

// NewMappingNode 创建映射节点，条目顺序保持。
//
// 键 _type 与 _id 为线格式保留键：携带它们的映射无法与标记节点区分，
// 返回 ErrValueUnsupported。
func NewMappingNode(entries []MapEntry) (*Node, error) {
	for _, e := range entries {
		if e.Key == typeKey || e.Key == idKey {
			return nil, merr.WrapErrValueUnsupportedReason(
				"mapping key " + e.Key + " collides with a reserved wire key")
		}
	}
	return &Node{kind: KindMapping, entries: entries}, nil
}

// NewFunctionCallableNode 创建函数引用节点。
func NewFunctionCallableNode(module, name string) *Node {
	return &Node{kind: KindCallable, callable: &CallableRef{
		CallableType: CallableTypeFunction,
		Module:       module,
		Name:         name,
	}}
}

// NewMethodCallableNode 创建绑定方法引用节点。
func NewMethodCallableNode(className, methodName, objectID string) *Node {
	return &Node{kind: KindCallable, callable: &CallableRef{
		CallableType: CallableTypeMethod,
		ClassName:    className,
		MethodName:   methodName,
		ObjectID:     objectID,
	}}
}

// NewBuiltinCallableNode 创建内建引用节点。
func NewBuiltinCallableNode(name string) *Node {
	return &Node{kind: KindCallable, callable: &CallableRef{
		CallableType: CallableTypeBuiltin,
		Name:         name,
	}}
}

// NewExpressionNode 创建沙箱表达式节点，source 为单表达式源码。
func NewExpressionNode(source string) *Node {
	return &Node{kind: KindExpression, source: source}
}

// Kind 返回节点形态。
func (n *Node) Kind() Kind {
	return n.kind
}

// IsNull 判断节点是否为 null 标量。
func (n *Node) IsNull() bool {
	return n.kind == KindPrimitive && n.prim == nil
}

// Primitive 返回标量值；仅当 Kind 为 KindPrimitive 时有意义。
func (n *Node) Primitive() any {
	return n.prim
}

// TypeName 返回对象节点的类型标记；非对象节点返回空串。
func (n *Node) TypeName() string {
	return n.typeName
}

// ObjectID 返回对象节点的身份标识；未携带时为空串。
func (n *Node) ObjectID() string {
	return n.objectID
}

// Fields 返回对象节点的字段列表（声明顺序）。调用方不应修改返回的切片。
func (n *Node) Fields() []Field {
	return n.fields
}

// FieldByName 按名字查找对象节点的字段值。
func (n *Node) FieldByName(name string) (*Node, bool) {
	for _, f := range n.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Elements 返回序列节点的元素列表。调用方不应修改返回的切片。
func (n *Node) Elements() []*Node {
	return n.elems
}

// Entries 返回映射节点的条目列表（遇到顺序）。调用方不应修改返回的切片。
func (n *Node) Entries() []MapEntry {
	return n.entries
}

// Callable 返回可调用引用载荷；非可调用节点返回 nil。
func (n *Node) Callable() *CallableRef {
	return n.callable
}

// ExpressionSource 返回表达式节点的源码；非表达式节点返回空串。
func (n *Node) ExpressionSource() string {
	return n.source
}
