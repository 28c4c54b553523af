// Package serialization 实现带身份标识的对象图编解码：
// 将内存中的对象图转换为类型标记的 JSON 兼容树，并从这种树中重建等价的对象图。
//
// 支持嵌套对象、序列、字符串键映射、可调用引用（函数 / 绑定方法 / 内建 / 沙箱表达式），
// 通过类型注册表 + 对象注册表维护跨编解码的对象身份，
// 并采用两阶段反序列化正确还原循环引用与前向引用。
package serialization

import (
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// Serializable 是参与编解码的对象必须实现的能力接口。
//
// 设计目标：
//   - 不依赖反射做字段发现：类型显式声明参与序列化的字段集合；
//   - 不在反序列化时执行任意代码：实例只能由注册表中登记的工厂构造。
type Serializable interface {
	// TypeName 返回类型在注册表中的名字，同一类型的所有实例必须返回相同值。
	TypeName() string

	// ObjectID 返回实例的身份标识；返回空串表示该实例不参与跨引用。
	ObjectID() string

	// SerializableFields 返回参与序列化的字段名列表，顺序即编码顺序。
	SerializableFields() []string

	// Field 按名字读取字段值。值必须落在编码器支持的封闭集合内。
	Field(name string) (any, error)

	// SetField 按名字写入字段值。反序列化按声明顺序逐字段调用。
	SetField(name string, value any) error
}

// MethodFunc 是函数、绑定方法、内建与已编译表达式统一的可调用形态。
type MethodFunc func(args ...any) (any, error)

// MethodProvider 是可选能力：按名字暴露可被序列化引用的绑定方法。
//
// 只有实现了该接口的对象才能作为方法型 Callable 的接收者。
type MethodProvider interface {
	SerializableMethod(name string) (MethodFunc, bool)
}

// Meta 是可内嵌的身份与字段集合管理器，为 Serializable 提供
// ObjectID/SerializableFields 的默认实现。
//
// 典型用法：
//
//	type Task struct {
//	    serialization.Meta
//	    Name string
//	}
//
// 零值可用；字段集合的维护（增删查）不做内部加锁，
// 约定在对象构造阶段完成声明。
type Meta struct {
	objectID string

	fields   []string
	fieldSet map[string]struct{}
}

// SetObjectID 设置实例的身份标识。
func (m *Meta) SetObjectID(id string) {
	m.objectID = id
}

// ObjectID 返回实例的身份标识，未设置时为空串。
func (m *Meta) ObjectID() string {
	return m.objectID
}

// AddSerializableFields 将若干字段名追加到序列化声明中，保持调用顺序。
//
// 空字段名是声明错误，直接返回 ErrParameterInvalid；重复声明同一字段为幂等。
func (m *Meta) AddSerializableFields(names ...string) error {
	for _, name := range names {
		if name == "" {
			return merr.WrapErrParameterInvalidMsg("serializable field name must not be empty")
		}
	}
	if m.fieldSet == nil {
		m.fieldSet = make(map[string]struct{}, len(names))
	}
	for _, name := range names {
		if _, ok := m.fieldSet[name]; ok {
			continue
		}
		m.fieldSet[name] = struct{}{}
		m.fields = append(m.fields, name)
	}
	return nil
}

// RemoveSerializableFields 从序列化声明中移除若干字段名，未声明过的名字忽略。
func (m *Meta) RemoveSerializableFields(names ...string) {
	if m.fieldSet == nil {
		return
	}
	for _, name := range names {
		if _, ok := m.fieldSet[name]; !ok {
			continue
		}
		delete(m.fieldSet, name)
		for i, f := range m.fields {
			if f == name {
				m.fields = append(m.fields[:i], m.fields[i+1:]...)
				break
			}
		}
	}
}

// HasSerializableField 判断字段是否已声明。
func (m *Meta) HasSerializableField(name string) bool {
	_, ok := m.fieldSet[name]
	return ok
}

// SerializableFields 返回已声明字段名的副本，保持声明顺序。
func (m *Meta) SerializableFields() []string {
	out := make([]string, len(m.fields))
	copy(out, m.fields)
	return out
}
