package serialization

import (
	"bytes"
	"io"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/lk2023060901/serilux-go/internal/json"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// 线格式（JSON 文本）：
//   - 标量       → 裸 JSON 标量
//   - 序列       → JSON 数组
//   - 映射       → 不含 _type 键的 JSON 对象
//   - 对象       → {"_type": <类型名>, "_id": <身份，空省略>, <字段>...}，字段保持声明顺序
//   - 可调用引用 → {"_type":"callable","callable_type":"function"|"method"|"builtin", ...}
//   - 表达式     → {"_type":"lambda_expression","expression": <源码>}
//
// 解码分派：携带 _type 的 JSON 对象是标记节点，否则是映射。
// 数字在整数时解码为 int64（超出范围时 uint64），否则 float64。

// 编译期断言：Node 直接承担线格式编解码。
var (
	_ json.Marshaler   = (*Node)(nil)
	_ json.Unmarshaler = (*Node)(nil)
)

// wireAPI 用于保序、保数字形态的流式解码。
var wireAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalJSON 实现 json.Marshaler，按线格式输出节点树。
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeNode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON 实现 json.Unmarshaler，从线格式重建节点树。
// 结构不合法的输入返回 ErrNodeMalformed。
func (n *Node) UnmarshalJSON(data []byte) error {
	iter := wireAPI.BorrowIterator(data)
	defer wireAPI.ReturnIterator(iter)

	decoded, err := readNode(iter)
	if err != nil {
		return err
	}
	if iter.Error != nil && iter.Error != io.EOF {
		return merr.WrapErrNodeMalformed(iter.Error.Error())
	}
	*n = *decoded
	return nil
}

func writeNode(buf *bytes.Buffer, n *Node) error {
	// 子树中的 nil 指针按 null 输出，与 encoding/json 对 nil 的处理一致。
	if n == nil {
		buf.WriteString("null")
		return nil
	}

	switch n.kind {
	case KindPrimitive:
		raw, err := json.Marshal(n.prim)
		if err != nil {
			return merr.WrapErrIoFailed("primitive", err)
		}
		buf.Write(raw)
		return nil

	case KindObject:
		buf.WriteByte('{')
		writeKey(buf, typeKey)
		writeString(buf, n.typeName)
		if n.objectID != "" {
			buf.WriteByte(',')
			writeKey(buf, idKey)
			writeString(buf, n.objectID)
		}
		for _, f := range n.fields {
			buf.WriteByte(',')
			writeKey(buf, f.Name)
			if err := writeNode(buf, f.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case KindSequence:
		buf.WriteByte('[')
		for i, e := range n.elems {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case KindMapping:
		buf.WriteByte('{')
		for i, e := range n.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeKey(buf, e.Key)
			if err := writeNode(buf, e.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case KindCallable:
		c := n.callable
		buf.WriteByte('{')
		writeKey(buf, typeKey)
		writeString(buf, callableTag)
		buf.WriteByte(',')
		writeKey(buf, callableTypeKey)
		writeString(buf, c.CallableType)
		switch c.CallableType {
		case CallableTypeFunction:
			buf.WriteByte(',')
			writeKey(buf, moduleKey)
			writeString(buf, c.Module)
			buf.WriteByte(',')
			writeKey(buf, nameKey)
			writeString(buf, c.Name)
		case CallableTypeMethod:
			buf.WriteByte(',')
			writeKey(buf, classNameKey)
			writeString(buf, c.ClassName)
			buf.WriteByte(',')
			writeKey(buf, methodNameKey)
			writeString(buf, c.MethodName)
			buf.WriteByte(',')
			writeKey(buf, objectIDKey)
			writeString(buf, c.ObjectID)
		case CallableTypeBuiltin:
			buf.WriteByte(',')
			writeKey(buf, nameKey)
			writeString(buf, c.Name)
		default:
			return merr.WrapErrCallableInvalid(c.CallableType, "unknown callable type")
		}
		buf.WriteByte('}')
		return nil

	case KindExpression:
		buf.WriteByte('{')
		writeKey(buf, typeKey)
		writeString(buf, expressionTag)
		buf.WriteByte(',')
		writeKey(buf, expressionKey)
		writeString(buf, n.source)
		buf.WriteByte('}')
		return nil

	default:
		return merr.WrapErrNodeMalformed("unknown node kind " + n.kind.String())
	}
}

func writeString(buf *bytes.Buffer, s string) {
	// json.Marshal 对字符串只会失败于非法 UTF-8，此时 sonic 会做替换而不报错。
	raw, _ := json.Marshal(s)
	buf.Write(raw)
}

func writeKey(buf *bytes.Buffer, key string) {
	writeString(buf, key)
	buf.WriteByte(':')
}

func readNode(iter *jsoniter.Iterator) (*Node, error) {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		return NullNode(), nil

	case jsoniter.BoolValue:
		return &Node{kind: KindPrimitive, prim: iter.ReadBool()}, nil

	case jsoniter.NumberValue:
		return numberNode(iter.ReadNumber())

	case jsoniter.StringValue:
		return &Node{kind: KindPrimitive, prim: iter.ReadString()}, nil

	case jsoniter.ArrayValue:
		var (
			elems []*Node
			cbErr error
		)
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			child, err := readNode(it)
			if err != nil {
				cbErr = err
				return false
			}
			elems = append(elems, child)
			return true
		})
		if cbErr != nil {
			return nil, cbErr
		}
		return NewSequenceNode(elems...), nil

	case jsoniter.ObjectValue:
		return readTaggedOrMapping(iter)

	default:
		iter.Skip()
		return nil, merr.WrapErrNodeMalformed("unrecognized JSON value")
	}
}

// numberNode 按整数优先的顺序还原数字：int64 → uint64 → float64。
func numberNode(num json.Number) (*Node, error) {
	s := num.String()
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return &Node{kind: KindPrimitive, prim: i}, nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return &Node{kind: KindPrimitive, prim: u}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, merr.WrapErrNodeMalformed("invalid number literal " + strconv.Quote(s))
	}
	return &Node{kind: KindPrimitive, prim: f}, nil
}

// readTaggedOrMapping 先按遇到顺序读出全部键值对，再依据 _type 分派节点形态。
func readTaggedOrMapping(iter *jsoniter.Iterator) (*Node, error) {
	var (
		entries []MapEntry
		cbErr   error
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		child, err := readNode(it)
		if err != nil {
			cbErr = err
			return false
		}
		entries = append(entries, MapEntry{Key: key, Value: child})
		return true
	})
	if cbErr != nil {
		return nil, cbErr
	}

	tagIdx := -1
	for i, e := range entries {
		if e.Key == typeKey {
			tagIdx = i
			break
		}
	}
	if tagIdx < 0 {
		// 无标记即映射；_id 是保留键，携带它的映射无法再编码回线格式。
		for _, e := range entries {
			if e.Key == idKey {
				return nil, merr.WrapErrNodeMalformed("mapping carries reserved key " + idKey)
			}
		}
		return &Node{kind: KindMapping, entries: entries}, nil
	}

	tag := entries[tagIdx].Value
	tagName, ok := tag.prim.(string)
	if tag.kind != KindPrimitive || !ok {
		return nil, merr.WrapErrNodeMalformed(typeKey + " must be a string")
	}

	switch tagName {
	case callableTag:
		return callableFromEntries(entries)
	case expressionTag:
		return expressionFromEntries(entries)
	default:
		return objectFromEntries(tagName, entries)
	}
}

// stringEntry 查找 key 对应的字符串值；存在但不是字符串时报结构错误。
func stringEntry(entries []MapEntry, key string) (string, bool, error) {
	for _, e := range entries {
		if e.Key != key {
			continue
		}
		s, ok := e.Value.prim.(string)
		if e.Value.kind != KindPrimitive || !ok {
			return "", false, merr.WrapErrNodeMalformed(key + " must be a string")
		}
		return s, true, nil
	}
	return "", false, nil
}

func requireStringEntry(entries []MapEntry, key, nodeDesc string) (string, error) {
	s, ok, err := stringEntry(entries, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", merr.WrapErrNodeMalformed(nodeDesc + " node missing " + key)
	}
	return s, nil
}

func callableFromEntries(entries []MapEntry) (*Node, error) {
	ct, err := requireStringEntry(entries, callableTypeKey, callableTag)
	if err != nil {
		return nil, err
	}

	switch ct {
	case CallableTypeFunction:
		module, err := requireStringEntry(entries, moduleKey, callableTag)
		if err != nil {
			return nil, err
		}
		name, err := requireStringEntry(entries, nameKey, callableTag)
		if err != nil {
			return nil, err
		}
		return NewFunctionCallableNode(module, name), nil

	case CallableTypeMethod:
		className, err := requireStringEntry(entries, classNameKey, callableTag)
		if err != nil {
			return nil, err
		}
		methodName, err := requireStringEntry(entries, methodNameKey, callableTag)
		if err != nil {
			return nil, err
		}
		objectID, err := requireStringEntry(entries, objectIDKey, callableTag)
		if err != nil {
			return nil, err
		}
		return NewMethodCallableNode(className, methodName, objectID), nil

	case CallableTypeBuiltin:
		name, err := requireStringEntry(entries, nameKey, callableTag)
		if err != nil {
			return nil, err
		}
		return NewBuiltinCallableNode(name), nil

	default:
		return nil, merr.WrapErrNodeMalformed("unknown " + callableTypeKey + " " + strconv.Quote(ct))
	}
}

func expressionFromEntries(entries []MapEntry) (*Node, error) {
	source, err := requireStringEntry(entries, expressionKey, expressionTag)
	if err != nil {
		return nil, err
	}
	return NewExpressionNode(source), nil
}

func objectFromEntries(typeName string, entries []MapEntry) (*Node, error) {
	if typeName == "" {
		return nil, merr.WrapErrNodeMalformed(typeKey + " must not be empty")
	}
	objectID, _, err := stringEntry(entries, idKey)
	if err != nil {
		return nil, err
	}

	fields := make([]Field, 0, len(entries))
	for _, e := range entries {
		if e.Key == typeKey || e.Key == idKey {
			continue
		}
		fields = append(fields, Field{Name: e.Key, Value: e.Value})
	}
	return NewObjectNode(typeName, objectID, fields)
}
