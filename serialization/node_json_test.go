package serialization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

type NodeJSONSuite struct {
	suite.Suite
}

func TestNodeJSON(t *testing.T) {
	suite.Run(t, new(NodeJSONSuite))
}

func (s *NodeJSONSuite) decode(raw string) *Node {
	var n Node
	s.Require().NoError(n.UnmarshalJSON([]byte(raw)), raw)
	return &n
}

func (s *NodeJSONSuite) marshal(n *Node) string {
	out, err := n.MarshalJSON()
	s.Require().NoError(err)
	return string(out)
}

// roundtrip 断言解码再编码逐字节还原，覆盖顺序与数字形态的保持。
func (s *NodeJSONSuite) roundtrip(raw string) *Node {
	n := s.decode(raw)
	s.Equal(raw, s.marshal(n), raw)
	return n
}

func (s *NodeJSONSuite) TestScalars() {
	cases := []struct {
		raw  string
		want any
	}{
		{`null`, nil},
		{`true`, true},
		{`false`, false},
		{`42`, int64(42)},
		{`-7`, int64(-7)},
		{`9223372036854775807`, int64(math.MaxInt64)},
		{`18446744073709551615`, uint64(math.MaxUint64)},
		{`1.5`, 1.5},
		{`"héllo"`, "héllo"},
	}
	for _, c := range cases {
		n := s.roundtrip(c.raw)
		s.Equal(KindPrimitive, n.Kind(), c.raw)
		s.Equal(c.want, n.Primitive(), c.raw)
	}
}

func (s *NodeJSONSuite) TestNullNode() {
	s.True(s.decode(`null`).IsNull())
	s.True(NullNode().IsNull())
	s.False(s.decode(`0`).IsNull())
}

func (s *NodeJSONSuite) TestIntegerPrecedence() {
	// 整数优先还原为 int64，仅超出范围时保留 uint64；带小数点或指数的落到 float64。
	s.IsType(int64(0), s.decode(`9223372036854775807`).Primitive())
	s.IsType(uint64(0), s.decode(`9223372036854775808`).Primitive())
	s.IsType(float64(0), s.decode(`2.0`).Primitive())
	s.IsType(float64(0), s.decode(`1e3`).Primitive())
}

func (s *NodeJSONSuite) TestObjectFieldOrderPreserved() {
	raw := `{"_type":"test.Task","_id":"t1","zeta":1,"alpha":"x","mid":[1,{"k":null}]}`
	n := s.roundtrip(raw)

	s.Equal(KindObject, n.Kind())
	s.Equal("test.Task", n.TypeName())
	s.Equal("t1", n.ObjectID())

	fields := n.Fields()
	s.Require().Len(fields, 3)
	s.Equal("zeta", fields[0].Name)
	s.Equal("alpha", fields[1].Name)
	s.Equal("mid", fields[2].Name)

	mid, ok := n.FieldByName("mid")
	s.Require().True(ok)
	s.Equal(KindSequence, mid.Kind())
	s.Require().Len(mid.Elements(), 2)
	s.Equal(KindMapping, mid.Elements()[1].Kind())
}

func (s *NodeJSONSuite) TestObjectWithoutFieldsOrID() {
	// 只带标记的对象节点是合法回引形态。
	s.roundtrip(`{"_type":"test.Task","_id":"t1"}`)
	s.roundtrip(`{"_type":"test.Task"}`)

	n := s.decode(`{"_type":"test.Task"}`)
	s.Empty(n.ObjectID())
	s.Empty(n.Fields())
}

func (s *NodeJSONSuite) TestMappingOrderPreserved() {
	raw := `{"b":1,"a":{"inner":true}}`
	n := s.roundtrip(raw)

	s.Equal(KindMapping, n.Kind())
	entries := n.Entries()
	s.Require().Len(entries, 2)
	s.Equal("b", entries[0].Key)
	s.Equal("a", entries[1].Key)
}

func (s *NodeJSONSuite) TestCallableForms() {
	s.roundtrip(`{"_type":"callable","callable_type":"function","module":"jobs","name":"retry"}`)
	s.roundtrip(`{"_type":"callable","callable_type":"method","class_name":"test.Task","method_name":"Bump","object_id":"t1"}`)
	s.roundtrip(`{"_type":"callable","callable_type":"builtin","name":"len"}`)

	n := s.decode(`{"_type":"callable","callable_type":"method","class_name":"C","method_name":"run","object_id":"o1"}`)
	s.Equal(KindCallable, n.Kind())
	ref := n.Callable()
	s.Require().NotNil(ref)
	s.Equal(CallableTypeMethod, ref.CallableType)
	s.Equal("C", ref.ClassName)
	s.Equal("run", ref.MethodName)
	s.Equal("o1", ref.ObjectID)
}

func (s *NodeJSONSuite) TestCallableKeyOrderCanonicalized() {
	// 键序打乱的输入照常解码，再编码时输出规范键序。
	n := s.decode(`{"callable_type":"function","name":"f","_type":"callable","module":"m"}`)
	s.Equal(`{"_type":"callable","callable_type":"function","module":"m","name":"f"}`, s.marshal(n))
}

func (s *NodeJSONSuite) TestExpressionNode() {
	raw := `{"_type":"lambda_expression","expression":"lambda x: x + 1"}`
	n := s.roundtrip(raw)

	s.Equal(KindExpression, n.Kind())
	s.Equal("lambda x: x + 1", n.ExpressionSource())
}

func (s *NodeJSONSuite) TestStringEscapesRoundtrip() {
	s.roundtrip(`"a\nb\tc"`)
	s.Equal("a\nb\tc", s.decode(`"a\nb\tc"`).Primitive())
	// \u 转义解码后按原字符输出，不保持转义形态。
	s.Equal("é", s.decode(`"é"`).Primitive())
}

func (s *NodeJSONSuite) TestNilChildMarshalsAsNull() {
	n := NewSequenceNode(nil, NullNode())
	s.Equal(`[null,null]`, s.marshal(n))
}

func (s *NodeJSONSuite) TestMalformed() {
	cases := []string{
		``,
		`{`,
		`[1,2`,
		`{"a":1`,
		`{"a":}`,
		`1.5e`,
		`{"_id":"x","k":1}`,
		`{"_id":7,"_type":"test.Task"}`,
		`{"_type":42}`,
		`{"_type":""}`,
		`{"_type":"callable"}`,
		`{"_type":"callable","callable_type":"texture"}`,
		`{"_type":"callable","callable_type":"function","module":"m"}`,
		`{"_type":"callable","callable_type":"function","name":"f"}`,
		`{"_type":"callable","callable_type":"method","class_name":"C","method_name":"m"}`,
		`{"_type":"callable","callable_type":"builtin"}`,
		`{"_type":"callable","callable_type":"builtin","name":7}`,
		`{"_type":"lambda_expression"}`,
		`{"_type":"lambda_expression","expression":7}`,
	}
	for _, raw := range cases {
		var n Node
		err := n.UnmarshalJSON([]byte(raw))
		s.Require().Error(err, raw)
		s.ErrorIs(err, merr.ErrNodeMalformed, raw)
	}
}

func (s *NodeJSONSuite) TestPrimitiveConstructorNormalizes() {
	cases := []struct {
		in   any
		want any
	}{
		{int32(7), int64(7)},
		{uint(7), int64(7)},
		{uint64(7), int64(7)},
		{uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{float32(0.5), float64(0.5)},
		{nil, nil},
		{"s", "s"},
		{true, true},
	}
	for _, c := range cases {
		n, err := NewPrimitiveNode(c.in)
		s.Require().NoError(err)
		s.Equal(c.want, n.Primitive())
	}

	_, err := NewPrimitiveNode(make(chan int))
	s.ErrorIs(err, merr.ErrValueUnsupported)
	_, err = NewPrimitiveNode([]any{1})
	s.ErrorIs(err, merr.ErrValueUnsupported)
}

func (s *NodeJSONSuite) TestConstructorValidation() {
	_, err := NewObjectNode("", "", nil)
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = NewMappingNode([]MapEntry{{Key: "_type", Value: NullNode()}})
	s.ErrorIs(err, merr.ErrValueUnsupported)
	_, err = NewMappingNode([]MapEntry{{Key: "_id", Value: NullNode()}})
	s.ErrorIs(err, merr.ErrValueUnsupported)
}

func (s *NodeJSONSuite) TestKindString() {
	s.Equal("object", KindObject.String())
	s.Equal("expression", KindExpression.String())
	s.Equal("unknown", Kind(99).String())
}
