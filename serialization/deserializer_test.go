package serialization

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

type DeserializerSuite struct {
	suite.Suite
}

func TestDeserializer(t *testing.T) {
	suite.Run(t, new(DeserializerSuite))
}

func (s *DeserializerSuite) SetupSuite() {
	registerFixtureTypes()
	registerFixtureFunctions()
}

func (s *DeserializerSuite) instantiate(raw string, opts ...DeserializeOption) *testTask {
	got, err := InstantiateJSON([]byte(raw), opts...)
	s.Require().NoError(err)
	task, ok := got.(*testTask)
	s.Require().True(ok)
	return task
}

func (s *DeserializerSuite) TestRoundtrip() {
	task := buildTask()
	fn, err := Func("test", "twice")
	s.Require().NoError(err)
	task.callback = fn
	task.payload = map[string]any{"k": []any{int64(1), "x"}}

	data, err := Marshal(task)
	s.Require().NoError(err)

	got, err := InstantiateJSON(data)
	s.Require().NoError(err)
	out := got.(*testTask)

	s.Equal("sync", out.name)
	s.Equal(int64(3), out.retries)
	s.Equal(0.5, out.ratio)
	s.True(out.enabled)
	s.Equal([]any{"a", int64(1), true, nil}, out.tags)
	s.Equal(map[string]any{"zone": "cn", "tier": int64(2)}, out.labels)
	s.Require().NotNil(out.step)
	s.Equal("fetch", out.step.label)
	s.Equal(int64(10), out.step.cost)
	s.Nil(out.next)
	s.Equal(map[string]any{"k": []any{int64(1), "x"}}, out.payload)

	s.Require().NotNil(out.callback)
	s.Equal(CallableFunction, out.callback.Kind())
	doubled, err := out.callback.Call(int64(21))
	s.Require().NoError(err)
	s.Equal(int64(42), doubled)
}

func (s *DeserializerSuite) TestObjectIDRestored() {
	task := s.instantiate(`{"_type":"test.Task","_id":"task-9","name":"n"}`)
	s.Equal("task-9", task.ObjectID())

	anon := s.instantiate(`{"_type":"test.Task","name":"n"}`)
	s.Empty(anon.ObjectID())
}

func (s *DeserializerSuite) TestReserializeStable() {
	// 解码产物再编码应逐字节还原，身份与方法绑定都不丢失。
	task := buildTask()
	cb, err := BindMethod(task, "Describe")
	s.Require().NoError(err)
	task.callback = cb

	first, err := Marshal(task)
	s.Require().NoError(err)

	got, err := InstantiateJSON(first)
	s.Require().NoError(err)

	second, err := Marshal(got)
	s.Require().NoError(err)
	s.Equal(string(first), string(second))
}

func (s *DeserializerSuite) TestDeserializeIntoTarget() {
	data, err := Marshal(buildTask())
	s.Require().NoError(err)

	target := newTask()
	s.Require().NoError(Unmarshal(data, target))
	s.Equal("sync", target.name)
	s.Equal("task-1", target.ObjectID())
}

func (s *DeserializerSuite) TestIntegerValuedFloat() {
	// 整数值浮点在线格式上没有小数形态，经 int64 分支回填。
	task := buildTask()
	task.ratio = 2.0

	data, err := Marshal(task)
	s.Require().NoError(err)
	s.Contains(string(data), `"ratio":2`)

	got, err := InstantiateJSON(data)
	s.Require().NoError(err)
	s.Equal(2.0, got.(*testTask).ratio)
}

func (s *DeserializerSuite) TestRootTypeMismatch() {
	node, err := Serialize(buildTask())
	s.Require().NoError(err)

	err = Deserialize(node, newStep())
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *DeserializerSuite) TestRootMustBeObject() {
	_, err := Instantiate(NewSequenceNode())
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = Instantiate(NullNode())
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = Instantiate(nil)
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = InstantiateJSON([]byte(`[1]`))
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *DeserializerSuite) TestNilTarget() {
	node, err := Serialize(buildTask())
	s.Require().NoError(err)

	s.ErrorIs(Deserialize(node, nil), merr.ErrParameterInvalid)
	s.ErrorIs(Deserialize(node, (*testTask)(nil)), merr.ErrParameterInvalid)
}

func (s *DeserializerSuite) TestUnknownType() {
	_, err := InstantiateJSON([]byte(`{"_type":"test.Ghost"}`))
	s.ErrorIs(err, merr.ErrTypeNotFound)
}

func (s *DeserializerSuite) TestEarlyTypeValidationLeavesTargetUntouched() {
	// 阶段 1 对整棵树做类型解析，嵌套的未登记类型在任何字段被填充前失败。
	target := newTask()
	target.name = "orig"

	raw := `{"_type":"test.Task","name":"new","payload":{"_type":"test.Ghost"}}`
	err := Unmarshal([]byte(raw), target)
	s.ErrorIs(err, merr.ErrTypeNotFound)
	s.Equal("orig", target.name)
}

func (s *DeserializerSuite) TestStrictMode() {
	raw := `{"_type":"test.Task","name":"n","bogus":1}`

	task := s.instantiate(raw)
	s.Equal("n", task.name)

	_, err := InstantiateJSON([]byte(raw), WithStrict())
	s.ErrorIs(err, merr.ErrFieldUnknown)
	s.ErrorContains(err, "bogus")
}

func (s *DeserializerSuite) TestSetFieldErrorWrapped() {
	_, err := InstantiateJSON([]byte(`{"_type":"test.Task","name":42}`))
	s.ErrorIs(err, merr.ErrFieldInvalid)
	s.ErrorContains(err, "name")
}

func (s *DeserializerSuite) TestMissingFieldsKeepTargetValues() {
	target := newTask()
	target.name = "keep"
	target.retries = 7

	s.Require().NoError(Unmarshal([]byte(`{"_type":"test.Task","retries":1}`), target))
	s.Equal("keep", target.name)
	s.Equal(int64(1), target.retries)
}

func (s *DeserializerSuite) TestBackReferenceRestoresCycle() {
	raw := `{"_type":"test.Task","_id":"a","name":"root",` +
		`"next":{"_type":"test.Task","_id":"b","name":"kid",` +
		`"next":{"_type":"test.Task","_id":"a"}}}`

	root := s.instantiate(raw)
	s.Require().NotNil(root.next)
	s.Equal("kid", root.next.name)
	s.Same(root, root.next.next)
}

func (s *DeserializerSuite) TestDiamondSharesInstance() {
	raw := `{"_type":"test.Task","_id":"t",` +
		`"step":{"_type":"test.Step","_id":"s1","label":"once","cost":1},` +
		`"payload":{"_type":"test.Step","_id":"s1"}}`

	root := s.instantiate(raw)
	s.Require().NotNil(root.step)
	s.Same(root.step, root.payload)
	s.Equal("once", root.step.label)
}

func (s *DeserializerSuite) TestForwardReference() {
	// 回引出现在完整定义之前：阶段 1 先占位，完整节点就地填充同一实例。
	raw := `{"_type":"test.Task","_id":"t",` +
		`"payload":{"_type":"test.Step","_id":"s1"},` +
		`"step":{"_type":"test.Step","_id":"s1","label":"late","cost":2}}`

	root := s.instantiate(raw)
	s.Same(root.step, root.payload)
	s.Equal("late", root.step.label)
	s.Equal("s1", root.step.ObjectID())
}

func (s *DeserializerSuite) TestDuplicateIDLastPopulateWins() {
	raw := `{"_type":"test.Task","_id":"t",` +
		`"step":{"_type":"test.Step","_id":"s1","label":"one","cost":1},` +
		`"payload":{"_type":"test.Step","_id":"s1","label":"two","cost":2}}`

	root := s.instantiate(raw)
	s.Same(root.step, root.payload)
	s.Equal("two", root.step.label)
	s.Equal(int64(2), root.step.cost)
}

func (s *DeserializerSuite) TestSelfMethodBinding() {
	raw := `{"_type":"test.Task","_id":"me","name":"n",` +
		`"callback":{"_type":"callable","callable_type":"method",` +
		`"class_name":"test.Task","method_name":"Bump","object_id":"me"}}`

	root := s.instantiate(raw)
	s.Require().NotNil(root.callback)

	got, err := root.callback.Call()
	s.Require().NoError(err)
	s.Equal(int64(1), got)
	s.Equal(int64(1), root.retries)
}

func (s *DeserializerSuite) TestSelfMethodBindingIntoTarget() {
	raw := `{"_type":"test.Task","_id":"me","name":"n",` +
		`"callback":{"_type":"callable","callable_type":"method",` +
		`"class_name":"test.Task","method_name":"Bump","object_id":"me"}}`

	target := newTask()
	s.Require().NoError(Unmarshal([]byte(raw), target))

	_, err := target.callback.Call()
	s.Require().NoError(err)
	s.Equal(int64(1), target.retries)
}

func (s *DeserializerSuite) TestMethodReferenceMissing() {
	raw := `{"_type":"test.Task","callback":{"_type":"callable","callable_type":"method",` +
		`"class_name":"test.Task","method_name":"Bump","object_id":"ghost"}}`

	_, err := InstantiateJSON([]byte(raw))
	s.ErrorIs(err, merr.ErrObjectReferenceMissing)
}

func (s *DeserializerSuite) TestUnknownFunctionReference() {
	raw := `{"_type":"test.Task","callback":{"_type":"callable","callable_type":"function",` +
		`"module":"test","name":"nope"}}`

	_, err := InstantiateJSON([]byte(raw))
	s.ErrorIs(err, merr.ErrSymbolUnknown)
}

func (s *DeserializerSuite) TestBuiltinAndExpressionDecode() {
	raw := `{"_type":"test.Task",` +
		`"callback":{"_type":"callable","callable_type":"builtin","name":"len"},` +
		`"payload":{"_type":"lambda_expression","expression":"lambda x: x * x"}}`

	root := s.instantiate(raw)

	n, err := root.callback.Call("héllo")
	s.Require().NoError(err)
	s.Equal(int64(5), n)

	prog, ok := root.payload.(*Callable)
	s.Require().True(ok)
	s.Equal(CallableExpression, prog.Kind())
	sq, err := prog.Call(int64(6))
	s.Require().NoError(err)
	s.Equal(int64(36), sq)
}

func (s *DeserializerSuite) TestBadExpressionFailsDecode() {
	raw := `{"_type":"test.Task","payload":{"_type":"lambda_expression","expression":"lambda x:"}}`

	_, err := InstantiateJSON([]byte(raw))
	s.ErrorIs(err, merr.ErrExpressionSyntax)
}

func (s *DeserializerSuite) TestCustomLookupResolvesExternalOwner() {
	external := newTask()
	external.SetObjectID("ext-1")
	external.name = "outside"

	reg := NewObjectRegistry()
	reg.RegisterCustomLookup(taskTypeName, func(id string) (Serializable, bool) {
		if id == external.ObjectID() {
			return external, true
		}
		return nil, false
	})

	raw := `{"_type":"test.Task","callback":{"_type":"callable","callable_type":"method",` +
		`"class_name":"test.Task","method_name":"Describe","object_id":"ext-1"}}`

	root := s.instantiate(raw, WithObjectRegistry(reg))
	desc, err := root.callback.Call()
	s.Require().NoError(err)
	s.Equal("outside#0", desc)
}

func (s *DeserializerSuite) TestSharedRegistryAcrossDecodes() {
	reg := NewObjectRegistry()

	first := s.instantiate(`{"_type":"test.Task","_id":"a","name":"one"}`, WithObjectRegistry(reg))
	second := s.instantiate(
		`{"_type":"test.Task","_id":"b","next":{"_type":"test.Task","_id":"a"}}`,
		WithObjectRegistry(reg))

	s.Same(first, second.next)
	s.Equal("one", second.next.name)
}

func (s *DeserializerSuite) TestRootIDConflictInSharedRegistry() {
	reg := NewObjectRegistry()
	occupant := newTask()
	s.Require().NoError(reg.Register(occupant, "a"))

	target := newTask()
	raw := `{"_type":"test.Task","_id":"a","name":"n"}`
	err := Unmarshal([]byte(raw), target, WithObjectRegistry(reg))
	s.ErrorIs(err, merr.ErrObjectAlreadyRegistered)
}

func (s *DeserializerSuite) TestDecodeDepthBoundary() {
	data, err := Marshal(chainTask(3))
	s.Require().NoError(err)
	_, err = InstantiateJSON(data, WithDeserializeMaxDepth(3))
	s.NoError(err)

	data, err = Marshal(chainTask(4))
	s.Require().NoError(err)
	_, err = InstantiateJSON(data, WithDeserializeMaxDepth(3))
	s.ErrorIs(err, merr.ErrDepthLimitExceeded)
}

func (s *DeserializerSuite) TestDecodeDepthValidation() {
	_, err := Instantiate(NewSequenceNode(), WithDeserializeMaxDepth(0))
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *DeserializerSuite) TestUnmarshalMalformed() {
	s.ErrorIs(Unmarshal([]byte(`{`), newTask()), merr.ErrNodeMalformed)

	_, err := InstantiateJSON([]byte(`{"_id":"x"}`))
	s.ErrorIs(err, merr.ErrNodeMalformed)
}
