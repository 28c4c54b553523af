package serialization

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/serilux-go/expression"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

type SerializerSuite struct {
	suite.Suite
}

func TestSerializer(t *testing.T) {
	suite.Run(t, new(SerializerSuite))
}

func (s *SerializerSuite) SetupSuite() {
	registerFixtureTypes()
	registerFixtureFunctions()
}

func (s *SerializerSuite) mustSerialize(obj Serializable, opts ...SerializeOption) *Node {
	node, err := Serialize(obj, opts...)
	s.Require().NoError(err)
	return node
}

func (s *SerializerSuite) mustMarshal(obj Serializable, opts ...SerializeOption) string {
	data, err := Marshal(obj, opts...)
	s.Require().NoError(err)
	return string(data)
}

func (s *SerializerSuite) TestMarshalShape() {
	// 逐字节断言：字段保持声明顺序，映射按键排序，nil 字段输出 null，
	// 无身份的嵌套对象不携带 _id。
	want := `{"_type":"test.Task","_id":"task-1",` +
		`"name":"sync","retries":3,"ratio":0.5,"enabled":true,` +
		`"tags":["a",1,true,null],"labels":{"tier":2,"zone":"cn"},` +
		`"step":{"_type":"test.Step","label":"fetch","cost":10},` +
		`"next":null,"callback":null,"payload":null}`
	s.Equal(want, s.mustMarshal(buildTask()))
}

func (s *SerializerSuite) TestNodeShape() {
	node := s.mustSerialize(buildTask())

	s.Equal(KindObject, node.Kind())
	s.Equal(taskTypeName, node.TypeName())
	s.Equal("task-1", node.ObjectID())

	step, ok := node.FieldByName("step")
	s.Require().True(ok)
	s.Equal(KindObject, step.Kind())
	s.Equal(stepTypeName, step.TypeName())
	s.Empty(step.ObjectID())

	tags, ok := node.FieldByName("tags")
	s.Require().True(ok)
	s.Equal(KindSequence, tags.Kind())
	s.Len(tags.Elements(), 4)
	s.True(tags.Elements()[3].IsNull())
}

func (s *SerializerSuite) TestMapKeysSorted() {
	task := newTask()
	task.labels = map[string]any{"z": int64(1), "m": int64(2), "a": int64(3)}

	node := s.mustSerialize(task)
	labels, ok := node.FieldByName("labels")
	s.Require().True(ok)

	entries := labels.Entries()
	s.Require().Len(entries, 3)
	s.Equal("a", entries[0].Key)
	s.Equal("m", entries[1].Key)
	s.Equal("z", entries[2].Key)
}

func (s *SerializerSuite) TestConvenienceSlicesAndStringMap() {
	task := newTask()
	task.tags = []any{int64(1)}
	task.payload = []string{"x", "y"}
	node := s.mustSerialize(task)

	payload, ok := node.FieldByName("payload")
	s.Require().True(ok)
	s.Equal(KindSequence, payload.Kind())
	s.Len(payload.Elements(), 2)

	task.payload = map[string]string{"b": "2", "a": "1"}
	node = s.mustSerialize(task)
	payload, _ = node.FieldByName("payload")
	s.Equal(KindMapping, payload.Kind())
	s.Equal("a", payload.Entries()[0].Key)
}

func (s *SerializerSuite) TestTypedNilIsNull() {
	task := newTask()
	task.step = nil
	task.tags = nil
	task.labels = nil
	task.callback = nil

	node := s.mustSerialize(task)
	for _, name := range []string{"step", "tags", "labels", "callback", "payload"} {
		child, ok := node.FieldByName(name)
		s.Require().True(ok, name)
		s.True(child.IsNull(), name)
	}
}

func (s *SerializerSuite) TestPrebuiltNodePassthrough() {
	pre := NewExpressionNode("lambda x: x")
	task := newTask()
	task.payload = pre

	node := s.mustSerialize(task)
	child, ok := node.FieldByName("payload")
	s.Require().True(ok)
	s.Same(pre, child)
}

func (s *SerializerSuite) TestUnsupportedValues() {
	task := newTask()

	task.payload = make(chan int)
	_, err := Serialize(task)
	s.ErrorIs(err, merr.ErrFieldInvalid)

	task.payload = struct{ X int }{X: 1}
	_, err = Serialize(task)
	s.ErrorIs(err, merr.ErrFieldInvalid)

	// 非字符串键的映射给出更具体的错误。
	task.payload = map[int]string{1: "a"}
	_, err = Serialize(task)
	s.ErrorIs(err, merr.ErrValueUnsupported)
}

func (s *SerializerSuite) TestReservedMappingKeys() {
	task := newTask()
	for _, key := range []string{"_type", "_id"} {
		task.labels = map[string]any{key: "x"}
		_, err := Serialize(task)
		s.ErrorIs(err, merr.ErrValueUnsupported, key)
	}

	task.labels = nil
	task.payload = map[string]string{"_type": "x"}
	_, err := Serialize(task)
	s.ErrorIs(err, merr.ErrValueUnsupported)
}

func (s *SerializerSuite) TestFieldReadError() {
	_, err := Serialize(newGadget())
	s.ErrorIs(err, merr.ErrFieldInvalid)
	s.ErrorContains(err, "boom")
}

func (s *SerializerSuite) TestNilObject() {
	_, err := Serialize(nil)
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = Serialize((*testTask)(nil))
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SerializerSuite) TestMaxDepthValidation() {
	_, err := Serialize(buildTask(), WithMaxDepth(0))
	s.ErrorIs(err, merr.ErrParameterInvalid)
	_, err = Serialize(buildTask(), WithMaxDepth(-1))
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *SerializerSuite) TestObjectDepthBoundary() {
	// 对象链每层消耗一级深度：长度等于上限的链可编码，多一层即超限。
	_, err := Serialize(chainTask(3), WithMaxDepth(3))
	s.NoError(err)

	_, err = Serialize(chainTask(4), WithMaxDepth(3))
	s.ErrorIs(err, merr.ErrDepthLimitExceeded)
}

func (s *SerializerSuite) TestContainerDepthBoundary() {
	task := newTask()
	task.tags = []any{[]any{"x"}}
	_, err := Serialize(task, WithMaxDepth(3))
	s.NoError(err)

	task.tags = []any{[]any{[]any{"x"}}}
	_, err = Serialize(task, WithMaxDepth(3))
	s.ErrorIs(err, merr.ErrDepthLimitExceeded)

	task.tags = nil
	task.labels = map[string]any{"k": map[string]any{"k2": map[string]any{"k3": "v"}}}
	_, err = Serialize(task, WithMaxDepth(3))
	s.ErrorIs(err, merr.ErrDepthLimitExceeded)
}

func (s *SerializerSuite) TestCycleHitsDepthLimit() {
	// 编码侧不做环检测，真正的对象环由深度上限截断。
	a := newTask()
	b := newTask()
	a.next = b
	b.next = a

	_, err := Serialize(a, WithMaxDepth(8))
	s.ErrorIs(err, merr.ErrDepthLimitExceeded)
}

func (s *SerializerSuite) TestFunctionCallable() {
	fn, err := Func("test", "twice")
	s.Require().NoError(err)

	task := newTask()
	task.callback = fn

	node := s.mustSerialize(task)
	child, ok := node.FieldByName("callback")
	s.Require().True(ok)
	s.Equal(KindCallable, child.Kind())
	ref := child.Callable()
	s.Equal(CallableTypeFunction, ref.CallableType)
	s.Equal("test", ref.Module)
	s.Equal("twice", ref.Name)
}

func (s *SerializerSuite) TestMethodCallable() {
	task := buildTask()
	cb, err := BindMethod(task, "Describe")
	s.Require().NoError(err)
	task.callback = cb

	node := s.mustSerialize(task)
	child, _ := node.FieldByName("callback")
	ref := child.Callable()
	s.Require().NotNil(ref)
	s.Equal(CallableTypeMethod, ref.CallableType)
	s.Equal(taskTypeName, ref.ClassName)
	s.Equal("Describe", ref.MethodName)
	s.Equal("task-1", ref.ObjectID)
}

func (s *SerializerSuite) TestMethodOwnershipEnforced() {
	other := buildTask()
	other.SetObjectID("other-1")
	cb, err := BindMethod(other, "Describe")
	s.Require().NoError(err)

	task := buildTask()
	task.callback = cb
	_, err = Serialize(task)
	s.ErrorIs(err, merr.ErrMethodOwnership)
}

func (s *SerializerSuite) TestMethodOwnerNeedsObjectID() {
	task := newTask()
	cb, err := BindMethod(task, "Describe")
	s.Require().NoError(err)
	task.callback = cb

	_, err = Serialize(task)
	s.ErrorIs(err, merr.ErrCallableInvalid)
}

func (s *SerializerSuite) TestBuiltinCallable() {
	builtin, err := BuiltinCallable("len")
	s.Require().NoError(err)

	task := newTask()
	task.callback = builtin

	node := s.mustSerialize(task)
	child, _ := node.FieldByName("callback")
	ref := child.Callable()
	s.Equal(CallableTypeBuiltin, ref.CallableType)
	s.Equal("len", ref.Name)
}

func (s *SerializerSuite) TestExpressionCallable() {
	task := newTask()
	task.callback = FromProgram(expression.MustCompile("lambda x: x + 1"))

	node := s.mustSerialize(task)
	child, _ := node.FieldByName("callback")
	s.Equal(KindExpression, child.Kind())
	s.Equal("lambda x: x + 1", child.ExpressionSource())
}

func (s *SerializerSuite) TestSerializeCallable() {
	node, err := SerializeCallable(nil)
	s.Require().NoError(err)
	s.True(node.IsNull())

	// 独立编码没有正在编码的对象，不做所有权检查。
	owner := buildTask()
	cb, err := BindMethod(owner, "Describe")
	s.Require().NoError(err)
	node, err = SerializeCallable(cb)
	s.Require().NoError(err)
	s.Equal("task-1", node.Callable().ObjectID)

	// 接收者缺少身份标识仍然无法编码。
	anon := newTask()
	cb, err = BindMethod(anon, "Bump")
	s.Require().NoError(err)
	_, err = SerializeCallable(cb)
	s.ErrorIs(err, merr.ErrCallableInvalid)
}
