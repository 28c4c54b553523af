package serialization

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// 测试夹具类型，覆盖编码器封闭值集合的全部形态。
const (
	taskTypeName   = "test.Task"
	stepTypeName   = "test.Step"
	gadgetTypeName = "test.Gadget"
)

var (
	_ Serializable   = (*testTask)(nil)
	_ MethodProvider = (*testTask)(nil)
	_ Serializable   = (*testStep)(nil)
	_ Serializable   = (*faultyGadget)(nil)
)

// registerFixtureTypes 在包级默认注册表上登记测试类型。
// 同指纹重复登记幂等，各测试套件可以各自调用。
func registerFixtureTypes() {
	MustRegister(taskTypeName, func() Serializable { return newTask() })
	MustRegister(stepTypeName, func() Serializable { return newStep() })
	MustRegister(gadgetTypeName, func() Serializable { return newGadget() })
}

// 函数注册表没有清空入口，夹具函数只登记一次。
var fixtureFuncsOnce sync.Once

func registerFixtureFunctions() {
	fixtureFuncsOnce.Do(func() {
		MustRegisterFunction("test", "twice", func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, errors.Newf("twice expects 1 argument, got %d", len(args))
			}
			n, ok := args[0].(int64)
			if !ok {
				return nil, errors.Newf("twice expects int64, got %T", args[0])
			}
			return n * 2, nil
		})
	})
}

type testStep struct {
	Meta

	label string
	cost  int64
}

// newStep 构造空白步骤。testStep 刻意不实现 MethodProvider。
func newStep() *testStep {
	s := &testStep{}
	_ = s.AddSerializableFields("label", "cost")
	return s
}

func (s *testStep) TypeName() string { return stepTypeName }

func (s *testStep) Field(name string) (any, error) {
	switch name {
	case "label":
		return s.label, nil
	case "cost":
		return s.cost, nil
	default:
		return nil, errors.Newf("no field %s", name)
	}
}

func (s *testStep) SetField(name string, value any) error {
	switch name {
	case "label":
		v, ok := value.(string)
		if !ok {
			return errors.Newf("label expects string, got %T", value)
		}
		s.label = v
	case "cost":
		v, ok := value.(int64)
		if !ok {
			return errors.Newf("cost expects int64, got %T", value)
		}
		s.cost = v
	default:
		return errors.Newf("no field %s", name)
	}
	return nil
}

type testTask struct {
	Meta

	name     string
	retries  int64
	ratio    float64
	enabled  bool
	tags     []any
	labels   map[string]any
	step     *testStep
	next     *testTask
	callback *Callable
	payload  any
}

func newTask() *testTask {
	t := &testTask{}
	_ = t.AddSerializableFields(
		"name", "retries", "ratio", "enabled",
		"tags", "labels", "step", "next", "callback", "payload")
	return t
}

func (t *testTask) TypeName() string { return taskTypeName }

func (t *testTask) Field(name string) (any, error) {
	switch name {
	case "name":
		return t.name, nil
	case "retries":
		return t.retries, nil
	case "ratio":
		return t.ratio, nil
	case "enabled":
		return t.enabled, nil
	case "tags":
		return t.tags, nil
	case "labels":
		return t.labels, nil
	case "step":
		return t.step, nil
	case "next":
		return t.next, nil
	case "callback":
		return t.callback, nil
	case "payload":
		return t.payload, nil
	default:
		return nil, errors.Newf("no field %s", name)
	}
}

func (t *testTask) SetField(name string, value any) error {
	switch name {
	case "name":
		v, ok := value.(string)
		if !ok {
			return errors.Newf("name expects string, got %T", value)
		}
		t.name = v
	case "retries":
		v, ok := value.(int64)
		if !ok {
			return errors.Newf("retries expects int64, got %T", value)
		}
		t.retries = v
	case "ratio":
		// 整数值的浮点在线格式上没有小数形态，解码回 int64。
		switch v := value.(type) {
		case float64:
			t.ratio = v
		case int64:
			t.ratio = float64(v)
		default:
			return errors.Newf("ratio expects number, got %T", value)
		}
	case "enabled":
		v, ok := value.(bool)
		if !ok {
			return errors.Newf("enabled expects bool, got %T", value)
		}
		t.enabled = v
	case "tags":
		if value == nil {
			t.tags = nil
			return nil
		}
		v, ok := value.([]any)
		if !ok {
			return errors.Newf("tags expects sequence, got %T", value)
		}
		t.tags = v
	case "labels":
		if value == nil {
			t.labels = nil
			return nil
		}
		v, ok := value.(map[string]any)
		if !ok {
			return errors.Newf("labels expects mapping, got %T", value)
		}
		t.labels = v
	case "step":
		if value == nil {
			t.step = nil
			return nil
		}
		v, ok := value.(*testStep)
		if !ok {
			return errors.Newf("step expects %s, got %T", stepTypeName, value)
		}
		t.step = v
	case "next":
		if value == nil {
			t.next = nil
			return nil
		}
		v, ok := value.(*testTask)
		if !ok {
			return errors.Newf("next expects %s, got %T", taskTypeName, value)
		}
		t.next = v
	case "callback":
		if value == nil {
			t.callback = nil
			return nil
		}
		v, ok := value.(*Callable)
		if !ok {
			return errors.Newf("callback expects callable, got %T", value)
		}
		t.callback = v
	case "payload":
		t.payload = value
	default:
		return errors.Newf("no field %s", name)
	}
	return nil
}

func (t *testTask) SerializableMethod(name string) (MethodFunc, bool) {
	switch name {
	case "Describe":
		return func(...any) (any, error) {
			return fmt.Sprintf("%s#%d", t.name, t.retries), nil
		}, true
	case "Bump":
		return func(...any) (any, error) {
			t.retries++
			return t.retries, nil
		}, true
	default:
		return nil, false
	}
}

// faultyGadget 的唯一字段读写必定失败，覆盖字段访问错误路径。
type faultyGadget struct {
	Meta
}

func newGadget() *faultyGadget {
	g := &faultyGadget{}
	_ = g.AddSerializableFields("boom")
	return g
}

func (g *faultyGadget) TypeName() string { return gadgetTypeName }

func (g *faultyGadget) Field(string) (any, error) {
	return nil, errors.New("boom is not readable")
}

func (g *faultyGadget) SetField(string, any) error {
	return errors.New("boom is not writable")
}

var symbolSeq atomic.Int64

// nextSymbol 生成进程内唯一的符号名：函数注册表没有清空入口，
// 各用例用不同的键避免串扰。
func nextSymbol(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, symbolSeq.Add(1))
}

// unlistedDoodad 从不登记，用于覆盖未登记类型的校验路径。
type unlistedDoodad struct {
	Meta
}

func (d *unlistedDoodad) TypeName() string { return "test.Doodad" }

func (d *unlistedDoodad) Field(string) (any, error) {
	return nil, errors.New("no fields")
}

func (d *unlistedDoodad) SetField(string, any) error {
	return errors.New("no fields")
}

// imposterTask 与 testTask 同名不同型，用于覆盖注册冲突与指纹校验。
type imposterTask struct {
	Meta
}

func (i *imposterTask) TypeName() string { return taskTypeName }

func (i *imposterTask) Field(string) (any, error) {
	return nil, errors.New("no fields")
}

func (i *imposterTask) SetField(string, any) error {
	return errors.New("no fields")
}

// buildTask 构造一棵填满标量、序列、映射与嵌套对象的任务。
func buildTask() *testTask {
	step := newStep()
	step.label = "fetch"
	step.cost = 10

	task := newTask()
	task.SetObjectID("task-1")
	task.name = "sync"
	task.retries = 3
	task.ratio = 0.5
	task.enabled = true
	task.tags = []any{"a", int64(1), true, nil}
	task.labels = map[string]any{"zone": "cn", "tier": int64(2)}
	task.step = step
	return task
}

// chainTask 构造由 next 指针串成的长度为 n 的任务链。
func chainTask(n int) *testTask {
	root := newTask()
	root.name = "t1"
	cur := root
	for i := 2; i <= n; i++ {
		nxt := newTask()
		nxt.name = fmt.Sprintf("t%d", i)
		cur.next = nxt
		cur = nxt
	}
	return root
}
