package serialization

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

type ObjectRegistrySuite struct {
	suite.Suite
}

func TestObjectRegistry(t *testing.T) {
	suite.Run(t, new(ObjectRegistrySuite))
}

func (s *ObjectRegistrySuite) TestRegisterValidation() {
	r := NewObjectRegistry()
	s.ErrorIs(r.Register(nil, "a"), merr.ErrParameterInvalid)
	s.ErrorIs(r.Register(newTask(), ""), merr.ErrParameterInvalid)
}

func (s *ObjectRegistrySuite) TestRegisterIdempotentAndConflict() {
	r := NewObjectRegistry()
	a := newTask()
	s.Require().NoError(r.Register(a, "a"))
	s.NoError(r.Register(a, "a"))
	s.ErrorIs(r.Register(newTask(), "a"), merr.ErrObjectAlreadyRegistered)
	s.Equal(1, r.Len())
}

func (s *ObjectRegistrySuite) TestFind() {
	r := NewObjectRegistry()
	task := newTask()
	step := newStep()
	s.Require().NoError(r.Register(task, "x"))
	s.Require().NoError(r.Register(step, "y"))

	got, ok := r.FindByID("x")
	s.True(ok)
	s.Same(task, got)

	_, ok = r.FindByID("ghost")
	s.False(ok)

	got, ok = r.FindByClassAndID(taskTypeName, "x")
	s.True(ok)
	s.Same(task, got)

	// 身份按类型分桶，同 id 不会跨类型串线。
	_, ok = r.FindByClassAndID(taskTypeName, "y")
	s.False(ok)
	_, ok = r.FindByClassAndID("test.Ghost", "x")
	s.False(ok)
}

func (s *ObjectRegistrySuite) TestRegisterManyAggregatesFailures() {
	r := NewObjectRegistry()
	good := newTask()
	err := r.RegisterMany(map[string]Serializable{
		"a": good,
		"":  newTask(),
		"b": nil,
	})
	s.ErrorIs(err, merr.ErrParameterInvalid)

	// 失败条目不拖累其余条目。
	got, ok := r.FindByID("a")
	s.True(ok)
	s.Same(good, got)
}

func (s *ObjectRegistrySuite) TestRegisterManyAllGood() {
	r := NewObjectRegistry()
	s.NoError(r.RegisterMany(map[string]Serializable{
		"a": newTask(),
		"b": newStep(),
	}))
	s.Equal(2, r.Len())
}

func (s *ObjectRegistrySuite) TestCustomLookup() {
	r := NewObjectRegistry()
	external := newTask()

	r.RegisterCustomLookup(taskTypeName, func(id string) (Serializable, bool) {
		if id == "ext" {
			return external, true
		}
		return nil, false
	})

	got, ok := r.FindByClassAndID(taskTypeName, "ext")
	s.True(ok)
	s.Same(external, got)

	_, ok = r.FindByClassAndID(taskTypeName, "other")
	s.False(ok)

	// 内部索引命中时优先于自定义查找。
	internal := newTask()
	s.Require().NoError(r.Register(internal, "ext"))
	got, ok = r.FindByClassAndID(taskTypeName, "ext")
	s.True(ok)
	s.Same(internal, got)
}

func (s *ObjectRegistrySuite) TestCustomLookupIgnoresBadArgs() {
	r := NewObjectRegistry()
	r.RegisterCustomLookup("", func(string) (Serializable, bool) { return newTask(), true })
	r.RegisterCustomLookup(stepTypeName, nil)

	_, ok := r.FindByClassAndID(stepTypeName, "any")
	s.False(ok)
}

func (s *ObjectRegistrySuite) TestClear() {
	r := NewObjectRegistry()
	s.Require().NoError(r.Register(newTask(), "a"))
	r.RegisterCustomLookup(taskTypeName, func(string) (Serializable, bool) { return newTask(), true })

	r.Clear()
	s.Equal(0, r.Len())
	_, ok := r.FindByID("a")
	s.False(ok)
	_, ok = r.FindByClassAndID(taskTypeName, "a")
	s.False(ok)
}
