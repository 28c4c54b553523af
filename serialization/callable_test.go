package serialization

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/serilux-go/expression"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

type CallableSuite struct {
	suite.Suite
}

func TestCallable(t *testing.T) {
	suite.Run(t, new(CallableSuite))
}

func (s *CallableSuite) SetupSuite() {
	registerFixtureFunctions()
}

func (s *CallableSuite) TestFunc() {
	fn, err := Func("test", "twice")
	s.Require().NoError(err)
	s.Equal(CallableFunction, fn.Kind())
	s.Equal("test", fn.Module())
	s.Equal("twice", fn.Name())

	out, err := fn.Call(int64(4))
	s.Require().NoError(err)
	s.Equal(int64(8), out)
}

func (s *CallableSuite) TestFuncUnknown() {
	_, err := Func("test", "missing")
	s.ErrorIs(err, merr.ErrSymbolUnknown)
}

func (s *CallableSuite) TestRegisterFunctionValidation() {
	noop := func(...any) (any, error) { return nil, nil }

	s.ErrorIs(RegisterFunction("m", "", noop), merr.ErrParameterInvalid)
	s.ErrorIs(RegisterFunction("m", "nilfn", nil), merr.ErrParameterInvalid)

	name := nextSymbol("dup")
	s.Require().NoError(RegisterFunction("calltest", name, noop))
	s.ErrorIs(RegisterFunction("calltest", name, noop), merr.ErrRegistrationConflict)
	s.Panics(func() {
		MustRegisterFunction("calltest", name, noop)
	})
}

func (s *CallableSuite) TestRegisteredFunctionsSorted() {
	noop := func(...any) (any, error) { return nil, nil }
	nameB := nextSymbol("zz")
	nameA := nextSymbol("aa")
	s.Require().NoError(RegisterFunction("calltest", nameB, noop))
	s.Require().NoError(RegisterFunction("calltest", nameA, noop))

	keys := RegisteredFunctions()
	s.True(slices.IsSorted(keys))
	s.Contains(keys, "calltest."+nameA)
	s.Contains(keys, "calltest."+nameB)
}

func (s *CallableSuite) TestBindMethod() {
	task := newTask()
	task.name = "job"
	task.retries = 2

	cb, err := BindMethod(task, "Describe")
	s.Require().NoError(err)
	s.Equal(CallableMethod, cb.Kind())
	s.Equal("Describe", cb.MethodName())
	s.Same(task, cb.Owner())

	out, err := cb.Call()
	s.Require().NoError(err)
	s.Equal("job#2", out)
}

func (s *CallableSuite) TestBindMethodValidation() {
	_, err := BindMethod(nil, "Describe")
	s.ErrorIs(err, merr.ErrParameterInvalid)

	// testStep 未实现 MethodProvider。
	_, err = BindMethod(newStep(), "anything")
	s.ErrorIs(err, merr.ErrCallableInvalid)

	_, err = BindMethod(newTask(), "Missing")
	s.ErrorIs(err, merr.ErrCallableInvalid)
}

func (s *CallableSuite) TestBuiltin() {
	cb, err := BuiltinCallable("len")
	s.Require().NoError(err)
	s.Equal(CallableBuiltin, cb.Kind())
	s.Equal("len", cb.Name())

	out, err := cb.Call([]any{int64(1), int64(2)})
	s.Require().NoError(err)
	s.Equal(int64(2), out)

	_, err = BuiltinCallable("nope")
	s.ErrorIs(err, merr.ErrSymbolUnknown)
}

func (s *CallableSuite) TestFromProgram() {
	s.Nil(FromProgram(nil))

	prog := expression.MustCompile("lambda a, b: a * b")
	cb := FromProgram(prog)
	s.Equal(CallableExpression, cb.Kind())
	s.Same(prog, cb.Program())

	out, err := cb.Call(int64(6), int64(7))
	s.Require().NoError(err)
	s.Equal(int64(42), out)

	_, err = cb.Call(int64(1))
	s.ErrorIs(err, merr.ErrExpressionEval)
}

func (s *CallableSuite) TestNilAndUnresolved() {
	var nilCb *Callable
	_, err := nilCb.Call()
	s.ErrorIs(err, merr.ErrCallableInvalid)

	unresolved := &Callable{kind: CallableFunction}
	_, err = unresolved.Call()
	s.ErrorIs(err, merr.ErrCallableInvalid)
}

func (s *CallableSuite) TestKindString() {
	s.Equal("function", CallableFunction.String())
	s.Equal("method", CallableMethod.String())
	s.Equal("builtin", CallableBuiltin.String())
	s.Equal("expression", CallableExpression.String())
	s.Equal("unknown", CallableKind(9).String())
}
