package expression

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

type ParserSuite struct {
	suite.Suite
}

func (s *ParserSuite) TestLiterals() {
	cases := map[string]any{
		"42":      int64(42),
		"3.14":    float64(3.14),
		"1e3":     float64(1000),
		"'hello'": "hello",
		`"world"`: "world",
		"True":    true,
		"False":   false,
		"None":    nil,
	}
	for src, want := range cases {
		p, err := Compile(src)
		s.Require().NoError(err, src)
		got, err := p.Eval(nil)
		s.Require().NoError(err, src)
		s.Equal(want, got, src)
	}
}

func (s *ParserSuite) TestIntLiteralOverflowFallsBackToFloat() {
	p, err := Compile("99999999999999999999")
	s.Require().NoError(err)
	got, err := p.Eval(nil)
	s.Require().NoError(err)
	s.IsType(float64(0), got)
}

func (s *ParserSuite) TestStringEscapes() {
	p, err := Compile(`'a\n\t\'b\\'`)
	s.Require().NoError(err)
	got, err := p.Eval(nil)
	s.Require().NoError(err)
	s.Equal("a\n\t'b\\", got)
}

func (s *ParserSuite) TestDisplays() {
	p, err := Compile("[1, 2, 3]")
	s.Require().NoError(err)
	got, err := p.Eval(nil)
	s.Require().NoError(err)
	s.Equal([]any{int64(1), int64(2), int64(3)}, got)

	p, err = Compile("{'a': 1, 'b': [2]}")
	s.Require().NoError(err)
	got, err = p.Eval(nil)
	s.Require().NoError(err)
	s.Equal(map[string]any{"a": int64(1), "b": []any{int64(2)}}, got)

	// 允许尾随逗号。
	_, err = Compile("[1, 2,]")
	s.NoError(err)
	_, err = Compile("{'a': 1,}")
	s.NoError(err)
}

func (s *ParserSuite) TestSyntaxErrors() {
	bad := []string{
		"",
		"1 +",
		"a <",
		"'unterminated",
		"x = 1",
		"!x",
		"a @ b",
		"(1, 2)",
		"f(1 2)",
		"[1, 2",
		"{'a' 1}",
		"1 < 2 < 3",
		"not 1 in",
		"lambda x, x: x",
		"1 + lambda x: x",
		"1.5e",
	}
	for _, src := range bad {
		_, err := Compile(src)
		s.Require().Error(err, src)
		s.ErrorIs(err, merr.ErrExpressionSyntax, src)
	}
}

func (s *ParserSuite) TestChainedComparisonRejected() {
	_, err := Compile("1 < x <= 3")
	s.ErrorIs(err, merr.ErrExpressionSyntax)
	s.ErrorContains(err, "chaining")
}

func (s *ParserSuite) TestValidationRejectsUnsafe() {
	bad := []string{
		"__import__('os')",
		"_secret",
		"x.__class__",
		"x._private",
		"open('/etc/passwd')",
		"x.delete()",
		"eval('1')",
		"lambda _x: _x",
	}
	for _, src := range bad {
		_, err := Compile(src)
		s.Require().Error(err, src)
		s.ErrorIs(err, merr.ErrExpressionUnsafe, src)
	}
}

func (s *ParserSuite) TestValidationAllowsWhitelisted() {
	good := []string{
		"len(x)",
		"min(1, 2, 3)",
		"max([1, 2])",
		"sum(xs)",
		"abs(-1)",
		"round(2.5)",
		"str(1)",
		"int('42')",
		"float(1)",
		"bool(x)",
		"contains(xs, 1)",
		"m.get('k')",
		"m.keys()",
		"m.values()",
		"name.startswith('a')",
		"name.endswith('z')",
		"name.lower()",
		"name.upper()",
		"name.strip()",
	}
	for _, src := range good {
		_, err := Compile(src)
		s.NoError(err, src)
	}
}

func (s *ParserSuite) TestLambdaShape() {
	p, err := Compile("lambda a, b: a + b")
	s.Require().NoError(err)
	s.True(p.IsLambda())
	s.Equal([]string{"a", "b"}, p.Params())
	s.Equal("lambda a, b: a + b", p.Source())

	p, err = Compile("1 + 1")
	s.Require().NoError(err)
	s.False(p.IsLambda())
	s.Empty(p.Params())
}

func (s *ParserSuite) TestZeroParamLambda() {
	p, err := Compile("lambda: 42")
	s.Require().NoError(err)
	s.True(p.IsLambda())
	s.Empty(p.Params())
	got, err := p.Call()
	s.Require().NoError(err)
	s.Equal(int64(42), got)
}

func (s *ParserSuite) TestMustCompilePanics() {
	s.Panics(func() { MustCompile("1 +") })
	s.NotPanics(func() { MustCompile("1 + 1") })
}

func (s *ParserSuite) TestPositionInSyntaxError() {
	_, err := Compile("1 +\n  *")
	s.Require().Error(err)
	s.ErrorContains(err, "line=2")
}

func TestParser(t *testing.T) {
	suite.Run(t, new(ParserSuite))
}
