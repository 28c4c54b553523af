// Package expression 实现一个面向快照数据的受限表达式求值器。
//
// 源码经 Compile 依次通过词法解析、语法解析与允许表校验，
// 全部成功才会得到 *Program；包外不存在绕过校验的求值入口。
// 语法是 Python 表达式的一个子集：字面量、列表与字典显示、
// 算术与比较、短路布尔、属性与下标访问、允许表内的函数与
// 方法调用，以及可选的顶层 lambda。下划线开头的名字一律拒绝，
// 比较不支持链式书写。
package expression

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/lk2023060901/serilux-go/pkg/metrics"
	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// Program 是一段编译通过的表达式，可并发复用：
// 每次求值都基于独立的命名空间快照。
type Program struct {
	source string
	expr   Expr
	params []string
	body   Expr
}

// Compile 把源码编译为可求值的程序。
// 顶层 lambda 的参数与函数体在此拆开，之后由 Call 按位置绑定。
func Compile(source string) (*Program, error) {
	expr, err := parse(source)
	if err != nil {
		return nil, err
	}
	if err := validateExpr(expr); err != nil {
		return nil, err
	}
	p := &Program{source: source, expr: expr, body: expr}
	if lam, ok := expr.(*Lambda); ok {
		p.params = lam.Params
		p.body = lam.Body
	}
	return p, nil
}

// MustCompile 编译失败时 panic，用于源码为常量的场合。
func MustCompile(source string) *Program {
	p, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return p
}

// Source 返回编译时的原始源码。
func (p *Program) Source() string {
	return p.source
}

// Params 返回顶层 lambda 的参数名，非 lambda 程序返回空。
func (p *Program) Params() []string {
	return slices.Clone(p.params)
}

// IsLambda 报告程序是否为顶层 lambda 形式。
func (p *Program) IsLambda() bool {
	_, ok := p.expr.(*Lambda)
	return ok
}

// Eval 在命名空间 env 上求值函数体。
// lambda 程序的参数同样可以由 env 直接提供。
func (p *Program) Eval(env map[string]any) (any, error) {
	return p.run(newEvaluator(env))
}

// Call 按位置把实参绑定到 lambda 参数后求值。
// 非 lambda 程序等价于零参调用。
func (p *Program) Call(args ...any) (any, error) {
	if len(args) != len(p.params) {
		metrics.ExpressionEvalTotal.WithLabelValues(metrics.FailLabel).Inc()
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("expected %d arguments, got %d", len(p.params), len(args)))
	}
	ev := newEvaluator(nil)
	for i, name := range p.params {
		ev.bind(name, args[i])
	}
	return p.run(ev)
}

func (p *Program) run(ev *evaluator) (any, error) {
	v, err := ev.eval(p.body)
	if err != nil {
		metrics.ExpressionEvalTotal.WithLabelValues(metrics.FailLabel).Inc()
		return nil, err
	}
	metrics.ExpressionEvalTotal.WithLabelValues(metrics.SuccessLabel).Inc()
	return v, nil
}

// Eval 一步完成编译与求值，适合一次性表达式。
func Eval(source string, env map[string]any) (any, error) {
	p, err := Compile(source)
	if err != nil {
		return nil, err
	}
	return p.Eval(env)
}
