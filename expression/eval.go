package expression

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// evaluator 在给定命名空间上求值一棵已通过校验的语法树。
// 命名空间在构造时整体规约过一次，求值期间不再做类型放宽。
type evaluator struct {
	env map[string]any
}

func newEvaluator(env map[string]any) *evaluator {
	normalized := make(map[string]any, len(env))
	for name, value := range env {
		normalized[name] = normalizeValue(value)
	}
	return &evaluator{env: normalized}
}

func (ev *evaluator) bind(name string, value any) {
	ev.env[name] = normalizeValue(value)
}

func (ev *evaluator) eval(e Expr) (any, error) {
	switch n := e.(type) {
	case *Literal:
		return n.Value, nil
	case *Name:
		if v, ok := ev.env[n.Ident]; ok {
			return v, nil
		}
		return nil, merr.WrapErrSymbolUnknown(n.Ident)
	case *ListExpr:
		out := make([]any, 0, len(n.Elems))
		for _, elem := range n.Elems {
			v, err := ev.eval(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case *DictExpr:
		out := make(map[string]any, len(n.Keys))
		for i := range n.Keys {
			kv, err := ev.eval(n.Keys[i])
			if err != nil {
				return nil, err
			}
			key, ok := kv.(string)
			if !ok {
				return nil, merr.WrapErrExpressionEval(fmt.Sprintf("dict keys must be strings, got %s", typeNameOf(kv)))
			}
			vv, err := ev.eval(n.Values[i])
			if err != nil {
				return nil, err
			}
			out[key] = vv
		}
		return out, nil
	case *Unary:
		return ev.unary(n)
	case *Binary:
		x, err := ev.eval(n.X)
		if err != nil {
			return nil, err
		}
		y, err := ev.eval(n.Y)
		if err != nil {
			return nil, err
		}
		return binaryOp(n.Op, x, y)
	case *Compare:
		return ev.compare(n)
	case *BoolOp:
		return ev.boolOp(n)
	case *Attribute:
		return ev.attribute(n)
	case *Subscript:
		return ev.subscript(n)
	case *Call:
		return ev.call(n)
	case *Lambda:
		// 解析器只在顶层接受 lambda，Program 编译时已把参数与函数体拆开。
		return nil, merr.WrapErrExpressionEval("lambda cannot be evaluated as a value")
	default:
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("unsupported node %s", nodeKind(e)))
	}
}

func (ev *evaluator) unary(n *Unary) (any, error) {
	v, err := ev.eval(n.X)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "not":
		return !truthy(v), nil
	case "-":
		f, i, isInt, ok := asNumber(v)
		if !ok {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("bad operand type for unary -: %s", typeNameOf(v)))
		}
		if isInt {
			if i == math.MinInt64 {
				return nil, merr.WrapErrExpressionEval("integer overflow in unary -")
			}
			return -i, nil
		}
		return -f, nil
	case "+":
		if _, _, _, ok := asNumber(v); !ok {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("bad operand type for unary +: %s", typeNameOf(v)))
		}
		return v, nil
	default:
		return nil, merr.WrapErrExpressionEval("unknown unary operator " + n.Op)
	}
}

// binaryOp 实现算术运算。除法恒为浮点除法，// 向负无穷取整，
// % 的结果跟随除数符号。+ 额外支持字符串与列表拼接。
func binaryOp(op string, a, b any) (any, error) {
	if op == "+" {
		if as, ok := a.(string); ok {
			if bs, ok := b.(string); ok {
				return as + bs, nil
			}
		}
		if al, ok := a.([]any); ok {
			if bl, ok := b.([]any); ok {
				out := make([]any, 0, len(al)+len(bl))
				out = append(out, al...)
				out = append(out, bl...)
				return out, nil
			}
		}
	}
	af, ai, aInt, aok := asNumber(a)
	bf, bi, bInt, bok := asNumber(b)
	if !aok || !bok {
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("unsupported operand type(s) for %s: %s and %s", op, typeNameOf(a), typeNameOf(b)))
	}
	bothInt := aInt && bInt
	switch op {
	case "+":
		if bothInt {
			return ai + bi, nil
		}
		return af + bf, nil
	case "-":
		if bothInt {
			return ai - bi, nil
		}
		return af - bf, nil
	case "*":
		if bothInt {
			return ai * bi, nil
		}
		return af * bf, nil
	case "/":
		if bf == 0 {
			return nil, merr.WrapErrExpressionEval("division by zero")
		}
		return af / bf, nil
	case "//":
		if bothInt {
			if bi == 0 {
				return nil, merr.WrapErrExpressionEval("integer division by zero")
			}
			return floorDivInt(ai, bi), nil
		}
		if bf == 0 {
			return nil, merr.WrapErrExpressionEval("float floor division by zero")
		}
		return math.Floor(af / bf), nil
	case "%":
		if bothInt {
			if bi == 0 {
				return nil, merr.WrapErrExpressionEval("integer modulo by zero")
			}
			return floorModInt(ai, bi), nil
		}
		if bf == 0 {
			return nil, merr.WrapErrExpressionEval("float modulo by zero")
		}
		return floorModFloat(af, bf), nil
	default:
		return nil, merr.WrapErrExpressionEval("unknown operator " + op)
	}
}

func floorDivInt(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorModInt(a, b int64) int64 {
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func floorModFloat(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

func (ev *evaluator) compare(n *Compare) (any, error) {
	x, err := ev.eval(n.X)
	if err != nil {
		return nil, err
	}
	y, err := ev.eval(n.Y)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "==":
		return equalValues(x, y), nil
	case "!=":
		return !equalValues(x, y), nil
	case "in", "not in":
		ok, err := containsValue(y, x)
		if err != nil {
			return nil, merr.WrapErrExpressionEval(err.Error())
		}
		if n.Op == "in" {
			return ok, nil
		}
		return !ok, nil
	default:
		ok, err := orderValues(n.Op, x, y)
		if err != nil {
			return nil, merr.WrapErrExpressionEval(err.Error())
		}
		return ok, nil
	}
}

// boolOp 短路求值并返回操作数本身，而非布尔化结果。
func (ev *evaluator) boolOp(n *BoolOp) (any, error) {
	x, err := ev.eval(n.X)
	if err != nil {
		return nil, err
	}
	if n.Op == "and" {
		if !truthy(x) {
			return x, nil
		}
		return ev.eval(n.Y)
	}
	if truthy(x) {
		return x, nil
	}
	return ev.eval(n.Y)
}

// attribute 只放行对象声明过的序列化字段，读取结果进入封闭值集合。
func (ev *evaluator) attribute(n *Attribute) (any, error) {
	recv, err := ev.eval(n.X)
	if err != nil {
		return nil, err
	}
	obj, ok := recv.(fieldReader)
	if !ok {
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("%s has no attribute %s", typeNameOf(recv), quotePy(n.Attr)))
	}
	if !slices.Contains(obj.SerializableFields(), n.Attr) {
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("%s has no attribute %s", obj.TypeName(), quotePy(n.Attr)))
	}
	v, err := obj.Field(n.Attr)
	if err != nil {
		return nil, merr.WrapErrExpressionEval(err.Error())
	}
	return normalizeValue(v), nil
}

func (ev *evaluator) subscript(n *Subscript) (any, error) {
	recv, err := ev.eval(n.X)
	if err != nil {
		return nil, err
	}
	idx, err := ev.eval(n.Index)
	if err != nil {
		return nil, err
	}
	switch c := recv.(type) {
	case []any:
		i, err := subscriptIndex("list", idx)
		if err != nil {
			return nil, err
		}
		if i < 0 {
			i += len(c)
		}
		if i < 0 || i >= len(c) {
			return nil, merr.WrapErrExpressionEval("list index out of range")
		}
		return c[i], nil
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("dict keys must be strings, got %s", typeNameOf(idx)))
		}
		v, present := c[key]
		if !present {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("key %s not found", quotePy(key)))
		}
		return v, nil
	case string:
		i, err := subscriptIndex("string", idx)
		if err != nil {
			return nil, err
		}
		runes := []rune(c)
		if i < 0 {
			i += len(runes)
		}
		if i < 0 || i >= len(runes) {
			return nil, merr.WrapErrExpressionEval("string index out of range")
		}
		return string(runes[i]), nil
	default:
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("%s is not subscriptable", typeNameOf(recv)))
	}
}

// subscriptIndex 负索引留给调用方解释，这里只做整数性与量程检查。
func subscriptIndex(kind string, v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, merr.WrapErrExpressionEval(kind + " index out of range")
		}
		return int(n), nil
	default:
		return 0, merr.WrapErrExpressionEval(fmt.Sprintf("%s indices must be integers, got %s", kind, typeNameOf(v)))
	}
}

func (ev *evaluator) call(n *Call) (any, error) {
	args := make([]any, 0, len(n.Args))
	for _, arg := range n.Args {
		v, err := ev.eval(arg)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	switch target := n.Fun.(type) {
	case *Name:
		// 调用目标总是解析到内置函数表，命名空间不能遮蔽内置函数。
		fn, ok := Builtin(target.Ident)
		if !ok {
			return nil, merr.WrapErrSymbolUnknown(target.Ident)
		}
		return fn(args...)
	case *Attribute:
		recv, err := ev.eval(target.X)
		if err != nil {
			return nil, err
		}
		return callMethod(recv, target.Attr, args)
	default:
		return nil, merr.WrapErrExpressionEval("call target must be a function or method name")
	}
}

// callMethod 分派允许表内的容器与字符串方法。
func callMethod(recv any, name string, args []any) (any, error) {
	switch c := recv.(type) {
	case map[string]any:
		return callDictMethod(c, name, args)
	case string:
		return callStringMethod(c, name, args)
	default:
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("%s has no method %s", typeNameOf(recv), quotePy(name)))
	}
}

// callDictMethod 中 keys/values 按键排序输出，保证结果确定。
func callDictMethod(m map[string]any, name string, args []any) (any, error) {
	switch name {
	case "get":
		if len(args) != 1 && len(args) != 2 {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("get() takes one or two arguments (%d given)", len(args)))
		}
		key, ok := args[0].(string)
		if !ok {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("dict keys must be strings, got %s", typeNameOf(args[0])))
		}
		if v, present := m[key]; present {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, nil
	case "keys":
		if len(args) != 0 {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("keys() takes no arguments (%d given)", len(args)))
		}
		keys := maps.Keys(m)
		slices.Sort(keys)
		out := make([]any, len(keys))
		for i, key := range keys {
			out[i] = key
		}
		return out, nil
	case "values":
		if len(args) != 0 {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("values() takes no arguments (%d given)", len(args)))
		}
		keys := maps.Keys(m)
		slices.Sort(keys)
		out := make([]any, len(keys))
		for i, key := range keys {
			out[i] = m[key]
		}
		return out, nil
	default:
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("dict has no method %s", quotePy(name)))
	}
}

func callStringMethod(s, name string, args []any) (any, error) {
	stringArg := func() (string, error) {
		if len(args) != 1 {
			return "", merr.WrapErrExpressionEval(fmt.Sprintf("%s() takes exactly one argument (%d given)", name, len(args)))
		}
		v, ok := args[0].(string)
		if !ok {
			return "", merr.WrapErrExpressionEval(fmt.Sprintf("%s() argument must be str, not %s", name, typeNameOf(args[0])))
		}
		return v, nil
	}
	switch name {
	case "startswith":
		prefix, err := stringArg()
		if err != nil {
			return nil, err
		}
		return strings.HasPrefix(s, prefix), nil
	case "endswith":
		suffix, err := stringArg()
		if err != nil {
			return nil, err
		}
		return strings.HasSuffix(s, suffix), nil
	case "lower":
		if len(args) != 0 {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("lower() takes no arguments (%d given)", len(args)))
		}
		return strings.ToLower(s), nil
	case "upper":
		if len(args) != 0 {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("upper() takes no arguments (%d given)", len(args)))
		}
		return strings.ToUpper(s), nil
	case "strip":
		switch len(args) {
		case 0:
			return strings.TrimSpace(s), nil
		case 1:
			cutset, ok := args[0].(string)
			if !ok {
				return nil, merr.WrapErrExpressionEval(fmt.Sprintf("strip() argument must be str, not %s", typeNameOf(args[0])))
			}
			return strings.Trim(s, cutset), nil
		default:
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("strip() takes at most one argument (%d given)", len(args)))
		}
	default:
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("str has no method %s", quotePy(name)))
	}
}
