package expression

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// BuiltinFunc 是沙箱内置函数的统一签名。
type BuiltinFunc func(args ...any) (any, error)

// builtins 与 validate.go 的 allowedFunctions 一一对应：
// 允许表里的每个名字都必须在这里有实现。
var builtins = map[string]BuiltinFunc{
	"len":      builtinLen,
	"min":      builtinMin,
	"max":      builtinMax,
	"sum":      builtinSum,
	"abs":      builtinAbs,
	"round":    builtinRound,
	"str":      builtinStr,
	"int":      builtinInt,
	"float":    builtinFloat,
	"bool":     builtinBool,
	"contains": builtinContains,
}

// Builtin 按名字查内置函数。
func Builtin(name string) (BuiltinFunc, bool) {
	fn, ok := builtins[name]
	return fn, ok
}

// Builtins 返回全部内置函数名，字典序。
func Builtins() []string {
	names := maps.Keys(builtins)
	slices.Sort(names)
	return names
}

func arityError(name, want string, got int) error {
	return merr.WrapErrExpressionEval(fmt.Sprintf("%s() takes exactly %s (%d given)", name, want, got))
}

// builtinLen 对字符串按 Unicode 码点计数，而非字节数。
func builtinLen(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, arityError("len", "one argument", len(args))
	}
	switch v := args[0].(type) {
	case string:
		return int64(utf8.RuneCountInString(v)), nil
	case []any:
		return int64(len(v)), nil
	case map[string]any:
		return int64(len(v)), nil
	default:
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("object of type %s has no len()", typeNameOf(args[0])))
	}
}

func builtinMin(args ...any) (any, error) {
	return pickExtreme("min", "<", args)
}

func builtinMax(args ...any) (any, error) {
	return pickExtreme("max", ">", args)
}

// pickExtreme 支持两种调用形态：单个列表参数，或两个以上标量参数。
func pickExtreme(name, op string, args []any) (any, error) {
	if len(args) == 0 {
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("%s() expected at least one argument (0 given)", name))
	}
	items := args
	if len(args) == 1 {
		list, ok := args[0].([]any)
		if !ok {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("%s() single argument must be a list, got %s", name, typeNameOf(args[0])))
		}
		items = list
	}
	if len(items) == 0 {
		return nil, merr.WrapErrExpressionEval(name + "() arg is an empty sequence")
	}
	best := items[0]
	for _, item := range items[1:] {
		better, err := orderValues(op, item, best)
		if err != nil {
			return nil, merr.WrapErrExpressionEval(err.Error())
		}
		if better {
			best = item
		}
	}
	return best, nil
}

// builtinSum 对全整数列表返回 int64，出现浮点后整体提升为 float64。
func builtinSum(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, arityError("sum", "one argument", len(args))
	}
	list, ok := args[0].([]any)
	if !ok {
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("sum() argument must be a list, got %s", typeNameOf(args[0])))
	}
	var (
		total   int64
		ftotal  float64
		asFloat bool
	)
	for _, elem := range list {
		f, i, isInt, ok := asNumber(elem)
		if !ok {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("unsupported operand type for sum(): %s", typeNameOf(elem)))
		}
		if asFloat {
			ftotal += f
			continue
		}
		if isInt {
			total += i
			continue
		}
		asFloat = true
		ftotal = float64(total) + f
	}
	if asFloat {
		return ftotal, nil
	}
	return total, nil
}

func builtinAbs(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, arityError("abs", "one argument", len(args))
	}
	switch v := args[0].(type) {
	case int64:
		if v == math.MinInt64 {
			return nil, merr.WrapErrExpressionEval("integer overflow in abs()")
		}
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case uint64:
		return v, nil
	case float64:
		return math.Abs(v), nil
	default:
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("bad operand type for abs(): %s", typeNameOf(args[0])))
	}
}

// builtinRound 采用银行家舍入，结果收敛为整数。
func builtinRound(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, arityError("round", "one argument", len(args))
	}
	switch v := args[0].(type) {
	case int64:
		return v, nil
	case uint64:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("cannot round %s to integer", formatPyFloat(v)))
		}
		r := math.RoundToEven(v)
		if r > math.MaxInt64 || r < math.MinInt64 {
			return nil, merr.WrapErrExpressionEval("rounded value out of integer range")
		}
		return int64(r), nil
	default:
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("bad operand type for round(): %s", typeNameOf(args[0])))
	}
}

func builtinStr(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, arityError("str", "one argument", len(args))
	}
	return pyStr(args[0]), nil
}

// builtinInt 对浮点向零截断，对字符串按十进制解析。
func builtinInt(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, arityError("int", "one argument", len(args))
	}
	switch v := args[0].(type) {
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, merr.WrapErrExpressionEval("int() value out of range")
		}
		return int64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("cannot convert %s to integer", formatPyFloat(v)))
		}
		t := math.Trunc(v)
		if t > math.MaxInt64 || t < math.MinInt64 {
			return nil, merr.WrapErrExpressionEval("int() value out of range")
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("invalid literal for int(): %s", quotePy(v)))
		}
		return n, nil
	default:
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("int() argument must be a number or string, got %s", typeNameOf(args[0])))
	}
}

func builtinFloat(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, arityError("float", "one argument", len(args))
	}
	switch v := args[0].(type) {
	case bool:
		if v {
			return float64(1), nil
		}
		return float64(0), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, merr.WrapErrExpressionEval(fmt.Sprintf("could not convert string to float: %s", quotePy(v)))
		}
		return f, nil
	default:
		return nil, merr.WrapErrExpressionEval(fmt.Sprintf("float() argument must be a number or string, got %s", typeNameOf(args[0])))
	}
}

func builtinBool(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, arityError("bool", "one argument", len(args))
	}
	return truthy(args[0]), nil
}

func builtinContains(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, arityError("contains", "two arguments", len(args))
	}
	ok, err := containsValue(args[0], args[1])
	if err != nil {
		return nil, merr.WrapErrExpressionEval(err.Error())
	}
	return ok, nil
}
