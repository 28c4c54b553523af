package expression

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// fieldReader 由可序列化对象结构性满足。
// 求值器对对象属性只读取其声明字段：沙箱看到的字段集合
// 与编解码器完全一致。
type fieldReader interface {
	TypeName() string
	SerializableFields() []string
	Field(name string) (any, error)
}

// 求值器的值集合：nil、bool、int64、uint64、float64、string、
// []any、map[string]any，以及满足 fieldReader 的对象。

// truthy 按 Python 真值语义判定：空串、空容器与零都为假。
func truthy(v any) bool {
	switch n := v.(type) {
	case nil:
		return false
	case bool:
		return n
	case int64:
		return n != 0
	case uint64:
		return n != 0
	case float64:
		return n != 0
	case string:
		return len(n) > 0
	case []any:
		return len(n) > 0
	case map[string]any:
		return len(n) > 0
	default:
		return v != nil
	}
}

// asNumber 把值规约为数字：返回浮点形式、整数形式、是否精确整数、是否为数字。
// bool 不按数字处理。
func asNumber(v any) (f float64, i int64, isInt bool, ok bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), n, true, true
	case uint64:
		if n <= math.MaxInt64 {
			return float64(n), int64(n), true, true
		}
		return float64(n), 0, false, true
	case float64:
		return n, 0, false, true
	default:
		return 0, 0, false, false
	}
}

// normalizeValue 把宿主侧的原生值收敛到求值器的封闭集合：
// 整数宽度并入 int64/uint64，float32 提升为 float64，
// 常见的窄类型容器改写为 []any / map[string]any。容器会被复制，
// 求值期间不会触碰宿主数据。
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return uint64(n)
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case float32:
		return float64(n)
	case []any:
		out := make([]any, len(n))
		for i, elem := range n {
			out[i] = normalizeValue(elem)
		}
		return out
	case []string:
		out := make([]any, len(n))
		for i, elem := range n {
			out[i] = elem
		}
		return out
	case []int:
		out := make([]any, len(n))
		for i, elem := range n {
			out[i] = int64(elem)
		}
		return out
	case []int64:
		out := make([]any, len(n))
		for i, elem := range n {
			out[i] = elem
		}
		return out
	case []float64:
		out := make([]any, len(n))
		for i, elem := range n {
			out[i] = elem
		}
		return out
	case []bool:
		out := make([]any, len(n))
		for i, elem := range n {
			out[i] = elem
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for key, value := range n {
			out[key] = normalizeValue(value)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(n))
		for key, value := range n {
			out[key] = value
		}
		return out
	default:
		return v
	}
}

// equalValues 在封闭值集合上做深等值比较；
// 数字跨形态比较（1 == 1.0 为真），对象按指针同一性。
func equalValues(a, b any) bool {
	if af, ai, aInt, aok := asNumber(a); aok {
		bf, bi, bInt, bok := asNumber(b)
		if !bok {
			return false
		}
		if aInt && bInt {
			return ai == bi
		}
		return af == bf
	}

	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for idx := range av {
			if !equalValues(av[idx], bv[idx]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for key, value := range av {
			other, present := bv[key]
			if !present || !equalValues(value, other) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// orderValues 执行有序比较（< <= > >=），只定义在数字与字符串上。
func orderValues(op string, a, b any) (bool, error) {
	if af, ai, aInt, aok := asNumber(a); aok {
		bf, bi, bInt, bok := asNumber(b)
		if !bok {
			return false, fmt.Errorf("'%s' not supported between %s and %s", op, typeNameOf(a), typeNameOf(b))
		}
		if aInt && bInt {
			return orderInt(op, ai, bi), nil
		}
		return orderFloat(op, af, bf), nil
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return false, fmt.Errorf("'%s' not supported between %s and %s", op, typeNameOf(a), typeNameOf(b))
		}
		return orderString(op, as, bs), nil
	}
	return false, fmt.Errorf("'%s' not supported between %s and %s", op, typeNameOf(a), typeNameOf(b))
}

func orderInt(op string, a, b int64) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}

func orderFloat(op string, a, b float64) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}

func orderString(op string, a, b string) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}

// containsValue 实现成员判定：子串、列表成员（深等值）、字典键。
func containsValue(container, item any) (bool, error) {
	switch c := container.(type) {
	case string:
		s, ok := item.(string)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires string as left operand, not %s", typeNameOf(item))
		}
		return strings.Contains(c, s), nil
	case []any:
		for _, elem := range c {
			if equalValues(elem, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		key, ok := item.(string)
		if !ok {
			return false, nil
		}
		_, present := c[key]
		return present, nil
	default:
		return false, fmt.Errorf("argument of type %s is not a container", typeNameOf(container))
	}
}

// typeNameOf 返回值在错误信息中的类型名，对象用其声明的类型名。
func typeNameOf(v any) string {
	switch n := v.(type) {
	case nil:
		return "None"
	case bool:
		return "bool"
	case int64, uint64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	case fieldReader:
		return n.TypeName()
	default:
		return fmt.Sprintf("%T", v)
	}
}

// pyStr 按 str() 语义渲染：字符串原样，其余同 pyRepr。
func pyStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return pyRepr(v)
}

// pyRepr 按 repr() 语义渲染：字符串加单引号，容器递归。
// 字典键排序输出，保证结果确定。
func pyRepr(v any) string {
	switch n := v.(type) {
	case nil:
		return "None"
	case bool:
		if n {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(n, 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	case float64:
		return formatPyFloat(n)
	case string:
		return quotePy(n)
	case []any:
		parts := make([]string, len(n))
		for i, elem := range n {
			parts[i] = pyRepr(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := maps.Keys(n)
		slices.Sort(keys)
		parts := make([]string, len(keys))
		for i, key := range keys {
			parts[i] = quotePy(key) + ": " + pyRepr(n[key])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case fieldReader:
		return "<" + n.TypeName() + ">"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatPyFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func quotePy(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '\'':
			sb.WriteString(`\'`)
		case '\n':
			sb.WriteString(`\n`)
		case '\t':
			sb.WriteString(`\t`)
		case '\r':
			sb.WriteString(`\r`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('\'')
	return sb.String()
}
