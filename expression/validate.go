package expression

import (
	"strings"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
	"github.com/lk2023060901/serilux-go/pkg/util/typeutil"
)

// 允许表是沙箱的唯一事实来源，全部以数据表达：
// 节点集合、可调用的函数名、可调用的方法名。
// 解析器产出之外的节点本就不可表示，节点表仍然保留，
// 使边界在一处可见、可审计。
var (
	allowedNodes = typeutil.NewSet(
		"literal", "name", "list", "dict",
		"unary", "binary", "compare", "boolop",
		"attribute", "subscript", "call", "lambda",
	)

	allowedFunctions = typeutil.NewSet(
		"len", "min", "max", "sum", "abs", "round",
		"str", "int", "float", "bool", "contains",
	)

	allowedMethods = typeutil.NewSet(
		"get", "keys", "values",
		"startswith", "endswith", "lower", "upper", "strip",
	)
)

// validateExpr 在求值前对整棵语法树做结构校验：
//   - 每个节点都在节点允许表内；
//   - 调用目标只能是函数允许表中的裸名字，或方法允许表中的属性；
//   - 任何以 _ 开头的名字、属性或参数都被拒绝（封死 __import__ 与 dunder 链）。
//
// 违规返回 ErrExpressionUnsafe，错误中带上越界的词。
func validateExpr(e Expr) error {
	if e == nil {
		return merr.WrapErrExpressionUnsafe("<nil>", "empty expression")
	}
	if !allowedNodes.Contain(nodeKind(e)) {
		return merr.WrapErrExpressionUnsafe(nodeKind(e), "node is outside the sandbox allow-list")
	}

	switch n := e.(type) {
	case *Literal:
		return nil

	case *Name:
		return validateIdent(n.Ident)

	case *ListExpr:
		for _, elem := range n.Elems {
			if err := validateExpr(elem); err != nil {
				return err
			}
		}
		return nil

	case *DictExpr:
		for i := range n.Keys {
			if err := validateExpr(n.Keys[i]); err != nil {
				return err
			}
			if err := validateExpr(n.Values[i]); err != nil {
				return err
			}
		}
		return nil

	case *Unary:
		return validateExpr(n.X)

	case *Binary:
		if err := validateExpr(n.X); err != nil {
			return err
		}
		return validateExpr(n.Y)

	case *Compare:
		if err := validateExpr(n.X); err != nil {
			return err
		}
		return validateExpr(n.Y)

	case *BoolOp:
		if err := validateExpr(n.X); err != nil {
			return err
		}
		return validateExpr(n.Y)

	case *Attribute:
		if err := validateIdent(n.Attr); err != nil {
			return err
		}
		return validateExpr(n.X)

	case *Subscript:
		if err := validateExpr(n.X); err != nil {
			return err
		}
		return validateExpr(n.Index)

	case *Call:
		if err := validateCallTarget(n.Fun); err != nil {
			return err
		}
		for _, arg := range n.Args {
			if err := validateExpr(arg); err != nil {
				return err
			}
		}
		return nil

	case *Lambda:
		for _, param := range n.Params {
			if err := validateIdent(param); err != nil {
				return err
			}
		}
		return validateExpr(n.Body)

	default:
		return merr.WrapErrExpressionUnsafe(nodeKind(e), "node is outside the sandbox allow-list")
	}
}

func validateIdent(ident string) error {
	if strings.HasPrefix(ident, "_") {
		return merr.WrapErrExpressionUnsafe(ident, "underscore-prefixed names are not allowed")
	}
	return nil
}

// validateCallTarget 校验调用目标：
// 裸名字须在函数允许表内；属性调用的方法名须在方法允许表内，
// 且接收者表达式自身再走一遍常规校验。其余调用形式一律拒绝。
func validateCallTarget(fun Expr) error {
	switch f := fun.(type) {
	case *Name:
		if !allowedFunctions.Contain(f.Ident) {
			return merr.WrapErrExpressionUnsafe(f.Ident, "function is not in the allow-list")
		}
		return nil

	case *Attribute:
		if err := validateIdent(f.Attr); err != nil {
			return err
		}
		if !allowedMethods.Contain(f.Attr) {
			return merr.WrapErrExpressionUnsafe(f.Attr, "method is not in the allow-list")
		}
		return validateExpr(f.X)

	default:
		return merr.WrapErrExpressionUnsafe(nodeKind(fun), "call target must be an allow-listed function or method")
	}
}
