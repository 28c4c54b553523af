package expression

// Expr 是表达式语法树节点的封闭集合。
// 只有本包的解析器能产出节点；校验器与求值器按该集合穷举分派。
type Expr interface {
	// Pos 返回节点在源码中的起始位置，用于错误定位。
	Pos() Position

	exprNode()
}

// Literal 是字面量：nil / bool / int64 / float64 / string。
type Literal struct {
	pos   Position
	Value any
}

// Name 是名字引用。
type Name struct {
	pos   Position
	Ident string
}

// ListExpr 是列表显示 [a, b, ...]。
type ListExpr struct {
	pos   Position
	Elems []Expr
}

// DictExpr 是字典显示 {k: v, ...}，键值按出现顺序成对存放。
type DictExpr struct {
	pos    Position
	Keys   []Expr
	Values []Expr
}

// Unary 是一元运算：- + not。
type Unary struct {
	pos Position
	Op  string
	X   Expr
}

// Binary 是算术二元运算：+ - * / // %。
type Binary struct {
	pos  Position
	Op   string
	X, Y Expr
}

// Compare 是比较运算：== != < <= > >= in "not in"。
// 不支持 Python 的链式比较，a < b < c 在解析期即报错。
type Compare struct {
	pos  Position
	Op   string
	X, Y Expr
}

// BoolOp 是短路布尔运算 and / or，返回操作数本身（Python 语义）。
type BoolOp struct {
	pos  Position
	Op   string
	X, Y Expr
}

// Attribute 是属性访问 x.y。
type Attribute struct {
	pos  Position
	X    Expr
	Attr string
}

// Subscript 是下标访问 x[i]。
type Subscript struct {
	pos   Position
	X     Expr
	Index Expr
}

// Call 是调用 f(a, b, ...)，只支持位置参数。
type Call struct {
	pos  Position
	Fun  Expr
	Args []Expr
}

// Lambda 是可选的顶层 lambda 形式：lambda a, b: body。
type Lambda struct {
	pos    Position
	Params []string
	Body   Expr
}

func (e *Literal) Pos() Position   { return e.pos }
func (e *Name) Pos() Position      { return e.pos }
func (e *ListExpr) Pos() Position  { return e.pos }
func (e *DictExpr) Pos() Position  { return e.pos }
func (e *Unary) Pos() Position     { return e.pos }
func (e *Binary) Pos() Position    { return e.pos }
func (e *Compare) Pos() Position   { return e.pos }
func (e *BoolOp) Pos() Position    { return e.pos }
func (e *Attribute) Pos() Position { return e.pos }
func (e *Subscript) Pos() Position { return e.pos }
func (e *Call) Pos() Position      { return e.pos }
func (e *Lambda) Pos() Position    { return e.pos }

func (*Literal) exprNode()   {}
func (*Name) exprNode()      {}
func (*ListExpr) exprNode()  {}
func (*DictExpr) exprNode()  {}
func (*Unary) exprNode()     {}
func (*Binary) exprNode()    {}
func (*Compare) exprNode()   {}
func (*BoolOp) exprNode()    {}
func (*Attribute) exprNode() {}
func (*Subscript) exprNode() {}
func (*Call) exprNode()      {}
func (*Lambda) exprNode()    {}

// nodeKind 返回节点在允许表中的标签。
func nodeKind(e Expr) string {
	switch e.(type) {
	case *Literal:
		return "literal"
	case *Name:
		return "name"
	case *ListExpr:
		return "list"
	case *DictExpr:
		return "dict"
	case *Unary:
		return "unary"
	case *Binary:
		return "binary"
	case *Compare:
		return "compare"
	case *BoolOp:
		return "boolop"
	case *Attribute:
		return "attribute"
	case *Subscript:
		return "subscript"
	case *Call:
		return "call"
	case *Lambda:
		return "lambda"
	default:
		return "unknown"
	}
}
