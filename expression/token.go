package expression

import "fmt"

// Position 是源码中的一个位置，行列都从 1 开始。
type Position struct {
	Line   int
	Column int
}

// String 返回 "line:column" 形式的位置描述。
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

type tokenKind uint8

const (
	tokenEOF tokenKind = iota
	// tokenInt 整数字面量。
	tokenInt
	// tokenFloat 浮点字面量。
	tokenFloat
	// tokenString 字符串字面量，text 为解码后的内容。
	tokenString
	// tokenName 标识符。
	tokenName
	// tokenKeyword 关键字：lambda / and / or / not / in / True / False / None。
	tokenKeyword
	// tokenOp 运算符与标点。
	tokenOp
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of input"
	case tokenInt:
		return "integer"
	case tokenFloat:
		return "float"
	case tokenString:
		return "string"
	case tokenName:
		return "name"
	case tokenKeyword:
		return "keyword"
	case tokenOp:
		return "operator"
	default:
		return "unknown"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  Position
}

// 关键字集合。True/False/None 作为字面量关键字处理。
var keywords = map[string]struct{}{
	"lambda": {},
	"and":    {},
	"or":     {},
	"not":    {},
	"in":     {},
	"True":   {},
	"False":  {},
	"None":   {},
}
