package expression

import (
	"fmt"
	"strconv"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// parse 将单表达式源码解析为语法树。语法失败返回 ErrExpressionSyntax。
//
// 文法（Python 表达式子集，lambda 仅允许出现在顶层）：
//
//	expr       := "lambda" [params] ":" or | or
//	or         := and ("or" and)*
//	and        := not ("and" not)*
//	not        := "not" not | comparison
//	comparison := arith [compop arith]          // 不支持链式比较
//	compop     := "==" "!=" "<" "<=" ">" ">=" "in" | "not" "in"
//	arith      := term (("+"|"-") term)*
//	term       := factor (("*"|"/"|"//"|"%") factor)*
//	factor     := ("-"|"+") factor | postfix
//	postfix    := primary ("." NAME | "[" expr "]" | "(" args ")")*
//	primary    := INT | FLOAT | STRING | "True" | "False" | "None"
//	            | NAME | "(" expr ")" | list | dict
func parse(src string) (Expr, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseTop()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, p.errorf(tok, "unexpected trailing input")
	}
	return expr, nil
}

type parser struct {
	tokens []token
	idx    int
}

func (p *parser) peek() token {
	return p.tokens[p.idx]
}

func (p *parser) next() token {
	tok := p.tokens[p.idx]
	if tok.kind != tokenEOF {
		p.idx++
	}
	return tok
}

func (p *parser) matchOp(text string) bool {
	if tok := p.peek(); tok.kind == tokenOp && tok.text == text {
		p.idx++
		return true
	}
	return false
}

func (p *parser) matchKeyword(text string) bool {
	if tok := p.peek(); tok.kind == tokenKeyword && tok.text == text {
		p.idx++
		return true
	}
	return false
}

func (p *parser) peekKeyword(text string) bool {
	tok := p.peek()
	return tok.kind == tokenKeyword && tok.text == text
}

func (p *parser) expectOp(text string) error {
	if tok := p.peek(); tok.kind != tokenOp || tok.text != text {
		return p.errorf(tok, fmt.Sprintf("expected %q", text))
	}
	p.idx++
	return nil
}

func (p *parser) errorf(tok token, reason string) error {
	return merr.WrapErrExpressionSyntax(tok.pos.Line, tok.pos.Column, reason)
}

func (p *parser) parseTop() (Expr, error) {
	if p.peekKeyword("lambda") {
		tok := p.next()
		params, err := p.parseLambdaParams()
		if err != nil {
			return nil, err
		}
		body, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Lambda{pos: tok.pos, Params: params, Body: body}, nil
	}
	return p.parseExpr()
}

func (p *parser) parseLambdaParams() ([]string, error) {
	var params []string
	seen := make(map[string]struct{})
	for {
		tok := p.peek()
		if tok.kind == tokenOp && tok.text == ":" {
			p.idx++
			return params, nil
		}
		if tok.kind != tokenName {
			return nil, p.errorf(tok, "expected parameter name")
		}
		if _, dup := seen[tok.text]; dup {
			return nil, p.errorf(tok, "duplicate parameter "+tok.text)
		}
		seen[tok.text] = struct{}{}
		params = append(params, tok.text)
		p.idx++

		if p.matchOp(",") {
			continue
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		return params, nil
	}
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("or") {
		tok := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BoolOp{pos: tok.pos, Op: "or", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peekKeyword("and") {
		tok := p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BoolOp{pos: tok.pos, Op: "and", X: left, Y: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peekKeyword("not") {
		tok := p.next()
		// "not in" 只会出现在比较位置，操作数起始处的 not 一定是逻辑非。
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{pos: tok.pos, Op: "not", X: x}, nil
	}
	return p.parseComparison()
}

// compareOp 在当前位置识别比较运算符；不消耗输入时返回 ok=false。
func (p *parser) compareOp() (string, token, bool, error) {
	tok := p.peek()
	if tok.kind == tokenOp {
		switch tok.text {
		case "==", "!=", "<", "<=", ">", ">=":
			p.idx++
			return tok.text, tok, true, nil
		}
		return "", tok, false, nil
	}
	if tok.kind == tokenKeyword && tok.text == "in" {
		p.idx++
		return "in", tok, true, nil
	}
	if tok.kind == tokenKeyword && tok.text == "not" {
		p.idx++
		if !p.matchKeyword("in") {
			return "", tok, false, p.errorf(p.peek(), "expected 'in' after 'not'")
		}
		return "not in", tok, true, nil
	}
	return "", tok, false, nil
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}

	op, tok, ok, err := p.compareOp()
	if err != nil {
		return nil, err
	}
	if !ok {
		return left, nil
	}
	right, err := p.parseArith()
	if err != nil {
		return nil, err
	}

	// 比较是二元的：再次出现比较运算符即链式比较，直接拒绝。
	if _, chainTok, chained, err := p.compareOp(); err != nil {
		return nil, err
	} else if chained {
		return nil, p.errorf(chainTok, "comparison chaining is not supported")
	}
	return &Compare{pos: tok.pos, Op: op, X: left, Y: right}, nil
}

func (p *parser) parseArith() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokenOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.idx++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Binary{pos: tok.pos, Op: tok.text, X: left, Y: right}
	}
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokenOp {
			return left, nil
		}
		switch tok.text {
		case "*", "/", "//", "%":
			p.idx++
			right, err := p.parseFactor()
			if err != nil {
				return nil, err
			}
			left = &Binary{pos: tok.pos, Op: tok.text, X: left, Y: right}
		default:
			return left, nil
		}
	}
}

func (p *parser) parseFactor() (Expr, error) {
	tok := p.peek()
	if tok.kind == tokenOp && (tok.text == "-" || tok.text == "+") {
		p.idx++
		x, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &Unary{pos: tok.pos, Op: tok.text, X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokenOp {
			return x, nil
		}
		switch tok.text {
		case ".":
			p.idx++
			name := p.peek()
			if name.kind != tokenName {
				return nil, p.errorf(name, "expected attribute name after '.'")
			}
			p.idx++
			x = &Attribute{pos: tok.pos, X: x, Attr: name.text}

		case "[":
			p.idx++
			index, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			x = &Subscript{pos: tok.pos, X: x, Index: index}

		case "(":
			p.idx++
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			x = &Call{pos: tok.pos, Fun: x, Args: args}

		default:
			return x, nil
		}
	}
}

func (p *parser) parseCallArgs() ([]Expr, error) {
	var args []Expr
	if p.matchOp(")") {
		return args, nil
	}
	for {
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if p.matchOp(",") {
			// 允许尾随逗号。
			if p.matchOp(")") {
				return args, nil
			}
			continue
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return args, nil
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokenInt:
		p.idx++
		i, err := strconv.ParseInt(tok.text, 10, 64)
		if err == nil {
			return &Literal{pos: tok.pos, Value: i}, nil
		}
		// 超出 int64 的整数字面量退化为 float64。
		f, ferr := strconv.ParseFloat(tok.text, 64)
		if ferr != nil {
			return nil, p.errorf(tok, "invalid integer literal "+tok.text)
		}
		return &Literal{pos: tok.pos, Value: f}, nil

	case tokenFloat:
		p.idx++
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid float literal "+tok.text)
		}
		return &Literal{pos: tok.pos, Value: f}, nil

	case tokenString:
		p.idx++
		return &Literal{pos: tok.pos, Value: tok.text}, nil

	case tokenName:
		p.idx++
		return &Name{pos: tok.pos, Ident: tok.text}, nil

	case tokenKeyword:
		switch tok.text {
		case "True":
			p.idx++
			return &Literal{pos: tok.pos, Value: true}, nil
		case "False":
			p.idx++
			return &Literal{pos: tok.pos, Value: false}, nil
		case "None":
			p.idx++
			return &Literal{pos: tok.pos, Value: nil}, nil
		case "lambda":
			return nil, p.errorf(tok, "lambda is only allowed at the top level")
		default:
			return nil, p.errorf(tok, "unexpected keyword "+tok.text)
		}

	case tokenOp:
		switch tok.text {
		case "(":
			p.idx++
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if next := p.peek(); next.kind == tokenOp && next.text == "," {
				return nil, p.errorf(next, "tuples are not supported")
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return inner, nil
		case "[":
			return p.parseListDisplay()
		case "{":
			return p.parseDictDisplay()
		}
		return nil, p.errorf(tok, "unexpected token "+strconv.Quote(tok.text))

	case tokenEOF:
		return nil, p.errorf(tok, "unexpected end of input")

	default:
		return nil, p.errorf(tok, "unexpected token "+strconv.Quote(tok.text))
	}
}

func (p *parser) parseListDisplay() (Expr, error) {
	open := p.next()
	list := &ListExpr{pos: open.pos}
	if p.matchOp("]") {
		return list, nil
	}
	for {
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list.Elems = append(list.Elems, elem)

		if p.matchOp(",") {
			if p.matchOp("]") {
				return list, nil
			}
			continue
		}
		if err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return list, nil
	}
}

func (p *parser) parseDictDisplay() (Expr, error) {
	open := p.next()
	dict := &DictExpr{pos: open.pos}
	if p.matchOp("}") {
		return dict, nil
	}
	for {
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		dict.Keys = append(dict.Keys, key)
		dict.Values = append(dict.Values, value)

		if p.matchOp(",") {
			if p.matchOp("}") {
				return dict, nil
			}
			continue
		}
		if err := p.expectOp("}"); err != nil {
			return nil, err
		}
		return dict, nil
	}
}
