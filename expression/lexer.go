package expression

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lk2023060901/serilux-go/pkg/util/merr"
)

// lexer 把表达式源码切分为 token 序列。
// 源码来自线格式中的 lambda 字符串，单行为主，仍按行列跟踪位置。
type lexer struct {
	src  string
	off  int
	line int
	col  int
}

// lex 一次性切分整个源码。词法错误返回 ErrExpressionSyntax。
func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	var tokens []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.kind == tokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) errorf(pos Position, reason string) error {
	return merr.WrapErrExpressionSyntax(pos.Line, pos.Column, reason)
}

func (l *lexer) pos() Position {
	return Position{Line: l.line, Column: l.col}
}

func (l *lexer) peek() rune {
	if l.off >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.off:])
	return r
}

func (l *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.src[l.off:])
	l.off += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) skipSpace() {
	for l.off < len(l.src) {
		switch l.peek() {
		case ' ', '\t', '\r', '\n':
			l.advance()
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos()
	if l.off >= len(l.src) {
		return token{kind: tokenEOF, pos: start}, nil
	}

	r := l.peek()
	switch {
	case unicode.IsDigit(r):
		return l.scanNumber(start)
	case r == '\'' || r == '"':
		return l.scanString(start)
	case r == '_' || unicode.IsLetter(r):
		return l.scanName(start)
	default:
		return l.scanOperator(start)
	}
}

func (l *lexer) scanNumber(start Position) (token, error) {
	var sb strings.Builder
	isFloat := false

	for l.off < len(l.src) && unicode.IsDigit(l.peek()) {
		sb.WriteRune(l.advance())
	}
	if l.off < len(l.src) && l.peek() == '.' {
		isFloat = true
		sb.WriteRune(l.advance())
		for l.off < len(l.src) && unicode.IsDigit(l.peek()) {
			sb.WriteRune(l.advance())
		}
	}
	if l.off < len(l.src) && (l.peek() == 'e' || l.peek() == 'E') {
		isFloat = true
		sb.WriteRune(l.advance())
		if l.off < len(l.src) && (l.peek() == '+' || l.peek() == '-') {
			sb.WriteRune(l.advance())
		}
		if l.off >= len(l.src) || !unicode.IsDigit(l.peek()) {
			return token{}, l.errorf(l.pos(), "exponent has no digits")
		}
		for l.off < len(l.src) && unicode.IsDigit(l.peek()) {
			sb.WriteRune(l.advance())
		}
	}

	kind := tokenInt
	if isFloat {
		kind = tokenFloat
	}
	return token{kind: kind, text: sb.String(), pos: start}, nil
}

func (l *lexer) scanString(start Position) (token, error) {
	quote := l.advance()
	var sb strings.Builder
	for {
		if l.off >= len(l.src) {
			return token{}, l.errorf(start, "unterminated string literal")
		}
		r := l.advance()
		switch r {
		case quote:
			return token{kind: tokenString, text: sb.String(), pos: start}, nil
		case '\n':
			return token{}, l.errorf(start, "unterminated string literal")
		case '\\':
			if l.off >= len(l.src) {
				return token{}, l.errorf(start, "unterminated string literal")
			}
			esc := l.advance()
			switch esc {
			case '\\', '\'', '"':
				sb.WriteRune(esc)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			default:
				return token{}, l.errorf(l.pos(), "unsupported escape \\"+string(esc))
			}
		default:
			sb.WriteRune(r)
		}
	}
}

func (l *lexer) scanName(start Position) (token, error) {
	var sb strings.Builder
	for l.off < len(l.src) {
		r := l.peek()
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(l.advance())
			continue
		}
		break
	}
	text := sb.String()
	if _, ok := keywords[text]; ok {
		return token{kind: tokenKeyword, text: text, pos: start}, nil
	}
	return token{kind: tokenName, text: text, pos: start}, nil
}

func (l *lexer) scanOperator(start Position) (token, error) {
	r := l.advance()
	switch r {
	case '=':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokenOp, text: "==", pos: start}, nil
		}
		return token{}, l.errorf(start, "assignment is not an expression")
	case '!':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokenOp, text: "!=", pos: start}, nil
		}
		return token{}, l.errorf(start, "unexpected character '!'")
	case '<':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokenOp, text: "<=", pos: start}, nil
		}
		return token{kind: tokenOp, text: "<", pos: start}, nil
	case '>':
		if l.peek() == '=' {
			l.advance()
			return token{kind: tokenOp, text: ">=", pos: start}, nil
		}
		return token{kind: tokenOp, text: ">", pos: start}, nil
	case '/':
		if l.peek() == '/' {
			l.advance()
			return token{kind: tokenOp, text: "//", pos: start}, nil
		}
		return token{kind: tokenOp, text: "/", pos: start}, nil
	case '+', '-', '*', '%', '(', ')', '[', ']', '{', '}', ',', ':', '.':
		return token{kind: tokenOp, text: string(r), pos: start}, nil
	default:
		return token{}, l.errorf(start, fmt.Sprintf("unexpected character %q", r))
	}
}
