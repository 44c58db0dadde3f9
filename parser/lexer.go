package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokChar
	tokPunct
	tokDoc
)

type token struct {
	kind tokenKind
	text string
	pos  Pos
	// doc is the doc comment directly before the token, if any.
	doc *Doc
}

type lexer struct {
	file string
	src  string
	off  int
	line int
	col  int
}

func newLexer(file string, src []byte) *lexer {
	s := strings.ReplaceAll(string(src), "\r\n", "\n")
	s = strings.TrimPrefix(s, "\ufeff")
	return &lexer{file: file, src: s, line: 1, col: 1}
}

func (l *lexer) pos() Pos {
	return Pos{File: l.file, Line: l.line, Col: l.col}
}

func (l *lexer) errorf(p Pos, format string, args ...any) error {
	return newError(p, "", format, args...)
}

func (l *lexer) peekByte(n int) byte {
	if l.off+n < len(l.src) {
		return l.src[l.off+n]
	}
	return 0
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.off < len(l.src); {
		r, size := utf8.DecodeRuneInString(l.src[l.off:])
		l.off += size
		i += size
		if r == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
}

// tokens lexes the whole file.
func (l *lexer) tokens() ([]token, error) {
	var res []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		res = append(res, t)
		if t.kind == tokEOF {
			return res, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\f' || c == '\r':
			l.advance(1)
		case c == '/' && l.peekByte(1) == '/':
			end := strings.IndexByte(l.src[l.off:], '\n')
			if end < 0 {
				end = len(l.src) - l.off
			}
			l.advance(end)
		case c == '/' && l.peekByte(1) == '*':
			start := l.pos()
			startOff := l.off
			end := strings.Index(l.src[l.off+2:], "*/")
			if end < 0 {
				return token{}, l.errorf(start, "unterminated comment")
			}
			l.advance(end + 4)
			text := l.src[startOff:l.off]
			if strings.HasPrefix(text, "/**") && text != "/**/" {
				return token{kind: tokDoc, text: text, pos: start}, nil
			}
		default:
			return l.scanToken()
		}
	}
	return token{kind: tokEOF, pos: l.pos()}, nil
}

func (l *lexer) scanToken() (token, error) {
	start := l.pos()
	startOff := l.off
	r, _ := utf8.DecodeRuneInString(l.src[l.off:])
	switch {
	case isIdentStart(r):
		for l.off < len(l.src) {
			r, size := utf8.DecodeRuneInString(l.src[l.off:])
			if !isIdentStart(r) && !unicode.IsDigit(r) {
				break
			}
			l.advance(size)
		}
		return token{kind: tokIdent, text: l.src[startOff:l.off], pos: start}, nil
	case r >= '0' && r <= '9' || r == '.' && l.peekByte(1) >= '0' && l.peekByte(1) <= '9':
		for l.off < len(l.src) {
			c := l.src[l.off]
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' || c == '.') {
				break
			}
			l.advance(1)
		}
		return token{kind: tokNumber, text: l.src[startOff:l.off], pos: start}, nil
	case r == '"':
		if strings.HasPrefix(l.src[l.off:], `"""`) {
			end := strings.Index(l.src[l.off+3:], `"""`)
			if end < 0 {
				return token{}, l.errorf(start, "unterminated text block")
			}
			l.advance(end + 6)
			return token{kind: tokString, text: l.src[startOff:l.off], pos: start}, nil
		}
		if err := l.skipQuoted('"'); err != nil {
			return token{}, err
		}
		return token{kind: tokString, text: l.src[startOff:l.off], pos: start}, nil
	case r == '\'':
		if err := l.skipQuoted('\''); err != nil {
			return token{}, err
		}
		return token{kind: tokChar, text: l.src[startOff:l.off], pos: start}, nil
	case r == '.' && strings.HasPrefix(l.src[l.off:], "..."):
		l.advance(3)
		return token{kind: tokPunct, text: "...", pos: start}, nil
	default:
		l.advance(utf8.RuneLen(r))
		return token{kind: tokPunct, text: l.src[startOff:l.off], pos: start}, nil
	}
}

func (l *lexer) skipQuoted(quote byte) error {
	start := l.pos()
	l.advance(1)
	for l.off < len(l.src) {
		switch l.src[l.off] {
		case '\\':
			l.advance(2)
		case '\n':
			return l.errorf(start, "unterminated literal")
		case quote:
			l.advance(1)
			return nil
		default:
			l.advance(1)
		}
	}
	return l.errorf(start, "unterminated literal")
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}
