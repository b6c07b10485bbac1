package cpp

import (
	"errors"
	"io"
	"strings"
	"unicode"
)

// The lexer turns source text into preprocessing tokens.
//
// Line splices are removed while loading, so every later stage sees logical
// lines. Comments collapse into whitespace tokens. The last line of a
// non-empty file always ends in a NEWLINE token.

type srcChar struct {
	r    rune
	line int
	col  int
}

const eofRune = -1

const (
	dirNone = iota
	// a # was seen at the start of the line.
	dirHash
	// #include was seen, header names are allowed.
	dirInclude
)

type Lexer struct {
	fname  string
	src    []srcChar
	i      int
	eofPos FilePos
	// At the beginning on line not including whitespace.
	bol      bool
	dirState int

	err error
}

// Lex reads the contents of r and returns a lexer over them.
// fname is used for error messages when showing the source location.
// No preprocessing is done, this is just pure reading of the unprocessed
// source file.
func Lex(fname string, r io.Reader) *Lexer {
	b, err := io.ReadAll(r)
	if err != nil {
		lx := newLexer(fname, "", false)
		lx.err = ErrorLoc{Kind: ErrLex, Err: err, Pos: FilePos{File: fname, Line: 1, Col: 1}}
		return lx
	}
	return newLexer(fname, string(b), true)
}

func newLexer(fname string, text string, terminate bool) *Lexer {
	lx := new(Lexer)
	lx.fname = fname
	lx.bol = true
	lx.load(text, terminate)
	return lx
}

// load decodes the text, removing line splices and tracking the physical
// position of every remaining character.
func (lx *Lexer) load(text string, terminate bool) {
	runes := []rune(text)
	lx.src = make([]srcChar, 0, len(runes)+1)
	line, col := 1, 1
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\\' {
			j := i + 1
			if j < len(runes) && runes[j] == '\r' && j+1 < len(runes) && runes[j+1] == '\n' {
				j++
			}
			if j < len(runes) && runes[j] == '\n' {
				i = j
				line += 1
				col = 1
				continue
			}
		}
		lx.src = append(lx.src, srcChar{r: r, line: line, col: col})
		switch r {
		case '\n':
			line += 1
			col = 1
		case '\t':
			col += 4
		default:
			col += 1
		}
	}
	if terminate && len(lx.src) != 0 && lx.src[len(lx.src)-1].r != '\n' {
		lx.src = append(lx.src, srcChar{r: '\n', line: line, col: col})
		line += 1
		col = 1
	}
	lx.eofPos = FilePos{File: lx.fname, Line: line, Col: col}
}

func (lx *Lexer) peek(k int) rune {
	if lx.i+k >= len(lx.src) {
		return eofRune
	}
	return lx.src[lx.i+k].r
}

func (lx *Lexer) posAt(i int) FilePos {
	if i >= len(lx.src) {
		return lx.eofPos
	}
	return FilePos{File: lx.fname, Line: lx.src[i].line, Col: lx.src[i].col}
}

func (lx *Lexer) text(start int) string {
	var sb strings.Builder
	for _, c := range lx.src[start:lx.i] {
		sb.WriteRune(c.r)
	}
	return sb.String()
}

func (lx *Lexer) Error(e string) error {
	return ErrorLoc{Kind: ErrLex, Err: errors.New(e), Pos: lx.posAt(lx.i)}
}

func (lx *Lexer) Next() (*Token, error) {
	if lx.err != nil {
		return newToken(ERROR, "", lx.posAt(lx.i)), lx.err
	}
	if lx.i >= len(lx.src) {
		return newToken(EOF, "", lx.eofPos), nil
	}
	tok, err := lx.lexToken()
	if err != nil {
		lx.err = err
		return newToken(ERROR, "", lx.posAt(lx.i)), err
	}
	switch {
	case tok.Kind == NEWLINE:
		lx.bol = true
		lx.dirState = dirNone
	case tok.Kind == WHITESPACE:
	case lx.bol && tok.isHash():
		lx.bol = false
		lx.dirState = dirHash
	case lx.dirState == dirHash && tok.Kind == IDENT && tok.Val == "include":
		lx.dirState = dirInclude
	default:
		lx.bol = false
		lx.dirState = dirNone
	}
	return tok, nil
}

func (lx *Lexer) lexToken() (*Token, error) {
	start := lx.i
	pos := lx.posAt(start)
	first := lx.peek(0)
	switch {
	case first == '\n':
		lx.i++
		return newToken(NEWLINE, "\n", pos), nil
	case isWhiteSpace(first) || (first == '/' && (lx.peek(1) == '*' || lx.peek(1) == '/')):
		err := lx.skipWhiteSpace()
		if err != nil {
			return nil, err
		}
		return newToken(WHITESPACE, " ", pos), nil
	case lx.dirState == dirInclude && (first == '<' || first == '"'):
		if lx.readHeaderName() {
			return newToken(HEADER, lx.text(start), pos), nil
		}
	}
	switch {
	case isValidIdentStart(first):
		return lx.readIdentOrLiteral()
	case isNumeric(first) || (first == '.' && isNumeric(lx.peek(1))):
		lx.readPPNumber()
		return newToken(NUMBER, lx.text(start), pos), nil
	case first == '\'' || first == '"':
		return lx.readLiteral(start, false)
	}
	if p := lx.matchPunct(); p != "" {
		lx.i += len(p)
		return newToken(PUNCT, p, pos), nil
	}
	lx.i++
	return newToken(NONWS_CHAR, lx.text(start), pos), nil
}

// skipWhiteSpace consumes horizontal whitespace and comments, stopping at a newline.
func (lx *Lexer) skipWhiteSpace() error {
	for {
		c := lx.peek(0)
		switch {
		case isWhiteSpace(c):
			lx.i++
		case c == '/' && lx.peek(1) == '/':
			for lx.peek(0) != '\n' && lx.peek(0) != eofRune {
				lx.i++
			}
		case c == '/' && lx.peek(1) == '*':
			start := lx.i
			lx.i += 2
			for {
				c := lx.peek(0)
				if c == eofRune {
					return ErrorLoc{Kind: ErrLex, Err: errors.New("unclosed comment"), Pos: lx.posAt(start)}
				}
				if c == '*' && lx.peek(1) == '/' {
					lx.i += 2
					break
				}
				lx.i++
			}
		default:
			return nil
		}
	}
}

// readHeaderName reads <...> or "..." on the current line.
// It leaves the position untouched and returns false when there is no terminator.
func (lx *Lexer) readHeaderName() bool {
	terminator := '>'
	if lx.peek(0) == '"' {
		terminator = '"'
	}
	for k := 1; ; k++ {
		c := lx.peek(k)
		if c == eofRune || c == '\n' {
			return false
		}
		if c == terminator {
			lx.i += k + 1
			return true
		}
	}
}

func (lx *Lexer) readIdent() {
	lx.i++
	for isValidIdentTail(lx.peek(0)) {
		lx.i++
	}
}

var stringPrefixes = map[string]bool{"u8": true, "u": true, "U": true, "L": true}
var rawPrefixes = map[string]bool{"R": true, "u8R": true, "uR": true, "UR": true, "LR": true}

func (lx *Lexer) readIdentOrLiteral() (*Token, error) {
	start := lx.i
	lx.readIdent()
	ident := lx.text(start)
	next := lx.peek(0)
	if next == '"' && rawPrefixes[ident] {
		return lx.readRawString(start)
	}
	if (next == '"' || next == '\'') && stringPrefixes[ident] {
		return lx.readLiteral(start, true)
	}
	return newToken(IDENT, ident, lx.posAt(start)), nil
}

// readLiteral reads a character or string literal whose quote is at the
// current position, plus an optional user defined suffix.
func (lx *Lexer) readLiteral(start int, prefixed bool) (*Token, error) {
	quote := lx.peek(0)
	kind, udKind := STRING, UD_STRING
	if quote == '\'' {
		kind, udKind = CHAR_CONSTANT, UD_CHAR_CONSTANT
	}
	lx.i++
	for {
		c := lx.peek(0)
		switch c {
		case eofRune, '\n':
			msg := "unterminated char literal"
			if kind == STRING {
				msg = "unterminated string literal"
			}
			return lx.invalidToken(start, msg), nil
		case '\\':
			if n := lx.peek(1); n == eofRune || n == '\n' {
				lx.i++
				continue
			}
			lx.i += 2
			continue
		}
		lx.i++
		if c == quote {
			break
		}
	}
	return lx.finishLiteral(start, kind, udKind), nil
}

// invalidToken turns the text from start to the end of the line into a single
// NONWS_CHAR token. The error is only reported if the token is used, so
// skipped groups and #error text may hold a lone quote.
func (lx *Lexer) invalidToken(start int, msg string) *Token {
	for lx.peek(0) != '\n' && lx.peek(0) != eofRune {
		lx.i++
	}
	pos := lx.posAt(start)
	t := newToken(NONWS_CHAR, lx.text(start), pos)
	t.invalid = ErrorLoc{Kind: ErrLex, Err: errors.New(msg), Pos: pos}
	return t
}

func (lx *Lexer) finishLiteral(start int, kind, udKind TokenKind) *Token {
	if isValidIdentStart(lx.peek(0)) {
		lx.readIdent()
		kind = udKind
	}
	return newToken(kind, lx.text(start), lx.posAt(start))
}

func (lx *Lexer) readRawString(start int) (*Token, error) {
	lx.i++ // "
	dstart := lx.i
	for {
		c := lx.peek(0)
		if c == '(' {
			break
		}
		if c == eofRune || c == ')' || c == '\\' || c == '"' || isWhiteSpace(c) || c == '\n' || lx.i-dstart >= 16 {
			return nil, lx.Error("invalid raw string delimiter")
		}
		lx.i++
	}
	delim := lx.text(dstart)
	lx.i++ // (
	closing := []rune(")" + delim + "\"")
	for {
		if lx.peek(0) == eofRune {
			return nil, lx.Error("unterminated raw string literal")
		}
		match := true
		for k, r := range closing {
			if lx.peek(k) != r {
				match = false
				break
			}
		}
		if match {
			lx.i += len(closing)
			break
		}
		lx.i++
	}
	return lx.finishLiteral(start, STRING, UD_STRING), nil
}

func (lx *Lexer) readPPNumber() {
	lx.i++
	for {
		c := lx.peek(0)
		switch {
		case (c == 'e' || c == 'E' || c == 'p' || c == 'P') && (lx.peek(1) == '+' || lx.peek(1) == '-'):
			lx.i += 2
		case isNumeric(c) || isValidIdentTail(c) || c == '.':
			lx.i++
		case c == '\'' && isValidIdentTail(lx.peek(1)):
			// digit separator
			lx.i += 2
		default:
			return
		}
	}
}

// Longest match first.
var punctuators = [...]string{
	"%:%:",
	"...", "<<=", ">>=", "->*",
	"##", "%:", "<:", ":>", "<%", "%>", "::", ".*", "->", "++", "--",
	"<<", ">>", "<=", ">=", "==", "!=", "&&", "||", "+=", "-=", "*=",
	"/=", "%=", "&=", "|=", "^=",
	"{", "}", "[", "]", "(", ")", "#", ";", ":", "?", ".", "+", "-",
	"*", "/", "%", "^", "&", "|", "~", "!", "=", "<", ">", ",",
}

func (lx *Lexer) matchPunct() string {
	// <:: is < followed by :: unless it starts <::: or <::>
	if lx.peek(0) == '<' && lx.peek(1) == ':' && lx.peek(2) == ':' {
		if n := lx.peek(3); n != ':' && n != '>' {
			return "<"
		}
	}
	for _, p := range punctuators {
		match := true
		for k, r := range p {
			if lx.peek(k) != r {
				match = false
				break
			}
		}
		if match {
			return p
		}
	}
	return ""
}

// lexString returns every token in s up to, but not including, EOF.
func lexString(fname, s string) ([]*Token, error) {
	return lexAll(newLexer(fname, s, true))
}

func lexAll(lx *Lexer) ([]*Token, error) {
	var ret []*Token
	for {
		t, err := lx.Next()
		if err != nil {
			return nil, err
		}
		if t.Kind == EOF {
			return ret, nil
		}
		ret = append(ret, t)
	}
}

// lexOne lexes s as exactly one token, as required for the result of ##.
func lexOne(s string, pos FilePos) (*Token, bool) {
	lx := newLexer(pos.File, s, false)
	toks, err := lexAll(lx)
	if err != nil || len(toks) != 1 || toks[0].isWhiteSpace() || toks[0].invalid != nil {
		return nil, false
	}
	t := toks[0]
	t.Pos = pos
	return t, true
}

func isValidIdentTail(b rune) bool {
	return isValidIdentStart(b) || isNumeric(b) || b == '$'
}

func isValidIdentStart(b rune) bool {
	return b == '_' || isAlpha(b) || (b > 0x7f && unicode.IsLetter(b))
}

func isAlpha(b rune) bool {
	if b >= 'a' && b <= 'z' {
		return true
	}
	if b >= 'A' && b <= 'Z' {
		return true
	}
	return false
}

func isWhiteSpace(b rune) bool {
	return b == ' ' || b == '\r' || b == '\t' || b == '\f' || b == '\v'
}

func isNumeric(b rune) bool {
	if b >= '0' && b <= '9' {
		return true
	}
	return false
}

func isHexDigit(b rune) bool {
	return isNumeric(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
