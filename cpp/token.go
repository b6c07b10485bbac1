package cpp

import (
	"fmt"
)

// The list of preprocessing token kinds.
const (
	ERROR TokenKind = iota
	EOF
	WHITESPACE       // spaces, tabs and comments
	NEWLINE          // end of a logical source line
	HEADER           // <stdio.h> or "foo.h", only after #include
	IDENT            // main
	NUMBER           // 12345, 0x1f, 1.5e+10
	CHAR_CONSTANT    // 'a'
	UD_CHAR_CONSTANT // 'a'_x
	STRING           // "abc"
	UD_STRING        // "abc"_x
	PUNCT            // + <<= ## and the rest
	NONWS_CHAR       // any other single character
	PLACEMARKER      // stands for an empty macro argument during pasting
)

var tokenKindToStr = [...]string{
	ERROR:            "error",
	EOF:              "EOF",
	WHITESPACE:       "whitespace",
	NEWLINE:          "newline",
	HEADER:           "header",
	IDENT:            "ident",
	NUMBER:           "number",
	CHAR_CONSTANT:    "charconst",
	UD_CHAR_CONSTANT: "udcharconst",
	STRING:           "string",
	UD_STRING:        "udstring",
	PUNCT:            "punct",
	NONWS_CHAR:       "nonwschar",
	PLACEMARKER:      "placemarker",
}

type TokenKind uint32

func (tk TokenKind) String() string {
	if uint32(tk) >= uint32(len(tokenKindToStr)) {
		return "Unknown"
	}
	ret := tokenKindToStr[tk]
	if ret == "" {
		return "Unknown"
	}
	return ret
}

type FilePos struct {
	File string
	Line int
	Col  int
}

func (pos FilePos) String() string {
	return fmt.Sprintf("%s:%d:%d", pos.File, pos.Line, pos.Col)
}

//Token represents a grouping of characters
//that provide semantic meaning in a C program.
//
//Tokens are shared between the lexer cache, macro bodies and the output,
//so they are never modified after creation. Rewriting makes a copy.
type Token struct {
	Kind             TokenKind
	Val              string
	Pos              FilePos
	WasMacroExpanded bool

	// macros that must not expand this token again.
	hs *hideset
	// set once the token was suppressed by its own hide set.
	unavailable bool
	// only set on tokens taken verbatim from a replacement list.
	blessed bool
	// deferred lexical error, reported when the token is used.
	invalid error
}

func (t *Token) copy() *Token {
	ret := *t
	return &ret
}

func (t Token) String() string {
	if t.WasMacroExpanded {
		return fmt.Sprintf("%s expanded from macro at %s", t.Val, t.Pos)
	}
	return fmt.Sprintf("%s at %s", t.Val, t.Pos)
}

// Available reports whether the token may still be considered for macro expansion.
func (t *Token) Available() bool {
	return !t.unavailable
}

// Hidden reports whether name is in the token's hide set.
func (t *Token) Hidden(name string) bool {
	return t.hs.contains(name)
}

func (t *Token) isWhiteSpace() bool {
	return t.Kind == WHITESPACE || t.Kind == NEWLINE
}

func (t *Token) isPunct(s string) bool {
	return t.Kind == PUNCT && t.Val == s
}

// # and its digraph spelling.
func (t *Token) isHash() bool {
	return t.Kind == PUNCT && (t.Val == "#" || t.Val == "%:")
}

// ## and its digraph spelling.
func (t *Token) isHashHash() bool {
	return t.Kind == PUNCT && (t.Val == "##" || t.Val == "%:%:")
}

func (t *Token) isStringLike() bool {
	switch t.Kind {
	case CHAR_CONSTANT, UD_CHAR_CONSTANT, STRING, UD_STRING:
		return true
	}
	return false
}

// checkValid returns the lexical error of the first invalid token in toks.
func checkValid(toks []*Token) error {
	for _, t := range toks {
		if t.invalid != nil {
			return t.invalid
		}
	}
	return nil
}

func newToken(kind TokenKind, val string, pos FilePos) *Token {
	return &Token{Kind: kind, Val: val, Pos: pos, hs: emptyHS}
}

// trimWhiteSpace drops leading and trailing whitespace and newline tokens.
func trimWhiteSpace(toks []*Token) []*Token {
	for len(toks) > 0 && toks[0].isWhiteSpace() {
		toks = toks[1:]
	}
	for len(toks) > 0 && toks[len(toks)-1].isWhiteSpace() {
		toks = toks[:len(toks)-1]
	}
	return toks
}

// nextNonWhiteSpace returns the index of the first token at or after i
// that is not whitespace, or len(toks).
func nextNonWhiteSpace(toks []*Token, i int) int {
	for i < len(toks) && toks[i].isWhiteSpace() {
		i++
	}
	return i
}

// Spell joins the spelling of a token sequence, writing one space for each
// whitespace or newline token.
func Spell(toks []*Token) string {
	n := 0
	for _, t := range toks {
		n += len(t.Val) + 1
	}
	buf := make([]byte, 0, n)
	for _, t := range toks {
		switch t.Kind {
		case WHITESPACE, NEWLINE:
			buf = append(buf, ' ')
		case PLACEMARKER:
		default:
			buf = append(buf, t.Val...)
		}
	}
	return string(buf)
}
