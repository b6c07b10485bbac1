package cpp

import (
	"bufio"
	"io"
)

// TokenStream is anything producing tokens until EOF, such as a Preprocessor.
type TokenStream interface {
	Next() (*Token, error)
}

// WriteText writes the stream as source text and returns the number of
// bytes written. A space is put between two adjacent tokens whenever
// their spellings would otherwise lex as something else.
func WriteText(w io.Writer, ts TokenStream) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	var prev *Token
	for {
		t, err := ts.Next()
		if err != nil {
			bw.Flush()
			return n, err
		}
		if t.Kind == EOF {
			break
		}
		var s string
		switch t.Kind {
		case NEWLINE:
			s = "\n"
		case WHITESPACE:
			s = " "
		case PLACEMARKER:
			continue
		default:
			s = t.Val
			if prev != nil && !prev.isWhiteSpace() && needSpace(prev, t) {
				s = " " + s
			}
		}
		k, err := bw.WriteString(s)
		n += int64(k)
		if err != nil {
			return n, err
		}
		prev = t
	}
	return n, bw.Flush()
}

// needSpace reports whether writing b right after a changes how a lexes.
func needSpace(a, b *Token) bool {
	lx := newLexer("", a.Val+b.Val, false)
	t, err := lx.Next()
	if err != nil {
		return true
	}
	return t.Kind != a.Kind || t.Val != a.Val
}
