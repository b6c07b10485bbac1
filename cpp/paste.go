package cpp

import (
	"strings"
)

// stringize implements the # operator. The argument is used as written:
// whitespace runs become one space and the characters \ and " inside
// string and character literals are escaped.
func stringize(arg []*Token, pos FilePos) *Token {
	var sb strings.Builder
	sb.WriteByte('"')
	space := false
	for _, t := range trimWhiteSpace(arg) {
		switch {
		case t.isWhiteSpace():
			space = true
			continue
		case t.Kind == PLACEMARKER:
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		if t.isStringLike() {
			quoteReplacer.WriteString(&sb, t.Val)
		} else {
			sb.WriteString(t.Val)
		}
	}
	sb.WriteByte('"')
	return newToken(STRING, sb.String(), pos)
}

func newPlacemarker(pos FilePos) *Token {
	return newToken(PLACEMARKER, "", pos)
}

// pasteAll resolves every ## operator in a substituted replacement list, left
// to right. Only blessed ## tokens are operators, a ## that came from an
// argument or from an earlier paste is an ordinary token.
func pasteAll(toks []*Token, invoke *Token) ([]*Token, error) {
	out := make([]*Token, 0, len(toks))
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if !(t.blessed && t.isHashHash()) {
			out = append(out, t)
			continue
		}
		for len(out) > 0 && out[len(out)-1].isWhiteSpace() {
			out = out[:len(out)-1]
		}
		j := nextNonWhiteSpace(toks, i+1)
		if len(out) == 0 || j == len(toks) {
			return nil, errorf(ErrExpansion, invoke.Pos, "'##' without an operand in expansion of %s", invoke.Val)
		}
		pasted, err := paste(out[len(out)-1], toks[j], invoke)
		if err != nil {
			return nil, err
		}
		out[len(out)-1] = pasted
		i = j
	}
	return out, nil
}

// paste concatenates the spelling of two tokens and relexes the result.
func paste(lhs, rhs *Token, invoke *Token) (*Token, error) {
	switch {
	case lhs.Kind == PLACEMARKER && rhs.Kind == PLACEMARKER:
		return lhs, nil
	case lhs.Kind == PLACEMARKER:
		return unbless(rhs), nil
	case rhs.Kind == PLACEMARKER:
		return unbless(lhs), nil
	}
	t, ok := lexOne(lhs.Val+rhs.Val, invoke.Pos)
	if !ok {
		return nil, errorf(ErrExpansion, invoke.Pos, "pasting %s and %s does not give a valid preprocessing token", lhs.Val, rhs.Val)
	}
	t.hs = lhs.hs.union(rhs.hs)
	return t, nil
}

func unbless(t *Token) *Token {
	if !t.blessed {
		return t
	}
	c := t.copy()
	c.blessed = false
	return c
}
