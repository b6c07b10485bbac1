package cpp

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenSlice struct {
	toks []*Token
	err  error
}

func (ts *tokenSlice) Next() (*Token, error) {
	if len(ts.toks) == 0 {
		if ts.err != nil {
			return nil, ts.err
		}
		return newToken(EOF, "", FilePos{}), nil
	}
	t := ts.toks[0]
	ts.toks = ts.toks[1:]
	return t, nil
}

func punctToks(vals ...string) []*Token {
	var ret []*Token
	for _, v := range vals {
		kind := PUNCT
		switch {
		case v == "\n":
			kind = NEWLINE
		case isValidIdentStart(rune(v[0])):
			kind = IDENT
		case isNumeric(rune(v[0])):
			kind = NUMBER
		case v[0] == '"':
			kind = STRING
		}
		ret = append(ret, newToken(kind, v, FilePos{}))
	}
	return ret
}

func TestWriteText(t *testing.T) {
	for _, tc := range []struct {
		toks []string
		want string
	}{
		{[]string{"a", "+", "b", "\n"}, "a+b\n"},
		{[]string{"+", "+", "\n"}, "+ +\n"},
		{[]string{"-", ">"}, "- >"},
		{[]string{"x", "y"}, "x y"},
		{[]string{"1", "x"}, "1 x"},
		{[]string{"1", "+", "2"}, "1+2"},
		{[]string{"/", "/"}, "/ /"},
		{[]string{"/", "*"}, "/ *"},
		{[]string{"L", "\"s\""}, "L \"s\""},
		{[]string{"#", "#"}, "# #"},
		{[]string{"(", ")", ";"}, "();"},
		{[]string{".", "1"}, ". 1"},
	} {
		var sb strings.Builder
		n, err := WriteText(&sb, &tokenSlice{toks: punctToks(tc.toks...)})
		require.NoError(t, err)
		assert.Equal(t, tc.want, sb.String(), "%q", tc.toks)
		assert.Equal(t, int64(len(tc.want)), n)
	}
}

func TestWriteTextError(t *testing.T) {
	boom := errors.New("boom")
	var sb strings.Builder
	_, err := WriteText(&sb, &tokenSlice{toks: punctToks("a", "\n"), err: boom})
	assert.Equal(t, boom, err)
	assert.Equal(t, "a\n", sb.String())
}
