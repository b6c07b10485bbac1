package cpp

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var expandTests = []struct {
	name    string
	defines []string
	in      string
	want    string
}{
	{"object like", []string{"A 1 + 2"}, "A", "1 + 2"},
	{"empty object like", []string{"E"}, "[E]", "[]"},
	{"self reference", []string{"A A"}, "A", "A"},
	{"indirect self reference", []string{"A B", "B A"}, "A B", "A B"},
	{"self reference with args", []string{"f(x) f(x)"}, "f(1)", "f(1)"},
	{"function like", []string{"F(a,b) a+b"}, "F(1, 2)", "1+2"},
	{"function like without parens", []string{"F(a) a"}, "F + 1", "F + 1"},
	{"function like on next line", []string{"F(a) [a]"}, "F\n(1)", "[1]"},
	{"nested parens", []string{"F(a) [a]"}, "F((1,2))", "[(1,2)]"},
	{"no params", []string{"N() x"}, "N()", "x"},
	{"empty argument", []string{"F(a) [a]"}, "F()", "[]"},
	{"concat", []string{"CAT(a,b) a##b"}, "CAT(x,y)", "xy"},
	{"concat left empty", []string{"CAT(a,b) a##b"}, "CAT(,y)", "y"},
	{"concat right empty", []string{"CAT(a,b) a##b"}, "CAT(x,)", "x"},
	{"concat both empty", []string{"CAT(a,b) a##b"}, "[CAT(,)]", "[]"},
	{"concat chain", []string{"J(a,b,c) a ## b ## c"}, "J(x,,z)", "xz"},
	{"concat numbers", []string{"CAT(a,b) a##b"}, "CAT(1,2)", "12"},
	{"concat punct", []string{"CAT(a,b) a##b"}, "CAT(<,<=)", "<<="},
	{"concat digraph", []string{"CAT(a,b) a %:%: b"}, "CAT(x,1)", "x1"},
	{"stringize", []string{"STR(x) #x"}, `STR(a "b" c)`, `"a \"b\" c"`},
	{"stringize whitespace", []string{"STR(x) # x"}, "STR(  a   +\n b  )", `"a + b"`},
	{"stringize empty", []string{"STR(x) #x"}, "STR()", `""`},
	{"stringize backslash", []string{"STR(x) #x"}, `STR('\n' \)`, `"'\\n' \"`},
	{"stringize unexpanded", []string{"G 42", "H(x) #x"}, "H(G)", `"G"`},
	{"argument prescan", []string{"G 42", "F(x) x"}, "F(G)", "42"},
	{"indirect stringize", []string{"G 42", "STR(x) #x", "XSTR(x) STR(x)"}, "XSTR(G)", `"42"`},
	{"concat unexpanded", []string{"G 42", "CAT(a,b) a##b"}, "CAT(G,)", "42"},
	{"variadic", []string{"V(a,...) a: __VA_ARGS__"}, "V(1,2,3)", "1: 2,3"},
	{"variadic empty", []string{"V(a,...) a: __VA_ARGS__"}, "V(1)", "1:"},
	{"variadic only", []string{"P(...) f(__VA_ARGS__)"}, "P(a, (b, c))", "f(a, (b, c))"},
	{"variadic stringize", []string{"S(...) #__VA_ARGS__"}, "S(a,  b)", `"a, b"`},
	{"rescan", []string{"f(a) a*g", "g(a) f(a)"}, "f(2)(9)", "2*9*g"},
	{"painted names stay", []string{"foo foo", "bar(x) x"}, "bar(foo)", "foo"},
	{"builtin in body", []string{"L __LINE__"}, "\n\nL", "3"},
	{"expansion forms invocation", []string{"LP (", "F(x) [x]"}, "F LP 1)", "F ( 1)"},
	{"object like names function", []string{"F(x) [x]", "G F"}, "G(1)", "[1]"},
	{"pasted hash hash is not an operator", []string{"hash_hash # ## #", "cat3(a,b) a hash_hash b"}, "cat3(x,y)", "x ## y"},
	{
		"pasted hash hash stringized",
		[]string{"hash_hash # ## #", "mkstr(a) # a", "in_between(a) mkstr(a)", "join(c, d) in_between(c hash_hash d)"},
		"join(x, y)",
		`"x ## y"`,
	},
	{
		"standard example",
		[]string{"x 3", "f(a) f(x * (a))", "z z[0]"},
		"f(y+1) + f(f(z))",
		"f(3 * (y+1)) + f(3 * (f(3 * (z[0]))))",
	},
}

func TestExpand(t *testing.T) {
	for _, tc := range expandTests {
		t.Run(tc.name, func(t *testing.T) {
			mt := newTestTable()
			for _, d := range tc.defines {
				require.NoError(t, defineLine(mt, d))
			}
			got := expandString(t, mt, tc.in)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("%s mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestExpandErrors(t *testing.T) {
	for _, tc := range []struct {
		defines []string
		in      string
	}{
		{[]string{"F(a,b) a"}, "F(1)"},
		{[]string{"F(a,b) a"}, "F(1,2,3)"},
		{[]string{"F(a) a"}, "F(1,2)"},
		{[]string{"N() x"}, "N(1)"},
		{[]string{"V(a,b,...) a"}, "V(1)"},
		{[]string{"F(a) a"}, "F(1"},
		{[]string{"F(a) a"}, "F((1)"},
		{[]string{"CAT(a,b) a##b"}, "CAT(+,-)"},
		{[]string{"CAT(a,b) a##b"}, "CAT(x,\"y\" z)"},
		{[]string{"CAT(a,b) a##b"}, "CAT(.,.)"},
	} {
		mt := newTestTable()
		for _, d := range tc.defines {
			require.NoError(t, defineLine(mt, d))
		}
		toks, err := lexString("test.c", tc.in)
		require.NoError(t, err)
		_, err = mt.Expand(toks)
		require.Error(t, err, tc.in)
		kind, _ := KindOf(err)
		assert.Equal(t, ErrExpansion, kind, tc.in)
	}
}

func TestEmptyPasteLeavesOnePlacemarker(t *testing.T) {
	mt := newTestTable()
	require.NoError(t, defineLine(mt, "CAT(a,b) a##b"))
	m, _ := mt.Lookup("CAT")
	invoke := newToken(IDENT, "CAT", FilePos{File: "test.c", Line: 1, Col: 1})
	out, err := newExpander(mt, mt.pd).subst(m, [][]*Token{nil, nil}, invoke)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, PLACEMARKER, out[0].Kind)
	assert.Empty(t, pushBack(nil, out, emptyHS, invoke))
}

func TestHidesetsAndProvenance(t *testing.T) {
	mt := newTestTable()
	require.NoError(t, defineLine(mt, "A A B"))
	require.NoError(t, defineLine(mt, "B x"))
	toks, err := lexString("test.c", "  A")
	require.NoError(t, err)
	out, err := mt.Expand(toks)
	require.NoError(t, err)
	out = trimWhiteSpace(out)
	require.Equal(t, "A x", Spell(out))

	a := out[0]
	assert.False(t, a.Available(), "A must be painted")
	assert.True(t, a.Hidden("A"))
	assert.True(t, a.WasMacroExpanded)
	assert.Equal(t, FilePos{File: "test.c", Line: 1, Col: 3}, a.Pos)

	x := out[2]
	assert.True(t, x.Available())
	assert.True(t, x.Hidden("A"))
	assert.True(t, x.Hidden("B"))

	// Body tokens of the definition are untouched.
	m, _ := mt.Lookup("A")
	assert.True(t, m.Body[0].hs.len() == 0)
	assert.True(t, m.Body[0].Available())
}

func TestPasteIsSinglePass(t *testing.T) {
	pos := FilePos{File: "test.c", Line: 1, Col: 1}
	invoke := newToken(IDENT, "M", pos)
	hh := newToken(PUNCT, "##", pos)
	toks := []*Token{newToken(IDENT, "x", pos), hh, newToken(IDENT, "y", pos)}
	out, err := pasteAll(toks, invoke)
	require.NoError(t, err)
	assert.Equal(t, "x##y", Spell(out), "an unblessed ## is an ordinary token")

	blessed := hh.copy()
	blessed.blessed = true
	out, err = pasteAll([]*Token{newToken(PUNCT, "#", pos), blessed, newToken(PUNCT, "#", pos)}, invoke)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].isHashHash())
	assert.False(t, out[0].blessed, "a pasted ## never pastes again")
}

func TestStringize(t *testing.T) {
	toks, err := lexString("test.c", `  "a\n"   'b'  L"c\\"  x `)
	require.NoError(t, err)
	got := stringize(toks, FilePos{})
	assert.Equal(t, STRING, got.Kind)
	assert.Equal(t, `"\"a\\n\" 'b' L\"c\\\\\" x"`, got.Val)
	assert.True(t, strings.HasPrefix(got.Val, `"`))
}
