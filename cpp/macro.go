package cpp

//Data structures representing macros inside the cpreprocessor.
//These are immutable once built.

// paramUsage records the contexts a parameter appears in within a replacement list.
type paramUsage uint8

const (
	usedStringized paramUsage = 1 << iota // operand of #
	usedUnexpanded                        // operand of ##
	usedExpanded                          // plain substitution
)

type Macro struct {
	Name         string
	FunctionLike bool
	Variadic     bool
	// __VA_ARGS__ is the last parameter of a variadic macro.
	Params []string
	// Whitespace normalized: no leading or trailing whitespace,
	// no two whitespace tokens in a row.
	Body []*Token
	Pos  FilePos

	paramIdx map[string]int
	// usage per parameter, and the context of each body position.
	usage   []paramUsage
	bodyUse []paramUsage
}

const vaArgs = "__VA_ARGS__"

func (m *Macro) paramIndex(t *Token) (int, bool) {
	if !m.FunctionLike || t.Kind != IDENT {
		return 0, false
	}
	idx, ok := m.paramIdx[t.Val]
	return idx, ok
}

// parseDefine builds a macro from the tokens following "#define".
// pos is used when the line ends before the macro name.
func parseDefine(toks []*Token, pos FilePos) (*Macro, error) {
	if err := checkValid(toks); err != nil {
		return nil, err
	}
	i := nextNonWhiteSpace(toks, 0)
	if i == len(toks) {
		return nil, errorf(ErrDirective, pos, "#define expected an ident")
	}
	ident := toks[i]
	if ident.Kind != IDENT {
		return nil, errorf(ErrDirective, ident.Pos, "#define expected an ident but got %s", ident.Val)
	}
	if ident.Val == "defined" || ident.Val == vaArgs {
		return nil, errorf(ErrDirective, ident.Pos, "%s cannot be used as a macro name", ident.Val)
	}
	m := &Macro{
		Name:     ident.Val,
		Pos:      ident.Pos,
		paramIdx: make(map[string]int),
	}
	i++
	//Distinguish between a funclike macro
	//and a regular macro, no whitespace is allowed before the paren.
	if i < len(toks) && toks[i].isPunct("(") {
		m.FunctionLike = true
		var err error
		i, err = m.readParams(toks, i+1, ident.Pos)
		if err != nil {
			return nil, err
		}
	}
	m.Body = normalizeBody(toks[i:])
	err := m.validate()
	if err != nil {
		return nil, err
	}
	return m, nil
}

// readParams reads the parameter list after the opening paren
// and returns the index just past the closing paren.
func (m *Macro) readParams(toks []*Token, i int, pos FilePos) (int, error) {
	i = nextNonWhiteSpace(toks, i)
	if i < len(toks) && toks[i].isPunct(")") {
		return i + 1, nil
	}
	for {
		i = nextNonWhiteSpace(toks, i)
		if i == len(toks) {
			return 0, errorf(ErrDirective, pos, "unterminated parameter list in definition of %s", m.Name)
		}
		t := toks[i]
		if t.isPunct("...") {
			m.Variadic = true
			m.addParam(vaArgs)
			i = nextNonWhiteSpace(toks, i+1)
			if i == len(toks) || !toks[i].isPunct(")") {
				return 0, errorf(ErrDirective, t.Pos, "expected ) after ... in definition of %s", m.Name)
			}
			return i + 1, nil
		}
		if t.Kind != IDENT {
			return 0, errorf(ErrDirective, t.Pos, "expected macro parameter name but got %s", t.Val)
		}
		if t.Val == vaArgs {
			return 0, errorf(ErrDirective, t.Pos, "%s cannot be used as a parameter name", vaArgs)
		}
		if _, dup := m.paramIdx[t.Val]; dup {
			return 0, errorf(ErrDirective, t.Pos, "duplicate macro parameter %s", t.Val)
		}
		m.addParam(t.Val)
		i = nextNonWhiteSpace(toks, i+1)
		if i == len(toks) {
			return 0, errorf(ErrDirective, pos, "unterminated parameter list in definition of %s", m.Name)
		}
		switch {
		case toks[i].isPunct(")"):
			return i + 1, nil
		case toks[i].isPunct(","):
			i++
		default:
			return 0, errorf(ErrDirective, toks[i].Pos, "expected , or ) in parameter list but got %s", toks[i].Val)
		}
	}
}

func (m *Macro) addParam(name string) {
	m.paramIdx[name] = len(m.Params)
	m.Params = append(m.Params, name)
}

// normalizeBody trims the replacement list, collapses whitespace runs into a
// single space and marks every token eligible for pasting.
func normalizeBody(toks []*Token) []*Token {
	toks = trimWhiteSpace(toks)
	body := make([]*Token, 0, len(toks))
	for _, t := range toks {
		if t.isWhiteSpace() {
			if body[len(body)-1].Kind == WHITESPACE {
				continue
			}
			body = append(body, &Token{Kind: WHITESPACE, Val: " ", Pos: t.Pos, blessed: true})
			continue
		}
		c := t.copy()
		c.blessed = true
		body = append(body, c)
	}
	return body
}

func (m *Macro) validate() error {
	body := m.Body
	if len(body) != 0 {
		if body[0].isHashHash() {
			return errorf(ErrDirective, body[0].Pos, "'##' cannot appear at the start of a macro expansion")
		}
		if last := body[len(body)-1]; last.isHashHash() {
			return errorf(ErrDirective, last.Pos, "'##' cannot appear at the end of a macro expansion")
		}
	}
	m.usage = make([]paramUsage, len(m.Params))
	m.bodyUse = make([]paramUsage, len(body))
	for i, t := range body {
		if t.Kind == IDENT && t.Val == vaArgs && !m.Variadic {
			return errorf(ErrDirective, t.Pos, "%s can only appear in the expansion of a variadic macro", vaArgs)
		}
		if m.FunctionLike && t.isHash() {
			j := nextNonWhiteSpace(body, i+1)
			if j == len(body) {
				return errorf(ErrDirective, t.Pos, "'#' is not followed by a macro parameter")
			}
			if _, ok := m.paramIndex(body[j]); !ok {
				return errorf(ErrDirective, t.Pos, "'#' is not followed by a macro parameter")
			}
			continue
		}
		idx, ok := m.paramIndex(t)
		if !ok {
			continue
		}
		var use paramUsage
		prev := prevNonWhiteSpace(body, i-1)
		next := nextNonWhiteSpace(body, i+1)
		switch {
		case prev >= 0 && body[prev].isHash():
			use = usedStringized
		case prev >= 0 && body[prev].isHashHash(), next < len(body) && body[next].isHashHash():
			use = usedUnexpanded
		default:
			use = usedExpanded
		}
		m.bodyUse[i] = use
		m.usage[idx] |= use
	}
	return nil
}

func prevNonWhiteSpace(toks []*Token, i int) int {
	for i >= 0 && toks[i].isWhiteSpace() {
		i--
	}
	return i
}

// equal reports whether two definitions are the same, as required for a
// redefinition to be accepted.
func (m *Macro) equal(o *Macro) bool {
	if m.FunctionLike != o.FunctionLike || m.Variadic != o.Variadic {
		return false
	}
	if len(m.Params) != len(o.Params) || len(m.Body) != len(o.Body) {
		return false
	}
	for i := range m.Params {
		if m.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range m.Body {
		a, b := m.Body[i], o.Body[i]
		if a.Kind != b.Kind || a.Val != b.Val {
			return false
		}
	}
	return true
}
