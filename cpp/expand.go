package cpp

// The macro replacer.
//
// Input is kept on a stack whose top is the next token to scan, so pushing
// a macro's replacement back for rescanning is an append and the original
// left to right order is preserved. Tokens that cannot be expanded move to
// the output.
//
// Every token carries the set of macro names it was produced by (its hideset).
// A name found in its own hideset is never expanded again, which is what
// stops recursive macros.

type expander struct {
	macros *MacroTable
	pd     *Predefined
}

func newExpander(macros *MacroTable, pd *Predefined) *expander {
	return &expander{macros: macros, pd: pd}
}

// expand returns in with every macro invocation replaced.
func (x *expander) expand(in []*Token) ([]*Token, error) {
	stack := make([]*Token, len(in))
	for i, t := range in {
		stack[len(in)-1-i] = t
	}
	out := make([]*Token, 0, len(in))
	for len(stack) != 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if t.Kind == PLACEMARKER {
			continue
		}
		if t.Kind != IDENT || t.unavailable {
			out = append(out, t)
			continue
		}
		if x.pd.IsPredefined(t.Val) {
			out = append(out, x.pd.expand(t))
			continue
		}
		m, ok := x.macros.Lookup(t.Val)
		if !ok {
			out = append(out, t)
			continue
		}
		if t.hs.contains(m.Name) {
			painted := t.copy()
			painted.unavailable = true
			out = append(out, painted)
			continue
		}
		if !m.FunctionLike {
			replacement, err := x.subst(m, nil, t)
			if err != nil {
				return nil, err
			}
			stack = pushBack(stack, replacement, t.hs.add(m.Name), t)
			continue
		}
		// A function like macro name is only an invocation when followed by (.
		j := len(stack) - 1
		for j >= 0 && stack[j].isWhiteSpace() {
			j--
		}
		if j < 0 || !stack[j].isPunct("(") {
			out = append(out, t)
			continue
		}
		args, rparen, rest, err := readMacroInvokeArguments(m, t, stack[:j])
		if err != nil {
			return nil, err
		}
		stack = rest
		replacement, err := x.subst(m, args, t)
		if err != nil {
			return nil, err
		}
		hs := t.hs.intersection(rparen.hs).add(m.Name)
		stack = pushBack(stack, replacement, hs, t)
	}
	return out, nil
}

// pushBack puts a replacement on the input stack for rescanning.
func pushBack(stack []*Token, replacement []*Token, hs *hideset, invoke *Token) []*Token {
	for i := len(replacement) - 1; i >= 0; i-- {
		r := replacement[i]
		if r.Kind == PLACEMARKER {
			continue
		}
		t := r.copy()
		t.hs = t.hs.union(hs)
		t.Pos = invoke.Pos
		t.blessed = false
		t.WasMacroExpanded = true
		stack = append(stack, t)
	}
	return stack
}

//Read the tokens that are part of a macro invocation, not including the first paren.
//But including the last paren. Handles nested parens.
//returns a slice of arguments, the closing paren and what is left of the stack.
//e.g. FOO(BAR,(A,B),C)  -> { <BAR> , <(A,B)> , <C> } , )
//Where FOO( has already been consumed.
func readMacroInvokeArguments(m *Macro, invoke *Token, stack []*Token) ([][]*Token, *Token, []*Token, error) {
	parenDepth := 0
	var args [][]*Token
	var cur []*Token
	var rparen *Token
	for rparen == nil {
		if len(stack) == 0 {
			return nil, nil, nil, errorf(ErrExpansion, invoke.Pos, "unterminated invocation of macro %s", m.Name)
		}
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch {
		case t.isPunct("("):
			parenDepth += 1
			cur = append(cur, t)
		case t.isPunct(")"):
			if parenDepth == 0 {
				args = append(args, cur)
				rparen = t
				break
			}
			parenDepth -= 1
			cur = append(cur, t)
		case t.isPunct(",") && parenDepth == 0 && !(m.Variadic && len(args) == len(m.Params)-1):
			//nextArg
			args = append(args, cur)
			cur = nil
		case t.Kind == NEWLINE:
			ws := t.copy()
			ws.Kind = WHITESPACE
			ws.Val = " "
			cur = append(cur, ws)
		default:
			cur = append(cur, t)
		}
	}
	nparams := len(m.Params)
	if nparams == 0 && len(args) == 1 && len(trimWhiteSpace(args[0])) == 0 {
		args = nil
	}
	if m.Variadic && len(args) == nparams-1 {
		args = append(args, nil)
	}
	if len(args) != nparams {
		return nil, nil, nil, errorf(ErrExpansion, invoke.Pos, "macro %s invoked with %d arguments but %d were expected", m.Name, len(args), nparams)
	}
	for i := range args {
		args[i] = trimWhiteSpace(args[i])
	}
	return args, rparen, stack, nil
}

// subst builds the replacement of one invocation: parameters are replaced by
// their arguments, # and ## are applied. Arguments used outside # and ## are
// fully macro expanded first, on their own.
func (x *expander) subst(m *Macro, args [][]*Token, invoke *Token) ([]*Token, error) {
	expanded := make([][]*Token, len(args))
	for idx, use := range m.usage {
		if use&usedExpanded == 0 {
			continue
		}
		e, err := x.expand(args[idx])
		if err != nil {
			return nil, err
		}
		expanded[idx] = trimWhiteSpace(e)
	}
	body := m.Body
	ret := make([]*Token, 0, len(body))
	for i := 0; i < len(body); i++ {
		t := body[i]
		if m.FunctionLike && t.isHash() {
			j := nextNonWhiteSpace(body, i+1)
			idx, _ := m.paramIndex(body[j])
			ret = append(ret, stringize(args[idx], invoke.Pos))
			i = j
			continue
		}
		idx, isArg := m.paramIndex(t)
		if !isArg {
			ret = append(ret, t)
			continue
		}
		if m.bodyUse[i] == usedUnexpanded {
			if len(args[idx]) == 0 {
				ret = append(ret, newPlacemarker(invoke.Pos))
				continue
			}
			for _, a := range args[idx] {
				ret = append(ret, unbless(a))
			}
			continue
		}
		for _, a := range expanded[idx] {
			ret = append(ret, unbless(a))
		}
	}
	return pasteAll(ret, invoke)
}

// normalizeWhiteSpace drops placemarkers, collapses whitespace runs and removes
// whitespace at the start and end of lines.
func normalizeWhiteSpace(toks []*Token) []*Token {
	out := make([]*Token, 0, len(toks))
	for _, t := range toks {
		switch t.Kind {
		case PLACEMARKER:
			continue
		case WHITESPACE:
			if len(out) == 0 || out[len(out)-1].isWhiteSpace() {
				continue
			}
		case NEWLINE:
			if len(out) != 0 && out[len(out)-1].Kind == WHITESPACE {
				out = out[:len(out)-1]
			}
		}
		out = append(out, t)
	}
	if len(out) != 0 && out[len(out)-1].Kind == WHITESPACE {
		out = out[:len(out)-1]
	}
	return out
}

// Expand macro expands a token sequence against the table, as is done for
// ordinary text lines.
func (mt *MacroTable) Expand(toks []*Token) ([]*Token, error) {
	if err := checkValid(toks); err != nil {
		return nil, err
	}
	ret, err := newExpander(mt, mt.pd).expand(toks)
	if err != nil {
		return nil, err
	}
	return normalizeWhiteSpace(ret), nil
}
