package cpp

import (
	"fmt"
	"sort"
)

// MacroTable maps macro names to their definitions.
// It is owned by one Preprocessor and only mutated by #define and #undef.
type MacroTable struct {
	macros map[string]*Macro
	pd     *Predefined
}

func NewMacroTable(pd *Predefined) *MacroTable {
	return &MacroTable{
		macros: make(map[string]*Macro),
		pd:     pd,
	}
}

// Define parses a #define directive. toks starts with the "define" token.
// Redefining a macro is only allowed when the definitions are identical.
func (mt *MacroTable) Define(toks []*Token) error {
	if len(toks) == 0 {
		return errorf(ErrDirective, FilePos{}, "empty #define")
	}
	m, err := parseDefine(toks[1:], toks[0].Pos)
	if err != nil {
		return err
	}
	if mt.pd.IsPredefined(m.Name) {
		return errorf(ErrRedefinition, m.Pos, "cannot redefine builtin macro %s", m.Name)
	}
	old, ok := mt.macros[m.Name]
	if ok {
		if !old.equal(m) {
			return errorf(ErrRedefinition, m.Pos, "macro %s redefined, previous definition at %s", m.Name, old.Pos)
		}
		return nil
	}
	mt.macros[m.Name] = m
	return nil
}

// Undef parses an #undef directive. toks starts with the "undef" token.
// Removing a macro that does not exist is not an error.
func (mt *MacroTable) Undef(toks []*Token) error {
	if len(toks) == 0 {
		return errorf(ErrDirective, FilePos{}, "empty #undef")
	}
	i := nextNonWhiteSpace(toks, 1)
	if i == len(toks) || toks[i].Kind != IDENT {
		pos := toks[0].Pos
		if i < len(toks) {
			pos = toks[i].Pos
		}
		return errorf(ErrDirective, pos, "#undef expected an ident")
	}
	ident := toks[i]
	if ident.Val == vaArgs || ident.Val == "defined" || mt.pd.IsPredefined(ident.Val) {
		return errorf(ErrRedefinition, ident.Pos, "cannot undefine %s", ident.Val)
	}
	if j := nextNonWhiteSpace(toks, i+1); j != len(toks) {
		return errorf(ErrDirective, toks[j].Pos, "unexpected token %s after #undef", toks[j].Val)
	}
	delete(mt.macros, ident.Val)
	return nil
}

// IsDefined is true for user macros and builtin names.
func (mt *MacroTable) IsDefined(name string) bool {
	if mt.pd.IsPredefined(name) {
		return true
	}
	_, ok := mt.macros[name]
	return ok
}

func (mt *MacroTable) Lookup(name string) (*Macro, bool) {
	m, ok := mt.macros[name]
	return m, ok
}

// Names returns the user macro names in sorted order.
func (mt *MacroTable) Names() []string {
	ret := make([]string, 0, len(mt.macros))
	for name := range mt.macros {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

const commandLine = "<command line>"

// DefineString defines a macro the way a -D flag does. name may carry a
// parameter list, as in "MAX(a,b)".
func (mt *MacroTable) DefineString(name, value string) error {
	toks, err := lexString(commandLine, fmt.Sprintf("define %s %s", name, value))
	if err != nil {
		return err
	}
	return mt.Define(trimWhiteSpace(toks))
}

// UndefName removes a macro the way a -U flag does.
func (mt *MacroTable) UndefName(name string) error {
	toks, err := lexString(commandLine, "undef "+name)
	if err != nil {
		return err
	}
	return mt.Undef(trimWhiteSpace(toks))
}
