package cpp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a preprocessing failure.
type ErrorKind int

const (
	ErrLex          ErrorKind = iota // bad characters, unterminated literals or comments
	ErrDirective                     // malformed #define, bad # or ## placement, unknown directive
	ErrRedefinition                  // conflicting #define, #undef of a protected name
	ErrExpansion                     // argument count, unterminated invocation, bad paste
	ErrConditional                   // unbalanced #if/#elif/#else/#endif
	ErrExpression                    // #if expression parse or evaluation failure
	ErrInclude                       // include target missing or unreadable
	ErrUser                          // #error
)

var errorKindToStr = [...]string{
	ErrLex:          "lexical error",
	ErrDirective:    "directive error",
	ErrRedefinition: "macro redefinition error",
	ErrExpansion:    "macro expansion error",
	ErrConditional:  "conditional error",
	ErrExpression:   "expression error",
	ErrInclude:      "include error",
	ErrUser:         "#error",
}

func (k ErrorKind) String() string {
	if int(k) < 0 || int(k) >= len(errorKindToStr) {
		return "error"
	}
	return errorKindToStr[k]
}

type ErrorLoc struct {
	Kind ErrorKind
	Err  error
	Pos  FilePos
}

func errorf(kind ErrorKind, pos FilePos, format string, args ...interface{}) error {
	return ErrorLoc{
		Kind: kind,
		Err:  fmt.Errorf(format, args...),
		Pos:  pos,
	}
}

func (e ErrorLoc) Error() string {
	return fmt.Sprintf("%s at %s", e.Err, e.Pos)
}

func (e ErrorLoc) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a preprocessing error and whether err was one.
func KindOf(err error) (ErrorKind, bool) {
	var el ErrorLoc
	if errors.As(err, &el) {
		return el.Kind, true
	}
	return 0, false
}
