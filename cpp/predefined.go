package cpp

import (
	"strconv"
	"strings"
	"time"
)

// Predefined holds the values of the builtin macros for one session.
// Date and time are captured once so every use within a translation unit agrees.
type Predefined struct {
	Date string
	Time string
}

var predefinedNames = map[string]bool{
	"__FILE__":         true,
	"__LINE__":         true,
	"__DATE__":         true,
	"__TIME__":         true,
	"__STDC__":         true,
	"__STDC_HOSTED__":  true,
	"__STDC_VERSION__": true,
}

func NewPredefined(now time.Time) *Predefined {
	return &Predefined{
		Date: now.Format("Jan _2 2006"),
		Time: now.Format("15:04:05"),
	}
}

func (pd *Predefined) IsPredefined(name string) bool {
	return predefinedNames[name]
}

// expand synthesizes the replacement for a builtin macro name.
// __FILE__ and __LINE__ come from the position of the name itself.
func (pd *Predefined) expand(t *Token) *Token {
	var ret *Token
	switch t.Val {
	case "__FILE__":
		ret = newToken(STRING, quoteString(t.Pos.File), t.Pos)
	case "__LINE__":
		ret = newToken(NUMBER, strconv.Itoa(t.Pos.Line), t.Pos)
	case "__DATE__":
		ret = newToken(STRING, quoteString(pd.Date), t.Pos)
	case "__TIME__":
		ret = newToken(STRING, quoteString(pd.Time), t.Pos)
	case "__STDC__", "__STDC_HOSTED__":
		ret = newToken(NUMBER, "1", t.Pos)
	case "__STDC_VERSION__":
		ret = newToken(NUMBER, "201112L", t.Pos)
	default:
		return t
	}
	ret.WasMacroExpanded = true
	return ret
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quoteString(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}
