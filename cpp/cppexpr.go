package cpp

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

/*
   Implements the expression parsing and evaluation for #if statements

   Note that "defined name" and "define(name)" operands are marked before
   macro expansion so they are never expanded. The evaluator then sees
   the fully expanded line.

   #if expression
       controlled text
   #endif

   expression may be:

   Integer constants.

   Character constants, which are interpreted as they would be in normal code.

   Arithmetic operators for most of C

   Identifiers that are not macros, which are all considered to be the number zero.

   Values are 64 bit and either signed or unsigned, mixing the two converts
   to unsigned. Division by zero and bad shift counts do not stop evaluation,
   they produce an erroneous value. Only an erroneous final result is an error,
   so 1 ? 2 : 0/0 is fine.
*/

type exprValue struct {
	v        uint64
	unsigned bool
	// non empty for an erroneous value, describes the first problem.
	bad string
}

func signedValue(v int64) exprValue {
	return exprValue{v: uint64(v)}
}

func boolValue(b bool) exprValue {
	if b {
		return exprValue{v: 1}
	}
	return exprValue{v: 0}
}

func (v exprValue) isBad() bool {
	return v.bad != ""
}

func (v exprValue) isTrue() bool {
	return v.v != 0
}

// Int64 returns the value as a signed integer.
func (v exprValue) Int64() int64 {
	return int64(v.v)
}

func (v exprValue) String() string {
	if v.isBad() {
		return "<" + v.bad + ">"
	}
	if v.unsigned {
		return strconv.FormatUint(v.v, 10) + "u"
	}
	return strconv.FormatInt(int64(v.v), 10)
}

type cppExprCtx struct {
	toks      []*Token
	i         int
	isDefined func(string) bool
	end       FilePos
}

func (ctx *cppExprCtx) nextToken() *Token {
	if ctx.i >= len(ctx.toks) {
		return nil
	}
	tok := ctx.toks[ctx.i]
	ctx.i++
	return tok
}

func (ctx *cppExprCtx) peek() *Token {
	if ctx.i >= len(ctx.toks) {
		return nil
	}
	return ctx.toks[ctx.i]
}

func (ctx *cppExprCtx) errorf(t *Token, format string, args ...interface{}) error {
	pos := ctx.end
	if t != nil {
		pos = t.Pos
	}
	return errorf(ErrExpression, pos, format, args...)
}

func parseCPPExprAtom(ctx *cppExprCtx) (exprValue, error) {
	toCheck := ctx.nextToken()
	if toCheck == nil {
		return exprValue{}, ctx.errorf(nil, "expected integer, char, or defined but got nothing")
	}
	switch toCheck.Kind {
	case PUNCT:
		switch toCheck.Val {
		case "!":
			v, err := parseCPPExprAtom(ctx)
			if err != nil || v.isBad() {
				return v, err
			}
			return boolValue(v.v == 0), nil
		case "~":
			v, err := parseCPPExprAtom(ctx)
			if err != nil || v.isBad() {
				return v, err
			}
			v.v = ^v.v
			return v, nil
		case "-":
			v, err := parseCPPExprAtom(ctx)
			if err != nil || v.isBad() {
				return v, err
			}
			v.v = -v.v
			return v, nil
		case "+":
			return parseCPPExprAtom(ctx)
		case "(":
			v, err := parseCPPExpr(ctx)
			if err != nil {
				return v, err
			}
			rparen := ctx.nextToken()
			if rparen == nil || !rparen.isPunct(")") {
				return exprValue{}, ctx.errorf(rparen, "unclosed parenthesis")
			}
			return v, nil
		}
	case NUMBER:
		v, err := parseIntConstant(toCheck.Val)
		if err != nil {
			return exprValue{}, ctx.errorf(toCheck, "%s", err)
		}
		return v, nil
	case CHAR_CONSTANT:
		v, err := parseCharConstant(toCheck.Val)
		if err != nil {
			return exprValue{}, ctx.errorf(toCheck, "%s", err)
		}
		return v, nil
	case IDENT:
		switch toCheck.Val {
		case "defined":
			return parseDefined(ctx, toCheck)
		case "true":
			return signedValue(1), nil
		case "false":
			return signedValue(0), nil
		}
		return signedValue(0), nil
	}
	return exprValue{}, ctx.errorf(toCheck, "expected integer, char, or defined but got %s", toCheck.Val)
}

func parseDefined(ctx *cppExprCtx, defined *Token) (exprValue, error) {
	toCheck := ctx.nextToken()
	if toCheck == nil {
		return exprValue{}, ctx.errorf(nil, "expected ( or an identifier after defined but got nothing")
	}
	switch {
	case toCheck.isPunct("("):
		toCheck = ctx.nextToken()
		if toCheck == nil || toCheck.Kind != IDENT {
			return exprValue{}, ctx.errorf(toCheck, "malformed defined check, expected an identifier")
		}
		rparen := ctx.nextToken()
		if rparen == nil || !rparen.isPunct(")") {
			return exprValue{}, ctx.errorf(rparen, "malformed defined check, missing )")
		}
	case toCheck.Kind == IDENT:
		//calls isDefined as intended
	default:
		return exprValue{}, ctx.errorf(toCheck, "malformed defined statement")
	}
	return boolValue(ctx.isDefined(toCheck.Val)), nil
}

// parseIntConstant reads a pp-number as an integer. Without a u suffix the
// value is signed unless it does not fit in 64 signed bits.
func parseIntConstant(s string) (exprValue, error) {
	spelled := strings.ReplaceAll(s, "'", "")
	digits := strings.TrimRight(spelled, "uUlL")
	suffix := strings.ToLower(spelled[len(digits):])
	unsigned := false
	switch suffix {
	case "", "l", "ll":
	case "u", "ul", "lu", "ull", "llu":
		unsigned = true
	default:
		return exprValue{}, fmt.Errorf("invalid integer suffix in %s", s)
	}
	base := 10
	switch {
	case strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X"):
		base = 16
		digits = digits[2:]
	case strings.HasPrefix(digits, "0b") || strings.HasPrefix(digits, "0B"):
		base = 2
		digits = digits[2:]
	case len(digits) > 1 && digits[0] == '0':
		base = 8
		digits = digits[1:]
	}
	v, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return exprValue{}, fmt.Errorf("integer constant %s is too large", s)
		}
		return exprValue{}, fmt.Errorf("invalid integer constant %s", s)
	}
	if v > math.MaxInt64 {
		unsigned = true
	}
	return exprValue{v: v, unsigned: unsigned}, nil
}

// parseCharConstant evaluates a character constant. Plain and L constants are
// signed, u, U and u8 constants are unsigned.
func parseCharConstant(s string) (exprValue, error) {
	q := strings.IndexByte(s, '\'')
	prefix, body := s[:q], s[q+1:len(s)-1]
	vals, err := decodeChars(body, prefix != "")
	if err != nil {
		return exprValue{}, err
	}
	switch len(vals) {
	case 0:
		return exprValue{}, fmt.Errorf("empty character constant %s", s)
	case 1:
	default:
		return exprValue{}, fmt.Errorf("multi-character character constant %s", s)
	}
	c := vals[0]
	switch prefix {
	case "":
		return signedValue(int64(int8(c))), nil
	case "L":
		return signedValue(int64(int32(c))), nil
	case "u8":
		return exprValue{v: uint64(uint8(c)), unsigned: true}, nil
	case "u":
		return exprValue{v: uint64(uint16(c)), unsigned: true}, nil
	default:
		return exprValue{v: uint64(uint32(c)), unsigned: true}, nil
	}
}

// decodeChars decodes the body of a character constant into code units.
// In a plain constant a character outside ASCII counts as one unit per UTF-8
// byte, wide constants decode whole code points.
func decodeChars(body string, wide bool) ([]uint32, error) {
	var ret []uint32
	for i := 0; i < len(body); {
		c := body[i]
		if c != '\\' {
			if wide {
				r, size := utf8.DecodeRuneInString(body[i:])
				ret = append(ret, uint32(r))
				i += size
				continue
			}
			ret = append(ret, uint32(c))
			i++
			continue
		}
		i++
		if i >= len(body) {
			return nil, fmt.Errorf("invalid escape sequence")
		}
		e := body[i]
		i++
		switch e {
		case 'n':
			ret = append(ret, '\n')
		case 't':
			ret = append(ret, '\t')
		case 'r':
			ret = append(ret, '\r')
		case 'a':
			ret = append(ret, 7)
		case 'b':
			ret = append(ret, 8)
		case 'f':
			ret = append(ret, 12)
		case 'v':
			ret = append(ret, 11)
		case '\\', '\'', '"', '?':
			ret = append(ret, uint32(e))
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := uint32(e - '0')
			for n := 1; n < 3 && i < len(body) && body[i] >= '0' && body[i] <= '7'; n++ {
				v = v*8 + uint32(body[i]-'0')
				i++
			}
			ret = append(ret, v)
		case 'x', 'u', 'U':
			limit := len(body)
			switch e {
			case 'u':
				limit = i + 4
			case 'U':
				limit = i + 8
			}
			start := i
			var v uint32
			for i < len(body) && i < limit && isHexDigit(rune(body[i])) {
				d, _ := strconv.ParseUint(body[i:i+1], 16, 8)
				v = v<<4 | uint32(d)
				i++
			}
			if i == start || (e != 'x' && i != limit) {
				return nil, fmt.Errorf("invalid \\%c escape sequence", e)
			}
			ret = append(ret, v)
		default:
			return nil, fmt.Errorf("unknown escape sequence \\%c", e)
		}
	}
	return ret, nil
}

func evalCPPBinop(k string, l exprValue, r exprValue) exprValue {
	switch k {
	case "||":
		if !l.isBad() && l.isTrue() {
			return boolValue(true)
		}
		if l.isBad() {
			return l
		}
		if r.isBad() {
			return r
		}
		return boolValue(r.isTrue())
	case "&&":
		if !l.isBad() && !l.isTrue() {
			return boolValue(false)
		}
		if l.isBad() {
			return l
		}
		if r.isBad() {
			return r
		}
		return boolValue(r.isTrue())
	}
	if l.isBad() {
		return l
	}
	if r.isBad() {
		return r
	}
	switch k {
	case "<<", ">>":
		// The result has the type of the left operand.
		if (!r.unsigned && int64(r.v) < 0) || r.v >= 64 {
			return exprValue{bad: "shift count out of range"}
		}
		if k == "<<" {
			l.v <<= r.v
		} else if l.unsigned {
			l.v >>= r.v
		} else {
			l.v = uint64(int64(l.v) >> r.v)
		}
		return l
	case ",":
		return r
	}
	unsigned := l.unsigned || r.unsigned
	ret := exprValue{unsigned: unsigned}
	switch k {
	case "|":
		ret.v = l.v | r.v
	case "^":
		ret.v = l.v ^ r.v
	case "&":
		ret.v = l.v & r.v
	case "+":
		ret.v = l.v + r.v
	case "-":
		ret.v = l.v - r.v
	case "*":
		ret.v = l.v * r.v
	case "/", "%":
		if r.v == 0 {
			return exprValue{bad: "division by zero"}
		}
		if unsigned {
			if k == "/" {
				ret.v = l.v / r.v
			} else {
				ret.v = l.v % r.v
			}
			break
		}
		if int64(l.v) == math.MinInt64 && int64(r.v) == -1 {
			return exprValue{bad: "integer overflow in division"}
		}
		if k == "/" {
			ret.v = uint64(int64(l.v) / int64(r.v))
		} else {
			ret.v = uint64(int64(l.v) % int64(r.v))
		}
	case "==":
		return boolValue(l.v == r.v)
	case "!=":
		return boolValue(l.v != r.v)
	case "<", ">", "<=", ">=":
		var c int
		switch {
		case unsigned && l.v < r.v, !unsigned && int64(l.v) < int64(r.v):
			c = -1
		case l.v == r.v:
			c = 0
		default:
			c = 1
		}
		switch k {
		case "<":
			return boolValue(c < 0)
		case ">":
			return boolValue(c > 0)
		case "<=":
			return boolValue(c <= 0)
		default:
			return boolValue(c >= 0)
		}
	default:
		return exprValue{bad: "internal error " + k}
	}
	return ret
}

func parseCPPTernary(ctx *cppExprCtx) (exprValue, error) {
	cond, err := parseCPPBinop(ctx)
	if err != nil {
		return cond, err
	}
	t := ctx.peek()
	if t == nil || !t.isPunct("?") {
		return cond, nil
	}
	ctx.nextToken()
	a, err := parseCPPExpr(ctx)
	if err != nil {
		return a, err
	}
	colon := ctx.nextToken()
	if colon == nil || !colon.isPunct(":") {
		return exprValue{}, ctx.errorf(colon, "ternary without :")
	}
	b, err := parseCPPTernary(ctx)
	if err != nil {
		return b, err
	}
	if cond.isBad() {
		return cond, nil
	}
	pick := b
	if cond.isTrue() {
		pick = a
	}
	// Both arms share a type even though only one is used.
	pick.unsigned = a.unsigned || b.unsigned
	return pick, nil
}

func parseCPPComma(ctx *cppExprCtx) (exprValue, error) {
	v, err := parseCPPTernary(ctx)
	if err != nil {
		return v, err
	}
	for {
		t := ctx.peek()
		if t == nil || !t.isPunct(",") {
			break
		}
		ctx.nextToken()
		r, err := parseCPPTernary(ctx)
		if err != nil {
			return r, err
		}
		v = evalCPPBinop(",", v, r)
	}
	return v, nil
}

func getPrec(t *Token) int {
	if t.Kind != PUNCT {
		return -1
	}
	switch t.Val {
	case "*", "%", "/":
		return 10
	case "+", "-":
		return 9
	case ">>", "<<":
		return 8
	case "<", ">", ">=", "<=":
		return 7
	case "==", "!=":
		return 6
	case "&":
		return 5
	case "^":
		return 4
	case "|":
		return 3
	case "&&":
		return 2
	case "||":
		return 1
	}
	return -1
}

// This is the precedence climbing algorithm, simplified because
// all the operators are left associative. The CPP doesn't
// deal with assignment operators.
func parseCPPBinop_1(ctx *cppExprCtx, prec int) (exprValue, error) {
	l, err := parseCPPExprAtom(ctx)
	if err != nil {
		return l, err
	}
	for {
		t := ctx.peek()
		if t == nil {
			break
		}
		p := getPrec(t)
		if p == -1 {
			break
		}
		if p < prec {
			break
		}
		ctx.nextToken()
		r, err := parseCPPBinop_1(ctx, p+1)
		if err != nil {
			return r, err
		}
		l = evalCPPBinop(t.Val, l, r)
	}
	return l, nil
}

func parseCPPBinop(ctx *cppExprCtx) (exprValue, error) {
	return parseCPPBinop_1(ctx, 0)
}

func parseCPPExpr(ctx *cppExprCtx) (exprValue, error) {
	return parseCPPComma(ctx)
}

// evalIfExpr evaluates a fully macro expanded controlling expression.
// pos is reported for errors found at the end of the line.
func evalIfExpr(isDefined func(string) bool, toks []*Token, pos FilePos) (exprValue, error) {
	ctx := &cppExprCtx{isDefined: isDefined, end: pos}
	for _, t := range toks {
		if !t.isWhiteSpace() {
			ctx.toks = append(ctx.toks, t)
		}
	}
	if len(ctx.toks) == 0 {
		return exprValue{}, errorf(ErrExpression, pos, "#if with no expression")
	}
	ret, err := parseCPPExpr(ctx)
	if err != nil {
		return ret, err
	}
	t := ctx.nextToken()
	if t != nil {
		return ret, ctx.errorf(t, "stray token %s", t.Val)
	}
	if ret.isBad() {
		return ret, errorf(ErrExpression, pos, "%s in preprocessor expression", ret.bad)
	}
	return ret, nil
}
