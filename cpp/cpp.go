package cpp

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emirpasic/gods/stacks/arraystack"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultCacheSize = 64
	maxIncludeDepth  = 200
)

type Options struct {
	//Directories searched for includes, in priority order.
	IncludePaths []string
	//Filesystem used for includes, the OS filesystem when nil.
	FS billy.Filesystem
	//Relative paths are resolved against Dir,
	//the working directory when FS is nil.
	Dir string
	//Overrides IncludePaths and FS when set.
	Searcher IncludeSearcher
	Log      logrus.FieldLogger
	//Fixes __DATE__ and __TIME__, the current time when zero.
	Now time.Time
	//Number of tokenized headers kept in memory.
	CacheSize int
}

// Session holds the state shared by every file of one translation unit.
// It must not be shared between translation units.
type Session struct {
	Macros     *MacroTable
	Predefined *Predefined
	Once       *IncludeRegistry

	is    IncludeSearcher
	log   logrus.FieldLogger
	cache *lru.Cache[FileID, []*Token]
}

func NewSession(opts Options) (*Session, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	is := opts.Searcher
	if is == nil {
		fs, dir := opts.FS, opts.Dir
		if fs == nil {
			fs = osfs.New("/")
			if dir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return nil, err
				}
				dir = filepath.ToSlash(wd)
			}
		}
		is = NewStandardIncludeSearcher(fs, dir, opts.IncludePaths...)
	}
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[FileID, []*Token](size)
	if err != nil {
		return nil, err
	}
	pd := NewPredefined(now)
	return &Session{
		Macros:     NewMacroTable(pd),
		Predefined: pd,
		Once:       NewIncludeRegistry(),
		is:         is,
		log:        log,
		cache:      cache,
	}, nil
}

// Searcher returns the include searcher used by the session.
func (s *Session) Searcher() IncludeSearcher {
	return s.is
}

// Open starts preprocessing the named file.
func (s *Session) Open(path string) (*Preprocessor, error) {
	rc, err := s.is.Open(path)
	if err != nil {
		return nil, ErrorLoc{Kind: ErrInclude, Err: err, Pos: FilePos{File: path}}
	}
	defer rc.Close()
	return New(Lex(path, rc), s), nil
}

// loadFile returns the tokens of an included file, lexing it at most once
// while it stays in the cache.
func (s *Session) loadFile(path string, id FileID) ([]*Token, error) {
	if toks, ok := s.cache.Get(id); ok {
		s.log.WithFields(logrus.Fields{"path": path, "id": id.String()}).Debug("header cache hit")
		return toks, nil
	}
	rc, err := s.is.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	toks, err := lexAll(Lex(path, rc))
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, toks)
	return toks, nil
}

type tokenSource interface {
	Next() (*Token, error)
}

type sliceSource struct {
	toks []*Token
	eof  *Token
}

func (s *sliceSource) Next() (*Token, error) {
	if len(s.toks) == 0 {
		return s.eof, nil
	}
	t := s.toks[0]
	s.toks = s.toks[1:]
	return t, nil
}

type fileFrame struct {
	src  tokenSource
	path string
	id   FileID
	// false when the file has no identity, #pragma once is then ignored.
	hasID bool
	// set by #line
	presumedFile string
	lineDelta    int
}

type condState int

const (
	fileRoot condState = iota
	ifFuture
	ifActive
	ifPast
	ifInactive
	elseActive
	elsePast
	elseInactive
)

// condContext is one entry of the conditional stack.
type condContext struct {
	state condState
	// position of the directive that opened the group.
	pos FilePos
}

type Preprocessor struct {
	sess   *Session
	macros *MacroTable
	x      *expander
	log    logrus.FieldLogger

	frames []*fileFrame
	//Stack of condContext about #if blocks
	conditionalStack *arraystack.Stack

	//Text lines waiting for macro expansion.
	text []*Token
	//Position of the last token read, in whichever file that was.
	cursor FilePos
	//Expanded tokens not yet returned.
	out []*Token
	eof *Token
	err error
}

// New returns a preprocessor reading from l. A nil session gets default options.
func New(l *Lexer, sess *Session) *Preprocessor {
	ret := new(Preprocessor)
	if sess == nil {
		var err error
		sess, err = NewSession(Options{})
		if err != nil {
			ret.err = err
			return ret
		}
	}
	ret.sess = sess
	ret.macros = sess.Macros
	ret.x = newExpander(sess.Macros, sess.Predefined)
	ret.log = sess.log
	ret.conditionalStack = arraystack.New()
	frame := &fileFrame{src: l, path: l.fname}
	if id, err := sess.is.Identify(l.fname); err == nil {
		frame.id = id
		frame.hasID = true
	}
	ret.pushFrame(frame, FilePos{File: l.fname, Line: 1, Col: 1})
	return ret
}

func (pp *Preprocessor) pushFrame(f *fileFrame, pos FilePos) {
	pp.frames = append(pp.frames, f)
	pp.pushCondContext(fileRoot, pos)
}

func (pp *Preprocessor) frame() *fileFrame {
	return pp.frames[len(pp.frames)-1]
}

func (pp *Preprocessor) pushCondContext(state condState, pos FilePos) {
	pp.conditionalStack.Push(&condContext{state: state, pos: pos})
}

func (pp *Preprocessor) popCondContext() {
	if pp.condDepth() == 0 {
		panic("internal bug")
	}
	pp.conditionalStack.Pop()
}

func (pp *Preprocessor) topCondContext() *condContext {
	v, ok := pp.conditionalStack.Peek()
	if !ok {
		panic("internal bug")
	}
	return v.(*condContext)
}

func (pp *Preprocessor) condDepth() int {
	return pp.conditionalStack.Size()
}

// active is true when text lines are currently being output.
func (pp *Preprocessor) active() bool {
	switch pp.topCondContext().state {
	case fileRoot, ifActive, elseActive:
		return true
	}
	return false
}

// Next returns the next fully preprocessed token. The stream ends with a
// single EOF token. After an error every call returns the same error.
func (pp *Preprocessor) Next() (*Token, error) {
	for len(pp.out) == 0 {
		if pp.err != nil {
			return &Token{Kind: ERROR}, pp.err
		}
		if pp.eof != nil {
			return pp.eof, nil
		}
		err := pp.step()
		if err != nil {
			pp.err = err
		}
	}
	t := pp.out[0]
	pp.out = pp.out[1:]
	return t, nil
}

// Pos returns the position of the last token read from any file. After an
// error it is where processing stopped.
func (pp *Preprocessor) Pos() FilePos {
	return pp.cursor
}

// step consumes one logical line of the current file.
func (pp *Preprocessor) step() error {
	f := pp.frame()
	line, eof, err := pp.readLine(f)
	if err != nil {
		return err
	}
	if line == nil {
		return pp.endOfFile(eof)
	}
	if isDirectiveLine(line) {
		err := pp.flushText()
		if err != nil {
			return err
		}
		return pp.handleDirective(line)
	}
	if pp.active() {
		if err := checkValid(line); err != nil {
			return err
		}
		pp.text = append(pp.text, line...)
	}
	return nil
}

// readLine returns the tokens of one line including its newline,
// or nil and the EOF token at the end of the file.
func (pp *Preprocessor) readLine(f *fileFrame) ([]*Token, *Token, error) {
	var line []*Token
	for {
		t, err := f.src.Next()
		if err != nil {
			return nil, nil, err
		}
		if t.Kind == EOF {
			pp.cursor = t.Pos
			if len(line) != 0 {
				return line, nil, nil
			}
			return nil, t, nil
		}
		if f.lineDelta != 0 || f.presumedFile != "" {
			t = t.copy()
			t.Pos.Line += f.lineDelta
			if f.presumedFile != "" {
				t.Pos.File = f.presumedFile
			}
		}
		pp.cursor = t.Pos
		line = append(line, t)
		if t.Kind == NEWLINE {
			return line, nil, nil
		}
	}
}

func (pp *Preprocessor) endOfFile(eof *Token) error {
	err := pp.flushText()
	if err != nil {
		return err
	}
	top := pp.topCondContext()
	if top.state != fileRoot {
		return errorf(ErrConditional, top.pos, "unterminated #if")
	}
	pp.popCondContext()
	pp.frames = pp.frames[:len(pp.frames)-1]
	if len(pp.frames) == 0 {
		pp.eof = eof
	}
	return nil
}

// flushText expands the pending text lines into the output.
func (pp *Preprocessor) flushText() error {
	if len(pp.text) == 0 {
		return nil
	}
	toks := pp.text
	pp.text = nil
	expanded, err := pp.x.expand(toks)
	if err != nil {
		return err
	}
	pp.out = append(pp.out, normalizeWhiteSpace(expanded)...)
	return nil
}

func isDirectiveLine(line []*Token) bool {
	i := nextNonWhiteSpace(line, 0)
	return i < len(line) && line[i].isHash()
}

func (pp *Preprocessor) handleDirective(line []*Token) error {
	i := nextNonWhiteSpace(line, 0)
	j := nextNonWhiteSpace(line, i+1)
	if j == len(line) {
		// The null directive.
		return nil
	}
	dirTok := line[j]
	args := line[j+1:]
	if n := len(args); n != 0 && args[n-1].Kind == NEWLINE {
		args = args[:n-1]
	}
	if dirTok.Kind != IDENT {
		if !pp.active() {
			return nil
		}
		return errorf(ErrDirective, dirTok.Pos, "invalid preprocessing directive %s", dirTok.Val)
	}
	switch dirTok.Val {
	case "if":
		return pp.handleIf(dirTok, args)
	case "ifdef":
		return pp.handleIfDef(dirTok, args, false)
	case "ifndef":
		return pp.handleIfDef(dirTok, args, true)
	case "elif":
		return pp.handleElif(dirTok, args)
	case "else":
		return pp.handleElse(dirTok, args)
	case "endif":
		return pp.handleEndif(dirTok, args)
	}
	if !pp.active() {
		return nil
	}
	switch dirTok.Val {
	case "undef":
		return pp.handleUndefine(dirTok, args)
	case "define":
		return pp.handleDefine(dirTok, args)
	case "include":
		return pp.handleInclude(dirTok, args)
	case "line":
		return pp.handleLine(dirTok, args)
	case "pragma":
		return pp.handlePragma(dirTok, args)
	case "error":
		return pp.handleError(dirTok, args)
	case "warning":
		return pp.handleWarning(dirTok, args)
	default:
		return errorf(ErrDirective, dirTok.Pos, "unknown directive error %s", dirTok.Val)
	}
}

func (pp *Preprocessor) handleIf(dirTok *Token, args []*Token) error {
	if !pp.active() {
		pp.pushCondContext(ifInactive, dirTok.Pos)
		return nil
	}
	v, err := pp.evalCondition(dirTok, args)
	if err != nil {
		return err
	}
	if v {
		pp.pushCondContext(ifActive, dirTok.Pos)
	} else {
		pp.pushCondContext(ifFuture, dirTok.Pos)
	}
	return nil
}

func (pp *Preprocessor) handleIfDef(dirTok *Token, args []*Token, negate bool) error {
	if !pp.active() {
		pp.pushCondContext(ifInactive, dirTok.Pos)
		return nil
	}
	i := nextNonWhiteSpace(args, 0)
	if i == len(args) || args[i].Kind != IDENT {
		return errorf(ErrDirective, dirTok.Pos, "#%s expected an ident", dirTok.Val)
	}
	if j := nextNonWhiteSpace(args, i+1); j != len(args) {
		return errorf(ErrDirective, args[j].Pos, "unexpected token %s after #%s", args[j].Val, dirTok.Val)
	}
	if pp.macros.IsDefined(args[i].Val) != negate {
		pp.pushCondContext(ifActive, dirTok.Pos)
	} else {
		pp.pushCondContext(ifFuture, dirTok.Pos)
	}
	return nil
}

func (pp *Preprocessor) handleElif(dirTok *Token, args []*Token) error {
	top := pp.topCondContext()
	switch top.state {
	case ifFuture:
		v, err := pp.evalCondition(dirTok, args)
		if err != nil {
			return err
		}
		if v {
			top.state = ifActive
		}
	case ifActive, ifPast:
		// A branch was already taken, the value is not used but the
		// condition must still be well formed.
		if _, err := pp.evalCondition(dirTok, args); err != nil {
			return err
		}
		top.state = ifPast
	case ifInactive:
	case fileRoot:
		return errorf(ErrConditional, dirTok.Pos, "#elif without #if")
	default:
		return errorf(ErrConditional, dirTok.Pos, "#elif after #else")
	}
	return nil
}

func (pp *Preprocessor) handleElse(dirTok *Token, args []*Token) error {
	if j := nextNonWhiteSpace(args, 0); j != len(args) {
		return errorf(ErrConditional, args[j].Pos, "unexpected token after #else")
	}
	top := pp.topCondContext()
	switch top.state {
	case ifFuture:
		top.state = elseActive
	case ifActive, ifPast:
		top.state = elsePast
	case ifInactive:
		top.state = elseInactive
	case fileRoot:
		return errorf(ErrConditional, dirTok.Pos, "#else without #if")
	default:
		return errorf(ErrConditional, dirTok.Pos, "#else after #else")
	}
	return nil
}

func (pp *Preprocessor) handleEndif(dirTok *Token, args []*Token) error {
	if j := nextNonWhiteSpace(args, 0); j != len(args) {
		return errorf(ErrConditional, args[j].Pos, "unexpected token after #endif")
	}
	if pp.topCondContext().state == fileRoot {
		return errorf(ErrConditional, dirTok.Pos, "stray #endif")
	}
	pp.popCondContext()
	return nil
}

// evalCondition evaluates the controlling expression of #if or #elif.
func (pp *Preprocessor) evalCondition(dirTok *Token, args []*Token) (bool, error) {
	if err := checkValid(args); err != nil {
		return false, err
	}
	expanded, err := pp.x.expand(markDefinedOperands(args))
	if err != nil {
		return false, err
	}
	v, err := evalIfExpr(pp.macros.IsDefined, expanded, dirTok.Pos)
	if err != nil {
		return false, err
	}
	return v.isTrue(), nil
}

// markDefinedOperands makes the operands of defined unavailable for
// expansion, so defined(X) tests X itself.
func markDefinedOperands(toks []*Token) []*Token {
	ret := make([]*Token, len(toks))
	copy(ret, toks)
	for i := 0; i < len(ret); i++ {
		if ret[i].Kind != IDENT || ret[i].Val != "defined" {
			continue
		}
		j := nextNonWhiteSpace(ret, i+1)
		if j < len(ret) && ret[j].isPunct("(") {
			j = nextNonWhiteSpace(ret, j+1)
		}
		if j < len(ret) && ret[j].Kind == IDENT {
			operand := ret[j].copy()
			operand.unavailable = true
			ret[j] = operand
			i = j
		}
	}
	return ret
}

func (pp *Preprocessor) handleDefine(dirTok *Token, args []*Token) error {
	err := pp.macros.Define(append([]*Token{dirTok}, args...))
	if err != nil {
		return err
	}
	if i := nextNonWhiteSpace(args, 0); i < len(args) {
		pp.log.WithFields(logrus.Fields{"macro": args[i].Val, "file": dirTok.Pos.File, "line": dirTok.Pos.Line}).Debug("define")
	}
	return nil
}

func (pp *Preprocessor) handleUndefine(dirTok *Token, args []*Token) error {
	err := pp.macros.Undef(append([]*Token{dirTok}, args...))
	if err != nil {
		return err
	}
	if i := nextNonWhiteSpace(args, 0); i < len(args) {
		pp.log.WithFields(logrus.Fields{"macro": args[i].Val, "file": dirTok.Pos.File, "line": dirTok.Pos.Line}).Debug("undef")
	}
	return nil
}

// headerOperand returns the spelling of the #include operand, "foo.h" or <foo.h>.
func (pp *Preprocessor) headerOperand(dirTok *Token, args []*Token) (string, error) {
	if err := checkValid(args); err != nil {
		return "", err
	}
	toks := trimWhiteSpace(args)
	if len(toks) == 1 && (toks[0].Kind == HEADER || (toks[0].Kind == STRING && toks[0].Val[0] == '"')) {
		return toks[0].Val, nil
	}
	expanded, err := pp.x.expand(toks)
	if err != nil {
		return "", err
	}
	toks = trimWhiteSpace(normalizeWhiteSpace(expanded))
	switch {
	case len(toks) == 0:
		return "", errorf(ErrDirective, dirTok.Pos, "expected a header after #include")
	case len(toks) == 1 && toks[0].Kind == STRING && toks[0].Val[0] == '"':
		return toks[0].Val, nil
	case toks[0].isPunct("<") && len(toks) > 2 && toks[len(toks)-1].isPunct(">"):
		return "<" + Spell(toks[1:len(toks)-1]) + ">", nil
	}
	return "", errorf(ErrDirective, toks[0].Pos, "#include expects \"FILENAME\" or <FILENAME>")
}

func (pp *Preprocessor) handleInclude(dirTok *Token, args []*Token) error {
	headerStr, err := pp.headerOperand(dirTok, args)
	if err != nil {
		return err
	}
	if len(pp.frames) >= maxIncludeDepth {
		return errorf(ErrInclude, dirTok.Pos, "#include nested too deeply")
	}
	path := headerStr[1 : len(headerStr)-1]
	requesting := pp.frame().path
	var headerName string
	switch headerStr[0] {
	case '<':
		headerName, err = pp.sess.is.IncludeAngled(requesting, path)
	default:
		headerName, err = pp.sess.is.IncludeQuote(requesting, path)
	}
	if err != nil {
		return ErrorLoc{Kind: ErrInclude, Err: err, Pos: dirTok.Pos}
	}
	id, err := pp.sess.is.Identify(headerName)
	if err != nil {
		return ErrorLoc{Kind: ErrInclude, Err: err, Pos: dirTok.Pos}
	}
	log := pp.log.WithFields(logrus.Fields{"path": headerName, "file": dirTok.Pos.File, "line": dirTok.Pos.Line})
	if pp.sess.Once.Contains(id) {
		log.Debug("skipping #pragma once file")
		return nil
	}
	toks, err := pp.sess.loadFile(headerName, id)
	if err != nil {
		var el ErrorLoc
		if errors.As(err, &el) {
			return err
		}
		return ErrorLoc{Kind: ErrInclude, Err: err, Pos: dirTok.Pos}
	}
	log.Debug("include")
	eof := newToken(EOF, "", FilePos{File: headerName, Line: 1, Col: 1})
	if n := len(toks); n != 0 {
		eof.Pos = toks[n-1].Pos
		eof.Pos.Line += 1
		eof.Pos.Col = 1
	}
	pp.pushFrame(&fileFrame{
		src:   &sliceSource{toks: toks, eof: eof},
		path:  headerName,
		id:    id,
		hasID: true,
	}, dirTok.Pos)
	return nil
}

// handleLine implements #line digits ["file"]. The given number becomes the
// line number of the next source line.
func (pp *Preprocessor) handleLine(dirTok *Token, args []*Token) error {
	if err := checkValid(args); err != nil {
		return err
	}
	expanded, err := pp.x.expand(args)
	if err != nil {
		return err
	}
	var toks []*Token
	for _, t := range expanded {
		if !t.isWhiteSpace() {
			toks = append(toks, t)
		}
	}
	if len(toks) == 0 || toks[0].Kind != NUMBER || strings.Trim(toks[0].Val, "0123456789") != "" {
		return errorf(ErrDirective, dirTok.Pos, "#line expects a line number")
	}
	n, err := strconv.Atoi(toks[0].Val)
	if err != nil {
		return errorf(ErrDirective, toks[0].Pos, "invalid line number %s", toks[0].Val)
	}
	f := pp.frame()
	file := ""
	switch len(toks) {
	case 1:
	case 2:
		if toks[1].Kind != STRING || toks[1].Val[0] != '"' {
			return errorf(ErrDirective, toks[1].Pos, "invalid filename %s in #line", toks[1].Val)
		}
		file = unquoteString(toks[1].Val)
	default:
		return errorf(ErrDirective, toks[2].Pos, "unexpected token %s after #line", toks[2].Val)
	}
	physical := dirTok.Pos.Line - f.lineDelta
	f.lineDelta = n - (physical + 1)
	if file != "" {
		f.presumedFile = file
	}
	return nil
}

func unquoteString(s string) string {
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s[1 : len(s)-1]
}

func (pp *Preprocessor) handlePragma(dirTok *Token, args []*Token) error {
	toks := trimWhiteSpace(args)
	if len(toks) == 1 && toks[0].Kind == IDENT && toks[0].Val == "once" {
		f := pp.frame()
		if f.hasID {
			pp.sess.Once.Add(f.id)
			pp.log.WithFields(logrus.Fields{"path": f.path}).Debug("#pragma once")
		}
		return nil
	}
	pp.log.WithFields(logrus.Fields{"file": dirTok.Pos.File, "line": dirTok.Pos.Line}).Warnf("ignoring #pragma %s", Spell(toks))
	return nil
}

func (pp *Preprocessor) directiveText(args []*Token) (string, error) {
	expanded, err := pp.x.expand(args)
	if err != nil {
		return "", err
	}
	return Spell(trimWhiteSpace(normalizeWhiteSpace(expanded))), nil
}

func (pp *Preprocessor) handleError(dirTok *Token, args []*Token) error {
	msg, err := pp.directiveText(args)
	if err != nil {
		return err
	}
	return ErrorLoc{Kind: ErrUser, Err: errors.New(msg), Pos: dirTok.Pos}
}

func (pp *Preprocessor) handleWarning(dirTok *Token, args []*Token) error {
	msg, err := pp.directiveText(args)
	if err != nil {
		return err
	}
	pp.log.WithFields(logrus.Fields{"file": dirTok.Pos.File, "line": dirTok.Pos.Line}).Warn(msg)
	return nil
}
