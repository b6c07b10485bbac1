package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/tomazos/wt-sub000/cpp"
)

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// reportError prints err and, for errors with a source position, the
// offending line with a caret under the column.
func reportError(w io.Writer, open func(string) (io.ReadCloser, error), err error, useColor bool) {
	errColor := color.New(color.FgRed, color.Bold)
	caretColor := color.New(color.FgGreen, color.Bold)
	if useColor {
		errColor.EnableColor()
		caretColor.EnableColor()
	} else {
		errColor.DisableColor()
		caretColor.DisableColor()
	}

	var errLoc cpp.ErrorLoc
	if !errors.As(err, &errLoc) {
		errColor.Fprint(w, "error: ")
		fmt.Fprintln(w, err)
		return
	}
	pos := errLoc.Pos
	fmt.Fprintf(w, "%s: ", pos)
	errColor.Fprintf(w, "%s: ", errLoc.Kind)
	fmt.Fprintln(w, errLoc.Err)
	if open == nil || pos.Line <= 0 {
		return
	}
	f, err := open(pos.File)
	if err != nil {
		return
	}
	defer f.Close()
	b := bufio.NewReader(f)
	lineno := 1
	for {
		line, err := b.ReadString('\n')
		if lineno == pos.Line {
			// Tabs are 4 columns wide, as in the lexer.
			line = strings.ReplaceAll(strings.TrimRight(line, "\r\n"), "\t", "    ")
			fmt.Fprintln(w, line)
			if pos.Col > 0 {
				fmt.Fprint(w, strings.Repeat(" ", pos.Col-1))
				caretColor.Fprintln(w, "^")
			}
			return
		}
		if err != nil {
			return
		}
		lineno += 1
	}
}
