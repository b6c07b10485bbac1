package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tomazos/wt-sub000/cpp"
	"github.com/urfave/cli/v2"
)

const version = "0.2"

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "cpp"
	app.Usage = "Preprocess a C source file"
	app.Version = version
	app.ArgsUsage = "FILE.c"
	app.Description = `Expands macros, includes and conditionals and writes the resulting source text.

Extra -I, -D and -U options are read from the CPPFLAGS environment variable.`
	// -D 'MAX(a,b)=...' must not be split at the comma.
	app.DisableSliceFlagSeparator = true
	app.Flags = []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "include",
			Aliases: []string{"I"},
			Usage:   "Add a directory to the include search path",
		},
		&cli.StringSliceFlag{
			Name:    "define",
			Aliases: []string{"D"},
			Usage:   "Define a macro, NAME or NAME=VALUE",
		},
		&cli.StringSliceFlag{
			Name:    "undef",
			Aliases: []string{"U"},
			Usage:   "Undefine a macro",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Value:   "-",
			Usage:   "File to write output to, - for stdout",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Read include paths and macros from an ini file",
		},
		&cli.BoolFlag{
			Name:  "tokens",
			Usage: "Print tokens after preprocessing (For debugging)",
		},
		&cli.BoolFlag{
			Name:  "lex",
			Usage: "Print tokens after lexing (For debugging)",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Log directives and include resolution to stderr",
		},
	}
	app.Action = runPreprocess
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func buildConfig(c *cli.Context) (*config, error) {
	cfg := &config{}
	if path := c.String("config"); path != "" {
		if err := cfg.loadConfigFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.parseCPPFlags(os.Getenv("CPPFLAGS")); err != nil {
		return nil, err
	}
	cfg.includePaths = append(cfg.includePaths, c.StringSlice("include")...)
	cfg.addDefines(c.StringSlice("define"))
	cfg.addUndefs(c.StringSlice("undef"))
	return cfg, nil
}

func runPreprocess(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("Bad number of args, please specify a single source file.", 1)
	}
	input := c.Args().First()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if c.Bool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := buildConfig(c)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	var output io.WriteCloser = os.Stdout
	if path := c.String("output"); path != "-" {
		output, err = os.Create(path)
		if err != nil {
			err = errors.Wrapf(err, "failed to open output file %s", path)
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		defer output.Close()
	}

	sess, err := newSession(cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	var n int64
	switch {
	case c.Bool("lex"):
		err = tokenizeFile(sess, input, output)
	case c.Bool("tokens"):
		err = preprocessTokens(sess, input, output)
	default:
		n, err = preprocessFile(sess, input, output)
	}
	if err != nil {
		reportError(os.Stderr, sess.Searcher().Open, err, stderrIsTerminal())
		return err
	}
	log.WithFields(logrus.Fields{
		"macros": len(sess.Macros.Names()),
		"once":   sess.Once.Len(),
	}).Debugf("wrote %s", humanize.Bytes(uint64(n)))
	return nil
}

func newSession(cfg *config, log logrus.FieldLogger) (*cpp.Session, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	sess, err := cpp.NewSession(cpp.Options{
		IncludePaths: cfg.includePaths,
		FS:           osfs.New("/"),
		Dir:          filepath.ToSlash(wd),
		Log:          log,
		CacheSize:    cfg.cacheSize,
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.applyMacros(sess.Macros); err != nil {
		return nil, err
	}
	return sess, nil
}

func preprocessFile(sess *cpp.Session, sourceFile string, out io.Writer) (int64, error) {
	pp, err := sess.Open(sourceFile)
	if err != nil {
		return 0, err
	}
	return cpp.WriteText(out, pp)
}

func printTokens(ts cpp.TokenStream, out io.Writer) error {
	for {
		tok, err := ts.Next()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s:%q:%d:%d\n", tok.Kind, tok.Val, tok.Pos.Line, tok.Pos.Col)
		if tok.Kind == cpp.EOF {
			return nil
		}
	}
}

func preprocessTokens(sess *cpp.Session, sourceFile string, out io.Writer) error {
	pp, err := sess.Open(sourceFile)
	if err != nil {
		return err
	}
	return printTokens(pp, out)
}

func tokenizeFile(sess *cpp.Session, sourceFile string, out io.Writer) error {
	rc, err := sess.Searcher().Open(sourceFile)
	if err != nil {
		return errors.Wrapf(err, "failed to open source file %s for lexing", sourceFile)
	}
	defer rc.Close()
	return printTokens(cpp.Lex(sourceFile, rc), out)
}
