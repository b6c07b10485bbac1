package main

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/tomazos/wt-sub000/cpp"
	"gopkg.in/ini.v1"
)

// macroOp is a -D or -U request, applied in the order given.
type macroOp struct {
	undef bool
	name  string
	value string
}

type config struct {
	includePaths []string
	macros       []macroOp
	cacheSize    int
}

// loadConfigFile reads an ini file of the form
//
//	[preprocessor]
//	INCLUDE_PATHS = /usr/include;include
//	CACHE_SIZE = 128
//
//	[define]
//	DEBUG = 1
//
//	[undef]
//	NDEBUG =
func (cfg *config) loadConfigFile(path string) error {
	// Include paths are ; separated and macro bodies may hold #.
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}
	sec := f.Section("preprocessor")
	cfg.includePaths = append(cfg.includePaths, cpp.SplitIncludePaths(sec.Key("INCLUDE_PATHS").String())...)
	if sec.HasKey("CACHE_SIZE") {
		size, err := sec.Key("CACHE_SIZE").Int()
		if err != nil || size < 0 {
			return fmt.Errorf("invalid CACHE_SIZE %q in %s", sec.Key("CACHE_SIZE").String(), path)
		}
		cfg.cacheSize = size
	}
	for _, key := range f.Section("define").Keys() {
		cfg.macros = append(cfg.macros, macroOp{name: key.Name(), value: key.Value()})
	}
	for _, key := range f.Section("undef").Keys() {
		cfg.macros = append(cfg.macros, macroOp{undef: true, name: key.Name()})
	}
	return nil
}

// parseDefineFlag splits NAME=VALUE. A bare NAME defines it to 1.
func parseDefineFlag(s string) macroOp {
	name, value, ok := strings.Cut(s, "=")
	if !ok {
		value = "1"
	}
	return macroOp{name: name, value: value}
}

func (cfg *config) addDefines(defines []string) {
	for _, d := range defines {
		cfg.macros = append(cfg.macros, parseDefineFlag(d))
	}
}

func (cfg *config) addUndefs(undefs []string) {
	for _, u := range undefs {
		cfg.macros = append(cfg.macros, macroOp{undef: true, name: u})
	}
}

// parseCPPFlags understands the -I, -D and -U options of a CPPFLAGS style
// string, joined or separate from their argument. Other options are ignored.
func (cfg *config) parseCPPFlags(s string) error {
	args, err := shellquote.Split(s)
	if err != nil {
		return fmt.Errorf("failed to split CPPFLAGS: %w", err)
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if len(arg) < 2 || arg[0] != '-' {
			continue
		}
		opt := arg[:2]
		if opt != "-I" && opt != "-D" && opt != "-U" {
			continue
		}
		val := arg[2:]
		if val == "" {
			if i+1 == len(args) {
				return fmt.Errorf("CPPFLAGS: missing argument to %s", opt)
			}
			i++
			val = args[i]
		}
		switch opt {
		case "-I":
			cfg.includePaths = append(cfg.includePaths, val)
		case "-D":
			cfg.macros = append(cfg.macros, parseDefineFlag(val))
		case "-U":
			cfg.macros = append(cfg.macros, macroOp{undef: true, name: val})
		}
	}
	return nil
}

func (cfg *config) applyMacros(mt *cpp.MacroTable) error {
	for _, op := range cfg.macros {
		var err error
		if op.undef {
			err = mt.UndefName(op.name)
		} else {
			err = mt.DefineString(op.name, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
