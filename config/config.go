// Package config reads the loader's runtime switches from the environment.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/wnxd/microld/reloc"
	"github.com/xyproto/env/v2"
)

type Config struct {
	// BindNow disables lazy binding of jump slots.
	BindNow  bool
	Debug    reloc.Debug
	Progname string
}

// FromEnv reads LD_BIND_NOW, LD_DEBUG and LD_PROGNAME from a fresh
// snapshot of the environment. Any non-empty LD_BIND_NOW turns lazy
// binding off.
func FromEnv() Config {
	env.Load()
	return Config{
		BindNow:  env.Str("LD_BIND_NOW") != "",
		Debug:    ParseDebug(env.Str("LD_DEBUG")),
		Progname: env.Str("LD_PROGNAME", filepath.Base(os.Args[0])),
	}
}

// ParseDebug reads a comma or space separated list of debug categories.
// "all" turns every category on; unknown names are ignored.
func ParseDebug(s string) (debug reloc.Debug) {
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == ':' }) {
		switch strings.ToLower(name) {
		case "all":
			debug = reloc.Debug{Reloc: true, Bindings: true, Detail: true, NoFixups: debug.NoFixups}
		case "reloc":
			debug.Reloc = true
		case "bindings":
			debug.Bindings = true
		case "detail":
			debug.Detail = true
		case "nofixups":
			debug.NoFixups = true
		}
	}
	return
}

// Options builds engine options logging to stderr under the program name.
func (c Config) Options() reloc.Options {
	prefix := ""
	if c.Progname != "" {
		prefix = c.Progname + ": "
	}
	return reloc.Options{
		Logger: log.New(os.Stderr, prefix, 0),
		Debug:  c.Debug,
	}
}
