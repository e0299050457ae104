// Package base holds what every repomigrate subcommand shares.
package base

import (
	"bytes"
	"flag"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
)

// Command is embedded by every subcommand.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui
}

// NewCommand returns a base command.
func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	return &Command{Log: log, UI: ui}
}

// FlagSet wraps flag.FlagSet with help output and a record of which flags
// were set explicitly.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet wraps f.
func NewFlagSet(f *flag.FlagSet) *FlagSet {
	return &FlagSet{FlagSet: f}
}

// Help renders the flag defaults as an "Options" section.
func (f *FlagSet) Help() string {
	var buf bytes.Buffer
	out := f.Output()
	f.SetOutput(&buf)
	f.PrintDefaults()
	f.SetOutput(out)

	if buf.Len() == 0 {
		return ""
	}
	return "\n\nOptions:\n\n" + strings.TrimRight(buf.String(), "\n")
}

// IsSet reports whether the named flag was given on the command line.
func (f *FlagSet) IsSet(name string) bool {
	set := false
	f.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}
