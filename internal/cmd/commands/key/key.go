package key

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/repomigrate/internal/cmd/base"
	"github.com/hashicorp-forge/repomigrate/pkg/keycodec"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Encode and decode repository key tokens"
}

func (c *Command) Help() string {
	return `Usage: repomigrate key <subcommand> [options] [args]

  This command groups subcommands for working with the 13-symbol key tokens
  used in repository edit locations.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}

type EncodeCommand struct {
	*base.Command

	flagPrefix string
}

func (c *EncodeCommand) Synopsis() string {
	return "Encode a 64-bit identifier as a key token"
}

func (c *EncodeCommand) Help() string {
	return `Usage: repomigrate key encode [options] <number>` + c.Flags().Help()
}

func (c *EncodeCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("key encode", flag.ContinueOnError))
	f.StringVar(&c.flagPrefix, "prefix", "e", "Token prefix")
	return f
}

func (c *EncodeCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		c.UI.Error("expected exactly one number")
		return 1
	}

	n, err := strconv.ParseUint(f.Arg(0), 10, 64)
	if err != nil {
		c.UI.Error(fmt.Sprintf("invalid number %q: %v", f.Arg(0), err))
		return 1
	}
	c.UI.Output(keycodec.Encode(c.flagPrefix, n))
	return 0
}

type DecodeCommand struct {
	*base.Command

	flagPrefix string
}

func (c *DecodeCommand) Synopsis() string {
	return "Decode a key token into its 64-bit identifier"
}

func (c *DecodeCommand) Help() string {
	return `Usage: repomigrate key decode [options] <token>` + c.Flags().Help()
}

func (c *DecodeCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("key decode", flag.ContinueOnError))
	f.StringVar(&c.flagPrefix, "prefix", "e", "Token prefix")
	return f
}

func (c *DecodeCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if f.NArg() != 1 {
		c.UI.Error("expected exactly one token")
		return 1
	}

	n, err := keycodec.Decode(c.flagPrefix, f.Arg(0))
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	c.UI.Output(strconv.FormatUint(n, 10))
	return 0
}
