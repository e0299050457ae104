package version

import (
	"github.com/hashicorp-forge/repomigrate/internal/cmd/base"
	"github.com/hashicorp-forge/repomigrate/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the repomigrate version"
}

func (c *Command) Help() string {
	return "Usage: repomigrate version"
}

func (c *Command) Run(args []string) int {
	c.UI.Output("repomigrate " + version.Version)
	return 0
}
