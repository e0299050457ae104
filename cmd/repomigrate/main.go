package main

import (
	"os"

	"github.com/hashicorp-forge/repomigrate/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
