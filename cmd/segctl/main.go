package main

import (
	"os"

	"github.com/alalapi-0/onepass-audioclean-seg/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
