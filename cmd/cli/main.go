package main

import (
	"os"

	"github.com/consultadmin/consultadmin/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
