package main

import (
	"os"

	"github.com/harun/quill/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
