package main

import (
	"os"

	"github.com/nocturnelabs/coderag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
