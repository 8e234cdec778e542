package main

import (
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
