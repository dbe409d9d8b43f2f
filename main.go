package main

import (
	"os"

	"github.com/vquang/leaflib/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
