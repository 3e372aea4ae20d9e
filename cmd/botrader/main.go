package main

import (
	"os"

	"botrader/cmd/botrader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
