package main

import (
	"os"

	polarcmder "github.com/papercomputeco/polar/cmd/polar"
)

func main() {
	cmd := polarcmder.NewPolarCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
