package main

import (
	"fmt"
	"os"
)

// Version is the release version, set at build time with -ldflags
var Version = "0.1.0"

func main() {
	if err := newCLIApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
