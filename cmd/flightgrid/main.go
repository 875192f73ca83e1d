package main

import "os"

// Build is set via ldflags at build time
var Build = "unknown"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
