package main

import (
	"fmt"
	"os"

	"github.com/javi11/pkgexpand/cmd/pkgexpand/cmd"
	"github.com/javi11/pkgexpand/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pkgexpand: %v\n", err)
		// The core classifies every run-time failure; anything
		// unclassified came from command or flag parsing.
		switch errors.KindOf(err) {
		case errors.KindUsage, errors.KindUnknown:
			os.Exit(2)
		default:
			os.Exit(1)
		}
	}
}
