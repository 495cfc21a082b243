// Package main provides the entry point for the docindex CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/docindex/cmd/docindex/cmd"
	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, docerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
