package main

import (
	"fmt"
	"os"

	"github.com/conneroisu/unify/cmd"
	"github.com/conneroisu/unify/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(errors.ExitCode(err))
	}
}
