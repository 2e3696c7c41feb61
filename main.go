package main

import (
	"fmt"
	"os"

	"github.com/spgill/sbackup/cmd"
	apperrors "github.com/spgill/sbackup/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		// Pass-through engine failures keep the engine's exit code.
		os.Exit(apperrors.ExitCode(err, 1))
	}
}
