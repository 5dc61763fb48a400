// quill runs, tests and inspects reactive view scenarios. Build:
//
//	go build -o quill ./cmd/quill
//
// Usage:
//
//	quill run ./testdata/scenarios/counter.yaml --db ./quill.db
//	quill trace --db ./quill.db
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/quill/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()

	// Commands report their own ExitErrors. Anything else came from cobra
	// itself (unknown command, bad or missing flag).
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(cli.GetExitCode(err))
}
