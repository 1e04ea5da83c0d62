// Command map-discount-function is the checkout discount function. It reads
// a RunInput document on stdin and writes a FunctionRunResult document to
// stdout. Build it for the host sandbox with GOOS=wasip1 GOARCH=wasm.
package main

import (
	"fmt"
	"os"

	"github.com/mapguard/map-guard/internal/function"
)

func main() {
	if err := function.Run(os.Stdin, os.Stdout); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "map-discount-function: %v\n", err)
		os.Exit(1)
	}
}
