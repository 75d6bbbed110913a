// Command formframe overlays workout analysis onto a video and records the result.
package main

import (
	"fmt"
	"os"
)

func main() {
	app := NewApplication(os.Stdout, os.Stderr)
	if err := app.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "formframe: %v\n", err)
		os.Exit(1)
	}
}
