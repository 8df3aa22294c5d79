// Package main is the speechstream command line client.
//
// Usage:
//
//	speechstream [flags] <command> [args]
//
// Commands:
//
//	stream   - Stream microphone or file audio and print the transcript
//	config   - Show the resolved configuration
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"speechstream/cmd/speechstream/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
