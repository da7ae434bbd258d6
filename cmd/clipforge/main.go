// Command clipforge generates videos from the terminal.
package main

import (
	"os"

	"clipforge/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
