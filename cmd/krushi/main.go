// Package main provides the entry point for the krushi CLI.
package main

import (
	"github.com/sahajakrushi/krushi-cli/internal/cli"
)

func main() {
	cli.Execute()
}
