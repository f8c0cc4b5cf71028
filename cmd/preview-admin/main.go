// Package main provides the preview-admin CLI tool for driving a running
// preview server through its control API.
package main

import (
	"os"

	"github.com/A-kirami/webgal-craft/cmd/preview-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
