// Command scriptrtctl is the administrative CLI for a scriptrt deployment:
// managing standalone function records and project settings, addressed
// directly against the same SQLite-backed stores the server itself uses.
package main

import (
	"fmt"
	"os"

	"github.com/kestrel-labs/scriptrt/cmd/scriptrtctl/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
