// Command ncdav-sync is a bidirectional file synchronizer between local
// directory trees and a Nextcloud WebDAV server.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
