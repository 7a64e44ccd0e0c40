// Command doly-monitor follows a running dolyd: it prints the event
// stream and queries the dashboard API.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
