// Command flowagent is the field data-collection agent: it keeps a
// local store of submissions, exports and uploads finished ones,
// installs content bundles, and pulls remote records for monitored
// groups.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
