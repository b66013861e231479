// pinctl administers a pinboard deployment: schema migration, profile seeding, feed inspection and session
// tokens for testing.
package main

import (
	"fmt"
	"os"

	"wuyrush.io/pinboard/common/logging"
	"wuyrush.io/pinboard/config"
)

func main() {
	config.Setup()
	logging.SetupLog("pinctl")
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
