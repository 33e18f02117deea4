// Command bizstore is the command-line front end of the bizstore data layer.
package main

import (
	"os"

	"github.com/kilupskalvis/bizstore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
