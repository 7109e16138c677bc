// Command zbrowser drives a headless browser pool from the command line.
package main

import (
	"os"

	"github.com/JakeFAU/zbrowser/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
