package main

import (
	"os"
)

// MigratorVersionNumber is reported by --version.
const MigratorVersionNumber = "1.0"

func main() {
	os.Exit(Execute(os.Args[1:]))
}
