package main

import (
	"fmt"
	"os"

	"github.com/xandr001/qwics/cmd/tpmserver/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
