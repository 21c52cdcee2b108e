package main

import (
	"os"

	"github.com/stockmonitor/monthend/cmd/monthend/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
