package main

import (
	"os"

	"github.com/Neol00/ClockSpeeds/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
