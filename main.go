package main

import (
	"os"

	"github.com/rendezchat/rendez/cli/app"
)

func main() {
	ctl := app.New()
	if err := ctl.Run(os.Args); err != nil {
		os.Exit(1)
	}
}
