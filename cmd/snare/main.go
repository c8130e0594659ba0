package main

import (
	"os"

	"github.com/tillberg/autorestart"

	"github.com/soyeahso/snare/internal/cli"
)

func main() {
	go autorestart.RestartOnChange()
	if err := cli.Execute(); err != nil {
		os.Stderr.WriteString("error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
