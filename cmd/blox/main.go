package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/zurustar/blox/pkg/app"
	"github.com/zurustar/blox/pkg/vm"
)

func main() {
	application := app.New(os.Stdin, os.Stdout, os.Stderr)
	err := application.Run(os.Args[1:])
	if err != nil && !errors.Is(err, vm.ErrStopped) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(app.ExitCode(err))
}
