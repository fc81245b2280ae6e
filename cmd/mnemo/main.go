package main

import (
	"fmt"
	"os"

	"github.com/ramdhan/mnemo/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mnemo: %v\n", err)
		if hint := cli.HintFor(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(cli.ExitCodeFor(err))
	}
}
