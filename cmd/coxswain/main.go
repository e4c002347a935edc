package main

import (
	"fmt"
	"os"

	"github.com/coxswain-dev/coxswain/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "coxswain:", err)
		os.Exit(1)
	}
}
