package main

import (
	"os"

	"github.com/inkwisp/mediadrop/cmd"
	"github.com/inkwisp/mediadrop/internal/logutil"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logutil.Errorf("%v", err)
		os.Exit(1)
	}
}
