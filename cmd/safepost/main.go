package main

import (
	"os"

	"github.com/Aafreen2203/SafePostAI/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
