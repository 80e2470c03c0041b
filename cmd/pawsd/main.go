package main

import (
	"os"

	"github.com/HackAi2025-Paws/paws-wpp-sub000/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
