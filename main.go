package main

import (
	"log"

	"github.com/DefiantLabs/warden-explorer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatalf("Failed to execute. Err: %v", err)
	}
}
