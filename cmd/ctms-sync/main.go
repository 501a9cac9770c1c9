// Package main is the entry point of the ctms-sync worker.
package main

import (
	"os"

	"github.com/Guizzs26/ctms-sync/cmd/ctms-sync/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
