package main

import (
	"os"

	"receipts-service/internal/bootstrap"

	"github.com/joho/godotenv"
)

func init() { _ = godotenv.Load() }

func main() {
	root := newRootCmd(deps{
		store:   bootstrap.InitStore,
		backend: bootstrap.InitBackend,
	})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
