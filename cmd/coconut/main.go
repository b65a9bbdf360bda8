package main

import (
	"os"

	"github.com/shmookey/coconut/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Errorf("coconut: %v", err)
		os.Exit(1)
	}
}
