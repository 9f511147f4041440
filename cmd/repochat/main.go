package main

import (
	"os"

	"github.com/gomantics/repochat/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	l := logger.NewCLI()
	defer l.Sync() //nolint:errcheck

	if err := rootCmd.Execute(); err != nil {
		l.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}
