package main

import (
	"github.com/septivank/mcp-client-registry/internal/config"
	"github.com/septivank/mcp-client-registry/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
