package handlers

import (
	"log/slog"

	"github.com/mirbot/mirbot/internal/config"
	"github.com/mirbot/mirbot/internal/database"
	"github.com/mirbot/mirbot/internal/pipeline"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger   *slog.Logger
	Config   *config.Config
	Store    database.Store
	Pipeline *pipeline.Pipeline
}
