package logging

import (
	"context"

	"github.com/tech-arch1tect/chatline/config"
	"go.uber.org/fx"
)

func NewLoggingService(cfg *config.Config) (*Service, error) {
	loggingConfig := Config{
		Level:      LogLevel(cfg.Log.Level),
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	}

	return NewService(loggingConfig)
}

// RegisterSync flushes buffered entries when the app stops.
func RegisterSync(lc fx.Lifecycle, logger *Service) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// stdout cannot be fsynced on most platforms
			_ = logger.Sync()
			return nil
		},
	})
}
