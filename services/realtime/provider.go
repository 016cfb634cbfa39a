package realtime

import (
	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/navigation"
	"github.com/tech-arch1tect/chatline/services/gateway"
	"github.com/tech-arch1tect/chatline/services/logging"
)

func NewManager(cfg *config.Config, tokens *gateway.Client, navigator navigation.Navigator, logger *logging.Service) *Manager {
	return New(cfg, tokens, navigator, logger.Named("realtime"))
}
