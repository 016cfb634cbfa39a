package messages

import (
	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/services/cache"
	"github.com/tech-arch1tect/chatline/services/gateway"
	"github.com/tech-arch1tect/chatline/services/logging"
)

func NewLoader(cfg *config.Config, api *gateway.Client, c *cache.Cache, logger *logging.Service) *Loader {
	return New(cfg, api, c, logger.Named("messages"))
}
