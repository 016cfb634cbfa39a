package gateway

import (
	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/services/logging"
	"github.com/tech-arch1tect/chatline/services/token"
)

func NewGateway(cfg *config.Config, tokens *token.Authority, logger *logging.Service) *Client {
	return New(cfg, tokens, logger.Named("gateway"))
}
