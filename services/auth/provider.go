package auth

import (
	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/navigation"
	"github.com/tech-arch1tect/chatline/services/gateway"
	"github.com/tech-arch1tect/chatline/services/logging"
	"github.com/tech-arch1tect/chatline/services/realtime"
	"github.com/tech-arch1tect/chatline/services/token"
)

func ProvideAuthService(cfg *config.Config, api *gateway.Client, tokens *token.Authority, session *realtime.Manager, navigator navigation.Navigator, logger *logging.Service) *Service {
	return NewService(cfg, api, tokens, session, navigator, logger.Named("auth"))
}

// RegisterForcedLogout routes the gateway's unrecoverable refresh failures
// into the auth teardown.
func RegisterForcedLogout(api *gateway.Client, svc *Service) {
	api.OnForcedLogout(svc.ForceLogout)
}
