package token

import "github.com/tech-arch1tect/chatline/services/logging"

func NewAuthority(logger *logging.Service) *Authority {
	return New(nil, logger.Named("token"))
}
