package realtime

import (
	"github.com/tech-arch1tect/chatline/protocol"
	"go.uber.org/zap"
)

func (m *Manager) dispatch(data []byte) {
	msg, err := protocol.DecodeServerMessage(data)
	if err != nil {
		m.logger.Warn("dropping malformed frame", zap.Error(err), zap.Int("size", len(data)))
		return
	}

	switch msg := msg.(type) {
	case protocol.Pong:
		return
	case protocol.Error:
		m.logger.Warn("server reported error",
			zap.String("message", msg.Message),
			zap.String("original_action", string(msg.OriginalAction)))
		if msg.OriginalAction == protocol.ActionJoinRoom {
			m.navigator.Navigate(m.cfg.DefaultRoute)
		}
	case protocol.Unhandled:
		m.logger.Warn("unhandled realtime action", zap.String("action", string(msg.Name)))
	}

	m.publish(msg)
}
