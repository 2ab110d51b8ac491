package sse

import (
	"encoding/json"

	"github.com/debemdeboas/archive-editor/internal/session"
)

// SessionSink publishes session events as JSON frames to the clients of
// one session.
type SessionSink struct {
	clients   *SSEClients
	sessionID string
}

func (s *SSEClients) Sink(sessionID string) *SessionSink {
	return &SessionSink{clients: s, sessionID: sessionID}
}

func (k *SessionSink) Publish(e session.Event) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		sseLogger.Error().Err(err).Str("event", e.Name).Msg("Error encoding event")
		return
	}
	k.clients.Broadcast(k.sessionID, FormatEvent(e.Name, string(data)))
}
