package sse

import (
	"fmt"
	"net/http"

	"github.com/debemdeboas/archive-editor/internal/config"
	"github.com/rs/zerolog"
)

// Authorizer decides whether the request may listen to sessionID. The
// returned status is written when err is not nil.
type Authorizer func(r *http.Request, sessionID string) (status int, err error)

// EventsHandler streams the events of the session named by the "session"
// query parameter until the client goes away or the session is closed.
func EventsHandler(clients *SSEClients, authorize Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := zerolog.Ctx(r.Context())

		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			http.Error(w, config.ErrSessionParam, http.StatusBadRequest)
			return
		}
		if authorize != nil {
			if status, err := authorize(r, sessionID); err != nil {
				l.Warn().Err(err).Str("session", sessionID).Msg("SSE subscription refused")
				http.Error(w, http.StatusText(status), status)
				return
			}
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, config.ErrStreamUnsupported, http.StatusInternalServerError)
			return
		}

		w.Header().Set(config.HCType, config.CTypeEventStream)
		w.Header().Set(config.HCacheControl, "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Del("X-Content-Type-Options")

		client := NewClient(sessionID)
		clients.Add(client)
		defer clients.Delete(client)

		fmt.Fprint(w, FormatEvent("connected", sessionID))
		flusher.Flush()
		l.Debug().Str("session", sessionID).Msg("SSE client connected")

		done := r.Context().Done()
		for {
			select {
			case msg, ok := <-client.Msg:
				if !ok {
					l.Debug().Str("session", sessionID).Msg("SSE session closed")
					return
				}
				fmt.Fprint(w, msg)
				flusher.Flush()
			case <-done:
				l.Debug().Str("session", sessionID).Msg("SSE client disconnected")
				return
			}
		}
	}
}
