// Package sse provides Server-Sent Events client management for real-time communication.
package sse

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var sseLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	sseLogger = l
}

// ClientBuffer is the number of frames a slow client may fall behind
// before further frames are dropped.
const ClientBuffer = 64

type Client struct {
	Msg       chan string
	SessionID string
}

func NewClient(sessionID string) *Client {
	return &Client{
		Msg:       make(chan string, ClientBuffer),
		SessionID: sessionID,
	}
}

type SSEClients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewSSEClients() *SSEClients {
	return &SSEClients{
		clients: make(map[*Client]bool),
	}
}

func (s *SSEClients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *SSEClients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clients[client] {
		return
	}
	delete(s.clients, client)
	close(client.Msg)
}

// Broadcast queues msg for every client of sessionID. It never blocks; a
// client with a full buffer misses the frame.
func (s *SSEClients) Broadcast(sessionID string, msg string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if client.SessionID != sessionID {
			continue
		}
		select {
		case client.Msg <- msg:
		default:
			sseLogger.Warn().Str("session", sessionID).Msg("SSE client buffer full, dropping event")
		}
	}
}

// Count returns the number of clients listening to sessionID.
func (s *SSEClients) Count(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for client := range s.clients {
		if client.SessionID == sessionID {
			n++
		}
	}
	return n
}

// CloseSession disconnects every client of sessionID.
func (s *SSEClients) CloseSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for client := range s.clients {
		if client.SessionID == sessionID {
			delete(s.clients, client)
			close(client.Msg)
		}
	}
}

// FormatEvent renders one SSE frame. Multi-line data is split over several
// data fields.
func FormatEvent(event string, data string) string {
	var b strings.Builder
	if event != "" {
		fmt.Fprintf(&b, "event: %s\n", event)
	}
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")
	return b.String()
}
