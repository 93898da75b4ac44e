package relay

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionState tracks a connection's lifecycle.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// greetingText is sent once on connect, before any client input. It is
// client-visible only and never stored in the transcript.
const greetingText = "Hi! I'm your AI tutor. How can I help you today?"

// Session processes one client connection: it relays each inbound message
// through the gateway and keeps the transcript consistent. At most one round is
// in flight per connection at any time.
type Session struct {
	connID  string
	conn    *websocket.Conn
	store   *TranscriptStore
	gateway CompletionGateway

	mu    sync.Mutex
	state SessionState
}

func NewSession(connID string, conn *websocket.Conn, store *TranscriptStore, gateway CompletionGateway) *Session {
	return &Session{
		connID:  connID,
		conn:    conn,
		store:   store,
		gateway: gateway,
		state:   StateConnecting,
	}
}

// Run drives the session until the connection closes or a fatal transport error
// occurs. It always tears the session down on return; per-connection failures
// never escape to the server.
//
// Frames are pumped from the socket by a separate goroutine and processed here
// one at a time, so turns stay strictly serialized per connection: a message
// sent before the previous round's reply sits in the channel (or the socket
// buffer) until that round completes. The pump also notices a disconnect while
// a completion is in flight and closes the session so the eventual reply is
// discarded.
func (s *Session) Run(ctx context.Context) {
	defer s.close()

	if err := s.activate(); err != nil {
		log.Error().Err(err).Str("conn_id", s.connID).Msg("session activation failed")
		return
	}

	frames := make(chan []byte)
	go s.readPump(frames)

	for data := range frames {
		msg, err := decodeClientMessage(data)
		if err != nil {
			log.Warn().Err(err).Str("conn_id", s.connID).Msg("malformed client message")
			s.write(errorFrame(err.Error()))
			continue
		}
		s.processTurn(ctx, msg.Text)
	}
}

// readPump forwards inbound text frames until the socket dies, then closes the
// session immediately so in-flight rounds are discarded rather than delivered
// to a gone client.
func (s *Session) readPump(frames chan<- []byte) {
	defer close(frames)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("conn_id", s.connID).Msg("read pump ended")
			s.close()
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		frames <- data
	}
}

// activate creates the transcript and sends the greeting, moving the session
// from connecting to active.
func (s *Session) activate() error {
	if err := s.store.Create(s.connID); err != nil {
		return errors.Wrap(err, "create transcript")
	}
	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()
	s.write(responseFrame(greetingText))
	log.Info().Str("conn_id", s.connID).Msg("session active")
	return nil
}

// processTurn runs one round: append the user turn, fetch a completion for the
// full transcript, append the assistant turn unless the reply is degraded, and
// answer the client. A store miss means the session lifecycle is broken, so the
// round is aborted rather than papered over with a fresh transcript.
func (s *Session) processTurn(ctx context.Context, text string) {
	if err := s.store.Append(s.connID, Turn{Role: RoleUser, Content: text}); err != nil {
		s.logRoundAbort(err, "append user turn failed")
		return
	}
	turns, err := s.store.Get(s.connID)
	if err != nil {
		s.logRoundAbort(err, "transcript lookup failed")
		return
	}

	completion := s.gateway.Reply(ctx, turns)

	if s.State() == StateClosed {
		// The client went away while the completion was in flight; the
		// transcript is gone and the reply has nowhere to go.
		log.Debug().Str("conn_id", s.connID).Msg("discarding completion for closed session")
		return
	}
	if !completion.Degraded {
		if err := s.store.Append(s.connID, Turn{Role: RoleAssistant, Content: completion.Text}); err != nil {
			s.logRoundAbort(err, "append assistant turn failed")
			return
		}
	}
	s.write(responseFrame(completion.Text))
}

// logRoundAbort distinguishes a transcript lost to a concurrent disconnect
// (normal, debug) from a store miss on a live session, which is a lifecycle bug.
func (s *Session) logRoundAbort(err error, msg string) {
	if s.State() == StateClosed {
		log.Debug().Err(err).Str("conn_id", s.connID).Msg(msg + ", session closed")
		return
	}
	log.Error().Err(err).Str("conn_id", s.connID).Msg(msg + ", aborting round")
}

// write sends a frame unless the session is already closed. Write failures are
// logged and otherwise ignored; the read loop notices the dead connection.
func (s *Session) write(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		log.Warn().Err(err).Str("conn_id", s.connID).Msg("ws write failed")
	}
}

// close transitions to the terminal state and deletes the transcript exactly once.
func (s *Session) close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.store.Delete(s.connID)
	_ = s.conn.Close()
	log.Info().Str("conn_id", s.connID).Msg("session closed")
}

// State reports the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
