package broker

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-chat/parley/pkg/protocol"
)

// Conn is the transport a session owns. *websocket.Conn satisfies it; tests
// use in-memory fakes.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// inboundFrame is one read-pump result: either a frame or a terminal error
type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// Session bridges exactly one live transport to the broker. Its loop merges
// three sources (inbound transport frames, broker-pushed commands, and the
// credential watchdog) and reacts to whichever is ready first. All session
// state is mutated only inside this loop.
type Session struct {
	id            SessionID
	userID        int64
	token         string
	validator     TokenValidator
	ingress       chan<- Command
	outbound      chan SessionCommand
	conn          Conn
	checkInterval time.Duration
}

// ID returns the session's ephemeral identifier
func (s *Session) ID() SessionID {
	return s.id
}

// UserID returns the account that owns this session
func (s *Session) UserID() int64 {
	return s.userID
}

// Run registers the session with the broker and drives the event loop until
// the transport closes, the broker force-closes the session, or the token
// expires. It blocks; callers run it on its own goroutine.
func (s *Session) Run() {
	quit := make(chan struct{})
	defer close(quit)
	defer s.conn.Close()

	frames := make(chan inboundFrame)
	go s.readPump(frames, quit)

	expired := make(chan struct{}, 1)
	go s.watchdog(expired, quit)

	s.ingress <- Connect{SessionID: s.id, UserID: s.userID, Outbound: s.outbound}

	for {
		select {
		case fr := <-frames:
			if fr.err != nil {
				if websocket.IsCloseError(fr.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					debugLog.Printf("Session %s: client closed connection", s.id)
				} else {
					errorLog.Printf("Session %s: transport error: %v", s.id, fr.err)
				}
				s.ingress <- Disconnect{SessionID: s.id}
				return
			}
			s.handleFrame(fr)

		case cmd, ok := <-s.outbound:
			if !ok {
				// Broker dropped the handle; it already knows
				return
			}
			switch c := cmd.(type) {
			case Deliver:
				if !s.writeNotification(c.Notification) {
					s.ingress <- Disconnect{SessionID: s.id}
					return
				}
			case ForceClose:
				return
			}

		case <-expired:
			debugLog.Printf("Session %s: token expired, closing", s.id)
			s.ingress <- Disconnect{SessionID: s.id}
			return
		}
	}
}

// handleFrame validates one inbound frame and forwards it to the broker.
// Invalid payloads are dropped; the connection stays open.
func (s *Session) handleFrame(fr inboundFrame) {
	if fr.messageType != websocket.TextMessage {
		return
	}
	if _, err := protocol.DecodeRequest(fr.data); err != nil {
		debugLog.Printf("Session %s: dropping invalid frame: %v", s.id, err)
		return
	}
	s.ingress <- ClientFrame{SessionID: s.id, Payload: fr.data}
}

// writeNotification encodes and writes one notification. A false return
// means the transport is dead.
func (s *Session) writeNotification(n protocol.Notification) bool {
	data, err := protocol.EncodeNotification(n)
	if err != nil {
		errorLog.Printf("Session %s: failed to encode %s: %v", s.id, n.Discriminator(), err)
		return true
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		errorLog.Printf("Session %s: write failed: %v", s.id, err)
		return false
	}
	return true
}

// readPump reads transport frames onto the frames channel until the
// transport errors or the session loop quits
func (s *Session) readPump(frames chan<- inboundFrame, quit <-chan struct{}) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		select {
		case frames <- inboundFrame{messageType: messageType, data: data, err: err}:
		case <-quit:
			return
		}
		if err != nil {
			return
		}
	}
}

// watchdog re-validates the held token on a fixed interval. It signals the
// session exactly once on the first failed check, then stops. This is the
// only expiry mechanism; there is no idle timeout.
func (s *Session) watchdog(expired chan<- struct{}, quit <-chan struct{}) {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			if _, err := s.validator.Validate(s.token); err != nil {
				select {
				case expired <- struct{}{}:
				default:
				}
				return
			}
		}
	}
}
