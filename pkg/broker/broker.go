package broker

import (
	"time"

	"github.com/parley-chat/parley/pkg/database"
	"github.com/parley-chat/parley/pkg/protocol"
)

const (
	// DefaultQueueSize bounds each session's outbound queue. A session that
	// stops draining its queue is evicted rather than allowed to stall
	// fan-out to other sessions.
	DefaultQueueSize = 256

	// DefaultIngressSize buffers the broker's inbound command channel
	DefaultIngressSize = 1024
)

// handle is the broker's view of one live session. Owned exclusively by the
// broker loop; sessions never touch the registry.
type handle struct {
	userID   int64
	outbound chan SessionCommand
}

// push attempts a non-blocking send. A false return means the session has
// stopped draining its queue.
func (h *handle) push(cmd SessionCommand) bool {
	select {
	case h.outbound <- cmd:
		return true
	default:
		return false
	}
}

// Broker is the single owner of the live-session registry. All registry
// mutations and routing decisions funnel through one command channel consumed
// by one loop, so commands are totally ordered and the map needs no locks.
type Broker struct {
	store     Store
	commands  chan Command
	registry  map[SessionID]*handle
	queueSize int
	metrics   *Metrics
	quit      chan struct{}
	done      chan struct{}
}

// Option configures a Broker
type Option func(*Broker)

// WithQueueSize overrides the per-session outbound queue bound
func WithQueueSize(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithMetrics attaches prometheus metrics
func WithMetrics(m *Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

// New creates a broker. Call Run to start the control loop.
func New(store Store, opts ...Option) *Broker {
	b := &Broker{
		store:     store,
		commands:  make(chan Command, DefaultIngressSize),
		registry:  make(map[SessionID]*handle),
		queueSize: DefaultQueueSize,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Commands returns the broker's ingress channel. Sessions enqueue commands
// here; only the broker loop consumes them.
func (b *Broker) Commands() chan<- Command {
	return b.commands
}

// Run consumes commands until Stop is called. Every handler converts its own
// failure into a logged, non-propagating outcome; a bad command never stops
// the loop.
func (b *Broker) Run() {
	defer close(b.done)
	for {
		select {
		case cmd := <-b.commands:
			b.dispatch(cmd)
		case <-b.quit:
			b.closeAll()
			return
		}
	}
}

// Stop shuts the loop down, force-closing every registered session, and
// waits for the loop to exit.
func (b *Broker) Stop() {
	close(b.quit)
	<-b.done
}

func (b *Broker) dispatch(cmd Command) {
	switch c := cmd.(type) {
	case Connect:
		b.handleConnect(c)
	case ClientFrame:
		b.handleClientFrame(c)
	case Disconnect:
		b.handleDisconnect(c)
	}
}

// handleConnect registers a session handle. A duplicate SessionID should not
// normally happen; the old handle is force-closed before being replaced.
func (b *Broker) handleConnect(c Connect) {
	if prev, ok := b.registry[c.SessionID]; ok {
		prev.push(ForceClose{})
		close(prev.outbound)
	}
	b.registry[c.SessionID] = &handle{userID: c.UserID, outbound: c.Outbound}

	debugLog.Printf("Session %s connected (user %d, %d sessions total)", c.SessionID, c.UserID, len(b.registry))
	if b.metrics != nil {
		b.metrics.RecordSessionConnected(len(b.registry))
	}
}

// handleDisconnect removes a session and sends it an idempotent shutdown
// signal. Safe to invoke on an already-removed handle.
func (b *Broker) handleDisconnect(c Disconnect) {
	h, ok := b.registry[c.SessionID]
	if !ok {
		return
	}
	delete(b.registry, c.SessionID)
	h.push(ForceClose{})
	close(h.outbound)

	debugLog.Printf("Session %s disconnected (%d sessions total)", c.SessionID, len(b.registry))
	if b.metrics != nil {
		b.metrics.RecordSessionDisconnected(len(b.registry))
	}
}

// handleClientFrame decodes and dispatches one inbound frame. A frame for an
// unknown SessionID is discarded: the connection was already evicted and this
// is just a race between disconnect and an in-flight frame, not an error.
func (b *Broker) handleClientFrame(c ClientFrame) {
	h, ok := b.registry[c.SessionID]
	if !ok {
		return
	}

	req, err := protocol.DecodeRequest(c.Payload)
	if err != nil {
		debugLog.Printf("Session %s: dropping undecodable frame: %v", c.SessionID, err)
		return
	}
	if b.metrics != nil {
		b.metrics.RecordFrameReceived(req.Discriminator())
	}

	switch r := req.(type) {
	case *protocol.SendMessage:
		b.handleSendMessage(c.SessionID, h.userID, r)
	case *protocol.SendGroupMessage:
		b.handleSendGroupMessage(h.userID, r)
	case *protocol.ReadDirectMessage:
		b.handleReadDirectMessage(h.userID, r)
	case *protocol.ReadGroupMessage:
		b.handleReadGroupMessage(h.userID, r)
	case *protocol.DeleteDirectMessage:
		b.handleDeleteDirectMessage(h.userID, r)
	case *protocol.DeleteGroupMessage:
		b.handleDeleteGroupMessage(h.userID, r)
	case *protocol.EditDirectMessage:
		b.handleEditDirectMessage(h.userID, r)
	case *protocol.EditGroupMessage:
		b.handleEditGroupMessage(h.userID, r)
	}
}

// closeAll force-closes every registered session
func (b *Broker) closeAll() {
	for id, h := range b.registry {
		h.push(ForceClose{})
		close(h.outbound)
		delete(b.registry, id)
	}
	if b.metrics != nil {
		b.metrics.RecordActiveSessions(0)
	}
}

// deliverToUser fans a notification out to every session the user owns.
// Sessions with a full queue are slow consumers: they are evicted instead of
// blocking delivery to everyone else. Returns the number of deliveries.
func (b *Broker) deliverToUser(userID int64, n protocol.Notification) int {
	var stalled []SessionID
	delivered := 0
	for id, h := range b.registry {
		if h.userID != userID {
			continue
		}
		if h.push(Deliver{Notification: n}) {
			delivered++
		} else {
			stalled = append(stalled, id)
		}
	}
	for _, id := range stalled {
		errorLog.Printf("Session %s: outbound queue full, evicting slow consumer", id)
		b.evict(id)
		if b.metrics != nil {
			b.metrics.RecordSlowConsumerEviction()
		}
	}
	if b.metrics != nil && delivered > 0 {
		b.metrics.RecordNotificationsSent(n.Discriminator(), delivered)
	}
	return delivered
}

// deliverToSession sends a notification to one specific session. Used for
// error notifications that should only reach the originating connection.
func (b *Broker) deliverToSession(id SessionID, n protocol.Notification) {
	h, ok := b.registry[id]
	if !ok {
		return
	}
	if !h.push(Deliver{Notification: n}) {
		errorLog.Printf("Session %s: outbound queue full, evicting slow consumer", id)
		b.evict(id)
		if b.metrics != nil {
			b.metrics.RecordSlowConsumerEviction()
		}
		return
	}
	if b.metrics != nil {
		b.metrics.RecordNotificationsSent(n.Discriminator(), 1)
	}
}

// evict removes a session and closes its queue. Idempotent.
func (b *Broker) evict(id SessionID) {
	h, ok := b.registry[id]
	if !ok {
		return
	}
	delete(b.registry, id)
	h.push(ForceClose{})
	close(h.outbound)
	if b.metrics != nil {
		b.metrics.RecordSessionDisconnected(len(b.registry))
	}
}

// decodeAttachments converts wire attachments into store inputs. An
// attachment that fails to decode is skipped, not fatal to the message.
func decodeAttachments(attachments []protocol.Attachment) []database.NewAttachment {
	out := make([]database.NewAttachment, 0, len(attachments))
	for _, a := range attachments {
		content, err := a.Content()
		if err != nil {
			errorLog.Printf("Skipping attachment: %v", err)
			continue
		}
		out = append(out, database.NewAttachment{Name: a.Name, Content: content})
	}
	return out
}

func formatSentAt(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
