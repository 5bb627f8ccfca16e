package broker

import "time"

// DefaultCheckInterval is how often each session's watchdog re-validates the
// held token
const DefaultCheckInterval = time.Second

// Factory constructs sessions wired to the broker's inbound channel. Pure
// construction, no I/O.
type Factory struct {
	ingress       chan<- Command
	validator     TokenValidator
	queueSize     int
	checkInterval time.Duration
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithSessionQueueSize overrides the outbound queue bound for new sessions.
// It should match the broker's queue size.
func WithSessionQueueSize(n int) FactoryOption {
	return func(f *Factory) {
		if n > 0 {
			f.queueSize = n
		}
	}
}

// WithCheckInterval overrides the watchdog interval for new sessions
func WithCheckInterval(d time.Duration) FactoryOption {
	return func(f *Factory) {
		if d > 0 {
			f.checkInterval = d
		}
	}
}

// NewFactory creates a session factory feeding the given broker
func NewFactory(b *Broker, validator TokenValidator, opts ...FactoryOption) *Factory {
	f := &Factory{
		ingress:       b.Commands(),
		validator:     validator,
		queueSize:     b.queueSize,
		checkInterval: DefaultCheckInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateSession builds a session for an admitted connection. The caller has
// already validated the token; the session keeps it for periodic re-checks.
func (f *Factory) CreateSession(token string, userID int64, conn Conn) *Session {
	return &Session{
		id:            NewSessionID(),
		userID:        userID,
		token:         token,
		validator:     f.validator,
		ingress:       f.ingress,
		outbound:      make(chan SessionCommand, f.queueSize),
		conn:          conn,
		checkInterval: f.checkInterval,
	}
}
