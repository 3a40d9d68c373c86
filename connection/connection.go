package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/streamplug/errors"
	"github.com/c360/streamplug/message"
)

// State represents the session lifecycle state of a Connection
type State int32

const (
	// StateDisconnected is the initial state; Connect must succeed before
	// any Read, Write, or Process.
	StateDisconnected State = iota
	// StateConnecting means a Connect call is in flight.
	StateConnecting
	// StateConnected means the session is established.
	StateConnected
	// StateClosed is terminal, reached by graceful end-of-input, an
	// exhausted connect budget, or explicit shutdown.
	StateClosed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is the RPC boundary to one plugin instance. Implementations carry
// a single call at a time; the Connection serializes callers. Protocol
// errors surface as Go errors built from the wire Error taxonomy
// (errors.ErrNotConnected, errors.ErrEndOfInput, errors.BackOffError);
// anything else is an opaque failure of the call.
type Client interface {
	// Connect establishes the plugin session.
	Connect(ctx context.Context) error
	// Read pulls the next batch from an input plugin. A zero-length batch
	// is a legal heartbeat.
	Read(ctx context.Context) (message.Batch, error)
	// Write pushes a batch to an output plugin.
	Write(ctx context.Context, batch message.Batch) error
	// Process transforms a batch through a processor plugin.
	Process(ctx context.Context, batch message.Batch) (message.Batch, error)
	// Close tears the session down. Must tolerate repeated calls.
	Close(ctx context.Context) error
}

// Option configures a Connection
type Option func(*Connection)

// WithCallTimeout bounds every Connect/Read/Write/Process call. Zero means
// no deadline beyond the caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Connection) {
		c.callTimeout = d
	}
}

// WithLogger attaches a structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		c.logger = logger
	}
}

// WithPolicy sets the classification policy used for state transitions,
// e.g. treating call timeouts as a lost connection.
func WithPolicy(p errors.Policy) Option {
	return func(c *Connection) {
		c.policy = p
	}
}

// Connection drives the session lifecycle for one plugin instance. All
// methods are safe for concurrent use, but calls are strictly serialized:
// at most one Connect/Read/Write/Process/Close runs at a time.
type Connection struct {
	name   string
	role   errors.Role
	client Client

	callTimeout time.Duration
	logger      *slog.Logger
	policy      errors.Policy

	mu        sync.Mutex // serializes calls against the client
	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error

	errMu   sync.Mutex
	lastErr error
}

// New creates a Connection in the Disconnected state.
func New(name string, role errors.Role, client Client, opts ...Option) *Connection {
	c := &Connection{
		name:   name,
		role:   role,
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the plugin instance name.
func (c *Connection) Name() string {
	return c.name
}

// Role returns the plugin's pipeline role.
func (c *Connection) Role() errors.Role {
	return c.role
}

// State returns the current lifecycle state without blocking on an
// in-flight call.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// LastError returns the most recent call failure, or nil once a call has
// succeeded again. Like State, it never blocks on an in-flight call.
func (c *Connection) LastError() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

// recordOutcome keeps the most recent call failure for health reporting.
func (c *Connection) recordOutcome(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}

func (c *Connection) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout > 0 {
		return context.WithTimeout(ctx, c.callTimeout)
	}
	return context.WithCancel(ctx)
}

// Connect establishes the session. It is a programming error to call it on
// a Connected connection; a Closed connection reports ErrConnectionClosed.
// On failure the connection returns to Disconnected; whether and when to
// retry is the pump's decision.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case StateClosed:
		return errors.WrapInvalid(errors.ErrConnectionClosed, "connection", "Connect", c.name)
	case StateConnected:
		return errors.WrapInvalid(errors.ErrAlreadyConnected, "connection", "Connect", c.name)
	}

	c.state.Store(int32(StateConnecting))
	callCtx, cancel := c.callCtx(ctx)
	err := c.client.Connect(callCtx)
	cancel()
	c.recordOutcome(err)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return err
	}

	c.state.Store(int32(StateConnected))
	c.logger.Debug("plugin session established", "connection", c.name, "role", c.role.String())
	return nil
}

// Read pulls the next batch from an input plugin. Calling Read while
// Disconnected is a programming error; Connect must succeed first.
func (c *Connection) Read(ctx context.Context) (message.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireConnected("Read"); err != nil {
		return nil, err
	}

	callCtx, cancel := c.callCtx(ctx)
	batch, err := c.client.Read(callCtx)
	cancel()
	c.recordOutcome(err)
	c.transition(err, errors.OpRead)
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// Write pushes a batch to an output plugin. Calling Write while
// Disconnected is a programming error.
func (c *Connection) Write(ctx context.Context, batch message.Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireConnected("Write"); err != nil {
		return err
	}

	callCtx, cancel := c.callCtx(ctx)
	err := c.client.Write(callCtx, batch)
	cancel()
	c.recordOutcome(err)
	c.transition(err, errors.OpWrite)
	return err
}

// Process transforms a batch through a processor plugin.
func (c *Connection) Process(ctx context.Context, batch message.Batch) (message.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.requireConnected("Process"); err != nil {
		return nil, err
	}

	callCtx, cancel := c.callCtx(ctx)
	out, err := c.client.Process(callCtx, batch)
	cancel()
	c.recordOutcome(err)
	c.transition(err, errors.OpProcess)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close drives the connection to Closed and tears down the underlying
// session exactly once. It is an explicitly legal no-op on an
// already-Closed connection.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked(ctx)
}

func (c *Connection) closeLocked(ctx context.Context) error {
	c.state.Store(int32(StateClosed))
	c.closeOnce.Do(func() {
		callCtx, cancel := c.callCtx(ctx)
		c.closeErr = c.client.Close(callCtx)
		cancel()
	})
	return c.closeErr
}

func (c *Connection) requireConnected(method string) error {
	switch c.State() {
	case StateConnected:
		return nil
	case StateClosed:
		return errors.WrapInvalid(errors.ErrConnectionClosed, "connection", method, c.name)
	default:
		return errors.WrapInvalid(errors.ErrNotConnectedState, "connection", method, c.name)
	}
}

// transition applies the state change the classified outcome dictates. A
// lost session drops to Disconnected; graceful end of input closes the
// connection; a backoff keeps it Connected for the in-place retry.
func (c *Connection) transition(err error, op errors.Op) {
	if err == nil {
		return
	}
	switch c.policy.Classify(err, c.role, op).Action {
	case errors.ActionReconnect:
		c.state.Store(int32(StateDisconnected))
		c.logger.Debug("plugin session lost", "connection", c.name, "op", op.String())
	case errors.ActionComplete:
		// Graceful close; the underlying session ends with the source.
		_ = c.closeLocked(context.Background())
	}
}
