package emaprotocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Peer is the address of the motion controller. A zero Host or Port means
// the field is not set.
type Peer struct {
	Host string
	Port int
}

// Complete reports whether both host and port are set.
func (p Peer) Complete() bool {
	return p.Host != "" && p.Port > 0
}

// Address returns the peer as a "host:port" dial address.
func (p Peer) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// String implements fmt.Stringer.
func (p Peer) String() string {
	return p.Address()
}

// PeerResolver supplies the peer address when the client was created
// without one, typically from the configuration file.
type PeerResolver interface {
	ResolvePeer() (Peer, error)
}

// Dialer opens the stream to the controller. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Observer is notified after each exchange.
type Observer interface {
	ObserveExchange(command string, elapsed time.Duration, err error)
}

// Client is the transport to the motion controller.
//
// The controller expects a fresh TCP stream per command, so every exchange
// connects, writes one frame, reads one reply and disconnects. Exchanges are
// serialised: the framing relies on replies arriving in the order the
// commands were written.
type Client struct {
	// exchangeMu is held for the duration of one request/response exchange.
	exchangeMu sync.Mutex

	// mu protects the fields below.
	mu    sync.Mutex
	peer  Peer
	conn  net.Conn
	stale bool

	resolver PeerResolver
	dialer   Dialer
	timeout  time.Duration
	logger   logrus.FieldLogger
	observer Observer
}

// Option configures a Client.
type Option func(*Client)

// WithResolver sets the source of the peer address used when the peer
// passed to NewClient is incomplete.
func WithResolver(r PeerResolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithTimeout sets the default exchange timeout used by Send.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger sets the logger. Frames are logged at debug level.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers an exchange observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a client for the given peer. No connection is opened
// until the first exchange.
func NewClient(peer Peer, opts ...Option) *Client {
	c := &Client{
		peer:    peer,
		dialer:  &net.Dialer{},
		timeout: DefaultTimeout,
		logger:  discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Peer returns the current peer address.
func (c *Client) Peer() Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Timeout returns the default exchange timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// IsConnected returns true if the client currently holds a live connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.stale
}

// Connect opens the stream to the controller. It is a no-op while a live
// connection is held; a connection that failed an I/O operation is replaced.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.connectLocked(ctx)
	return err
}

func (c *Client) connectLocked(ctx context.Context) (net.Conn, error) {
	if c.conn != nil && !c.stale {
		c.logger.WithField("peer", c.peer.String()).Debug("socket already connected")
		return c.conn, nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	peer, err := c.resolvePeerLocked()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, ConnectionTimeout)
	defer cancel()
	conn, err := c.dialer.DialContext(dialCtx, "tcp", peer.Address())
	if err != nil {
		return nil, NewConnectionError(fmt.Sprintf("failed to connect to %s", peer), err)
	}

	c.conn = conn
	c.stale = false
	c.logger.WithField("peer", peer.String()).Debug("socket connected")
	return conn, nil
}

// resolvePeerLocked fills missing peer fields from the resolver. The
// resolved peer replaces the configured one.
func (c *Client) resolvePeerLocked() (Peer, error) {
	if c.peer.Complete() {
		return c.peer, nil
	}
	if c.resolver == nil {
		return Peer{}, NewConfigurationError("robot address and port are not set", nil)
	}

	resolved, err := c.resolver.ResolvePeer()
	if err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) {
			return Peer{}, err
		}
		return Peer{}, NewConfigurationError("failed to resolve robot address", err)
	}

	peer := c.peer
	if peer.Host == "" {
		peer.Host = resolved.Host
	}
	if peer.Port <= 0 {
		peer.Port = resolved.Port
	}
	if !peer.Complete() {
		return Peer{}, NewConfigurationError(fmt.Sprintf("incomplete robot address %q", peer.Address()), nil)
	}

	c.peer = peer
	c.logger.WithField("peer", peer.String()).Debug("socket peer set from configuration")
	return peer, nil
}

// Disconnect closes the connection, if one is held.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		c.logger.Debug("socket is already disconnected")
		return
	}
	c.conn.Close()
	c.conn = nil
	c.stale = false
	c.logger.WithField("peer", c.peer.String()).Debug("socket closed")
}

func (c *Client) markStale() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// Send frames command, sends it with the client's default timeout and
// returns the raw reply.
func (c *Client) Send(ctx context.Context, command string) (string, error) {
	return c.SendRequest(ctx, []byte(Frame(command)), c.timeout)
}

// SendRequest performs one exchange: it connects, writes payload in full,
// reads until a chunk carrying exactly one frame delimiter arrives, and
// disconnects. The send and the receive half are each bounded by timeout;
// a timeout returns a *TimeoutError and discards the partial reply.
func (c *Client) SendRequest(ctx context.Context, payload []byte, timeout time.Duration) (string, error) {
	c.exchangeMu.Lock()
	defer c.exchangeMu.Unlock()

	if timeout <= 0 {
		timeout = c.timeout
	}
	command := CommandName(string(payload))
	start := time.Now()

	reply, err := c.exchange(ctx, payload, timeout)

	elapsed := time.Since(start)
	log := c.logger.WithFields(logrus.Fields{"command": command, "elapsed": elapsed})
	if err != nil {
		log.WithError(err).Debug("exchange failed")
	} else {
		log.WithField("reply", reply).Debug("exchange complete")
	}
	if c.observer != nil {
		c.observer.ObserveExchange(command, elapsed, err)
	}
	return reply, err
}

func (c *Client) exchange(ctx context.Context, payload []byte, timeout time.Duration) (string, error) {
	c.mu.Lock()
	conn, err := c.connectLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return "", contextErr(ctx, err)
	}
	defer c.Disconnect()

	// Cancelling ctx unblocks any pending read or write.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	c.logger.WithField("frame", string(payload)).Debug("sending message")
	if err := c.write(ctx, conn, payload, timeout); err != nil {
		c.markStale()
		return "", contextErr(ctx, err)
	}

	reply, err := c.read(ctx, conn, timeout)
	if err != nil {
		c.markStale()
		return "", contextErr(ctx, err)
	}
	return reply, nil
}

func (c *Client) write(ctx context.Context, conn net.Conn, payload []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if err := setDeadline(ctx, conn.SetWriteDeadline, deadline); err != nil {
		return err
	}

	sent := 0
	for sent < len(payload) {
		n, err := conn.Write(payload[sent:])
		sent += n
		if err != nil {
			if isTimeout(err) {
				return &TimeoutError{Op: OpSend, Limit: timeout}
			}
			return NewConnectionError("failed to send message", err)
		}
		if sent < len(payload) && time.Now().After(deadline) {
			return &TimeoutError{Op: OpSend, Limit: timeout}
		}
	}
	return nil
}

func (c *Client) read(ctx context.Context, conn net.Conn, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	if err := setDeadline(ctx, conn.SetReadDeadline, deadline); err != nil {
		return "", err
	}

	var reply bytes.Buffer
	buf := make([]byte, RecvChunkSize)
	delim := []byte(Delimiter)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := bytes.Trim(buf[:n], "\x00")
			reply.Write(chunk)
			if bytes.Count(chunk, delim) == 1 {
				return reply.String(), nil
			}
		}
		if err != nil {
			switch {
			case isTimeout(err):
				return "", &TimeoutError{Op: OpReceive, Limit: timeout}
			case errors.Is(err, io.EOF):
				return "", NewConnectionError("connection closed before message delimiter", err)
			default:
				return "", NewConnectionError("failed to receive message", err)
			}
		}
		if time.Now().After(deadline) {
			return "", &TimeoutError{Op: OpReceive, Limit: timeout}
		}
	}
}

// setDeadline applies deadline, clipped to the context's own deadline. A
// cancellation that fired before the call has its deadline overwritten
// here, so ctx is checked again once the new deadline is in place.
func setDeadline(ctx context.Context, set func(time.Time) error, deadline time.Time) error {
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := set(deadline); err != nil {
		return NewConnectionError("failed to set deadline", err)
	}
	return ctx.Err()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// contextErr prefers the context's error when the exchange was aborted by
// cancellation rather than by its own timeout.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("exchange aborted: %w", ctxErr)
	}
	return err
}
