// Package connection owns the TCP session with GSPro: connecting with
// retries, writing requests, de-framing replies and reconnecting when the
// socket dies.
package connection

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/life-stream-dev/gspro-osp-relay/internal/gspro"
	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
	"github.com/life-stream-dev/gspro-osp-relay/internal/message"
	"github.com/life-stream-dev/gspro-osp-relay/internal/metrics"
)

const readBufferSize = 4096

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateGivenUp
)

var stateMap = map[State]string{
	StateDisconnected: "DISCONNECTED",
	StateConnecting:   "CONNECTING",
	StateConnected:    "CONNECTED",
	StateGivenUp:      "GIVEN_UP",
}

func (s State) String() string {
	return stateMap[s]
}

type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventDisconnected
	EventResponse
	EventGivenUp
)

// Event is delivered in order, at most once, on the channel passed to
// NewSession. Response is only set for EventResponse.
type Event struct {
	Kind     EventKind
	Response gspro.Response
}

type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Config struct {
	Address string
	// MaxRetries bounds connection attempts; -1 retries forever.
	MaxRetries int
	RetryDelay time.Duration
	// DialTimeout bounds a single attempt. Zero leaves it to the OS.
	DialTimeout time.Duration

	Dialer  Dialer
	Builder *message.Builder
	// Ready reports the launch monitor state sent in the first heartbeat.
	Ready   func() bool
	Metrics *metrics.Metrics
}

type Session struct {
	config Config
	events chan<- Event

	mu      sync.Mutex
	conn    net.Conn
	connID  string
	writeMu sync.Mutex

	state     atomic.Int32
	running   atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(config Config, events chan<- Event) *Session {
	if config.Dialer == nil {
		config.Dialer = &net.Dialer{Timeout: config.DialTimeout}
	}
	if config.Builder == nil {
		config.Builder = message.NewBuilder("", nil)
	}
	if config.Ready == nil {
		config.Ready = func() bool { return false }
	}
	if config.Metrics == nil {
		config.Metrics = metrics.New()
	}
	return &Session{
		config: config,
		events: events,
		done:   make(chan struct{}),
	}
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

func (s *Session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Run connects, reads until the connection dies, and reconnects, until ctx
// is cancelled, Shutdown is called or the retry budget is spent. It returns
// ErrGivenUp in the last case. Calling Run again after it returned starts
// over with a fresh attempt budget.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)

	for {
		conn, err := s.connect(ctx)
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			return err
		}

		s.receiveLoop(ctx, conn)
		s.teardown(conn)
		s.emit(ctx, Event{Kind: EventDisconnected})

		if s.closed.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info("Connection to GSPro lost; Will attempt to reconnect.")
		s.config.Metrics.Reconnects.Inc()
	}
}

func (s *Session) connect(ctx context.Context) (net.Conn, error) {
	maxRetries := s.config.MaxRetries
	for attempt := 1; maxRetries == -1 || attempt <= maxRetries; attempt++ {
		if s.closed.Load() {
			return nil, net.ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.setState(StateConnecting)
		if maxRetries == -1 {
			logger.InfoF("Connecting to GSPro API at %s. Will try indefinitely.", s.config.Address)
		} else {
			logger.InfoF("Connecting to GSPro API at %s. Attempt %d/%d", s.config.Address, attempt, maxRetries)
		}
		s.config.Metrics.ConnectAttempts.Inc()

		conn, err := s.config.Dialer.DialContext(ctx, "tcp", s.config.Address)
		if err == nil {
			s.established(ctx, conn)
			return conn, nil
		}
		s.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if isConnectFailure(err) {
			logger.Info("Connection failed. Is GSPro running?", "error", err)
		} else {
			logger.WarnF("Unknown connection failure: %v", err)
		}

		if maxRetries == -1 || attempt < maxRetries {
			logger.InfoF("Retrying in %v.", s.config.RetryDelay)
			if err := s.wait(ctx, s.config.RetryDelay); err != nil {
				return nil, err
			}
		}
	}

	s.setState(StateGivenUp)
	logger.Info("Exceeded max connection attempts. Giving up.")
	logger.Warn("Could not connect to GSPro. Shot data will not be sent.")
	s.emit(ctx, Event{Kind: EventGivenUp})
	return nil, ErrGivenUp
}

// established publishes conn, announces the connection and sends the
// opening heartbeat.
func (s *Session) established(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()[:8]
	s.mu.Lock()
	s.conn = conn
	s.connID = connID
	s.mu.Unlock()

	s.setState(StateConnected)
	s.config.Metrics.SetConnected(true)
	s.emit(ctx, Event{Kind: EventConnected})
	logger.InfoF("[%s] Connected to GSPro at %s", connID, conn.RemoteAddr())

	s.Send(s.config.Builder.Heartbeat(s.config.Ready()))
}

func (s *Session) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return net.ErrClosed
	}
}

// Send writes request to GSPro. Without an open socket the request is
// dropped. A failed write closes the socket so the receive loop notices and
// reconnects; errors never reach the caller.
func (s *Session) Send(request gspro.Request) {
	s.mu.Lock()
	conn, connID := s.conn, s.connID
	s.mu.Unlock()

	kind := message.Kind(request)
	if conn == nil {
		s.config.Metrics.RequestsDropped.Inc()
		logger.DebugF("Not connected to GSPro, dropping %s request", kind)
		return
	}

	data, err := gspro.Encode(request)
	if err != nil {
		logger.WarnF("[%s] Failed to encode %s request: %v", connID, kind, err)
		return
	}

	logger.DebugF("[%s] Sending request:\n%s", connID, data)
	if err := s.write(conn, data); err != nil {
		logger.WarnF("[%s] Failed to send request to GSPro: %v", connID, err)
		_ = conn.Close()
		return
	}
	s.config.Metrics.RequestsSent.WithLabelValues(kind).Inc()
}

func (s *Session) write(conn net.Conn, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	total := 0
	for total < len(data) {
		n, err := conn.Write(data[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

func (s *Session) receiveLoop(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.mu.Lock()
	connID := s.connID
	s.mu.Unlock()

	var decoder gspro.Decoder
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.handleChunk(ctx, connID, &decoder, buf[:n])
		}
		if err != nil {
			if s.closed.Load() || ctx.Err() != nil {
				logger.DebugF("[%s] Receive loop stopped", connID)
			} else {
				handleReadError(connID, err)
			}
			return
		}
	}
}

// handleChunk decodes one read and dispatches every response. A panic
// while doing so is logged and the pending stream is flushed; the loop
// keeps going.
func (s *Session) handleChunk(ctx context.Context, connID string, decoder *gspro.Decoder, chunk []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.WarnF("[%s] GSPro responded unexpectedly: %v", connID, r)
			decoder.Reset()
		}
	}()

	logger.DebugF("[%s] Response:\n%s", connID, chunk)
	responses, unparsed, err := decoder.Feed(chunk)
	for _, response := range responses {
		s.dispatch(ctx, response)
	}
	if err == nil {
		if pending := decoder.Pending(); pending > 0 {
			logger.DebugF("[%s] Waiting for the rest of a response, %d bytes buffered", connID, pending)
		}
		return
	}

	s.config.Metrics.DecodeFailures.Inc()
	if ready, ok := gspro.RecoverReady(unparsed); ok {
		logger.DebugF("[%s] Unparseable data carries %q, treating it as ready: %v", connID, gspro.ReadyMessage, err)
		s.config.Metrics.ReadyFallbacks.Inc()
		s.dispatch(ctx, ready)
		return
	}
	logger.DebugF("[%s] Dropping unparseable data: %v", connID, err)
}

func (s *Session) dispatch(ctx context.Context, response gspro.Response) {
	s.config.Metrics.ObserveResponse(int(response.StatusCode()))
	s.emit(ctx, Event{Kind: EventResponse, Response: response})
}

func (s *Session) emit(ctx context.Context, event Event) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- event:
	case <-ctx.Done():
	case <-s.done:
	}
}

// teardown half-closes and releases conn, then clears the session.
func (s *Session) teardown(conn net.Conn) {
	s.mu.Lock()
	connID := s.connID
	if s.conn == conn {
		s.conn = nil
		s.connID = ""
	}
	s.mu.Unlock()

	if closer, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := closer.CloseWrite(); err != nil && !IsExpectedCloseError(err) {
			logger.DebugF("[%s] Couldn't gracefully close the socket connection. The server probably hung up.\n%v", connID, err)
		}
	}
	if err := conn.Close(); err != nil && !IsExpectedCloseError(err) {
		logger.DebugF("[%s] Error occured while closing connection, details: %v", connID, err)
	}
	s.config.Metrics.SetConnected(false)
	if s.State() != StateGivenUp {
		s.setState(StateDisconnected)
	}
}

// Shutdown stops the session for good: the socket is closed, pending
// retries are abandoned and Run returns. It is safe to call more than once.
func (s *Session) Shutdown() error {
	s.closed.Store(true)
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	logger.Info("Shutting down.....")
	if closer, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = closer.CloseWrite()
	}
	if err := conn.Close(); err != nil && !IsExpectedCloseError(err) {
		return err
	}
	return nil
}

// Invoke lets the session be registered with the process cleaner.
func (s *Session) Invoke(_ context.Context) error {
	return s.Shutdown()
}
