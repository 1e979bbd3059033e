// Package server is a stand-in for the GSPro Open Connect endpoint. It
// accepts relay connections, acknowledges shots and can push scripted
// responses, which makes the relay testable without a simulator.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/life-stream-dev/gspro-osp-relay/internal/gspro"
	"github.com/life-stream-dev/gspro-osp-relay/internal/logger"
)

const (
	defaultMaxConnections = 16
	requestBuffer         = 256
)

type Options struct {
	// Greeting is written to every new connection, e.g. a 202 ready.
	Greeting []gspro.Response
	// Player, when set, is reported with a 201 after every acknowledged
	// shot, as GSPro does when the next stroke is set up.
	Player *gspro.Player
	// MaxConnections bounds concurrent handlers.
	MaxConnections int
}

type Server struct {
	listener net.Listener
	options  Options
	sem      chan struct{}
	requests chan gspro.Request

	mu          sync.Mutex
	connections map[string]*ConnectionHandler
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func Listen(address string, options Options) (*Server, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", address, err)
	}
	if options.MaxConnections <= 0 {
		options.MaxConnections = defaultMaxConnections
	}
	return &Server{
		listener:    ln,
		options:     options,
		sem:         make(chan struct{}, options.MaxConnections),
		requests:    make(chan gspro.Request, requestBuffer),
		connections: make(map[string]*ConnectionHandler),
	}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Requests delivers every request read from any connection. Requests are
// dropped when nobody keeps up with the channel.
func (s *Server) Requests() <-chan gspro.Request {
	return s.requests
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	logger.InfoF("GSPro mock listening on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			logger.ErrorF("Accept connection error: %v", err)
			continue
		}

		logger.DebugF("Accepted new connection from %s", conn.RemoteAddr().String())

		handler := newConnectionHandler(s, conn)
		s.track(handler)
		s.sem <- struct{}{}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.sem }()
			defer s.untrack(handler)
			handler.handleConnection()
		}()
	}
}

func (s *Server) track(handler *ConnectionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[handler.connID] = handler
}

func (s *Server) untrack(handler *ConnectionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, handler.connID)
}

func (s *Server) handlers() []*ConnectionHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	handlers := make([]*ConnectionHandler, 0, len(s.connections))
	for _, handler := range s.connections {
		handlers = append(handlers, handler)
	}
	return handlers
}

// Connections reports how many relays are currently attached.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Broadcast writes responses back to back, in one write, to every open
// connection.
func (s *Server) Broadcast(responses ...gspro.Response) error {
	data, err := encodeResponses(responses)
	if err != nil {
		return err
	}
	var errs []error
	for _, handler := range s.handlers() {
		if err := handler.write(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BroadcastRaw writes data unchanged to every open connection.
func (s *Server) BroadcastRaw(data []byte) error {
	var errs []error
	for _, handler := range s.handlers() {
		if err := handler.write(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DropConnections hangs up on every relay without stopping the listener.
func (s *Server) DropConnections() {
	for _, handler := range s.handlers() {
		handler.close()
	}
}

func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.listener.Close()
		s.DropConnections()
	})
	if err != nil && !isNetClosedError(err) {
		logger.ErrorF("Server close error: %v", err)
		return err
	}
	return nil
}

func (s *Server) publish(request gspro.Request) {
	select {
	case s.requests <- request:
	default:
		logger.Debug("Request buffer full, dropping request")
	}
}
