package emasim

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/mtwharmby/emacontrol/emaprotocol"
	"github.com/sirupsen/logrus"
)

// Server accepts TCP connections and answers every command frame with the
// reply computed by a Controller.
type Server struct {
	controller *Controller
	logger     logrus.FieldLogger

	// padding is the number of NUL bytes appended to each reply.
	padding int
	// chunkSize splits replies into writes of at most this many bytes.
	chunkSize  int
	chunkPause time.Duration

	listener net.Listener
	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithPadding appends n NUL bytes to every reply, as the real controller
// does for fixed-size buffers.
func WithPadding(n int) Option {
	return func(s *Server) { s.padding = n }
}

// WithChunking writes replies in pieces of size bytes, pausing between
// pieces so they reach the client as separate reads.
func WithChunking(size int, pause time.Duration) Option {
	return func(s *Server) {
		s.chunkSize = size
		s.chunkPause = pause
	}
}

// WithLogger sets the server logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a server for controller.
func NewServer(controller *Controller, opts ...Option) *Server {
	s := &Server{
		controller: controller,
		logger:     discardLogger(),
		conns:      make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Listen starts serving on address in the background.
func (s *Server) Listen(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.Serve(ln)
	return nil
}

// Serve starts accepting connections from ln in the background.
func (s *Server) Serve(ln net.Listener) {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Peer returns the listening address in the form the client dials.
func (s *Server) Peer() emaprotocol.Peer {
	addr, ok := s.Addr().(*net.TCPAddr)
	if !ok {
		return emaprotocol.Peer{}
	}
	return emaprotocol.Peer{Host: addr.IP.String(), Port: addr.Port}
}

// Controller returns the controller model behind the server.
func (s *Server) Controller() *Controller {
	return s.controller
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.WithError(err).Warn("accept failed")
			}
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection answers frames until the client hangs up.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	log := s.logger.WithField("client", conn.RemoteAddr().String())
	log.Debug("client connected")

	reader := bufio.NewReader(conn)
	for {
		frame, err := reader.ReadString(emaprotocol.Delimiter[0])
		if err != nil {
			if rest := strings.TrimSpace(frame); rest != "" {
				log.WithField("partial", rest).Debug("client hung up mid-frame")
			}
			log.Debug("client disconnected")
			return
		}

		reply := s.controller.Handle(frame)
		log.WithFields(logrus.Fields{"command": strings.TrimSpace(frame), "reply": reply}).Debug("handled command")
		if err := s.write(conn, reply); err != nil {
			log.WithError(err).Debug("write failed")
			return
		}
	}
}

func (s *Server) write(conn net.Conn, reply string) error {
	data := []byte(reply + strings.Repeat("\x00", s.padding))
	if s.chunkSize <= 0 {
		_, err := conn.Write(data)
		return err
	}
	for len(data) > 0 {
		n := min(s.chunkSize, len(data))
		if _, err := conn.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
		if len(data) > 0 && s.chunkPause > 0 {
			time.Sleep(s.chunkPause)
		}
	}
	return nil
}

// Close stops accepting, drops open connections and waits for all
// handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}
