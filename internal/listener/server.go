package listener

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/hl7"
)

// Handler processes one parsed message. The returned error decides the
// acknowledgment outcome (nil → AA, error → AE); it never closes the
// connection.
type Handler func(ctx context.Context, msg *hl7.Message) error

// Server is the MLLP listener: accepts concurrent connections, frames
// blocks, parses them, dispatches by message type, and answers every
// frame with an acknowledgment on the same connection.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	mu             sync.RWMutex
	handlers       map[string]Handler // keyed by message type, e.g. "ADT"
	defaultHandler Handler

	listener net.Listener
	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer creates the listener. Handlers are registered before Start.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: make(map[string]Handler),
		shutdown: make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}
}

// Handle registers a handler for a message type ("ADT", "ORM", "SIU").
func (s *Server) Handle(messageType string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[messageType] = handler
}

// HandleUnrecognized registers the fallback for message types without a
// dedicated handler. Unrecognized messages are still acknowledged.
func (s *Server) HandleUnrecognized(handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultHandler = handler
}

// Start binds the listen socket and begins accepting connections.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Listener.BindAddr, s.cfg.Listener.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.logger.Info("MLLP listener started",
		zap.String("addr", ln.Addr().String()),
		zap.Int("max_frame_bytes", s.cfg.Listener.MaxFrameBytes),
		zap.Int("read_idle_seconds", s.cfg.Listener.ReadIdleSeconds),
	)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address (useful with port 0).
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting new connections and drains: connections finish
// their current frame, then close. Connections still open when ctx
// expires are closed immediately.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Error("Failed to close listen socket", zap.Error(err))
			}
		}
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.connMu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.connMu.Unlock()
		<-done
	}

	s.logger.Info("MLLP listener stopped")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			s.logger.Error("Accept failed", zap.Error(err))
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		s.trackConn(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// handleConnection reads framed blocks sequentially until the peer goes
// away, a protocol bound is violated, or the listener drains.
func (s *Server) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		s.trackConn(conn, false)
	}()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("Connection opened", zap.String("remote", remote))

	reader := bufio.NewReader(conn)
	idleTimeout := time.Duration(s.cfg.Listener.ReadIdleSeconds) * time.Second

	for {
		select {
		case <-s.shutdown:
			s.logger.Debug("Connection drained on shutdown", zap.String("remote", remote))
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		payload, err := readFrame(reader, s.cfg.Listener.MaxFrameBytes)
		if err != nil {
			s.logConnectionEnd(remote, err)
			return
		}

		if !s.processFrame(conn, payload, remote) {
			return
		}
	}
}

// processFrame parses one block, dispatches it, and writes the ACK.
// Returns false when the connection must close (parse reject).
func (s *Server) processFrame(conn net.Conn, payload []byte, remote string) bool {
	msg, err := hl7.Parse(payload)
	if err != nil {
		// Missing or malformed header: reject and drop the connection.
		// No domain state was created.
		s.logger.Warn("Rejected unparseable frame",
			zap.String("remote", remote),
			zap.Error(err),
		)
		s.writeAck(conn, nil, hl7.AckReject, remote)
		return false
	}

	code := hl7.AckAccept
	if err := s.dispatch(msg); err != nil {
		// Business failure: negative ACK, connection stays open so the
		// peer can distinguish wire receipt from processing outcome.
		s.logger.Error("Handler failed",
			zap.String("remote", remote),
			zap.String("message_type", msg.TypeAndTrigger()),
			zap.String("control_id", msg.ControlID()),
			zap.Error(err),
		)
		code = hl7.AckError
	} else {
		s.logger.Debug("Message processed",
			zap.String("remote", remote),
			zap.String("message_type", msg.TypeAndTrigger()),
			zap.String("control_id", msg.ControlID()),
		)
	}

	s.writeAck(conn, msg, code, remote)
	return true
}

// dispatch routes by message type; handler panics are contained and
// surface as errors so the frame still gets its negative ACK.
func (s *Server) dispatch(msg *hl7.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	s.mu.RLock()
	handler, ok := s.handlers[msg.Type()]
	fallback := s.defaultHandler
	s.mu.RUnlock()

	if !ok {
		if fallback == nil {
			s.logger.Debug("No handler for message type",
				zap.String("message_type", msg.TypeAndTrigger()),
			)
			return nil
		}
		handler = fallback
	}

	return handler(context.Background(), msg)
}

func (s *Server) writeAck(conn net.Conn, msg *hl7.Message, code hl7.AckCode, remote string) {
	ack := hl7.BuildAck(msg, code, s.cfg.Listener.AppName, s.cfg.Listener.FacilityName)
	if err := writeFrame(conn, ack); err != nil {
		s.logger.Error("Failed to write ACK",
			zap.String("remote", remote),
			zap.String("code", string(code)),
			zap.Error(err),
		)
	}
}

func (s *Server) logConnectionEnd(remote string, err error) {
	var tooLarge errFrameTooLarge
	switch {
	case errors.As(err, &tooLarge):
		s.logger.Warn("Closing connection: oversized frame",
			zap.String("remote", remote),
			zap.Error(err),
		)
	case errors.Is(err, os.ErrDeadlineExceeded):
		s.logger.Info("Closing idle connection", zap.String("remote", remote))
	default:
		s.logger.Debug("Connection closed", zap.String("remote", remote), zap.Error(err))
	}
}
