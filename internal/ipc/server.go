package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/nightlock/internal/logfields"
)

const (
	// messageTimeout bounds each read and write on a connection. An idle
	// client is disconnected; the listener itself is unaffected.
	messageTimeout = 30 * time.Second

	// acceptBackoff is how long the accept loop pauses after a transient
	// accept failure instead of crashing.
	acceptBackoff = time.Second

	// maxLineBytes caps a single request line; anything larger is not a
	// legitimate client.
	maxLineBytes = 64 * 1024
)

// Server accepts IPC connections on a unix socket and hands each one to an
// independent goroutine, so one slow or malicious client cannot block
// others.
type Server struct {
	socketPath string
	dispatcher *Dispatcher

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates an IPC server bound to socketPath once started.
func NewServer(socketPath string, dispatcher *Dispatcher) *Server {
	return &Server{
		socketPath: socketPath,
		dispatcher: dispatcher,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start binds the socket, handling a stale socket file from a previous
// daemon: if a live daemon answers on it, starting fails; a dead socket
// file is removed.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		if _, statErr := os.Stat(s.socketPath); statErr != nil {
			return fmt.Errorf("failed to create socket listener: %w", err)
		}
		if conn, dialErr := net.DialTimeout("unix", s.socketPath, time.Second); dialErr == nil {
			conn.Close()
			return fmt.Errorf("daemon already running on %s", s.socketPath)
		}
		slog.Info("Removing stale socket file", logfields.Path(s.socketPath))
		if removeErr := os.Remove(s.socketPath); removeErr != nil {
			return fmt.Errorf("failed to remove stale socket: %w", removeErr)
		}
		listener, err = net.Listen("unix", s.socketPath)
		if err != nil {
			return fmt.Errorf("failed to create socket listener: %w", err)
		}
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	slog.Info("IPC listener started", logfields.Path(s.socketPath))

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Stop closes the listener and every open connection, waits for workers to
// finish their current message, and removes the socket file.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	_ = os.Remove(s.socketPath)
	slog.Info("IPC listener stopped")
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() || ctx.Err() != nil || strings.Contains(err.Error(), "use of closed network connection") {
				return
			}
			slog.Warn("Accept failed, retrying", logfields.Error(err))
			time.Sleep(acceptBackoff)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	connID := uuid.NewString()[:8]
	slog.Debug("Client connected", logfields.ConnID(connID))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(messageTimeout)); err != nil {
			return
		}
		if !scanner.Scan() {
			slog.Debug("Client disconnected", logfields.ConnID(connID))
			return
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// Log only the tag; requests carry PIN material.
		slog.Info("IPC request",
			logfields.ConnID(connID),
			logfields.RequestType(peekType(line)))

		resp := s.dispatcher.Handle(ctx, line)
		if err := writeResponse(conn, resp); err != nil {
			slog.Debug("Response write failed", logfields.ConnID(connID), logfields.Error(err))
			return
		}
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func writeResponse(conn net.Conn, resp any) error {
	data, err := json.Marshal(resp)
	if err != nil {
		data, _ = json.Marshal(errorResponse("internal error"))
	}
	if err := conn.SetWriteDeadline(time.Now().Add(messageTimeout)); err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}

// peekType extracts the request tag for logging without trusting the rest
// of the payload.
func peekType(line []byte) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &probe); err != nil || probe.Type == "" {
		return "malformed"
	}
	return probe.Type
}
