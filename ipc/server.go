package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"
	"time"
)

// Handler executes one operation on behalf of a remote caller. It is
// invoked on the connection goroutine, so implementations must marshal
// work onto their own loop when state is involved.
type Handler func(req Request) Response

// Server owns the loopback listener for the resident process.
type Server struct {
	listener net.Listener
	port     int
	handler  Handler
	done     chan struct{}
}

// NewServer binds the first free port in the configured range.
func NewServer(handler Handler) (*Server, error) {
	start, end := portRange()
	for port := start; port <= end; port++ {
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", residentHost, port))
		if err != nil {
			continue
		}
		s := &Server{
			listener: lis,
			port:     port,
			handler:  handler,
			done:     make(chan struct{}),
		}
		log.Printf("ipc: listening on %s", lis.Addr())
		return s, nil
	}
	return nil, fmt.Errorf("ipc: no free port in %d-%d", start, end)
}

// Port returns the bound port.
func (s *Server) Port() int { return s.port }

// Serve accepts connections until Close is called.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			log.Printf("ipc: accept error: %v", err)
			continue
		}
		go s.handleConn(conn)
	}
}

// Close stops the listener. In-flight connections finish on their own.
func (s *Server) Close() {
	close(s.done)
	s.listener.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}
	line = strings.TrimSpace(line)

	if line == pingRequest {
		fmt.Fprintf(conn, "%s\n", pongResponse)
		return
	}

	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		writeResponse(conn, Response{Error: "malformed request"})
		return
	}
	if req.Op == "" {
		writeResponse(conn, Response{Error: "missing op"})
		return
	}

	log.Printf("ipc: handling op=%s", req.Op)
	resp := s.handler(req)
	writeResponse(conn, resp)
}

func writeResponse(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		data = []byte(`{"success":false,"error":"encode failure"}`)
	}
	conn.Write(append(data, '\n'))
}
